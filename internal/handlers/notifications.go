package handlers

import (
	"net/http"

	"tourney/internal/auth"
	"tourney/internal/middleware"
	"tourney/internal/websocket"
)

// WSNotifications streams the caller's notifications. Browsers cannot set
// headers on websocket upgrades, so the token may come as a query parameter.
func (h *Handler) WSNotifications(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, websocket.Upgrader(h.cfg.AllowedOrigins), h.hub, claims.UserID)
}
