package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"tourney/internal/middleware"
	"tourney/internal/money"
	"tourney/internal/services"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"success": false, "error": message})
}

// respondOK wraps an engine result in the success envelope.
func respondOK(w http.ResponseWriter, status int, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["success"] = true
	respondJSON(w, status, data)
}

func statusForKind(kind services.Kind) int {
	switch kind {
	case services.KindValidation, services.KindInsufficientFunds:
		return http.StatusBadRequest
	case services.KindPrecondition, services.KindCapacity:
		return http.StatusConflict
	case services.KindBusy:
		return http.StatusServiceUnavailable
	case services.KindInconsistent:
		return http.StatusUnprocessableEntity
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// respondEngineError maps an engine error to its status. Errors without a
// kind are internal: they are logged and reported generically.
func (h *Handler) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := services.KindOf(err)
	if kind == "" {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if kind == services.KindBusy {
		w.Header().Set("Retry-After", "1")
	}
	respondJSON(w, statusForKind(kind), map[string]any{
		"success": false,
		"error":   err.Error(),
		"kind":    string(kind),
		"code":    services.CodeOf(err),
	})
}

var errEmptyBody = errors.New("empty body")

// decode reads a JSON body into dest. An empty body is allowed only when
// optional is set.
func decode(r *http.Request, dest any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(dest)
	if errors.Is(err, io.EOF) {
		if optional {
			return nil
		}
		return errEmptyBody
	}
	return err
}

func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return userID, true
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// page reads limit and page query parameters, capping limit at 200.
func page(r *http.Request) (limit, offset int) {
	query := r.URL.Query()
	limit = parseInt(query.Get("limit"), 50)
	if limit > 200 {
		limit = 200
	}
	return limit, (parseInt(query.Get("page"), 1) - 1) * limit
}

func formatMoney(value int64) string {
	return money.FormatMinor(value)
}

// rawJSON embeds a stored JSON document as-is, falling back to an empty
// object when it does not parse.
func rawJSON(value string) json.RawMessage {
	if value == "" || !json.Valid([]byte(value)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(value)
}
