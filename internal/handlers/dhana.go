package handlers

import (
	"net/http"

	"tourney/internal/models"
)

func (h *Handler) GetDhana(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	balance, err := h.engine.GetDhanaBalance(r.Context(), userID)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]any{
		"pending":         formatMoney(balance.Pending),
		"available":       formatMoney(balance.Available),
		"total_earned":    formatMoney(balance.TotalEarned),
		"total_withdrawn": formatMoney(balance.TotalWithdrawn),
	})
}

func (h *Handler) ListDhanaEntries(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	limit, offset := page(r)
	rows, err := h.dhana.ListEntries(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load commission entries")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, map[string]any{
			"id":            row.ID,
			"tournament_id": row.TournamentID,
			"amount":        formatMoney(row.Amount),
			"status":        row.Status,
			"matures_at":    row.MaturesAt,
			"matured_at":    row.MaturedAt,
			"created_at":    row.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) ListDhanaWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	h.listDhanaWithdrawals(w, r, userID)
}

func (h *Handler) AdminListDhanaWithdrawals(w http.ResponseWriter, r *http.Request) {
	h.listDhanaWithdrawals(w, r, r.URL.Query().Get("user_id"))
}

func (h *Handler) listDhanaWithdrawals(w http.ResponseWriter, r *http.Request, userID string) {
	limit, offset := page(r)
	rows, err := h.dhana.ListWithdrawals(r.Context(), userID, r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load withdrawals")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, withdrawalView(row))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) RequestDhanaWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req withdrawalRequest
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	withdrawal, err := h.engine.RequestDhanaWithdrawal(r.Context(), userID, amount, req.UPIID)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, map[string]any{"withdrawal": withdrawalView(withdrawal)})
}

func withdrawalView(row models.DhanaWithdrawal) map[string]any {
	return map[string]any{
		"id":          row.ID,
		"user_id":     row.UserID,
		"amount":      formatMoney(row.Amount),
		"upi_id":      row.UPIID,
		"status":      row.Status,
		"reviewed_by": row.ReviewedBy,
		"review_note": row.ReviewNote,
		"created_at":  row.CreatedAt,
		"reviewed_at": row.ReviewedAt,
	}
}
