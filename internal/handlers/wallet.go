package handlers

import (
	"net/http"

	"tourney/internal/models"
)

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	wallet, err := h.engine.GetWallet(r.Context(), userID)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]any{
		"user_id": wallet.UserID,
		"balance": formatMoney(wallet.Balance),
	})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	limit, offset := page(r)
	rows, err := h.transactions.ListByUser(r.Context(), userID, r.URL.Query().Get("type"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	respondJSON(w, http.StatusOK, transactionViews(rows))
}

func (h *Handler) ListLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	limit, offset := page(r)
	rows, err := h.ledger.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load ledger")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, map[string]any{
			"id":             row.ID,
			"transaction_id": row.TransactionID,
			"amount":         formatMoney(row.Amount),
			"balance_after":  formatMoney(row.BalanceAfter),
			"description":    row.Description,
			"created_at":     row.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

// SelfCheck compares the caller's stored balance with the sum of their
// ledger entries.
func (h *Handler) SelfCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	wallet, err := h.engine.GetWallet(r.Context(), userID)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	sum, err := h.ledger.SumByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to sum ledger")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"stored_balance":     formatMoney(wallet.Balance),
		"calculated_balance": formatMoney(sum),
		"difference":         formatMoney(wallet.Balance - sum),
		"consistent":         wallet.Balance == sum,
	})
}

type depositRequest struct {
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

func (h *Handler) RequestDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	id, err := h.engine.RequestDeposit(r.Context(), userID, amount, req.Reference)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, map[string]any{"transaction_id": id, "status": models.TxPending})
}

type withdrawalRequest struct {
	Amount string `json:"amount"`
	UPIID  string `json:"upi_id"`
}

func (h *Handler) RequestWalletWithdrawal(w http.ResponseWriter, r *http.Request) {
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
	id, err := h.engine.RequestWalletWithdrawal(r.Context(), userID, amount, req.UPIID)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, map[string]any{"transaction_id": id, "status": models.TxPending})
}

func transactionViews(rows []models.TransactionRecord) []map[string]any {
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		tournamentID := ""
		if row.TournamentID != nil {
			tournamentID = *row.TournamentID
		}
		normalized = append(normalized, map[string]any{
			"id":            row.ID,
			"user_id":       row.UserID,
			"tournament_id": tournamentID,
			"type":          row.Type,
			"status":        row.Status,
			"amount":        formatMoney(row.Amount),
			"description":   row.Description,
			"metadata":      rawJSON(row.Metadata),
			"created_at":    row.CreatedAt,
			"resolved_at":   row.ResolvedAt,
		})
	}
	return normalized
}
