package handlers

import (
	"encoding/json"
	"net/http"

	"tourney/internal/middleware"
	"tourney/internal/models"
	"tourney/internal/services"
	"tourney/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
)

type reviewRequest struct {
	Note string `json:"note"`
}

// reviewFromRequest reads the {decision} path segment and the optional note.
func reviewFromRequest(w http.ResponseWriter, r *http.Request) (services.ReviewRequest, bool) {
	adminID, ok := callerID(w, r)
	if !ok {
		return services.ReviewRequest{}, false
	}
	var approve bool
	switch chi.URLParam(r, "decision") {
	case "approve":
		approve = true
	case "reject":
	default:
		respondError(w, http.StatusNotFound, "unknown decision")
		return services.ReviewRequest{}, false
	}
	var body reviewRequest
	if err := decode(r, &body, true); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return services.ReviewRequest{}, false
	}
	return services.ReviewRequest{
		AdminID: adminID,
		ID:      chi.URLParam(r, "id"),
		Approve: approve,
		Note:    body.Note,
	}, true
}

func (h *Handler) ReviewDeposit(w http.ResponseWriter, r *http.Request) {
	req, ok := reviewFromRequest(w, r)
	if !ok {
		return
	}
	status, err := h.engine.ReviewDeposit(r.Context(), req)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]any{"status": status})
}

func (h *Handler) ReviewWalletWithdrawal(w http.ResponseWriter, r *http.Request) {
	req, ok := reviewFromRequest(w, r)
	if !ok {
		return
	}
	status, err := h.engine.ReviewWalletWithdrawal(r.Context(), req)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]any{"status": status})
}

func (h *Handler) ReviewDhanaWithdrawal(w http.ResponseWriter, r *http.Request) {
	req, ok := reviewFromRequest(w, r)
	if !ok {
		return
	}
	status, err := h.engine.ReviewDhanaWithdrawal(r.Context(), req)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]any{"status": status})
}

type adjustRequest struct {
	Amount    string `json:"amount"`
	Direction string `json:"direction"`
	Reason    string `json:"reason"`
}

func (h *Handler) AdjustWallet(w http.ResponseWriter, r *http.Request) {
	adminID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	delta, err := signedAdjustment(req.Amount, req.Direction)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	balance, err := h.engine.AdjustWallet(r.Context(), services.AdjustRequest{
		AdminID: adminID,
		UserID:  chi.URLParam(r, "userID"),
		Amount:  delta,
		Reason:  req.Reason,
	})
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]any{"balance": formatMoney(balance)})
}

func (h *Handler) RunSettlement(w http.ResponseWriter, r *http.Request) {
	matured, err := h.engine.MatureCommissions(r.Context())
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]any{"matured": matured})
}

func (h *Handler) AdminListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	query := r.URL.Query()
	rows, err := h.transactions.ListAll(r.Context(), query.Get("type"), query.Get("status"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	respondJSON(w, http.StatusOK, transactionViews(rows))
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	query := r.URL.Query()
	rows, err := h.audit.List(r.Context(), query.Get("entity_type"), query.Get("entity_id"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, map[string]any{
			"id":          row.ID,
			"actor_id":    row.ActorID,
			"action":      row.Action,
			"entity_type": row.EntityType,
			"entity_id":   row.EntityID,
			"data":        rawJSON(row.Data),
			"created_at":  row.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

// Reconcile lists wallets whose balance drifted from their ledger.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rows, err := h.wallets.Reconcile(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to reconcile balances")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, map[string]any{
			"user_id":            row.UserID,
			"stored_balance":     formatMoney(row.StoredBalance),
			"calculated_balance": formatMoney(row.CalculatedBalance),
			"difference":         formatMoney(row.Difference),
			"is_system":          row.IsSystem,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) ListCommissions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.settings.ListCommissions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load commission settings")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, map[string]any{
			"kind":       row.Kind,
			"prize_pool": row.PrizePoolPercent.String(),
			"organizer":  row.OrganizerPercent.String(),
			"platform":   row.PlatformPercent.String(),
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

// UpdateCommission stores the split for one tournament kind. Operations that
// already took their settings snapshot keep the old split.
func (h *Handler) UpdateCommission(w http.ResponseWriter, r *http.Request) {
	adminID, ok := callerID(w, r)
	if !ok {
		return
	}
	kind := models.TournamentKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		respondError(w, http.StatusNotFound, "unknown tournament kind")
		return
	}
	var req splitRequest
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	prize, err1 := parsePercent(req.PrizePool)
	organizer, err2 := parsePercent(req.Organizer)
	platform, err3 := parsePercent(req.Platform)
	split := services.Split{PrizePool: prize, Organizer: organizer, Platform: platform}
	if err1 != nil || err2 != nil || err3 != nil || !split.Valid() {
		h.respondEngineError(w, r, services.ErrInvalidSplit)
		return
	}
	setting := models.CommissionSetting{
		Kind:             kind,
		PrizePoolPercent: prize,
		OrganizerPercent: organizer,
		PlatformPercent:  platform,
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.settings.UpsertCommission(r.Context(), tx, setting); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"prize_pool": prize.String(),
			"organizer":  organizer.String(),
			"platform":   platform.String(),
		})
		return h.audit.Log(r.Context(), tx, adminID, "commission_updated", "commission_setting", string(kind), string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update commission setting")
		return
	}
	respondOK(w, http.StatusOK, map[string]any{"kind": kind})
}

type promoteRequest struct {
	UserID string `json:"user_id"`
}

func (h *Handler) PromoteAdmin(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req promoteRequest
	if err := decode(r, &req, false); err != nil || req.UserID == "" {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.Promote(r.Context(), tx, req.UserID, adminID); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{"target_user_id": req.UserID})
		return h.audit.Log(r.Context(), tx, adminID, "promote_admin", "admin", req.UserID, string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to promote admin")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "promoted"})
}

type grantRoleRequest struct {
	AdminUserID string `json:"admin_user_id"`
	Role        string `json:"role"`
}

var grantableRoles = map[string]bool{
	store.RoleReviewPayments:   true,
	store.RoleAdjustWallets:    true,
	store.RoleViewTransactions: true,
	store.RoleManageSettings:   true,
	store.RoleRunSettlement:    true,
}

func (h *Handler) GrantRole(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req grantRoleRequest
	if err := decode(r, &req, false); err != nil || req.AdminUserID == "" || !grantableRoles[req.Role] {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	isAdmin, isSuper, err := h.admin.IsAdmin(r.Context(), req.AdminUserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to verify target admin")
		return
	}
	if !isAdmin {
		respondError(w, http.StatusBadRequest, "target is not an admin")
		return
	}
	if isSuper {
		respondError(w, http.StatusBadRequest, "cannot assign roles to super admin")
		return
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.admin.GrantRole(r.Context(), tx, req.AdminUserID, req.Role); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"admin_user_id": req.AdminUserID,
			"role":          req.Role,
		})
		return h.audit.Log(r.Context(), tx, adminID, "grant_role", "admin_role", req.AdminUserID, string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to grant role")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "role_granted"})
}

func (h *Handler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req grantRoleRequest
	if err := decode(r, &req, false); err != nil || req.AdminUserID == "" || !grantableRoles[req.Role] {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	var revoked bool
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		var err error
		revoked, err = h.admin.RevokeRole(r.Context(), tx, req.AdminUserID, req.Role)
		if err != nil || !revoked {
			return err
		}
		data, _ := json.Marshal(map[string]string{
			"admin_user_id": req.AdminUserID,
			"role":          req.Role,
		})
		return h.audit.Log(r.Context(), tx, adminID, "revoke_role", "admin_role", req.AdminUserID, string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to revoke role")
		return
	}
	if !revoked {
		respondError(w, http.StatusNotFound, "role not held")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "role_revoked"})
}

func (h *Handler) ListAdmins(w http.ResponseWriter, r *http.Request) {
	admins, err := h.admin.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load admins")
		return
	}
	if admins == nil {
		admins = []store.AdminAccount{}
	}
	respondJSON(w, http.StatusOK, admins)
}
