package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"tourney/internal/models"
	"tourney/internal/services"

	"github.com/go-chi/chi/v5"
)

type splitRequest struct {
	PrizePool string `json:"prize_pool"`
	Organizer string `json:"organizer"`
	Platform  string `json:"platform"`
}

type createTournamentRequest struct {
	Name                 string            `json:"name"`
	Kind                 string            `json:"kind"`
	Mode                 string            `json:"mode"`
	EntryFee             string            `json:"entry_fee"`
	Capacity             int               `json:"capacity"`
	StartDate            time.Time         `json:"start_date"`
	RegistrationDeadline *time.Time        `json:"registration_deadline"`
	Split                *splitRequest     `json:"split"`
	PrizeDistribution    map[string]string `json:"prize_distribution"`
	IsGiveaway           bool              `json:"is_giveaway"`
	GiveawayPrizePool    string            `json:"giveaway_prize_pool"`
}

func (req createTournamentRequest) toService(creatorID string) (services.CreateTournamentRequest, string) {
	out := services.CreateTournamentRequest{
		CreatorID:            creatorID,
		Name:                 req.Name,
		Kind:                 models.TournamentKind(req.Kind),
		Mode:                 models.Mode(req.Mode),
		Capacity:             req.Capacity,
		StartDate:            req.StartDate,
		RegistrationDeadline: req.RegistrationDeadline,
		IsGiveaway:           req.IsGiveaway,
	}
	fee, err := parseFeeMinor(req.EntryFee)
	if err != nil {
		return out, "invalid entry_fee"
	}
	out.EntryFee = fee
	if req.IsGiveaway {
		pool, err := parseAmountMinor(req.GiveawayPrizePool)
		if err != nil {
			return out, "invalid giveaway_prize_pool"
		}
		out.GiveawayPrizePool = pool
	}
	if req.Split != nil {
		prize, err1 := parsePercent(req.Split.PrizePool)
		organizer, err2 := parsePercent(req.Split.Organizer)
		platform, err3 := parsePercent(req.Split.Platform)
		if err1 != nil || err2 != nil || err3 != nil {
			return out, "invalid split"
		}
		out.Split = &services.Split{PrizePool: prize, Organizer: organizer, Platform: platform}
	}
	if len(req.PrizeDistribution) > 0 {
		out.PrizeDistribution = make(models.PrizeDistribution, len(req.PrizeDistribution))
		for rawPosition, rawAmount := range req.PrizeDistribution {
			position, err := strconv.Atoi(rawPosition)
			if err != nil {
				return out, "invalid prize_distribution position " + rawPosition
			}
			amount, err := parseFeeMinor(rawAmount)
			if err != nil {
				return out, "invalid prize_distribution amount for position " + rawPosition
			}
			out.PrizeDistribution[position] = amount
		}
	}
	return out, ""
}

func (h *Handler) CreateTournament(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createTournamentRequest
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	serviceReq, problem := req.toService(userID)
	if problem != "" {
		respondError(w, http.StatusBadRequest, problem)
		return
	}
	tournament, err := h.engine.CreateTournament(r.Context(), serviceReq)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, map[string]any{"tournament": tournamentView(tournament)})
}

func (h *Handler) GetTournament(w http.ResponseWriter, r *http.Request) {
	tournament, err := h.engine.GetTournament(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]any{"tournament": tournamentView(tournament)})
}

func (h *Handler) ListTournaments(w http.ResponseWriter, r *http.Request) {
	limit, offset := page(r)
	rows, err := h.tournaments.List(r.Context(), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load tournaments")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		normalized = append(normalized, tournamentView(row))
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) JoinTournament(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	result, err := h.engine.JoinTournament(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, map[string]any{
		"registration_id": result.RegistrationID,
		"entry_fee":       formatMoney(result.EntryFee),
		"new_balance":     formatMoney(result.NewBalance),
		"participants":    result.Participants,
	})
}

type joinTeamRequest struct {
	TeamName  string   `json:"team_name"`
	MemberIDs []string `json:"member_ids"`
}

// JoinTeamTournament registers the caller as leader with member_ids as the
// rest of the team.
func (h *Handler) JoinTeamTournament(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req joinTeamRequest
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := h.engine.JoinTeamTournament(r.Context(), services.TeamJoinRequest{
		TournamentID: chi.URLParam(r, "id"),
		LeaderID:     userID,
		MemberIDs:    req.MemberIDs,
		TeamName:     req.TeamName,
	})
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, map[string]any{
		"registration_id": result.RegistrationID,
		"team_name":       result.TeamName,
		"total_fee":       formatMoney(result.TotalFee),
		"participants":    result.Participants,
	})
}

func (h *Handler) ExitTournament(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	result, err := h.engine.ExitTournament(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]any{
		"refunded_amount": formatMoney(result.RefundedAmount),
		"new_balance":     formatMoney(result.NewBalance),
	})
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelTournament(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := h.engine.CancelTournament(r.Context(), chi.URLParam(r, "id"), userID, req.Reason)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]any{
		"refunded_players": result.RefundedPlayers,
		"total_refunded":   formatMoney(result.TotalRefunded),
	})
}

func (h *Handler) RecalculatePrizePool(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	result, err := h.engine.RecalculatePrizePool(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]any{
		"prize_pool":         formatMoney(result.PrizePool),
		"organizer_earnings": formatMoney(result.OrganizerEarnings),
		"platform_earnings":  formatMoney(result.PlatformEarnings),
		"prize_distribution": distributionView(result.PrizeDistribution),
	})
}

func (h *Handler) StartTournament(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.StartTournament)
}

func (h *Handler) CompleteTournament(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.engine.CompleteTournament)
}

type transitionFunc func(ctx context.Context, tournamentID, actorID string) (models.Tournament, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	tournament, err := fn(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, map[string]any{"tournament": tournamentView(tournament)})
}

type declareRequest struct {
	Positions map[string]int `json:"positions"`
}

func (h *Handler) DeclareWinners(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req declareRequest
	if err := decode(r, &req, false); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	result, err := h.engine.DeclareWinners(r.Context(), services.DeclareRequest{
		TournamentID: chi.URLParam(r, "id"),
		OrganizerID:  userID,
		Positions:    req.Positions,
	})
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}
	payouts := make([]map[string]any, 0, len(result.Payouts))
	for _, p := range result.Payouts {
		payouts = append(payouts, map[string]any{
			"user_id":  p.UserID,
			"winner":   p.Winner,
			"position": p.Position,
			"amount":   formatMoney(p.Amount),
		})
	}
	respondOK(w, http.StatusOK, map[string]any{
		"payouts":            payouts,
		"total_distributed":  formatMoney(result.TotalDistributed),
		"organizer_earnings": formatMoney(result.OrganizerEarnings),
		"platform_earnings":  formatMoney(result.PlatformEarnings),
	})
}

func distributionView(dist models.PrizeDistribution) map[string]string {
	out := make(map[string]string, len(dist))
	for position, amount := range dist {
		out[strconv.Itoa(position)] = formatMoney(amount)
	}
	return out
}

func tournamentView(t models.Tournament) map[string]any {
	participants := []string(t.Participants)
	if participants == nil {
		participants = []string{}
	}
	return map[string]any{
		"id":                    t.ID,
		"name":                  t.Name,
		"creator_id":            t.CreatorID,
		"kind":                  t.Kind,
		"mode":                  t.Mode,
		"status":                t.Status,
		"entry_fee":             formatMoney(t.EntryFee),
		"capacity":              t.Capacity,
		"start_date":            t.StartDate,
		"registration_deadline": t.RegistrationDeadline,
		"end_date":              t.EndDate,
		"prize_pool_percent":    t.PrizePoolPercent.String(),
		"organizer_percent":     t.OrganizerPercent.String(),
		"platform_percent":      t.PlatformPercent.String(),
		"is_giveaway":           t.IsGiveaway,
		"current_prize_pool":    formatMoney(t.CurrentPrizePool),
		"projected_prize_pool":  formatMoney(t.ProjectedPrizePool),
		"organizer_earnings":    formatMoney(t.OrganizerEarnings),
		"platform_earnings":     formatMoney(t.PlatformEarnings),
		"prize_distribution":    distributionView(t.PrizeDistribution),
		"participants":          participants,
		"winners_declared_at":   t.WinnersDeclaredAt,
		"cancel_reason":         t.CancelReason,
		"created_at":            t.CreatedAt,
	}
}
