package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"tourney/internal/models"
	"tourney/internal/money"
	"tourney/internal/notify"
	"tourney/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// DeclareRequest maps a winner to a finishing position. Winners are user ids
// in solo tournaments and team names in duo or squad tournaments.
type DeclareRequest struct {
	TournamentID string
	OrganizerID  string
	Positions    map[string]int
}

type Payout struct {
	UserID   string `json:"user_id"`
	Winner   string `json:"winner"`
	Position int    `json:"position"`
	Amount   int64  `json:"amount"`
}

type DeclareResult struct {
	Payouts           []Payout `json:"payouts"`
	TotalDistributed  int64    `json:"total_distributed"`
	OrganizerEarnings int64    `json:"organizer_earnings"`
	PlatformEarnings  int64    `json:"platform_earnings"`
}

// defaultShares is used when a tournament has no prize distribution.
var defaultShares = []struct {
	position int
	percent  int64
}{{1, 50}, {2, 30}, {3, 20}}

func defaultDistribution(pool int64) models.PrizeDistribution {
	dist := models.PrizeDistribution{}
	for _, share := range defaultShares {
		dist[share.position] = pool * share.percent / 100
	}
	return dist
}

// DeclareWinners pays out the prize distribution once, credits the
// organizer commission as pending Dhana and the platform commission to the
// platform wallet. Team prizes are split evenly and the leader takes the
// remainder.
func (e *Engine) DeclareWinners(ctx context.Context, req DeclareRequest) (DeclareResult, error) {
	if req.TournamentID == "" || req.OrganizerID == "" || len(req.Positions) == 0 {
		return DeclareResult{}, ErrInvalidRequest
	}
	seen := make(map[int]bool, len(req.Positions))
	for winner, position := range req.Positions {
		if strings.TrimSpace(winner) == "" || position < 1 || seen[position] {
			return DeclareResult{}, ErrInvalidPositions
		}
		seen[position] = true
	}
	settings, err := e.settings.Snapshot(ctx)
	if err != nil {
		return DeclareResult{}, err
	}
	var result DeclareResult
	err = e.run(ctx, "declare_winners", func(ctx context.Context, tx *sqlx.Tx, box *outbox) error {
		result = DeclareResult{}
		t, err := e.lockTournament(ctx, tx, req.TournamentID)
		if err != nil {
			return err
		}
		if req.OrganizerID != t.CreatorID {
			return ErrNotCreator
		}
		if t.WinnersDeclaredAt != nil {
			return ErrWinnersAlreadyDeclared
		}
		if t.Status != models.StatusCompleted || t.EndDate == nil {
			return ErrInvalidStatus
		}
		now := e.now()
		if now.Before(t.EndDate.Add(settings.DisputeWindow)) {
			return ErrDisputeWindowActive
		}
		regs, err := e.registrations.ListByTournament(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		byWinner := make(map[string]models.Registration, len(regs))
		for _, reg := range regs {
			if reg.IsTeam() {
				byWinner[strings.ToLower(*reg.TeamName)] = reg
			} else {
				byWinner[reg.LeaderID] = reg
			}
		}

		dist := t.PrizeDistribution
		if len(dist) == 0 {
			dist = defaultDistribution(t.CurrentPrizePool)
		}
		payouts, err := buildPayouts(req.Positions, byWinner, dist, t.Mode != models.ModeSolo)
		if err != nil {
			return err
		}
		var total int64
		userIDs := []string{e.platformAccountID}
		for _, p := range payouts {
			total += p.Amount
			userIDs = append(userIDs, p.UserID)
		}
		if total > t.CurrentPrizePool {
			return detail(ErrInconsistent, "payouts of %d exceed the prize pool of %d", total, t.CurrentPrizePool)
		}

		if err := e.wallets.EnsureSystem(ctx, tx, e.platformAccountID); err != nil {
			return err
		}
		if _, err := e.lockWallets(ctx, tx, userIDs...); err != nil {
			return err
		}
		for _, p := range payouts {
			if p.Amount == 0 {
				continue
			}
			_, balance, err := e.credit(ctx, tx, posting{
				UserID:       p.UserID,
				Amount:       p.Amount,
				Type:         models.TxPrize,
				TournamentID: t.ID,
				Description:  fmt.Sprintf("Prize for position %d in %s", p.Position, t.Name),
				Metadata:     map[string]any{"position": p.Position, "winner": p.Winner},
			})
			if err != nil {
				return err
			}
			box.add(notify.Notification{
				UserID:       p.UserID,
				Kind:         notify.KindPrizeWon,
				Title:        "Prize won",
				Message:      fmt.Sprintf("You won %s for position %d in %s", money.FormatMinor(p.Amount), p.Position, t.Name),
				TournamentID: t.ID,
				Data:         map[string]any{"amount": p.Amount, "position": p.Position, "balance": balance},
			})
		}

		if t.OrganizerEarnings > 0 {
			maturesAt := now.Add(settings.HoldingPeriod)
			tournamentID := t.ID
			if err := e.dhana.AddPending(ctx, tx, store.DhanaCreditInput{
				ID:           uuid.NewString(),
				UserID:       t.CreatorID,
				TournamentID: &tournamentID,
				Amount:       t.OrganizerEarnings,
				MaturesAt:    maturesAt,
			}); err != nil {
				return err
			}
			if _, err := e.record(ctx, tx, posting{
				UserID:       t.CreatorID,
				Amount:       t.OrganizerEarnings,
				Type:         models.TxOrganizerCommission,
				TournamentID: t.ID,
				Description:  "Organizer commission for " + t.Name,
				Metadata:     map[string]any{"matures_at": maturesAt},
			}, models.TxCompleted); err != nil {
				return err
			}
			box.add(notify.Notification{
				UserID:       t.CreatorID,
				Kind:         notify.KindCommissionEarned,
				Title:        "Commission earned",
				Message:      fmt.Sprintf("%s commission from %s is pending until %s", money.FormatMinor(t.OrganizerEarnings), t.Name, maturesAt.Format("2006-01-02")),
				TournamentID: t.ID,
				Data:         map[string]any{"amount": t.OrganizerEarnings, "matures_at": maturesAt},
			})
		}
		if t.PlatformEarnings > 0 {
			if _, _, err := e.credit(ctx, tx, posting{
				UserID:       e.platformAccountID,
				Amount:       t.PlatformEarnings,
				Type:         models.TxPlatformCommission,
				TournamentID: t.ID,
				Description:  "Platform commission for " + t.Name,
			}); err != nil {
				return err
			}
		}

		t.CurrentPrizePool -= total
		t.WinnersDeclaredAt = &now
		t.UpdatedAt = now
		if err := e.tournaments.Save(ctx, tx, t); err != nil {
			return err
		}
		result = DeclareResult{
			Payouts:           payouts,
			TotalDistributed:  total,
			OrganizerEarnings: t.OrganizerEarnings,
			PlatformEarnings:  t.PlatformEarnings,
		}
		return e.logAudit(ctx, tx, req.OrganizerID, "winners_declared", "tournament", t.ID, map[string]any{
			"positions":          req.Positions,
			"total_distributed":  total,
			"organizer_earnings": t.OrganizerEarnings,
			"platform_earnings":  t.PlatformEarnings,
		})
	})
	return result, err
}

// buildPayouts resolves each winner to its registration and expands team
// prizes to one payout per member, leader first. A registration may hold one
// position only, so team names that differ only by case are rejected.
func buildPayouts(positions map[string]int, byWinner map[string]models.Registration, dist models.PrizeDistribution, team bool) ([]Payout, error) {
	winners := make([]string, 0, len(positions))
	for winner := range positions {
		winners = append(winners, winner)
	}
	sort.Slice(winners, func(i, j int) bool { return positions[winners[i]] < positions[winners[j]] })

	var payouts []Payout
	resolved := make(map[string]bool, len(winners))
	for _, winner := range winners {
		key := winner
		if team {
			key = strings.ToLower(winner)
		}
		reg, ok := byWinner[key]
		if !ok {
			return nil, detail(ErrUnknownParticipant, "%q", winner)
		}
		if resolved[reg.ID] {
			return nil, detail(ErrInvalidPositions, "%q holds more than one position", winner)
		}
		resolved[reg.ID] = true
		position := positions[winner]
		amount := dist[position]
		if !team {
			payouts = append(payouts, Payout{UserID: reg.LeaderID, Winner: winner, Position: position, Amount: amount})
			continue
		}
		members := append([]models.RegistrationMember(nil), reg.Members...)
		sort.SliceStable(members, func(i, j int) bool {
			if members[i].IsTeamLeader != members[j].IsTeamLeader {
				return members[i].IsTeamLeader
			}
			return members[i].MemberOrder < members[j].MemberOrder
		})
		shares := money.DivideEvenly(amount, len(members))
		for i, m := range members {
			payouts = append(payouts, Payout{UserID: m.UserID, Winner: winner, Position: position, Amount: shares[i]})
		}
	}
	return payouts, nil
}
