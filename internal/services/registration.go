package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tourney/internal/db"
	"tourney/internal/models"
	"tourney/internal/money"
	"tourney/internal/notify"
	"tourney/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type JoinResult struct {
	RegistrationID string `json:"registration_id"`
	EntryFee       int64  `json:"entry_fee"`
	NewBalance     int64  `json:"new_balance"`
	Participants   int    `json:"participants"`
}

// JoinTournament registers a single player in a solo tournament and moves
// the entry fee from their wallet into the tournament totals.
func (e *Engine) JoinTournament(ctx context.Context, tournamentID, userID string) (JoinResult, error) {
	if tournamentID == "" || userID == "" {
		return JoinResult{}, ErrInvalidRequest
	}
	settings, err := e.settings.Snapshot(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	var result JoinResult
	err = e.run(ctx, "join", func(ctx context.Context, tx *sqlx.Tx, box *outbox) error {
		t, err := e.lockTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if t.Mode != models.ModeSolo {
			return detail(ErrWrongMode, "%s tournaments need a team join", t.Mode)
		}
		if err := e.checkJoinable(t, settings); err != nil {
			return err
		}
		if t.HasParticipant(userID) {
			return ErrAlreadyJoined
		}
		if len(t.Participants)+1 > t.Capacity {
			return ErrTournamentFull
		}
		wallets, err := e.lockWallets(ctx, tx, userID)
		if err != nil {
			return err
		}
		fee := t.EntryFee
		if wallets[userID].Balance < fee {
			return detail(ErrInsufficientFunds, "entry fee is %s, balance is %s",
				money.FormatMinor(fee), money.FormatMinor(wallets[userID].Balance))
		}
		reg := models.Registration{
			ID:           uuid.NewString(),
			TournamentID: t.ID,
			LeaderID:     userID,
			CreatedAt:    e.now(),
		}
		member, balance, err := e.chargeMember(ctx, tx, &t, reg.ID, userID, wallets[userID].Balance)
		if err != nil {
			return err
		}
		member.IsTeamLeader = true
		reg.Members = []models.RegistrationMember{member}
		if err := e.registrations.Create(ctx, tx, reg); err != nil {
			if db.IsUniqueViolation(err) {
				return ErrAlreadyJoined
			}
			return err
		}
		t.Participants = append(t.Participants, userID)
		t.UpdatedAt = e.now()
		if err := e.tournaments.Save(ctx, tx, t); err != nil {
			return err
		}
		result = JoinResult{
			RegistrationID: reg.ID,
			EntryFee:       fee,
			NewBalance:     balance,
			Participants:   len(t.Participants),
		}
		box.add(notify.Notification{
			UserID:       userID,
			Kind:         notify.KindJoined,
			Title:        "Registered",
			Message:      "You joined " + t.Name,
			TournamentID: t.ID,
			Data:         map[string]any{"entry_fee": fee, "balance": balance},
		})
		return nil
	})
	return result, err
}

type TeamJoinRequest struct {
	TournamentID string
	LeaderID     string
	// MemberIDs are the teammates besides the leader.
	MemberIDs []string
	TeamName  string
}

type TeamJoinResult struct {
	RegistrationID string `json:"registration_id"`
	TeamName       string `json:"team_name"`
	TotalFee       int64  `json:"total_fee"`
	Participants   int    `json:"participants"`
}

// JoinTeamTournament registers a whole duo or squad. Every member pays the
// entry fee; if any member cannot, nobody is charged.
func (e *Engine) JoinTeamTournament(ctx context.Context, req TeamJoinRequest) (TeamJoinResult, error) {
	if req.TournamentID == "" || req.LeaderID == "" {
		return TeamJoinResult{}, ErrInvalidRequest
	}
	if err := validator.ValidateTeamName(req.TeamName); err != nil {
		return TeamJoinResult{}, detail(ErrInvalidTeamName, "%v", err)
	}
	members := append([]string{req.LeaderID}, req.MemberIDs...)
	if len(orderedIDs(members)) != len(members) {
		return TeamJoinResult{}, ErrInvalidTeam
	}
	settings, err := e.settings.Snapshot(ctx)
	if err != nil {
		return TeamJoinResult{}, err
	}
	var result TeamJoinResult
	err = e.run(ctx, "join_team", func(ctx context.Context, tx *sqlx.Tx, box *outbox) error {
		t, err := e.lockTournament(ctx, tx, req.TournamentID)
		if err != nil {
			return err
		}
		if t.Mode == models.ModeSolo {
			return detail(ErrWrongMode, "solo tournaments take single players")
		}
		if len(members) != t.Mode.TeamSize() {
			return detail(ErrInvalidTeam, "a %s team has exactly %d players", t.Mode, t.Mode.TeamSize())
		}
		if err := e.checkJoinable(t, settings); err != nil {
			return err
		}
		for _, id := range members {
			if t.HasParticipant(id) {
				return detail(ErrAlreadyJoined, "%s is already registered", id)
			}
		}
		taken, err := e.registrations.TeamNameExists(ctx, tx, t.ID, req.TeamName)
		if err != nil {
			return err
		}
		if taken {
			return ErrTeamNameTaken
		}
		if len(t.Participants)+len(members) > t.Capacity {
			return ErrTournamentFull
		}
		wallets, err := e.lockWallets(ctx, tx, members...)
		if err != nil {
			return err
		}
		for _, id := range members {
			if wallets[id].Balance < t.EntryFee {
				return detail(ErrInsufficientFunds, "%s cannot cover the %s entry fee", id, money.FormatMinor(t.EntryFee))
			}
		}
		teamName := req.TeamName
		reg := models.Registration{
			ID:           uuid.NewString(),
			TournamentID: t.ID,
			LeaderID:     req.LeaderID,
			TeamName:     &teamName,
			CreatedAt:    e.now(),
		}
		balances := make(map[string]int64, len(members))
		for i, id := range members {
			member, balance, err := e.chargeMember(ctx, tx, &t, reg.ID, id, wallets[id].Balance)
			if err != nil {
				return err
			}
			member.MemberOrder = i
			member.IsTeamLeader = i == 0
			reg.Members = append(reg.Members, member)
			balances[id] = balance
		}
		if err := e.registrations.Create(ctx, tx, reg); err != nil {
			if db.IsUniqueViolation(err) {
				return ErrAlreadyJoined
			}
			return err
		}
		t.Participants = append(t.Participants, members...)
		t.UpdatedAt = e.now()
		if err := e.tournaments.Save(ctx, tx, t); err != nil {
			return err
		}
		result = TeamJoinResult{
			RegistrationID: reg.ID,
			TeamName:       teamName,
			TotalFee:       t.EntryFee * int64(len(members)),
			Participants:   len(t.Participants),
		}
		for _, id := range members {
			box.add(notify.Notification{
				UserID:       id,
				Kind:         notify.KindTeamJoined,
				Title:        "Team registered",
				Message:      fmt.Sprintf("%s joined %s", teamName, t.Name),
				TournamentID: t.ID,
				Data:         map[string]any{"entry_fee": t.EntryFee, "balance": balances[id], "leader_id": req.LeaderID},
			})
		}
		return nil
	})
	return result, err
}

// chargeMember debits the entry fee for one player and adds its split to
// the tournament totals. Free tournaments touch no wallet.
func (e *Engine) chargeMember(ctx context.Context, tx *sqlx.Tx, t *models.Tournament, registrationID, userID string, balance int64) (models.RegistrationMember, int64, error) {
	fee := t.EntryFee
	prize, organizer, platform := money.Split(fee, t.OrganizerPercent, t.PlatformPercent)
	member := models.RegistrationMember{
		RegistrationID: registrationID,
		UserID:         userID,
		AmountPaid:     fee,
		PrizeShare:     prize,
		OrganizerShare: organizer,
		PlatformShare:  platform,
	}
	if fee > 0 {
		var err error
		_, balance, err = e.debit(ctx, tx, posting{
			UserID:       userID,
			Amount:       fee,
			Type:         models.TxEntryFee,
			TournamentID: t.ID,
			Description:  "Entry fee for " + t.Name,
			Metadata: map[string]any{
				"prize_share":     prize,
				"organizer_share": organizer,
				"platform_share":  platform,
			},
		}, models.TxCompleted)
		if err != nil {
			return models.RegistrationMember{}, 0, err
		}
	}
	if !t.IsGiveaway {
		t.CurrentPrizePool += prize
	}
	t.OrganizerEarnings += organizer
	t.PlatformEarnings += platform
	return member, balance, nil
}

func (e *Engine) checkJoinable(t models.Tournament, settings Settings) error {
	now := e.now()
	if t.Status != models.StatusUpcoming {
		return ErrRegistrationClosed
	}
	if t.RegistrationDeadline != nil && now.After(*t.RegistrationDeadline) {
		return ErrRegistrationClosed
	}
	if !now.Before(t.StartDate.Add(-settings.JoinLockWindow)) {
		return detail(ErrLockWindowActive, "registration closes %s before the start", settings.JoinLockWindow)
	}
	return nil
}

type ExitResult struct {
	RefundedAmount int64 `json:"refunded_amount"`
	NewBalance     int64 `json:"new_balance"`
}

// ExitTournament removes a solo registration and refunds exactly what the
// player paid. Team registrations cannot exit.
func (e *Engine) ExitTournament(ctx context.Context, tournamentID, userID string) (ExitResult, error) {
	if tournamentID == "" || userID == "" {
		return ExitResult{}, ErrInvalidRequest
	}
	settings, err := e.settings.Snapshot(ctx)
	if err != nil {
		return ExitResult{}, err
	}
	var result ExitResult
	err = e.run(ctx, "exit", func(ctx context.Context, tx *sqlx.Tx, box *outbox) error {
		t, err := e.lockTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if t.Status != models.StatusUpcoming {
			return ErrInvalidStatus
		}
		if !e.now().Before(t.StartDate.Add(-settings.ExitWindow)) {
			return detail(ErrExitWindowClosed, "exits close %s before the start", exitWindowText(settings.ExitWindow))
		}
		reg, err := e.registrations.GetByParticipant(ctx, tx, t.ID, userID)
		if isNoRows(err) {
			return ErrNotRegistered
		}
		if err != nil {
			return err
		}
		if reg.IsTeam() {
			return ErrTeamExitNotAllowed
		}
		if len(reg.Members) != 1 {
			return detail(ErrInconsistent, "solo registration %s has %d members", reg.ID, len(reg.Members))
		}
		member := reg.Members[0]
		if member.PrizeShare+member.OrganizerShare+member.PlatformShare != member.AmountPaid {
			return detail(ErrInconsistent, "registration %s shares do not add up", reg.ID)
		}
		if (!t.IsGiveaway && t.CurrentPrizePool < member.PrizeShare) ||
			t.OrganizerEarnings < member.OrganizerShare || t.PlatformEarnings < member.PlatformShare {
			return detail(ErrInconsistent, "tournament totals are below the registration shares")
		}
		wallets, err := e.lockWallets(ctx, tx, userID)
		if err != nil {
			return err
		}
		balance := wallets[userID].Balance
		if member.AmountPaid > 0 {
			_, balance, err = e.credit(ctx, tx, posting{
				UserID:       userID,
				Amount:       member.AmountPaid,
				Type:         models.TxRefund,
				TournamentID: t.ID,
				Description:  "Exit refund for " + t.Name,
			})
			if err != nil {
				return err
			}
		}
		if err := e.registrations.Delete(ctx, tx, reg.ID); err != nil {
			return err
		}
		if !t.IsGiveaway {
			t.CurrentPrizePool -= member.PrizeShare
		}
		t.OrganizerEarnings -= member.OrganizerShare
		t.PlatformEarnings -= member.PlatformShare
		t.RemoveParticipant(userID)
		t.UpdatedAt = e.now()
		if err := e.tournaments.Save(ctx, tx, t); err != nil {
			return err
		}
		result = ExitResult{RefundedAmount: member.AmountPaid, NewBalance: balance}
		box.add(notify.Notification{
			UserID:       userID,
			Kind:         notify.KindExited,
			Title:        "Left tournament",
			Message:      fmt.Sprintf("You left %s and %s was refunded", t.Name, money.FormatMinor(member.AmountPaid)),
			TournamentID: t.ID,
			Data:         map[string]any{"refund": member.AmountPaid, "balance": balance},
		})
		return nil
	})
	return result, err
}

func exitWindowText(d time.Duration) string {
	return strings.TrimSuffix(d.String(), "0s")
}
