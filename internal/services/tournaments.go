package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tourney/internal/models"
	"tourney/internal/money"
	"tourney/internal/notify"
	"tourney/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type CreateTournamentRequest struct {
	CreatorID            string
	Name                 string
	Kind                 models.TournamentKind
	Mode                 models.Mode
	EntryFee             int64
	Capacity             int
	StartDate            time.Time
	RegistrationDeadline *time.Time
	// Split overrides the kind's default commission split when set.
	Split             *Split
	PrizeDistribution models.PrizeDistribution
	IsGiveaway        bool
	// GiveawayPrizePool is debited from the creator's wallet at creation.
	GiveawayPrizePool int64
}

// CreateTournament validates and stores a new tournament. Giveaways are
// funded up front from the creator's wallet and charge every player the
// nominal giveaway fee, which goes to the platform in full.
func (e *Engine) CreateTournament(ctx context.Context, req CreateTournamentRequest) (models.Tournament, error) {
	settings, err := e.settings.Snapshot(ctx)
	if err != nil {
		return models.Tournament{}, err
	}
	now := e.now()
	if req.CreatorID == "" {
		return models.Tournament{}, ErrInvalidRequest
	}
	if err := validator.ValidateTournamentName(req.Name); err != nil {
		return models.Tournament{}, detail(ErrInvalidTournament, "%v", err)
	}
	if !req.Kind.Valid() {
		return models.Tournament{}, detail(ErrInvalidTournament, "unknown kind %q", req.Kind)
	}
	size := req.Mode.TeamSize()
	if size == 0 {
		return models.Tournament{}, detail(ErrInvalidTournament, "unknown mode %q", req.Mode)
	}
	if req.Capacity < size || req.Capacity%size != 0 {
		return models.Tournament{}, detail(ErrInvalidTournament, "capacity must be a positive multiple of %d", size)
	}
	if req.EntryFee < 0 {
		return models.Tournament{}, ErrInvalidAmount
	}
	if !req.StartDate.After(now) {
		return models.Tournament{}, detail(ErrInvalidTournament, "start date must be in the future")
	}
	if req.RegistrationDeadline != nil && req.RegistrationDeadline.After(req.StartDate) {
		return models.Tournament{}, detail(ErrInvalidTournament, "registration deadline must not be after the start")
	}
	for position, amount := range req.PrizeDistribution {
		if position < 1 || amount < 0 {
			return models.Tournament{}, ErrInvalidDistribution
		}
	}

	t := models.Tournament{
		ID:                   uuid.NewString(),
		Name:                 strings.TrimSpace(req.Name),
		CreatorID:            req.CreatorID,
		Kind:                 req.Kind,
		Mode:                 req.Mode,
		EntryFee:             req.EntryFee,
		Capacity:             req.Capacity,
		StartDate:            req.StartDate.UTC(),
		RegistrationDeadline: req.RegistrationDeadline,
		Status:               models.StatusUpcoming,
		IsGiveaway:           req.IsGiveaway,
		PrizeDistribution:    models.PrizeDistribution{},
		Participants:         pq.StringArray{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	for position, amount := range req.PrizeDistribution {
		t.PrizeDistribution[position] = amount
	}

	if req.IsGiveaway {
		if req.GiveawayPrizePool <= 0 {
			return models.Tournament{}, ErrInvalidAmount
		}
		t.EntryFee = settings.GiveawayEntryFee
		t.PrizePoolPercent = decimal.Zero
		t.OrganizerPercent = decimal.Zero
		t.PlatformPercent = hundred
		t.ProjectedPrizePool = req.GiveawayPrizePool
		t.CurrentPrizePool = req.GiveawayPrizePool
	} else {
		split, ok := settings.Splits[req.Kind]
		if req.Split != nil {
			split, ok = *req.Split, true
		}
		if !ok || !split.Valid() {
			return models.Tournament{}, ErrInvalidSplit
		}
		t.PrizePoolPercent = split.PrizePool
		t.OrganizerPercent = split.Organizer
		t.PlatformPercent = split.Platform
		prize, _, _ := money.Split(t.EntryFee, split.Organizer, split.Platform)
		t.ProjectedPrizePool = prize * int64(req.Capacity)
	}
	if t.PrizeDistribution.Total() > t.ProjectedPrizePool {
		return models.Tournament{}, detail(ErrInvalidDistribution, "distribution %d exceeds projected pool %d",
			t.PrizeDistribution.Total(), t.ProjectedPrizePool)
	}

	err = e.run(ctx, "create_tournament", func(ctx context.Context, tx *sqlx.Tx, box *outbox) error {
		if err := e.tournaments.Create(ctx, tx, t); err != nil {
			return err
		}
		if req.IsGiveaway {
			if _, err := e.lockWallets(ctx, tx, req.CreatorID); err != nil {
				return err
			}
			_, balance, err := e.debit(ctx, tx, posting{
				UserID:       req.CreatorID,
				Amount:       req.GiveawayPrizePool,
				Type:         models.TxPrizePoolFunding,
				TournamentID: t.ID,
				Description:  "Giveaway prize pool for " + t.Name,
			}, models.TxCompleted)
			if err != nil {
				return err
			}
			box.add(walletNotification(req.CreatorID, balance, "Giveaway prize pool funded"))
		}
		return e.logAudit(ctx, tx, req.CreatorID, "tournament_created", "tournament", t.ID, map[string]any{
			"kind":        t.Kind,
			"mode":        t.Mode,
			"entry_fee":   t.EntryFee,
			"capacity":    t.Capacity,
			"is_giveaway": t.IsGiveaway,
		})
	})
	if err != nil {
		return models.Tournament{}, err
	}
	return t, nil
}

func (e *Engine) GetTournament(ctx context.Context, tournamentID string) (models.Tournament, error) {
	t, err := e.tournaments.GetByID(ctx, tournamentID)
	if err != nil {
		if isNoRows(err) {
			return models.Tournament{}, ErrTournamentNotFound
		}
		return models.Tournament{}, err
	}
	return t, nil
}

type RecalculateResult struct {
	PrizePool         int64                    `json:"prize_pool"`
	OrganizerEarnings int64                    `json:"organizer_earnings"`
	PlatformEarnings  int64                    `json:"platform_earnings"`
	PrizeDistribution models.PrizeDistribution `json:"prize_distribution"`
}

// RecalculatePrizePool rebuilds the pool and commission totals from the
// stored per-member shares and scales the distribution down to fit. Running
// it twice changes nothing the second time.
func (e *Engine) RecalculatePrizePool(ctx context.Context, tournamentID, actorID string) (RecalculateResult, error) {
	var result RecalculateResult
	err := e.run(ctx, "recalculate", func(ctx context.Context, tx *sqlx.Tx, box *outbox) error {
		t, err := e.lockTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if actorID != "" && actorID != t.CreatorID {
			return ErrNotCreator
		}
		if t.Status != models.StatusUpcoming && t.Status != models.StatusOngoing {
			return ErrInvalidStatus
		}
		if err := e.recalculate(ctx, tx, &t); err != nil {
			return err
		}
		if err := e.tournaments.Save(ctx, tx, t); err != nil {
			return err
		}
		result = RecalculateResult{
			PrizePool:         t.CurrentPrizePool,
			OrganizerEarnings: t.OrganizerEarnings,
			PlatformEarnings:  t.PlatformEarnings,
			PrizeDistribution: t.PrizeDistribution,
		}
		return e.logAudit(ctx, tx, actorID, "prize_pool_recalculated", "tournament", t.ID, map[string]any{
			"prize_pool":         t.CurrentPrizePool,
			"organizer_earnings": t.OrganizerEarnings,
			"platform_earnings":  t.PlatformEarnings,
		})
	})
	return result, err
}

func (e *Engine) recalculate(ctx context.Context, tx *sqlx.Tx, t *models.Tournament) error {
	regs, err := e.registrations.ListByTournament(ctx, tx, t.ID)
	if err != nil {
		return err
	}
	var prize, organizer, platform int64
	for _, reg := range regs {
		paid, p, o, pl := reg.Collected()
		if p+o+pl != paid {
			return detail(ErrInconsistent, "registration %s shares do not add up to %d", reg.ID, paid)
		}
		prize += p
		organizer += o
		platform += pl
	}
	t.OrganizerEarnings = organizer
	t.PlatformEarnings = platform
	if t.IsGiveaway {
		// pool and distribution are fixed at creation
		return nil
	}
	t.CurrentPrizePool = prize
	t.PrizeDistribution = money.ScaleDown(t.PrizeDistribution, t.CurrentPrizePool)
	return nil
}

type CancelResult struct {
	RefundedPlayers int   `json:"refunded_players"`
	TotalRefunded   int64 `json:"total_refunded"`
}

// CancelTournament refunds every member exactly what they paid, returns a
// giveaway's prize pool to its creator and zeroes the tournament totals.
func (e *Engine) CancelTournament(ctx context.Context, tournamentID, actorID, reason string) (CancelResult, error) {
	if err := validator.ValidateReason(reason); err != nil {
		return CancelResult{}, detail(ErrReasonRequired, "%v", err)
	}
	reason = strings.TrimSpace(reason)
	var result CancelResult
	err := e.run(ctx, "cancel", func(ctx context.Context, tx *sqlx.Tx, box *outbox) error {
		result = CancelResult{}
		t, err := e.lockTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if actorID != t.CreatorID {
			return ErrNotCreator
		}
		if t.Status != models.StatusUpcoming && t.Status != models.StatusOngoing {
			return ErrInvalidStatus
		}
		regs, err := e.registrations.ListByTournament(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		userIDs := []string{}
		for _, reg := range regs {
			paid, p, o, pl := reg.Collected()
			if p+o+pl != paid {
				return detail(ErrInconsistent, "registration %s shares do not add up to %d", reg.ID, paid)
			}
			for _, m := range reg.Members {
				userIDs = append(userIDs, m.UserID)
			}
		}
		giveawayRefund := int64(0)
		if t.IsGiveaway && t.CurrentPrizePool > 0 {
			giveawayRefund = t.CurrentPrizePool
			userIDs = append(userIDs, t.CreatorID)
		}
		if _, err := e.lockWallets(ctx, tx, userIDs...); err != nil {
			return err
		}
		for _, reg := range regs {
			for _, m := range reg.Members {
				result.RefundedPlayers++
				if m.AmountPaid == 0 {
					continue
				}
				_, balance, err := e.credit(ctx, tx, posting{
					UserID:       m.UserID,
					Amount:       m.AmountPaid,
					Type:         models.TxRefund,
					TournamentID: t.ID,
					Description:  "Refund for cancelled " + t.Name,
					Metadata:     map[string]any{"reason": reason},
				})
				if err != nil {
					return err
				}
				result.TotalRefunded += m.AmountPaid
				box.add(walletNotification(m.UserID, balance, "Entry fee refunded"))
			}
			for _, m := range reg.Members {
				box.add(notify.Notification{
					UserID:       m.UserID,
					Kind:         notify.KindCancelled,
					Title:        "Tournament cancelled",
					Message:      fmt.Sprintf("%s was cancelled: %s", t.Name, reason),
					TournamentID: t.ID,
					Data:         map[string]any{"refund": m.AmountPaid},
				})
			}
		}
		if giveawayRefund > 0 {
			_, balance, err := e.credit(ctx, tx, posting{
				UserID:       t.CreatorID,
				Amount:       giveawayRefund,
				Type:         models.TxRefund,
				TournamentID: t.ID,
				Description:  "Giveaway prize pool returned for " + t.Name,
			})
			if err != nil {
				return err
			}
			box.add(walletNotification(t.CreatorID, balance, "Giveaway prize pool returned"))
		}

		t.Status = models.StatusCancelled
		t.CurrentPrizePool = 0
		t.OrganizerEarnings = 0
		t.PlatformEarnings = 0
		t.CancelReason = &reason
		t.UpdatedAt = e.now()
		if err := e.tournaments.Save(ctx, tx, t); err != nil {
			return err
		}
		return e.logAudit(ctx, tx, actorID, "tournament_cancelled", "tournament", t.ID, map[string]any{
			"reason":           reason,
			"refunded_players": result.RefundedPlayers,
			"total_refunded":   result.TotalRefunded,
			"giveaway_refund":  giveawayRefund,
		})
	})
	return result, err
}

// StartTournament moves an upcoming tournament to ongoing after a final
// recalculation. An empty actorID is the scheduler.
func (e *Engine) StartTournament(ctx context.Context, tournamentID, actorID string) (models.Tournament, error) {
	var started models.Tournament
	err := e.run(ctx, "start", func(ctx context.Context, tx *sqlx.Tx, box *outbox) error {
		t, err := e.lockTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if actorID != "" && actorID != t.CreatorID {
			return ErrNotCreator
		}
		if t.Status != models.StatusUpcoming {
			return ErrInvalidStatus
		}
		if err := e.recalculate(ctx, tx, &t); err != nil {
			return err
		}
		t.Status = models.StatusOngoing
		t.UpdatedAt = e.now()
		if err := e.tournaments.Save(ctx, tx, t); err != nil {
			return err
		}
		for _, userID := range t.Participants {
			box.add(notify.Notification{
				UserID:       userID,
				Kind:         notify.KindStarted,
				Title:        "Tournament started",
				Message:      t.Name + " has started",
				TournamentID: t.ID,
			})
		}
		started = t
		return e.logAudit(ctx, tx, actorID, "tournament_started", "tournament", t.ID, map[string]any{
			"prize_pool":   t.CurrentPrizePool,
			"participants": len(t.Participants),
		})
	})
	return started, err
}

// CompleteTournament ends an ongoing tournament. The dispute window runs
// from the recorded end date.
func (e *Engine) CompleteTournament(ctx context.Context, tournamentID, actorID string) (models.Tournament, error) {
	var completed models.Tournament
	err := e.run(ctx, "complete", func(ctx context.Context, tx *sqlx.Tx, box *outbox) error {
		t, err := e.lockTournament(ctx, tx, tournamentID)
		if err != nil {
			return err
		}
		if actorID != t.CreatorID {
			return ErrNotCreator
		}
		if t.Status != models.StatusOngoing {
			return ErrInvalidStatus
		}
		now := e.now()
		t.Status = models.StatusCompleted
		t.EndDate = &now
		t.UpdatedAt = now
		if err := e.tournaments.Save(ctx, tx, t); err != nil {
			return err
		}
		completed = t
		return e.logAudit(ctx, tx, actorID, "tournament_completed", "tournament", t.ID, nil)
	})
	return completed, err
}

// StartDueTournaments starts every upcoming tournament whose start date has
// passed. Tournaments another caller already moved on are skipped.
func (e *Engine) StartDueTournaments(ctx context.Context) (int, error) {
	ids, err := e.tournaments.ListDueToStart(ctx, e.now(), 100)
	if err != nil {
		return 0, err
	}
	started := 0
	var errs []error
	for _, id := range ids {
		_, err := e.StartTournament(ctx, id, "")
		switch {
		case err == nil:
			started++
		case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrBusy):
			e.logger.Debug().Str("tournament_id", id).Err(err).Msg("auto start skipped")
		default:
			errs = append(errs, fmt.Errorf("start %s: %w", id, err))
		}
	}
	e.metrics.Started(started)
	return started, errors.Join(errs...)
}
