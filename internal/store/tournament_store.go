package store

import (
	"context"
	"time"

	"tourney/internal/models"
)

const tournamentColumns = `
	id, name, creator_id, kind, mode, entry_fee, capacity, start_date, registration_deadline,
	end_date, status, prize_pool_percent, organizer_percent, platform_percent, is_giveaway,
	current_prize_pool, organizer_earnings, platform_earnings, projected_prize_pool,
	prize_distribution, participants, winners_declared_at, cancel_reason, created_at, updated_at
`

type TournamentStore struct {
	db DB
}

func NewTournamentStore(db DB) *TournamentStore {
	return &TournamentStore{db: db}
}

func (s *TournamentStore) Create(ctx context.Context, tx Execer, t models.Tournament) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tournaments (
			id, name, creator_id, kind, mode, entry_fee, capacity, start_date, registration_deadline,
			status, prize_pool_percent, organizer_percent, platform_percent, is_giveaway,
			current_prize_pool, projected_prize_pool, prize_distribution, participants
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		t.ID, t.Name, t.CreatorID, t.Kind, t.Mode, t.EntryFee, t.Capacity, t.StartDate, t.RegistrationDeadline,
		t.Status, t.PrizePoolPercent, t.OrganizerPercent, t.PlatformPercent, t.IsGiveaway,
		t.CurrentPrizePool, t.ProjectedPrizePool, t.PrizeDistribution, t.Participants,
	)
	return err
}

func (s *TournamentStore) GetByID(ctx context.Context, id string) (models.Tournament, error) {
	var row models.Tournament
	err := s.db.GetContext(ctx, &row, `SELECT `+tournamentColumns+` FROM tournaments WHERE id = $1`, id)
	if err != nil {
		return models.Tournament{}, err
	}
	return row, nil
}

// GetForUpdate takes the per-tournament row lock every engine operation
// serializes on.
func (s *TournamentStore) GetForUpdate(ctx context.Context, tx Getter, id string) (models.Tournament, error) {
	var row models.Tournament
	err := tx.GetContext(ctx, &row, `SELECT `+tournamentColumns+` FROM tournaments WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return models.Tournament{}, err
	}
	return row, nil
}

// Save writes back every column an engine operation may change.
func (s *TournamentStore) Save(ctx context.Context, tx Execer, t models.Tournament) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE tournaments
		SET status = $1,
		    current_prize_pool = $2,
		    organizer_earnings = $3,
		    platform_earnings = $4,
		    prize_distribution = $5,
		    participants = $6,
		    end_date = $7,
		    winners_declared_at = $8,
		    cancel_reason = $9,
		    updated_at = NOW()
		WHERE id = $10
	`,
		t.Status, t.CurrentPrizePool, t.OrganizerEarnings, t.PlatformEarnings, t.PrizeDistribution,
		t.Participants, t.EndDate, t.WinnersDeclaredAt, t.CancelReason, t.ID,
	)
	return err
}

func (s *TournamentStore) List(ctx context.Context, status string, limit, offset int) ([]models.Tournament, error) {
	var rows []models.Tournament
	query := `SELECT ` + tournamentColumns + ` FROM tournaments`
	args := []any{}
	param := 1
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
		param = 2
	}
	query += " ORDER BY start_date ASC LIMIT $" + itoa(param) + " OFFSET $" + itoa(param+1)
	args = append(args, limit, offset)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListDueToStart returns upcoming tournaments whose start time has passed.
func (s *TournamentStore) ListDueToStart(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id
		FROM tournaments
		WHERE status = 'upcoming' AND start_date <= $1
		ORDER BY start_date ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
