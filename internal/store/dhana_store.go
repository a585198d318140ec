package store

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"tourney/internal/models"
)

// DhanaStore keeps organizer commission: the per-user balance row, the
// individual commission entries that mature after the holding period, and
// withdrawal requests against the available part.
type DhanaStore struct {
	db DB
}

func NewDhanaStore(db DB) *DhanaStore {
	return &DhanaStore{db: db}
}

type DhanaCreditInput struct {
	ID           string
	UserID       string
	TournamentID *string
	Amount       int64
	MaturesAt    time.Time
}

func (s *DhanaStore) AddPending(ctx context.Context, tx Execer, in DhanaCreditInput) error {
	if in.Amount <= 0 {
		return ErrNonPositive
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO dhana_transactions (id, user_id, tournament_id, amount, status, matures_at)
		VALUES ($1, $2, $3, $4, 'pending', $5)
	`, in.ID, in.UserID, in.TournamentID, in.Amount, in.MaturesAt); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO dhana_balances (user_id, pending, total_earned)
		VALUES ($1, $2, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET pending = dhana_balances.pending + EXCLUDED.pending,
		    total_earned = dhana_balances.total_earned + EXCLUDED.total_earned,
		    updated_at = NOW()
	`, in.UserID, in.Amount)
	return err
}

// MatureDue moves pending entries whose matures_at has passed to available
// and shifts the amounts between the balance columns. userID limits the
// sweep to one user when non-empty. Rows locked by a concurrent sweep are
// skipped.
func (s *DhanaStore) MatureDue(ctx context.Context, tx DB, userID string, now time.Time, limit int) ([]models.DhanaTransaction, error) {
	var matured []models.DhanaTransaction
	err := tx.SelectContext(ctx, &matured, `
		WITH due AS (
			SELECT id
			FROM dhana_transactions
			WHERE status = 'pending' AND matures_at <= $1 AND ($2 = '' OR user_id = $2)
			ORDER BY matures_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE dhana_transactions d
		SET status = 'available', matured_at = $1
		FROM due
		WHERE d.id = due.id
		RETURNING d.id, d.user_id, d.tournament_id, d.amount, d.status, d.matures_at, d.matured_at, d.created_at
	`, now, userID, limit)
	if err != nil {
		return nil, err
	}
	totals := map[string]int64{}
	for _, entry := range matured {
		totals[entry.UserID] += entry.Amount
	}
	users := make([]string, 0, len(totals))
	for user := range totals {
		users = append(users, user)
	}
	// balance rows are updated in id order, as wallets are locked
	sort.Strings(users)
	for _, user := range users {
		if _, err := tx.ExecContext(ctx, `
			UPDATE dhana_balances
			SET pending = pending - $1, available = available + $1, updated_at = NOW()
			WHERE user_id = $2
		`, totals[user], user); err != nil {
			return nil, err
		}
	}
	return matured, nil
}

func (s *DhanaStore) GetBalance(ctx context.Context, userID string) (models.DhanaBalance, error) {
	var row models.DhanaBalance
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, pending, available, total_earned, total_withdrawn
		FROM dhana_balances
		WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DhanaBalance{UserID: userID}, nil
	}
	if err != nil {
		return models.DhanaBalance{}, err
	}
	return row, nil
}

// DebitAvailable removes amount from the available balance, failing with
// ErrInsufficientFunds rather than going negative.
func (s *DhanaStore) DebitAvailable(ctx context.Context, tx Getter, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrNonPositive
	}
	var available int64
	err := tx.GetContext(ctx, &available, `
		UPDATE dhana_balances
		SET available = available - $1, updated_at = NOW()
		WHERE user_id = $2 AND available >= $1
		RETURNING available
	`, amount, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInsufficientFunds
	}
	return available, err
}

func (s *DhanaStore) CreditAvailable(ctx context.Context, tx Execer, userID string, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE dhana_balances
		SET available = available + $1, updated_at = NOW()
		WHERE user_id = $2
	`, amount, userID)
	return err
}

func (s *DhanaStore) AddWithdrawn(ctx context.Context, tx Execer, userID string, amount int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE dhana_balances
		SET total_withdrawn = total_withdrawn + $1, updated_at = NOW()
		WHERE user_id = $2
	`, amount, userID)
	return err
}

func (s *DhanaStore) CreateWithdrawal(ctx context.Context, tx Execer, w models.DhanaWithdrawal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO dhana_withdrawals (id, user_id, amount, upi_id, status)
		VALUES ($1, $2, $3, $4, 'pending')
	`, w.ID, w.UserID, w.Amount, w.UPIID)
	return err
}

func (s *DhanaStore) GetWithdrawalForUpdate(ctx context.Context, tx Getter, id string) (models.DhanaWithdrawal, error) {
	var row models.DhanaWithdrawal
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, amount, upi_id, status, reviewed_by, review_note, created_at, reviewed_at
		FROM dhana_withdrawals
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		return models.DhanaWithdrawal{}, err
	}
	return row, nil
}

func (s *DhanaStore) ResolveWithdrawal(ctx context.Context, tx Execer, id string, status models.WithdrawalStatus, reviewerID, note string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE dhana_withdrawals
		SET status = $1, reviewed_by = $2, review_note = NULLIF($3, ''), reviewed_at = NOW()
		WHERE id = $4 AND status = 'pending'
	`, status, reviewerID, note, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *DhanaStore) ListWithdrawals(ctx context.Context, userID, status string, limit, offset int) ([]models.DhanaWithdrawal, error) {
	var rows []models.DhanaWithdrawal
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, amount, upi_id, status, reviewed_by, review_note, created_at, reviewed_at
		FROM dhana_withdrawals
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, userID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *DhanaStore) ListEntries(ctx context.Context, userID string, limit, offset int) ([]models.DhanaTransaction, error) {
	var rows []models.DhanaTransaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, tournament_id, amount, status, matures_at, matured_at, created_at
		FROM dhana_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
