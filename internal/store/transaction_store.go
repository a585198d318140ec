package store

import (
	"context"
	"fmt"
	"time"

	"tourney/internal/models"
)

const transactionColumns = `id, user_id, tournament_id, type, status, amount, description, metadata, created_at, resolved_at`

// TransactionStore is the append-only transaction log. Rows only ever move
// out of pending, never back.
type TransactionStore struct {
	db DB
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Create(ctx context.Context, tx Execer, input TransactionInput) error {
	metadata := input.Metadata
	if metadata == "" {
		metadata = "{}"
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, tournament_id, type, status, amount, description, metadata, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		input.ID, input.UserID, input.TournamentID, input.Type, input.Status, input.Amount,
		input.Description, metadata, resolvedAt(input.Status),
	)
	return err
}

func (s *TransactionStore) GetForUpdate(ctx context.Context, tx Getter, transactionID string) (models.TransactionRecord, error) {
	var row models.TransactionRecord
	err := tx.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, transactionID)
	if err != nil {
		return models.TransactionRecord{}, err
	}
	return row, nil
}

// Resolve moves a pending record to a terminal status and reports whether it
// did.
func (s *TransactionStore) Resolve(ctx context.Context, tx Execer, transactionID string, status models.TransactionStatus) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, resolved_at = NOW()
		WHERE id = $2 AND status = 'pending'
	`, status, transactionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *TransactionStore) ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]models.TransactionRecord, error) {
	var rows []models.TransactionRecord
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = $1`
	args := []any{userID}
	param := 2
	if txType != "" {
		query += " AND type = $2"
		args = append(args, txType)
		param = 3
	}
	query += " ORDER BY created_at DESC LIMIT $" + itoa(param) + " OFFSET $" + itoa(param+1)
	args = append(args, limit, offset)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) ListAll(ctx context.Context, txType, status string, limit, offset int) ([]models.TransactionRecord, error) {
	var rows []models.TransactionRecord
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1 = 1`
	args := []any{}
	if txType != "" {
		args = append(args, txType)
		query += " AND type = $" + itoa(len(args))
	}
	if status != "" {
		args = append(args, status)
		query += " AND status = $" + itoa(len(args))
	}
	query += " ORDER BY created_at DESC LIMIT $" + itoa(len(args)+1) + " OFFSET $" + itoa(len(args)+2)
	args = append(args, limit, offset)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

type TransactionInput struct {
	ID           string
	UserID       string
	TournamentID *string
	Type         models.TransactionType
	Status       models.TransactionStatus
	Amount       int64
	Description  string
	Metadata     string
}

func resolvedAt(status models.TransactionStatus) *time.Time {
	if status == models.TxPending {
		return nil
	}
	now := time.Now().UTC()
	return &now
}

func itoa(value int) string {
	return fmt.Sprintf("%d", value)
}

func derefStringPtr(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
