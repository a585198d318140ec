package store

import (
	"context"
	"fmt"
	"strings"

	"tourney/internal/models"
)

type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// InsertEntries writes all entries of one posting in a single statement.
// The ledger is append-only; nothing here updates or deletes.
func (s *LedgerStore) InsertEntries(ctx context.Context, tx Execer, entries []LedgerEntryInput) error {
	if len(entries) == 0 {
		return nil
	}
	var query strings.Builder
	query.WriteString(`INSERT INTO ledger_entries (id, transaction_id, user_id, amount, balance_after, description) VALUES `)
	args := make([]any, 0, len(entries)*6)
	for i, entry := range entries {
		if i > 0 {
			query.WriteString(", ")
		}
		n := len(args)
		fmt.Fprintf(&query, "($%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6)
		args = append(args, entry.ID, entry.TransactionID, entry.UserID, entry.Amount, entry.BalanceAfter, entry.Description)
	}
	_, err := tx.ExecContext(ctx, query.String(), args...)
	return err
}

func (s *LedgerStore) SumByUser(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE user_id = $1
	`, userID)
	return sum, err
}

func (s *LedgerStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, transaction_id, user_id, amount, balance_after, description, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type LedgerEntryInput struct {
	ID            string
	TransactionID string
	UserID        string
	Amount        int64
	BalanceAfter  int64
	Description   string
}
