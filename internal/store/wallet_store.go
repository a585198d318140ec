package store

import (
	"context"
	"database/sql"
	"errors"

	"tourney/internal/models"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNonPositive       = errors.New("amount must be positive")
)

// WalletStore owns wallet balances. Debit is the only place that enforces
// balance >= 0.
type WalletStore struct {
	db DB
}

type WalletDrift struct {
	UserID            string `db:"user_id" json:"user_id"`
	StoredBalance     int64  `db:"stored_balance" json:"stored_balance"`
	CalculatedBalance int64  `db:"calculated_balance" json:"calculated_balance"`
	Difference        int64  `db:"difference" json:"difference"`
	IsSystem          bool   `db:"is_system" json:"is_system"`
}

func NewWalletStore(db DB) *WalletStore {
	return &WalletStore{db: db}
}

func (s *WalletStore) EnsureSystem(ctx context.Context, tx Execer, userID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance, is_system)
		VALUES ($1, 0, TRUE)
		ON CONFLICT (user_id) DO UPDATE SET is_system = TRUE
	`, userID)
	return err
}

// LockWallet creates the wallet if missing and row-locks it for the rest of
// the transaction.
func (s *WalletStore) LockWallet(ctx context.Context, tx Tx, userID string) (models.Wallet, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return models.Wallet{}, err
	}
	var row models.Wallet
	err := tx.GetContext(ctx, &row, `
		SELECT user_id, balance, is_system, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if err != nil {
		return models.Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) Get(ctx context.Context, userID string) (models.Wallet, error) {
	var row models.Wallet
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, balance, is_system, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Wallet{UserID: userID}, nil
	}
	if err != nil {
		return models.Wallet{}, err
	}
	return row, nil
}

func (s *WalletStore) Credit(ctx context.Context, tx Getter, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrNonPositive
	}
	var balance int64
	err := tx.GetContext(ctx, &balance, `
		INSERT INTO wallets (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance
	`, userID, amount)
	return balance, err
}

func (s *WalletStore) Debit(ctx context.Context, tx Getter, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrNonPositive
	}
	var balance int64
	err := tx.GetContext(ctx, &balance, `
		UPDATE wallets
		SET balance = balance - $1, updated_at = NOW()
		WHERE user_id = $2 AND balance >= $1
		RETURNING balance
	`, amount, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInsufficientFunds
	}
	return balance, err
}

// Reconcile lists wallets whose stored balance differs from their ledger sum.
func (s *WalletStore) Reconcile(ctx context.Context) ([]WalletDrift, error) {
	var rows []WalletDrift
	err := s.db.SelectContext(ctx, &rows, `
		SELECT w.user_id,
		       w.balance AS stored_balance,
		       COALESCE(SUM(l.amount), 0) AS calculated_balance,
		       (w.balance - COALESCE(SUM(l.amount), 0)) AS difference,
		       w.is_system
		FROM wallets w
		LEFT JOIN ledger_entries l ON l.user_id = w.user_id
		GROUP BY w.user_id, w.balance, w.is_system
		HAVING w.balance <> COALESCE(SUM(l.amount), 0)
		ORDER BY w.user_id
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
