package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"tourney/internal/models"
)

func TestDhanaStoreAddPendingUpdatesBalance(t *testing.T) {
	var queries []string
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			queries = append(queries, query)
			return stubResult{rows: 1}, nil
		},
	}
	store := NewDhanaStore(stubDB{})
	err := store.AddPending(context.Background(), execer, DhanaCreditInput{
		ID: "d1", UserID: "org", Amount: 150, MaturesAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(queries) != 2 || !strings.Contains(queries[0], "dhana_transactions") || !strings.Contains(queries[1], "dhana_balances") {
		t.Fatalf("unexpected queries: %v", queries)
	}
}

func TestDhanaStoreMatureDueMovesTotalsPerUserInOrder(t *testing.T) {
	now := time.Now()
	moved := map[string]int64{}
	var order []string
	tx := stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "FOR UPDATE SKIP LOCKED") {
				t.Fatalf("sweep must skip locked rows: %s", query)
			}
			*dest.(*[]models.DhanaTransaction) = []models.DhanaTransaction{
				{ID: "d1", UserID: "zeta", Amount: 100},
				{ID: "d2", UserID: "org", Amount: 50},
				{ID: "d3", UserID: "alpha", Amount: 20},
				{ID: "d4", UserID: "zeta", Amount: 5},
			}
			return nil
		},
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			user := args[1].(string)
			order = append(order, user)
			moved[user] += args[0].(int64)
			return stubResult{rows: 1}, nil
		},
	}
	store := NewDhanaStore(stubDB{})
	matured, err := store.MatureDue(context.Background(), tx, "", now, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matured) != 4 || moved["zeta"] != 105 || moved["org"] != 50 || moved["alpha"] != 20 {
		t.Fatalf("unexpected result: %d matured, moved %v", len(matured), moved)
	}
	if strings.Join(order, ",") != "alpha,org,zeta" {
		t.Fatalf("expected balance rows updated in id order, got %v", order)
	}
}

func TestDhanaStoreDebitAvailableInsufficient(t *testing.T) {
	tx := stubGetter{
		getFn: func(context.Context, any, string, ...any) error { return sql.ErrNoRows },
	}
	store := NewDhanaStore(stubDB{})
	if _, err := store.DebitAvailable(context.Background(), tx, "org", 5000); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestDhanaStoreResolveWithdrawalGuarded(t *testing.T) {
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "status = 'pending'") {
				t.Fatalf("unexpected query: %s", query)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewDhanaStore(stubDB{})
	ok, err := store.ResolveWithdrawal(context.Background(), execer, "w1", models.WithdrawalApproved, "admin", "")
	if err != nil || !ok {
		t.Fatalf("expected resolved withdrawal, got %v %v", ok, err)
	}
}

func TestDhanaStoreGetBalanceMissingIsZero(t *testing.T) {
	store := NewDhanaStore(stubDB{
		getFn: func(context.Context, any, string, ...any) error { return sql.ErrNoRows },
	})
	balance, err := store.GetBalance(context.Background(), "org")
	if err != nil || balance.UserID != "org" || balance.Available != 0 {
		t.Fatalf("unexpected balance: %+v %v", balance, err)
	}
}
