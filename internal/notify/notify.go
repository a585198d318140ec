package notify

import (
	"context"
	"errors"
	"time"
)

// Notification kinds published by the engine.
const (
	KindJoined             = "tournament_joined"
	KindTeamJoined         = "team_joined"
	KindExited             = "tournament_exited"
	KindCancelled          = "tournament_cancelled"
	KindStarted            = "tournament_started"
	KindPrizeWon           = "prize_won"
	KindCommissionEarned   = "commission_earned"
	KindWalletUpdated      = "wallet_updated"
	KindWithdrawalReviewed = "withdrawal_reviewed"
)

type Notification struct {
	UserID       string         `json:"user_id"`
	Kind         string         `json:"kind"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	TournamentID string         `json:"tournament_id,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Notifier delivers a notification. Callers treat failures as best-effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
