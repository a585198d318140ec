package services

import (
	"context"
	"strings"

	"tourney/internal/models"
	"tourney/internal/money"
	"tourney/internal/notify"
	"tourney/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const matureBatch = 500

// GetDhanaBalance matures the user's due commission before reading, so a
// balance is never shown stale past the holding period.
func (e *Engine) GetDhanaBalance(ctx context.Context, userID string) (models.DhanaBalance, error) {
	if userID == "" {
		return models.DhanaBalance{}, ErrInvalidRequest
	}
	if _, err := e.matureFor(ctx, userID); err != nil {
		return models.DhanaBalance{}, err
	}
	return e.dhana.GetBalance(ctx, userID)
}

// MatureCommissions moves every commission whose holding period has passed
// from pending to available. It returns how many entries matured.
func (e *Engine) MatureCommissions(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := e.matureFor(ctx, "")
		total += n
		if err != nil {
			return total, err
		}
		if n < matureBatch {
			return total, nil
		}
	}
}

func (e *Engine) matureFor(ctx context.Context, userID string) (int, error) {
	var matured int
	err := e.run(ctx, "dhana_mature", func(ctx context.Context, tx *sqlx.Tx, box *outbox) error {
		entries, err := e.dhana.MatureDue(ctx, tx, userID, e.now(), matureBatch)
		if err != nil {
			return err
		}
		matured = len(entries)
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.metrics.Matured(matured)
	return matured, nil
}

// RequestDhanaWithdrawal holds the amount out of the available balance until
// an admin reviews the request.
func (e *Engine) RequestDhanaWithdrawal(ctx context.Context, userID string, amount int64, upiID string) (models.DhanaWithdrawal, error) {
	if userID == "" {
		return models.DhanaWithdrawal{}, ErrInvalidRequest
	}
	settings, err := e.settings.Snapshot(ctx)
	if err != nil {
		return models.DhanaWithdrawal{}, err
	}
	if amount < settings.MinWithdrawal {
		return models.DhanaWithdrawal{}, detail(ErrBelowMinimumWithdrawal, "minimum is %s", money.FormatMinor(settings.MinWithdrawal))
	}
	if err := validator.ValidateUPI(upiID); err != nil {
		return models.DhanaWithdrawal{}, ErrInvalidUPI
	}
	w := models.DhanaWithdrawal{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		UPIID:     strings.TrimSpace(upiID),
		Status:    models.WithdrawalPending,
		CreatedAt: e.now(),
	}
	err = e.run(ctx, "dhana_withdrawal_request", func(ctx context.Context, tx *sqlx.Tx, box *outbox) error {
		if _, err := e.dhana.MatureDue(ctx, tx, userID, e.now(), matureBatch); err != nil {
			return err
		}
		if _, err := e.dhana.DebitAvailable(ctx, tx, userID, amount); err != nil {
			return err
		}
		if err := e.dhana.CreateWithdrawal(ctx, tx, w); err != nil {
			return err
		}
		return e.logAudit(ctx, tx, userID, "dhana_withdrawal_requested", "dhana_withdrawal", w.ID, map[string]any{
			"amount": amount,
		})
	})
	if err != nil {
		return models.DhanaWithdrawal{}, err
	}
	return w, nil
}

// ReviewDhanaWithdrawal approves a request, or rejects it and returns the
// held amount to the available balance.
func (e *Engine) ReviewDhanaWithdrawal(ctx context.Context, req ReviewRequest) (models.WithdrawalStatus, error) {
	if req.AdminID == "" || req.ID == "" {
		return "", ErrInvalidRequest
	}
	status := models.WithdrawalRejected
	if req.Approve {
		status = models.WithdrawalApproved
	}
	err := e.run(ctx, "dhana_withdrawal_review", func(ctx context.Context, tx *sqlx.Tx, box *outbox) error {
		w, err := e.dhana.GetWithdrawalForUpdate(ctx, tx, req.ID)
		if isNoRows(err) {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		if w.Status != models.WithdrawalPending {
			return ErrAlreadyResolved
		}
		resolved, err := e.dhana.ResolveWithdrawal(ctx, tx, w.ID, status, req.AdminID, req.Note)
		if err != nil {
			return err
		}
		if !resolved {
			return ErrAlreadyResolved
		}
		if req.Approve {
			err = e.dhana.AddWithdrawn(ctx, tx, w.UserID, w.Amount)
		} else {
			err = e.dhana.CreditAvailable(ctx, tx, w.UserID, w.Amount)
		}
		if err != nil {
			return err
		}
		box.add(notify.Notification{
			UserID:  w.UserID,
			Kind:    notify.KindWithdrawalReviewed,
			Title:   "Withdrawal reviewed",
			Message: "Your Dhana withdrawal of " + money.FormatMinor(w.Amount) + " was " + string(status),
			Data:    map[string]any{"amount": w.Amount, "status": status, "upi_id": w.UPIID},
		})
		return e.logAudit(ctx, tx, req.AdminID, "dhana_withdrawal_reviewed", "dhana_withdrawal", w.ID, map[string]any{
			"status": status,
			"note":   req.Note,
		})
	})
	return status, err
}
