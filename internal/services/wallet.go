package services

import (
	"context"
	"strings"

	"tourney/internal/models"
	"tourney/internal/money"
	"tourney/internal/notify"
	"tourney/internal/validator"

	"github.com/jmoiron/sqlx"
)

func (e *Engine) GetWallet(ctx context.Context, userID string) (models.Wallet, error) {
	return e.wallets.Get(ctx, userID)
}

// RequestDeposit records a pending deposit. The wallet is credited when an
// admin approves it.
func (e *Engine) RequestDeposit(ctx context.Context, userID string, amount int64, reference string) (string, error) {
	if userID == "" {
		return "", ErrInvalidRequest
	}
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	var transactionID string
	err := e.run(ctx, "deposit_request", func(ctx context.Context, tx *sqlx.Tx, box *outbox) error {
		var err error
		transactionID, err = e.record(ctx, tx, posting{
			UserID:      userID,
			Amount:      amount,
			Type:        models.TxDeposit,
			Description: "Deposit request",
			Metadata:    map[string]any{"reference": strings.TrimSpace(reference)},
		}, models.TxPending)
		return err
	})
	return transactionID, err
}

// RequestWalletWithdrawal takes the amount out of the wallet straight away
// and records a pending withdrawal. A rejection puts it back.
func (e *Engine) RequestWalletWithdrawal(ctx context.Context, userID string, amount int64, upiID string) (string, error) {
	if userID == "" {
		return "", ErrInvalidRequest
	}
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	if err := validator.ValidateUPI(upiID); err != nil {
		return "", ErrInvalidUPI
	}
	var transactionID string
	err := e.run(ctx, "withdrawal_request", func(ctx context.Context, tx *sqlx.Tx, box *outbox) error {
		wallets, err := e.lockWallets(ctx, tx, userID)
		if err != nil {
			return err
		}
		if wallets[userID].Balance < amount {
			return detail(ErrInsufficientFunds, "balance is %s", money.FormatMinor(wallets[userID].Balance))
		}
		var balance int64
		transactionID, balance, err = e.debit(ctx, tx, posting{
			UserID:      userID,
			Amount:      amount,
			Type:        models.TxWithdrawal,
			Description: "Withdrawal request",
			Metadata:    map[string]any{"upi_id": strings.TrimSpace(upiID)},
		}, models.TxPending)
		if err != nil {
			return err
		}
		box.add(walletNotification(userID, balance, "Withdrawal requested"))
		return nil
	})
	return transactionID, err
}

// ReviewRequest is an admin decision on a pending deposit or withdrawal.
type ReviewRequest struct {
	AdminID string
	ID      string
	Approve bool
	Note    string
}

func (e *Engine) ReviewDeposit(ctx context.Context, req ReviewRequest) (models.TransactionStatus, error) {
	return e.reviewTransaction(ctx, req, models.TxDeposit)
}

func (e *Engine) ReviewWalletWithdrawal(ctx context.Context, req ReviewRequest) (models.TransactionStatus, error) {
	return e.reviewTransaction(ctx, req, models.TxWithdrawal)
}

func (e *Engine) reviewTransaction(ctx context.Context, req ReviewRequest, txType models.TransactionType) (models.TransactionStatus, error) {
	if req.AdminID == "" || req.ID == "" {
		return "", ErrInvalidRequest
	}
	status := models.TxRejected
	if req.Approve {
		status = models.TxCompleted
	}
	err := e.run(ctx, "review_"+string(txType), func(ctx context.Context, tx *sqlx.Tx, box *outbox) error {
		record, err := e.txLog.GetForUpdate(ctx, tx, req.ID)
		if isNoRows(err) || (err == nil && record.Type != txType) {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		if record.Status != models.TxPending {
			return ErrAlreadyResolved
		}
		if _, err := e.lockWallets(ctx, tx, record.UserID); err != nil {
			return err
		}
		resolved, err := e.txLog.Resolve(ctx, tx, record.ID, status)
		if err != nil {
			return err
		}
		if !resolved {
			return ErrAlreadyResolved
		}
		var balance int64
		moved := false
		switch {
		case txType == models.TxDeposit && req.Approve:
			balance, err = e.applyCredit(ctx, tx, record.UserID, record.Amount, record.ID, "Deposit approved")
			moved = true
		case txType == models.TxWithdrawal && !req.Approve:
			balance, err = e.applyCredit(ctx, tx, record.UserID, record.Amount, record.ID, "Withdrawal rejected")
			moved = true
		}
		if err != nil {
			return err
		}
		if moved {
			box.add(walletNotification(record.UserID, balance, reviewMessage(txType, req.Approve)))
		} else {
			box.add(notify.Notification{
				UserID:  record.UserID,
				Kind:    notify.KindWithdrawalReviewed,
				Title:   "Withdrawal reviewed",
				Message: reviewMessage(txType, req.Approve),
				Data:    map[string]any{"amount": record.Amount, "status": status},
			})
		}
		return e.logAudit(ctx, tx, req.AdminID, "review_"+string(txType), "transaction", record.ID, map[string]any{
			"status": status,
			"note":   req.Note,
			"amount": record.Amount,
		})
	})
	return status, err
}

func reviewMessage(txType models.TransactionType, approved bool) string {
	switch {
	case txType == models.TxDeposit && approved:
		return "Deposit approved"
	case txType == models.TxDeposit:
		return "Deposit rejected"
	case approved:
		return "Withdrawal approved"
	}
	return "Withdrawal rejected and refunded"
}

type AdjustRequest struct {
	AdminID string
	UserID  string
	// Amount is signed: positive credits the wallet, negative debits it.
	Amount int64
	Reason string
}

// AdjustWallet applies an admin correction with a mandatory reason.
func (e *Engine) AdjustWallet(ctx context.Context, req AdjustRequest) (int64, error) {
	if req.AdminID == "" || req.UserID == "" {
		return 0, ErrInvalidRequest
	}
	if req.Amount == 0 {
		return 0, ErrInvalidAmount
	}
	if err := validator.ValidateReason(req.Reason); err != nil {
		return 0, detail(ErrReasonRequired, "%v", err)
	}
	var balance int64
	err := e.run(ctx, "wallet_adjust", func(ctx context.Context, tx *sqlx.Tx, box *outbox) error {
		if _, err := e.lockWallets(ctx, tx, req.UserID); err != nil {
			return err
		}
		p := posting{
			UserID:      req.UserID,
			Description: "Admin adjustment: " + strings.TrimSpace(req.Reason),
			Metadata:    map[string]any{"admin_id": req.AdminID, "reason": req.Reason},
		}
		var (
			transactionID string
			err           error
		)
		if req.Amount > 0 {
			p.Amount, p.Type = req.Amount, models.TxAdminCredit
			transactionID, balance, err = e.credit(ctx, tx, p)
		} else {
			p.Amount, p.Type = -req.Amount, models.TxAdminDebit
			transactionID, balance, err = e.debit(ctx, tx, p, models.TxCompleted)
		}
		if err != nil {
			return err
		}
		box.add(walletNotification(req.UserID, balance, "Wallet adjusted by an admin"))
		return e.logAudit(ctx, tx, req.AdminID, "wallet_adjusted", "transaction", transactionID, map[string]any{
			"amount":  req.Amount,
			"reason":  req.Reason,
			"user_id": req.UserID,
		})
	})
	return balance, err
}
