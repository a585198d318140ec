package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"tourney/internal/db"
	"tourney/internal/metrics"
	"tourney/internal/models"
	"tourney/internal/notify"
	"tourney/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// Engine runs every money-moving operation. Each operation is one database
// transaction that takes the tournament row lock first and wallet locks in
// ascending user id order after it.
type Engine struct {
	txRunner      db.TxRunner
	wallets       WalletStore
	ledger        LedgerStore
	tournaments   TournamentStore
	registrations RegistrationStore
	txLog         TransactionStore
	dhana         DhanaStore
	audit         AuditStore
	settings      SettingsProvider
	notifier      notify.Notifier

	logger            zerolog.Logger
	metrics           *metrics.Metrics
	now               func() time.Time
	opTimeout         time.Duration
	platformAccountID string
}

type WalletStore interface {
	EnsureSystem(ctx context.Context, tx store.Execer, userID string) error
	LockWallet(ctx context.Context, tx store.Tx, userID string) (models.Wallet, error)
	Get(ctx context.Context, userID string) (models.Wallet, error)
	Credit(ctx context.Context, tx store.Getter, userID string, amount int64) (int64, error)
	Debit(ctx context.Context, tx store.Getter, userID string, amount int64) (int64, error)
}

type LedgerStore interface {
	InsertEntries(ctx context.Context, tx store.Execer, entries []store.LedgerEntryInput) error
}

type TournamentStore interface {
	Create(ctx context.Context, tx store.Execer, t models.Tournament) error
	GetByID(ctx context.Context, id string) (models.Tournament, error)
	GetForUpdate(ctx context.Context, tx store.Getter, id string) (models.Tournament, error)
	Save(ctx context.Context, tx store.Execer, t models.Tournament) error
	ListDueToStart(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type RegistrationStore interface {
	Create(ctx context.Context, tx store.Execer, reg models.Registration) error
	GetByParticipant(ctx context.Context, tx store.Reader, tournamentID, userID string) (models.Registration, error)
	ListByTournament(ctx context.Context, tx store.Selecter, tournamentID string) ([]models.Registration, error)
	TeamNameExists(ctx context.Context, tx store.Getter, tournamentID, teamName string) (bool, error)
	Delete(ctx context.Context, tx store.Execer, registrationID string) error
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error
	GetForUpdate(ctx context.Context, tx store.Getter, transactionID string) (models.TransactionRecord, error)
	Resolve(ctx context.Context, tx store.Execer, transactionID string, status models.TransactionStatus) (bool, error)
}

type DhanaStore interface {
	AddPending(ctx context.Context, tx store.Execer, in store.DhanaCreditInput) error
	MatureDue(ctx context.Context, tx store.DB, userID string, now time.Time, limit int) ([]models.DhanaTransaction, error)
	GetBalance(ctx context.Context, userID string) (models.DhanaBalance, error)
	DebitAvailable(ctx context.Context, tx store.Getter, userID string, amount int64) (int64, error)
	CreditAvailable(ctx context.Context, tx store.Execer, userID string, amount int64) error
	AddWithdrawn(ctx context.Context, tx store.Execer, userID string, amount int64) error
	CreateWithdrawal(ctx context.Context, tx store.Execer, w models.DhanaWithdrawal) error
	GetWithdrawalForUpdate(ctx context.Context, tx store.Getter, id string) (models.DhanaWithdrawal, error)
	ResolveWithdrawal(ctx context.Context, tx store.Execer, id string, status models.WithdrawalStatus, reviewerID, note string) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

// Stores groups the persistence dependencies of the engine.
type Stores struct {
	Wallets       WalletStore
	Ledger        LedgerStore
	Tournaments   TournamentStore
	Registrations RegistrationStore
	Transactions  TransactionStore
	Dhana         DhanaStore
	Audit         AuditStore
}

type Option func(*Engine)

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithOperationTimeout(d time.Duration) Option {
	return func(e *Engine) { e.opTimeout = d }
}

func WithPlatformAccount(userID string) Option {
	return func(e *Engine) { e.platformAccountID = userID }
}

func NewEngine(txRunner db.TxRunner, stores Stores, settings SettingsProvider, notifier notify.Notifier, opts ...Option) *Engine {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	e := &Engine{
		txRunner:          txRunner,
		wallets:           stores.Wallets,
		ledger:            stores.Ledger,
		tournaments:       stores.Tournaments,
		registrations:     stores.Registrations,
		txLog:             stores.Transactions,
		dhana:             stores.Dhana,
		audit:             stores.Audit,
		settings:          settings,
		notifier:          notifier,
		logger:            zerolog.Nop(),
		now:               func() time.Time { return time.Now().UTC() },
		opTimeout:         10 * time.Second,
		platformAccountID: "platform",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// outbox collects notifications inside a transaction attempt. They are sent
// only after commit.
type outbox struct {
	items []notify.Notification
}

func (o *outbox) add(n notify.Notification) {
	o.items = append(o.items, n)
}

// run executes fn in one transaction bounded by the operation timeout, maps
// lock and serialization failures to ErrBusy and flushes the outbox once
// the transaction has committed.
func (e *Engine) run(ctx context.Context, op string, fn func(ctx context.Context, tx *sqlx.Tx, box *outbox) error) error {
	started := time.Now()
	opCtx := ctx
	if e.opTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, e.opTimeout)
		defer cancel()
	}
	var box outbox
	err := e.txRunner.WithTx(opCtx, func(tx *sqlx.Tx) error {
		box = outbox{}
		return fn(opCtx, tx, &box)
	})
	err = e.classify(op, err)
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	e.metrics.ObserveOperation(op, outcome, time.Since(started))
	if err != nil {
		return err
	}
	e.flush(ctx, box)
	return nil
}

func (e *Engine) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != "" {
		return err
	}
	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		return ErrInsufficientFunds
	case db.IsLockTimeout(err), db.IsRetryable(err), errors.Is(err, db.ErrRetryLimit), errors.Is(err, context.DeadlineExceeded):
		e.logger.Warn().Err(err).Str("op", op).Msg("operation rejected as busy")
		return ErrBusy
	}
	e.logger.Error().Err(err).Str("op", op).Msg("operation failed")
	return err
}

func (e *Engine) flush(ctx context.Context, box outbox) {
	base := context.WithoutCancel(ctx)
	for _, n := range box.items {
		if n.CreatedAt.IsZero() {
			n.CreatedAt = e.now()
		}
		sendCtx, cancel := context.WithTimeout(base, 5*time.Second)
		err := e.notifier.Notify(sendCtx, n)
		cancel()
		if err != nil {
			e.metrics.NotificationFailed(n.Kind)
			e.logger.Warn().Err(err).Str("user_id", n.UserID).Str("kind", n.Kind).Msg("notification failed")
		}
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func (e *Engine) lockTournament(ctx context.Context, tx *sqlx.Tx, tournamentID string) (models.Tournament, error) {
	t, err := e.tournaments.GetForUpdate(ctx, tx, tournamentID)
	if isNoRows(err) {
		return models.Tournament{}, ErrTournamentNotFound
	}
	return t, err
}

// lockWallets row-locks each distinct wallet in ascending user id order and
// returns them keyed by user id.
func (e *Engine) lockWallets(ctx context.Context, tx *sqlx.Tx, userIDs ...string) (map[string]models.Wallet, error) {
	ordered := orderedIDs(userIDs)
	wallets := make(map[string]models.Wallet, len(ordered))
	for _, id := range ordered {
		w, err := e.wallets.LockWallet(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		wallets[id] = w
	}
	return wallets, nil
}

func orderedIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// posting is one wallet movement with its transaction record.
type posting struct {
	UserID       string
	Amount       int64
	Type         models.TransactionType
	TournamentID string
	Description  string
	Metadata     map[string]any
}

// credit records a completed transaction and adds its amount to the wallet.
func (e *Engine) credit(ctx context.Context, tx *sqlx.Tx, p posting) (string, int64, error) {
	transactionID, err := e.record(ctx, tx, p, models.TxCompleted)
	if err != nil {
		return "", 0, err
	}
	balance, err := e.applyCredit(ctx, tx, p.UserID, p.Amount, transactionID, p.Description)
	return transactionID, balance, err
}

// debit records a transaction with the given status and takes its amount
// from the wallet. It fails with ErrInsufficientFunds instead of going
// negative.
func (e *Engine) debit(ctx context.Context, tx *sqlx.Tx, p posting, status models.TransactionStatus) (string, int64, error) {
	transactionID, err := e.record(ctx, tx, p, status)
	if err != nil {
		return "", 0, err
	}
	balance, err := e.applyDebit(ctx, tx, p.UserID, p.Amount, transactionID, p.Description)
	return transactionID, balance, err
}

func (e *Engine) record(ctx context.Context, tx *sqlx.Tx, p posting, status models.TransactionStatus) (string, error) {
	transactionID := uuid.NewString()
	var tournamentID *string
	if p.TournamentID != "" {
		id := p.TournamentID
		tournamentID = &id
	}
	err := e.txLog.Create(ctx, tx, store.TransactionInput{
		ID:           transactionID,
		UserID:       p.UserID,
		TournamentID: tournamentID,
		Type:         p.Type,
		Status:       status,
		Amount:       p.Amount,
		Description:  p.Description,
		Metadata:     encodeJSON(p.Metadata),
	})
	return transactionID, err
}

func (e *Engine) applyCredit(ctx context.Context, tx *sqlx.Tx, userID string, amount int64, transactionID, description string) (int64, error) {
	balance, err := e.wallets.Credit(ctx, tx, userID, amount)
	if err != nil {
		return 0, err
	}
	return balance, e.ledger.InsertEntries(ctx, tx, []store.LedgerEntryInput{{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		UserID:        userID,
		Amount:        amount,
		BalanceAfter:  balance,
		Description:   description,
	}})
}

func (e *Engine) applyDebit(ctx context.Context, tx *sqlx.Tx, userID string, amount int64, transactionID, description string) (int64, error) {
	balance, err := e.wallets.Debit(ctx, tx, userID, amount)
	if errors.Is(err, store.ErrInsufficientFunds) {
		return 0, ErrInsufficientFunds
	}
	if err != nil {
		return 0, err
	}
	return balance, e.ledger.InsertEntries(ctx, tx, []store.LedgerEntryInput{{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		UserID:        userID,
		Amount:        -amount,
		BalanceAfter:  balance,
		Description:   description,
	}})
}

func (e *Engine) logAudit(ctx context.Context, tx *sqlx.Tx, actorID, action, entityType, entityID string, data map[string]any) error {
	return e.audit.Log(ctx, tx, actorID, action, entityType, entityID, encodeJSON(data))
}

func encodeJSON(data map[string]any) string {
	if len(data) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func walletNotification(userID string, balance int64, message string) notify.Notification {
	return notify.Notification{
		UserID:  userID,
		Kind:    notify.KindWalletUpdated,
		Title:   "Wallet updated",
		Message: message,
		Data:    map[string]any{"balance": balance},
	}
}
