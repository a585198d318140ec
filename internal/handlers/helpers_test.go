package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"tourney/internal/auth"
	"tourney/internal/config"
	"tourney/internal/models"
	"tourney/internal/services"
	"tourney/internal/store"
	"tourney/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

// stubEngine embeds the interface so tests only stub what they call; an
// unstubbed call panics.
type stubEngine struct {
	Engine
	createFn     func(ctx context.Context, req services.CreateTournamentRequest) (models.Tournament, error)
	getFn        func(ctx context.Context, id string) (models.Tournament, error)
	joinFn       func(ctx context.Context, id, userID string) (services.JoinResult, error)
	joinTeamFn   func(ctx context.Context, req services.TeamJoinRequest) (services.TeamJoinResult, error)
	exitFn       func(ctx context.Context, id, userID string) (services.ExitResult, error)
	cancelFn     func(ctx context.Context, id, actorID, reason string) (services.CancelResult, error)
	declareFn    func(ctx context.Context, req services.DeclareRequest) (services.DeclareResult, error)
	walletFn     func(ctx context.Context, userID string) (models.Wallet, error)
	depositFn    func(ctx context.Context, userID string, amount int64, reference string) (string, error)
	reviewDepFn  func(ctx context.Context, req services.ReviewRequest) (models.TransactionStatus, error)
	adjustFn     func(ctx context.Context, req services.AdjustRequest) (int64, error)
	dhanaFn      func(ctx context.Context, userID string) (models.DhanaBalance, error)
	dhanaDrawFn  func(ctx context.Context, userID string, amount int64, upiID string) (models.DhanaWithdrawal, error)
	matureFn     func(ctx context.Context) (int, error)
}

func (s stubEngine) CreateTournament(ctx context.Context, req services.CreateTournamentRequest) (models.Tournament, error) {
	return s.createFn(ctx, req)
}

func (s stubEngine) GetTournament(ctx context.Context, id string) (models.Tournament, error) {
	return s.getFn(ctx, id)
}

func (s stubEngine) JoinTournament(ctx context.Context, id, userID string) (services.JoinResult, error) {
	return s.joinFn(ctx, id, userID)
}

func (s stubEngine) JoinTeamTournament(ctx context.Context, req services.TeamJoinRequest) (services.TeamJoinResult, error) {
	return s.joinTeamFn(ctx, req)
}

func (s stubEngine) ExitTournament(ctx context.Context, id, userID string) (services.ExitResult, error) {
	return s.exitFn(ctx, id, userID)
}

func (s stubEngine) CancelTournament(ctx context.Context, id, actorID, reason string) (services.CancelResult, error) {
	return s.cancelFn(ctx, id, actorID, reason)
}

func (s stubEngine) DeclareWinners(ctx context.Context, req services.DeclareRequest) (services.DeclareResult, error) {
	return s.declareFn(ctx, req)
}

func (s stubEngine) GetWallet(ctx context.Context, userID string) (models.Wallet, error) {
	return s.walletFn(ctx, userID)
}

func (s stubEngine) RequestDeposit(ctx context.Context, userID string, amount int64, reference string) (string, error) {
	return s.depositFn(ctx, userID, amount, reference)
}

func (s stubEngine) ReviewDeposit(ctx context.Context, req services.ReviewRequest) (models.TransactionStatus, error) {
	return s.reviewDepFn(ctx, req)
}

func (s stubEngine) AdjustWallet(ctx context.Context, req services.AdjustRequest) (int64, error) {
	return s.adjustFn(ctx, req)
}

func (s stubEngine) GetDhanaBalance(ctx context.Context, userID string) (models.DhanaBalance, error) {
	return s.dhanaFn(ctx, userID)
}

func (s stubEngine) RequestDhanaWithdrawal(ctx context.Context, userID string, amount int64, upiID string) (models.DhanaWithdrawal, error) {
	return s.dhanaDrawFn(ctx, userID, amount, upiID)
}

func (s stubEngine) MatureCommissions(ctx context.Context) (int, error) {
	return s.matureFn(ctx)
}

type stubTransactionLister struct {
	listByUserFn func(ctx context.Context, userID, txType string, limit, offset int) ([]models.TransactionRecord, error)
	listAllFn    func(ctx context.Context, txType, status string, limit, offset int) ([]models.TransactionRecord, error)
}

func (s stubTransactionLister) ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]models.TransactionRecord, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, txType, limit, offset)
}

func (s stubTransactionLister) ListAll(ctx context.Context, txType, status string, limit, offset int) ([]models.TransactionRecord, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx, txType, status, limit, offset)
}

type stubLedgerReader struct {
	sumFn func(ctx context.Context, userID string) (int64, error)
}

func (s stubLedgerReader) ListByUser(context.Context, string, int, int) ([]models.LedgerEntry, error) {
	return nil, nil
}

func (s stubLedgerReader) SumByUser(ctx context.Context, userID string) (int64, error) {
	if s.sumFn == nil {
		return 0, nil
	}
	return s.sumFn(ctx, userID)
}

type stubReconciler struct {
	reconcileFn func(ctx context.Context) ([]store.WalletDrift, error)
}

func (s stubReconciler) Reconcile(ctx context.Context) ([]store.WalletDrift, error) {
	if s.reconcileFn == nil {
		return nil, nil
	}
	return s.reconcileFn(ctx)
}

type stubAdminStore struct {
	isAdminFn   func(ctx context.Context, userID string) (bool, bool, error)
	hasRoleFn   func(ctx context.Context, userID, role string) (bool, error)
	promoteFn   func(ctx context.Context, tx store.Execer, userID, createdBy string) error
	grantRoleFn func(ctx context.Context, tx store.Execer, adminUserID, role string) error
	revokeFn    func(ctx context.Context, tx store.Execer, adminUserID, role string) (bool, error)
	listFn      func(ctx context.Context) ([]store.AdminAccount, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	if s.isAdminFn == nil {
		return false, false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if s.hasRoleFn == nil {
		return false, nil
	}
	return s.hasRoleFn(ctx, userID, role)
}

func (s stubAdminStore) Promote(ctx context.Context, tx store.Execer, userID, createdBy string) error {
	if s.promoteFn == nil {
		return nil
	}
	return s.promoteFn(ctx, tx, userID, createdBy)
}

func (s stubAdminStore) GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error {
	if s.grantRoleFn == nil {
		return nil
	}
	return s.grantRoleFn(ctx, tx, adminUserID, role)
}

func (s stubAdminStore) RevokeRole(ctx context.Context, tx store.Execer, adminUserID, role string) (bool, error) {
	if s.revokeFn == nil {
		return true, nil
	}
	return s.revokeFn(ctx, tx, adminUserID, role)
}

func (s stubAdminStore) List(ctx context.Context) ([]store.AdminAccount, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx)
}

type stubAuditStore struct {
	logFn func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(context.Context, string, string, int, int) ([]store.AuditEntry, error) {
	return nil, nil
}

type stubSettingsStore struct {
	upsertFn func(ctx context.Context, tx store.Execer, setting models.CommissionSetting) error
}

func (s stubSettingsStore) ListCommissions(context.Context) ([]models.CommissionSetting, error) {
	return nil, nil
}

func (s stubSettingsStore) UpsertCommission(ctx context.Context, tx store.Execer, setting models.CommissionSetting) error {
	if s.upsertFn == nil {
		return nil
	}
	return s.upsertFn(ctx, tx, setting)
}

// superAdmin lets every caller through the admin middleware.
var superAdmin = stubAdminStore{
	isAdminFn: func(context.Context, string) (bool, bool, error) { return true, true, nil },
}

func newTestHandler(engine Engine, deps Deps) *Handler {
	deps.Config = config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      "secret",
		AllowedOrigins: "*",
	}
	deps.Engine = engine
	if deps.TxRunner == nil {
		deps.TxRunner = fakeTxRunner{}
	}
	if deps.Transactions == nil {
		deps.Transactions = stubTransactionLister{}
	}
	if deps.Ledger == nil {
		deps.Ledger = stubLedgerReader{}
	}
	if deps.Wallets == nil {
		deps.Wallets = stubReconciler{}
	}
	if deps.Admin == nil {
		deps.Admin = stubAdminStore{}
	}
	if deps.Audit == nil {
		deps.Audit = stubAuditStore{}
	}
	if deps.Settings == nil {
		deps.Settings = stubSettingsStore{}
	}
	deps.Hub = websocket.NewHub()
	deps.Logger = zerolog.Nop()
	return New(deps)
}

// serve sends a request through the full router as userID. An empty userID
// sends no token.
func serve(t *testing.T, h *Handler, method, path, body, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		token, err := auth.GenerateToken("secret", userID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json %q: %v", rr.Body.String(), err)
	}
	return body
}
