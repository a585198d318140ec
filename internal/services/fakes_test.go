package services

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"tourney/internal/models"
	"tourney/internal/notify"
	"tourney/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// memData is the whole in-memory database. A transaction snapshots it and
// restores the snapshot when fn fails.
type memData struct {
	wallets     map[string]models.Wallet
	ledger      []store.LedgerEntryInput
	tournaments map[string]models.Tournament
	regs        map[string]models.Registration
	regOrder    []string
	txs         map[string]models.TransactionRecord
	dhana       map[string]models.DhanaBalance
	dhanaTx     []models.DhanaTransaction
	withdrawals map[string]models.DhanaWithdrawal
	audit       []string
	minted      int64
}

func newMemData() *memData {
	return &memData{
		wallets:     map[string]models.Wallet{},
		tournaments: map[string]models.Tournament{},
		regs:        map[string]models.Registration{},
		txs:         map[string]models.TransactionRecord{},
		dhana:       map[string]models.DhanaBalance{},
		withdrawals: map[string]models.DhanaWithdrawal{},
	}
}

func (d *memData) clone() *memData {
	out := newMemData()
	for k, v := range d.wallets {
		out.wallets[k] = v
	}
	out.ledger = append([]store.LedgerEntryInput(nil), d.ledger...)
	for k, v := range d.tournaments {
		out.tournaments[k] = cloneTournament(v)
	}
	for k, v := range d.regs {
		out.regs[k] = cloneRegistration(v)
	}
	out.regOrder = append([]string(nil), d.regOrder...)
	for k, v := range d.txs {
		out.txs[k] = v
	}
	for k, v := range d.dhana {
		out.dhana[k] = v
	}
	out.dhanaTx = append([]models.DhanaTransaction(nil), d.dhanaTx...)
	for k, v := range d.withdrawals {
		out.withdrawals[k] = v
	}
	out.audit = append([]string(nil), d.audit...)
	out.minted = d.minted
	return out
}

func cloneTournament(t models.Tournament) models.Tournament {
	t.Participants = append(pq.StringArray{}, t.Participants...)
	dist := models.PrizeDistribution{}
	for k, v := range t.PrizeDistribution {
		dist[k] = v
	}
	t.PrizeDistribution = dist
	return t
}

func cloneRegistration(r models.Registration) models.Registration {
	r.Members = append([]models.RegistrationMember(nil), r.Members...)
	return r
}

type memState struct {
	mu   sync.Mutex
	data *memData
	// debitErr fails the wallet debit of the named user.
	debitErr map[string]error
}

func newMemState() *memState {
	return &memState{data: newMemData(), debitErr: map[string]error{}}
}

func (s *memState) fund(userID string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.data.wallets[userID]
	w.UserID = userID
	w.Balance += amount
	s.data.wallets[userID] = w
	s.data.minted += amount
}

func (s *memState) balance(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.wallets[userID].Balance
}

func (s *memState) tournament(id string) models.Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTournament(s.data.tournaments[id])
}

func (s *memState) registrations(tournamentID string) []models.Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Registration
	for _, id := range s.data.regOrder {
		if reg, ok := s.data.regs[id]; ok && reg.TournamentID == tournamentID {
			out = append(out, cloneRegistration(reg))
		}
	}
	return out
}

func (s *memState) transactions(userID string, txType models.TransactionType) []models.TransactionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TransactionRecord
	for _, rec := range s.data.txs {
		if rec.UserID == userID && rec.Type == txType {
			out = append(out, rec)
		}
	}
	return out
}

// totalMoney is everything the engine holds: wallets, undeclared tournament
// totals, undistributed prize pools and Dhana earnings.
func (s *memState) totalMoney() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, w := range s.data.wallets {
		total += w.Balance
	}
	for _, t := range s.data.tournaments {
		total += t.CurrentPrizePool
		if t.WinnersDeclaredAt == nil {
			total += t.OrganizerEarnings + t.PlatformEarnings
		}
	}
	for _, b := range s.data.dhana {
		total += b.TotalEarned
	}
	return total
}

func (s *memState) minted() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.minted
}

func (s *memState) assertNoNegativeBalances(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.data.wallets {
		if w.Balance < 0 {
			t.Fatalf("wallet %s went negative: %d", id, w.Balance)
		}
	}
	for id, b := range s.data.dhana {
		if b.Pending < 0 || b.Available < 0 {
			t.Fatalf("dhana balance %s went negative: %+v", id, b)
		}
	}
}

// memTxRunner serializes transactions like a tournament row lock would and
// rolls the state back when fn fails.
type memTxRunner struct {
	state *memState
	err   error
}

func (r memTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if r.err != nil {
		return r.err
	}
	for !r.state.mu.TryLock() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	defer r.state.mu.Unlock()
	saved := r.state.data.clone()
	if err := fn(nil); err != nil {
		r.state.data = saved
		return err
	}
	return nil
}

type memWallets struct{ s *memState }

func (m memWallets) EnsureSystem(_ context.Context, _ store.Execer, userID string) error {
	w := m.s.data.wallets[userID]
	w.UserID = userID
	w.IsSystem = true
	m.s.data.wallets[userID] = w
	return nil
}

func (m memWallets) LockWallet(_ context.Context, _ store.Tx, userID string) (models.Wallet, error) {
	w, ok := m.s.data.wallets[userID]
	if !ok {
		w = models.Wallet{UserID: userID}
		m.s.data.wallets[userID] = w
	}
	return w, nil
}

func (m memWallets) Get(_ context.Context, userID string) (models.Wallet, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	w, ok := m.s.data.wallets[userID]
	if !ok {
		return models.Wallet{UserID: userID}, nil
	}
	return w, nil
}

func (m memWallets) Credit(_ context.Context, _ store.Getter, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, store.ErrNonPositive
	}
	w := m.s.data.wallets[userID]
	w.UserID = userID
	w.Balance += amount
	m.s.data.wallets[userID] = w
	return w.Balance, nil
}

func (m memWallets) Debit(_ context.Context, _ store.Getter, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, store.ErrNonPositive
	}
	if err := m.s.debitErr[userID]; err != nil {
		return 0, err
	}
	w := m.s.data.wallets[userID]
	if w.Balance < amount {
		return 0, store.ErrInsufficientFunds
	}
	w.Balance -= amount
	m.s.data.wallets[userID] = w
	return w.Balance, nil
}

type memLedger struct{ s *memState }

func (m memLedger) InsertEntries(_ context.Context, _ store.Execer, entries []store.LedgerEntryInput) error {
	m.s.data.ledger = append(m.s.data.ledger, entries...)
	return nil
}

type memTournaments struct{ s *memState }

func (m memTournaments) Create(_ context.Context, _ store.Execer, t models.Tournament) error {
	m.s.data.tournaments[t.ID] = cloneTournament(t)
	return nil
}

func (m memTournaments) GetByID(_ context.Context, id string) (models.Tournament, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	t, ok := m.s.data.tournaments[id]
	if !ok {
		return models.Tournament{}, sql.ErrNoRows
	}
	return cloneTournament(t), nil
}

func (m memTournaments) GetForUpdate(_ context.Context, _ store.Getter, id string) (models.Tournament, error) {
	t, ok := m.s.data.tournaments[id]
	if !ok {
		return models.Tournament{}, sql.ErrNoRows
	}
	return cloneTournament(t), nil
}

func (m memTournaments) Save(_ context.Context, _ store.Execer, t models.Tournament) error {
	m.s.data.tournaments[t.ID] = cloneTournament(t)
	return nil
}

func (m memTournaments) ListDueToStart(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var ids []string
	for id, t := range m.s.data.tournaments {
		if t.Status == models.StatusUpcoming && !t.StartDate.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

type memRegistrations struct{ s *memState }

func (m memRegistrations) Create(_ context.Context, _ store.Execer, reg models.Registration) error {
	for _, existing := range m.s.data.regs {
		if existing.TournamentID != reg.TournamentID {
			continue
		}
		for _, a := range existing.Members {
			for _, b := range reg.Members {
				if a.UserID == b.UserID {
					return &pq.Error{Code: "23505"}
				}
			}
		}
	}
	m.s.data.regs[reg.ID] = cloneRegistration(reg)
	m.s.data.regOrder = append(m.s.data.regOrder, reg.ID)
	return nil
}

func (m memRegistrations) GetByParticipant(_ context.Context, _ store.Reader, tournamentID, userID string) (models.Registration, error) {
	for _, reg := range m.s.data.regs {
		if reg.TournamentID != tournamentID {
			continue
		}
		for _, member := range reg.Members {
			if member.UserID == userID {
				return cloneRegistration(reg), nil
			}
		}
	}
	return models.Registration{}, sql.ErrNoRows
}

func (m memRegistrations) ListByTournament(_ context.Context, _ store.Selecter, tournamentID string) ([]models.Registration, error) {
	var out []models.Registration
	for _, id := range m.s.data.regOrder {
		if reg, ok := m.s.data.regs[id]; ok && reg.TournamentID == tournamentID {
			out = append(out, cloneRegistration(reg))
		}
	}
	return out, nil
}

func (m memRegistrations) TeamNameExists(_ context.Context, _ store.Getter, tournamentID, teamName string) (bool, error) {
	for _, reg := range m.s.data.regs {
		if reg.TournamentID == tournamentID && reg.TeamName != nil && strings.EqualFold(*reg.TeamName, teamName) {
			return true, nil
		}
	}
	return false, nil
}

func (m memRegistrations) Delete(_ context.Context, _ store.Execer, registrationID string) error {
	delete(m.s.data.regs, registrationID)
	return nil
}

type memTransactions struct{ s *memState }

func (m memTransactions) Create(_ context.Context, _ store.Execer, input store.TransactionInput) error {
	m.s.data.txs[input.ID] = models.TransactionRecord{
		ID:           input.ID,
		UserID:       input.UserID,
		TournamentID: input.TournamentID,
		Type:         input.Type,
		Status:       input.Status,
		Amount:       input.Amount,
		Description:  input.Description,
		Metadata:     input.Metadata,
	}
	return nil
}

func (m memTransactions) GetForUpdate(_ context.Context, _ store.Getter, transactionID string) (models.TransactionRecord, error) {
	rec, ok := m.s.data.txs[transactionID]
	if !ok {
		return models.TransactionRecord{}, sql.ErrNoRows
	}
	return rec, nil
}

func (m memTransactions) Resolve(_ context.Context, _ store.Execer, transactionID string, status models.TransactionStatus) (bool, error) {
	rec, ok := m.s.data.txs[transactionID]
	if !ok || rec.Status != models.TxPending {
		return false, nil
	}
	rec.Status = status
	m.s.data.txs[transactionID] = rec
	return true, nil
}

type memDhana struct{ s *memState }

func (m memDhana) AddPending(_ context.Context, _ store.Execer, in store.DhanaCreditInput) error {
	if in.Amount <= 0 {
		return store.ErrNonPositive
	}
	m.s.data.dhanaTx = append(m.s.data.dhanaTx, models.DhanaTransaction{
		ID:           in.ID,
		UserID:       in.UserID,
		TournamentID: in.TournamentID,
		Amount:       in.Amount,
		Status:       models.DhanaPending,
		MaturesAt:    in.MaturesAt,
	})
	b := m.s.data.dhana[in.UserID]
	b.UserID = in.UserID
	b.Pending += in.Amount
	b.TotalEarned += in.Amount
	m.s.data.dhana[in.UserID] = b
	return nil
}

func (m memDhana) MatureDue(_ context.Context, _ store.DB, userID string, now time.Time, limit int) ([]models.DhanaTransaction, error) {
	var matured []models.DhanaTransaction
	for i, entry := range m.s.data.dhanaTx {
		if len(matured) == limit {
			break
		}
		if entry.Status != models.DhanaPending || entry.MaturesAt.After(now) {
			continue
		}
		if userID != "" && entry.UserID != userID {
			continue
		}
		at := now
		entry.Status = models.DhanaAvailable
		entry.MaturedAt = &at
		m.s.data.dhanaTx[i] = entry
		b := m.s.data.dhana[entry.UserID]
		b.Pending -= entry.Amount
		b.Available += entry.Amount
		m.s.data.dhana[entry.UserID] = b
		matured = append(matured, entry)
	}
	return matured, nil
}

func (m memDhana) GetBalance(_ context.Context, userID string) (models.DhanaBalance, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	b := m.s.data.dhana[userID]
	b.UserID = userID
	return b, nil
}

func (m memDhana) DebitAvailable(_ context.Context, _ store.Getter, userID string, amount int64) (int64, error) {
	b := m.s.data.dhana[userID]
	if b.Available < amount {
		return 0, store.ErrInsufficientFunds
	}
	b.Available -= amount
	m.s.data.dhana[userID] = b
	return b.Available, nil
}

func (m memDhana) CreditAvailable(_ context.Context, _ store.Execer, userID string, amount int64) error {
	b := m.s.data.dhana[userID]
	b.Available += amount
	m.s.data.dhana[userID] = b
	return nil
}

func (m memDhana) AddWithdrawn(_ context.Context, _ store.Execer, userID string, amount int64) error {
	b := m.s.data.dhana[userID]
	b.TotalWithdrawn += amount
	m.s.data.dhana[userID] = b
	return nil
}

func (m memDhana) CreateWithdrawal(_ context.Context, _ store.Execer, w models.DhanaWithdrawal) error {
	m.s.data.withdrawals[w.ID] = w
	return nil
}

func (m memDhana) GetWithdrawalForUpdate(_ context.Context, _ store.Getter, id string) (models.DhanaWithdrawal, error) {
	w, ok := m.s.data.withdrawals[id]
	if !ok {
		return models.DhanaWithdrawal{}, sql.ErrNoRows
	}
	return w, nil
}

func (m memDhana) ResolveWithdrawal(_ context.Context, _ store.Execer, id string, status models.WithdrawalStatus, reviewerID, note string) (bool, error) {
	w, ok := m.s.data.withdrawals[id]
	if !ok || w.Status != models.WithdrawalPending {
		return false, nil
	}
	w.Status = status
	w.ReviewedBy = &reviewerID
	m.s.data.withdrawals[id] = w
	return true, nil
}

type memAudit struct{ s *memState }

func (m memAudit) Log(_ context.Context, _ store.Execer, actorID, action, entityType, entityID, data string) error {
	m.s.data.audit = append(m.s.data.audit, action+":"+entityID)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []notify.Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
	return r.err
}

func (r *recordingNotifier) kinds(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.items {
		if n.UserID == userID {
			out = append(out, n.Kind)
		}
	}
	return out
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	engine   *Engine
	state    *memState
	clock    *testClock
	notifier *recordingNotifier
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	state := newMemState()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	stores := Stores{
		Wallets:       memWallets{state},
		Ledger:        memLedger{state},
		Tournaments:   memTournaments{state},
		Registrations: memRegistrations{state},
		Transactions:  memTransactions{state},
		Dhana:         memDhana{state},
		Audit:         memAudit{state},
	}
	opts = append([]Option{WithClock(clock.Now), WithPlatformAccount("platform")}, opts...)
	engine := NewEngine(memTxRunner{state: state}, stores, StaticSettings(DefaultSettings()), notifier, opts...)
	return &harness{engine: engine, state: state, clock: clock, notifier: notifier}
}

func (h *harness) create(t *testing.T, req CreateTournamentRequest) models.Tournament {
	t.Helper()
	if req.CreatorID == "" {
		req.CreatorID = "organizer"
	}
	if req.Name == "" {
		req.Name = "Friday Cup"
	}
	if req.Kind == "" {
		req.Kind = models.KindOrganizer
	}
	if req.Mode == "" {
		req.Mode = models.ModeSolo
	}
	if req.Capacity == 0 {
		req.Capacity = 10
	}
	if req.StartDate.IsZero() {
		req.StartDate = h.clock.Now().Add(2 * time.Hour)
	}
	tournament, err := h.engine.CreateTournament(context.Background(), req)
	if err != nil {
		t.Fatalf("create tournament: %v", err)
	}
	return tournament
}

// finish starts and completes a tournament and moves past the dispute window.
func (h *harness) finish(t *testing.T, tournamentID, creatorID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := h.engine.StartTournament(ctx, tournamentID, creatorID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := h.engine.CompleteTournament(ctx, tournamentID, creatorID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	h.clock.Advance(31 * time.Minute)
}

func (h *harness) assertConserved(t *testing.T) {
	t.Helper()
	if got, want := h.state.totalMoney(), h.state.minted(); got != want {
		t.Fatalf("money not conserved: holding %d, minted %d", got, want)
	}
	h.state.assertNoNegativeBalances(t)
}
