package handlers

import (
	"net/http"

	"tourney/internal/config"
	"tourney/internal/db"
	"tourney/internal/middleware"
	"tourney/internal/store"
	"tourney/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

type Handler struct {
	cfg          config.Config
	txRunner     db.TxRunner
	engine       Engine
	tournaments  TournamentLister
	transactions TransactionLister
	ledger       LedgerReader
	dhana        DhanaLister
	wallets      WalletReconciler
	admin        AdminStore
	audit        AuditStore
	settings     SettingsStore
	hub          *websocket.Hub
	metrics      http.Handler
	logger       zerolog.Logger
}

// Deps lists everything the HTTP surface talks to. Metrics may be nil, in
// which case /metrics is not mounted.
type Deps struct {
	Config       config.Config
	TxRunner     db.TxRunner
	Engine       Engine
	Tournaments  TournamentLister
	Transactions TransactionLister
	Ledger       LedgerReader
	Dhana        DhanaLister
	Wallets      WalletReconciler
	Admin        AdminStore
	Audit        AuditStore
	Settings     SettingsStore
	Hub          *websocket.Hub
	Metrics      http.Handler
	Logger       zerolog.Logger
}

func New(deps Deps) *Handler {
	return &Handler{
		cfg:          deps.Config,
		txRunner:     deps.TxRunner,
		engine:       deps.Engine,
		tournaments:  deps.Tournaments,
		transactions: deps.Transactions,
		ledger:       deps.Ledger,
		dhana:        deps.Dhana,
		wallets:      deps.Wallets,
		admin:        deps.Admin,
		audit:        deps.Audit,
		settings:     deps.Settings,
		hub:          deps.Hub,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.AccessLog(h.logger))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	authed := middleware.Auth(h.cfg.JWTSecret)

	router.Route("/tournaments", func(r chi.Router) {
		r.Use(authed)
		r.Get("/", h.ListTournaments)
		r.Post("/", h.CreateTournament)
		r.Get("/{id}", h.GetTournament)
		r.Post("/{id}/join", h.JoinTournament)
		r.Post("/{id}/join-team", h.JoinTeamTournament)
		r.Post("/{id}/exit", h.ExitTournament)
		r.Post("/{id}/cancel", h.CancelTournament)
		r.Post("/{id}/recalculate", h.RecalculatePrizePool)
		r.Post("/{id}/start", h.StartTournament)
		r.Post("/{id}/complete", h.CompleteTournament)
		r.Post("/{id}/winners", h.DeclareWinners)
	})
	router.Route("/wallet", func(r chi.Router) {
		r.Use(authed)
		r.Get("/", h.GetWallet)
		r.Get("/transactions", h.ListTransactions)
		r.Get("/ledger", h.ListLedger)
		r.Get("/self-check", h.SelfCheck)
		r.Post("/deposits", h.RequestDeposit)
		r.Post("/withdrawals", h.RequestWalletWithdrawal)
	})
	router.Route("/dhana", func(r chi.Router) {
		r.Use(authed)
		r.Get("/", h.GetDhana)
		r.Get("/entries", h.ListDhanaEntries)
		r.Get("/withdrawals", h.ListDhanaWithdrawals)
		r.Post("/withdrawals", h.RequestDhanaWithdrawal)
	})
	router.Get("/ws/notifications", h.WSNotifications)

	router.Route("/admin", func(r chi.Router) {
		r.Use(authed)
		r.With(middleware.RequireAdmin(h.admin, store.RoleReviewPayments)).Post("/deposits/{id}/{decision}", h.ReviewDeposit)
		r.With(middleware.RequireAdmin(h.admin, store.RoleReviewPayments)).Post("/withdrawals/{id}/{decision}", h.ReviewWalletWithdrawal)
		r.With(middleware.RequireAdmin(h.admin, store.RoleReviewPayments)).Get("/dhana/withdrawals", h.AdminListDhanaWithdrawals)
		r.With(middleware.RequireAdmin(h.admin, store.RoleReviewPayments)).Post("/dhana/withdrawals/{id}/{decision}", h.ReviewDhanaWithdrawal)
		r.With(middleware.RequireAdmin(h.admin, store.RoleAdjustWallets)).Post("/wallets/{userID}/adjust", h.AdjustWallet)
		r.With(middleware.RequireAdmin(h.admin, store.RoleViewTransactions)).Get("/transactions", h.AdminListTransactions)
		r.With(middleware.RequireAdmin(h.admin, store.RoleViewTransactions)).Get("/audit", h.ListAuditLogs)
		r.With(middleware.RequireAdmin(h.admin, store.RoleViewTransactions)).Get("/reconcile", h.Reconcile)
		r.With(middleware.RequireAdmin(h.admin, store.RoleRunSettlement)).Post("/settlement/run", h.RunSettlement)
		r.With(middleware.RequireAdmin(h.admin, store.RoleManageSettings)).Get("/settings/commissions", h.ListCommissions)
		r.With(middleware.RequireAdmin(h.admin, store.RoleManageSettings)).Put("/settings/commissions/{kind}", h.UpdateCommission)
		r.With(middleware.RequireSuperAdmin(h.admin)).Post("/promote", h.PromoteAdmin)
		r.With(middleware.RequireSuperAdmin(h.admin)).Post("/roles/grant", h.GrantRole)
		r.With(middleware.RequireSuperAdmin(h.admin)).Post("/roles/revoke", h.RevokeRole)
		r.With(middleware.RequireSuperAdmin(h.admin)).Get("/admins", h.ListAdmins)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.metrics != nil {
		router.Method(http.MethodGet, "/metrics", h.metrics)
	}
	return router
}
