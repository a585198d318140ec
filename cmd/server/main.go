package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tourney/internal/config"
	"tourney/internal/db"
	"tourney/internal/handlers"
	"tourney/internal/logging"
	"tourney/internal/metrics"
	"tourney/internal/notify"
	"tourney/internal/services"
	"tourney/internal/store"
	"tourney/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	logger := logging.New("server", cfg.LogLevel)

	settings, err := services.SettingsFromConfig(cfg.Economy)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid economy configuration")
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer database.Close()

	wallets := store.NewWalletStore(database)
	ledger := store.NewLedgerStore(database)
	tournaments := store.NewTournamentStore(database)
	registrations := store.NewRegistrationStore(database)
	transactions := store.NewTransactionStore(database)
	dhana := store.NewDhanaStore(database)
	audit := store.NewAuditStore(database)
	admin := store.NewAdminStore(database)
	commissions := store.NewSettingsStore(database)
	txRunner := db.NewTxRunner(database, cfg.LockTimeout)

	if cfg.BootstrapSuperAdmin != "" {
		err := txRunner.WithTx(context.Background(), func(tx *sqlx.Tx) error {
			if err := admin.EnsureSuperAdmin(context.Background(), tx, cfg.BootstrapSuperAdmin); err != nil {
				return err
			}
			return audit.Log(context.Background(), tx, "", "bootstrap_super_admin", "admin", cfg.BootstrapSuperAdmin, "")
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to bootstrap super admin")
		}
		logger.Info().Str("user_id", cfg.BootstrapSuperAdmin).Msg("super admin ensured")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	hub := websocket.NewHub()
	notifiers := notify.Multi{hub}
	if cfg.NATSURL != "" {
		nc, err := notify.ConnectNATS(cfg.NATSURL, logging.New("nats", cfg.LogLevel))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect nats")
		}
		defer nc.Drain()
		notifiers = append(notifiers, notify.NewNATSNotifier(nc, cfg.NATSSubjectPrefix))
	}

	engine := services.NewEngine(txRunner, services.Stores{
		Wallets:       wallets,
		Ledger:        ledger,
		Tournaments:   tournaments,
		Registrations: registrations,
		Transactions:  transactions,
		Dhana:         dhana,
		Audit:         audit,
	}, services.NewStoreSettings(settings, commissions), notifiers,
		services.WithLogger(logging.New("engine", cfg.LogLevel)),
		services.WithMetrics(m),
		services.WithOperationTimeout(cfg.OperationTimeout),
		services.WithPlatformAccount(cfg.PlatformAccountID),
	)

	scheduler, err := services.NewScheduler(engine, cfg.SettlementInterval, cfg.AutoStartInterval, logging.New("scheduler", cfg.LogLevel))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build scheduler")
	}
	scheduler.Start()

	handler := handlers.New(handlers.Deps{
		Config:       cfg,
		TxRunner:     txRunner,
		Engine:       engine,
		Tournaments:  tournaments,
		Transactions: transactions,
		Ledger:       ledger,
		Dhana:        dhana,
		Wallets:      wallets,
		Admin:        admin,
		Audit:        audit,
		Settings:     commissions,
		Hub:          hub,
		Metrics:      promhttp.Handler(),
		Logger:       logging.New("http", cfg.LogLevel),
	})
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Str("env", cfg.AppEnv).Msg("tournament economy API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	if err := scheduler.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("scheduler shutdown error")
	}
	logger.Info().Msg("stopped")
}
