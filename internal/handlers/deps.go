package handlers

import (
	"context"

	"tourney/internal/models"
	"tourney/internal/services"
	"tourney/internal/store"
)

// Engine is the set of economy operations the HTTP surface exposes.
type Engine interface {
	CreateTournament(ctx context.Context, req services.CreateTournamentRequest) (models.Tournament, error)
	GetTournament(ctx context.Context, tournamentID string) (models.Tournament, error)
	JoinTournament(ctx context.Context, tournamentID, userID string) (services.JoinResult, error)
	JoinTeamTournament(ctx context.Context, req services.TeamJoinRequest) (services.TeamJoinResult, error)
	ExitTournament(ctx context.Context, tournamentID, userID string) (services.ExitResult, error)
	CancelTournament(ctx context.Context, tournamentID, actorID, reason string) (services.CancelResult, error)
	RecalculatePrizePool(ctx context.Context, tournamentID, actorID string) (services.RecalculateResult, error)
	StartTournament(ctx context.Context, tournamentID, actorID string) (models.Tournament, error)
	CompleteTournament(ctx context.Context, tournamentID, actorID string) (models.Tournament, error)
	DeclareWinners(ctx context.Context, req services.DeclareRequest) (services.DeclareResult, error)

	GetWallet(ctx context.Context, userID string) (models.Wallet, error)
	RequestDeposit(ctx context.Context, userID string, amount int64, reference string) (string, error)
	RequestWalletWithdrawal(ctx context.Context, userID string, amount int64, upiID string) (string, error)
	ReviewDeposit(ctx context.Context, req services.ReviewRequest) (models.TransactionStatus, error)
	ReviewWalletWithdrawal(ctx context.Context, req services.ReviewRequest) (models.TransactionStatus, error)
	AdjustWallet(ctx context.Context, req services.AdjustRequest) (int64, error)

	GetDhanaBalance(ctx context.Context, userID string) (models.DhanaBalance, error)
	RequestDhanaWithdrawal(ctx context.Context, userID string, amount int64, upiID string) (models.DhanaWithdrawal, error)
	ReviewDhanaWithdrawal(ctx context.Context, req services.ReviewRequest) (models.WithdrawalStatus, error)
	MatureCommissions(ctx context.Context) (int, error)
}

type TournamentLister interface {
	List(ctx context.Context, status string, limit, offset int) ([]models.Tournament, error)
}

type TransactionLister interface {
	ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]models.TransactionRecord, error)
	ListAll(ctx context.Context, txType, status string, limit, offset int) ([]models.TransactionRecord, error)
}

type LedgerReader interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error)
	SumByUser(ctx context.Context, userID string) (int64, error)
}

type DhanaLister interface {
	ListWithdrawals(ctx context.Context, userID, status string, limit, offset int) ([]models.DhanaWithdrawal, error)
	ListEntries(ctx context.Context, userID string, limit, offset int) ([]models.DhanaTransaction, error)
}

type WalletReconciler interface {
	Reconcile(ctx context.Context) ([]store.WalletDrift, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
	Promote(ctx context.Context, tx store.Execer, userID string, createdBy string) error
	GrantRole(ctx context.Context, tx store.Execer, adminUserID, role string) error
	RevokeRole(ctx context.Context, tx store.Execer, adminUserID, role string) (bool, error)
	List(ctx context.Context) ([]store.AdminAccount, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, entityType, entityID string, limit, offset int) ([]store.AuditEntry, error)
}

type SettingsStore interface {
	ListCommissions(ctx context.Context) ([]models.CommissionSetting, error)
	UpsertCommission(ctx context.Context, tx store.Execer, setting models.CommissionSetting) error
}
