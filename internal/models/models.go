package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type TournamentKind string

const (
	KindOrganizer TournamentKind = "organizer"
	KindCreator   TournamentKind = "creator"
	KindLocal     TournamentKind = "local"
)

func (k TournamentKind) Valid() bool {
	switch k {
	case KindOrganizer, KindCreator, KindLocal:
		return true
	}
	return false
}

type Mode string

const (
	ModeSolo  Mode = "solo"
	ModeDuo   Mode = "duo"
	ModeSquad Mode = "squad"
)

// TeamSize is the number of players one registration holds.
func (m Mode) TeamSize() int {
	switch m {
	case ModeDuo:
		return 2
	case ModeSquad:
		return 4
	case ModeSolo:
		return 1
	}
	return 0
}

type TournamentStatus string

const (
	StatusUpcoming  TournamentStatus = "upcoming"
	StatusOngoing   TournamentStatus = "ongoing"
	StatusCompleted TournamentStatus = "completed"
	StatusCancelled TournamentStatus = "cancelled"
)

// PrizeDistribution maps a finishing position to a prize amount in minor units.
type PrizeDistribution map[int]int64

func (p PrizeDistribution) Total() int64 {
	var total int64
	for _, amount := range p {
		total += amount
	}
	return total
}

// Positions returns the configured positions in ascending order.
func (p PrizeDistribution) Positions() []int {
	positions := make([]int, 0, len(p))
	for position := range p {
		positions = append(positions, position)
	}
	sort.Ints(positions)
	return positions
}

func (p PrizeDistribution) Value() (driver.Value, error) {
	raw := make(map[string]int64, len(p))
	for position, amount := range p {
		raw[strconv.Itoa(position)] = amount
	}
	return json.Marshal(raw)
}

func (p *PrizeDistribution) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*p = PrizeDistribution{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("prize distribution: unsupported type %T", src)
	}
	raw := map[string]int64{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	dist := make(PrizeDistribution, len(raw))
	for key, amount := range raw {
		position, err := strconv.Atoi(key)
		if err != nil || position < 1 {
			return errors.New("prize distribution: invalid position " + key)
		}
		dist[position] = amount
	}
	*p = dist
	return nil
}

type Tournament struct {
	ID                   string            `db:"id" json:"id"`
	Name                 string            `db:"name" json:"name"`
	CreatorID            string            `db:"creator_id" json:"creator_id"`
	Kind                 TournamentKind    `db:"kind" json:"kind"`
	Mode                 Mode              `db:"mode" json:"mode"`
	EntryFee             int64             `db:"entry_fee" json:"entry_fee"`
	Capacity             int               `db:"capacity" json:"capacity"`
	StartDate            time.Time         `db:"start_date" json:"start_date"`
	RegistrationDeadline *time.Time        `db:"registration_deadline" json:"registration_deadline,omitempty"`
	EndDate              *time.Time        `db:"end_date" json:"end_date,omitempty"`
	Status               TournamentStatus  `db:"status" json:"status"`
	PrizePoolPercent     decimal.Decimal   `db:"prize_pool_percent" json:"prize_pool_percent"`
	OrganizerPercent     decimal.Decimal   `db:"organizer_percent" json:"organizer_percent"`
	PlatformPercent      decimal.Decimal   `db:"platform_percent" json:"platform_percent"`
	IsGiveaway           bool              `db:"is_giveaway" json:"is_giveaway"`
	CurrentPrizePool     int64             `db:"current_prize_pool" json:"current_prize_pool"`
	OrganizerEarnings    int64             `db:"organizer_earnings" json:"organizer_earnings"`
	PlatformEarnings     int64             `db:"platform_earnings" json:"platform_earnings"`
	ProjectedPrizePool   int64             `db:"projected_prize_pool" json:"projected_prize_pool"`
	PrizeDistribution    PrizeDistribution `db:"prize_distribution" json:"prize_distribution"`
	Participants         pq.StringArray    `db:"participants" json:"participants"`
	WinnersDeclaredAt    *time.Time        `db:"winners_declared_at" json:"winners_declared_at,omitempty"`
	CancelReason         *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt            time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time         `db:"updated_at" json:"updated_at"`
}

func (t Tournament) HasParticipant(userID string) bool {
	for _, p := range t.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

func (t *Tournament) RemoveParticipant(userID string) {
	kept := t.Participants[:0]
	for _, p := range t.Participants {
		if p != userID {
			kept = append(kept, p)
		}
	}
	t.Participants = kept
}

type Registration struct {
	ID           string               `db:"id" json:"id"`
	TournamentID string               `db:"tournament_id" json:"tournament_id"`
	LeaderID     string               `db:"leader_id" json:"leader_id"`
	TeamName     *string              `db:"team_name" json:"team_name,omitempty"`
	CreatedAt    time.Time            `db:"created_at" json:"created_at"`
	Members      []RegistrationMember `db:"-" json:"members"`
}

func (r Registration) IsTeam() bool {
	return r.TeamName != nil
}

// Collected returns the sum of fees paid by every member.
func (r Registration) Collected() (paid, prize, organizer, platform int64) {
	for _, m := range r.Members {
		paid += m.AmountPaid
		prize += m.PrizeShare
		organizer += m.OrganizerShare
		platform += m.PlatformShare
	}
	return paid, prize, organizer, platform
}

type RegistrationMember struct {
	RegistrationID string `db:"registration_id" json:"-"`
	UserID         string `db:"user_id" json:"user_id"`
	MemberOrder    int    `db:"member_order" json:"member_order"`
	AmountPaid     int64  `db:"amount_paid" json:"amount_paid"`
	PrizeShare     int64  `db:"prize_share" json:"prize_share"`
	OrganizerShare int64  `db:"organizer_share" json:"organizer_share"`
	PlatformShare  int64  `db:"platform_share" json:"platform_share"`
	IsTeamLeader   bool   `db:"is_team_leader" json:"is_team_leader"`
}

type Wallet struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Balance   int64     `db:"balance" json:"balance"`
	IsSystem  bool      `db:"is_system" json:"is_system"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type LedgerEntry struct {
	ID            string    `db:"id" json:"id"`
	TransactionID string    `db:"transaction_id" json:"transaction_id"`
	UserID        string    `db:"user_id" json:"user_id"`
	Amount        int64     `db:"amount" json:"amount"`
	BalanceAfter  int64     `db:"balance_after" json:"balance_after"`
	Description   string    `db:"description" json:"description"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

type TransactionType string

const (
	TxDeposit             TransactionType = "deposit"
	TxWithdrawal          TransactionType = "withdrawal"
	TxEntryFee            TransactionType = "entry_fee"
	TxRefund              TransactionType = "refund"
	TxPrize               TransactionType = "prize"
	TxOrganizerCommission TransactionType = "organizer_commission"
	TxPlatformCommission  TransactionType = "platform_commission"
	TxAdminCredit         TransactionType = "admin_credit"
	TxAdminDebit          TransactionType = "admin_debit"
	TxPrizePoolFunding    TransactionType = "prize_pool_funding"
)

type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxRejected  TransactionStatus = "rejected"
)

type TransactionRecord struct {
	ID           string            `db:"id" json:"id"`
	UserID       string            `db:"user_id" json:"user_id"`
	TournamentID *string           `db:"tournament_id" json:"tournament_id,omitempty"`
	Type         TransactionType   `db:"type" json:"type"`
	Status       TransactionStatus `db:"status" json:"status"`
	Amount       int64             `db:"amount" json:"amount"`
	Description  string            `db:"description" json:"description"`
	Metadata     string            `db:"metadata" json:"metadata"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	ResolvedAt   *time.Time        `db:"resolved_at" json:"resolved_at,omitempty"`
}

type DhanaBalance struct {
	UserID         string `db:"user_id" json:"user_id"`
	Pending        int64  `db:"pending" json:"pending"`
	Available      int64  `db:"available" json:"available"`
	TotalEarned    int64  `db:"total_earned" json:"total_earned"`
	TotalWithdrawn int64  `db:"total_withdrawn" json:"total_withdrawn"`
}

type DhanaEntryStatus string

const (
	DhanaPending   DhanaEntryStatus = "pending"
	DhanaAvailable DhanaEntryStatus = "available"
)

type DhanaTransaction struct {
	ID           string           `db:"id" json:"id"`
	UserID       string           `db:"user_id" json:"user_id"`
	TournamentID *string          `db:"tournament_id" json:"tournament_id,omitempty"`
	Amount       int64            `db:"amount" json:"amount"`
	Status       DhanaEntryStatus `db:"status" json:"status"`
	MaturesAt    time.Time        `db:"matures_at" json:"matures_at"`
	MaturedAt    *time.Time       `db:"matured_at" json:"matured_at,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

type DhanaWithdrawal struct {
	ID         string           `db:"id" json:"id"`
	UserID     string           `db:"user_id" json:"user_id"`
	Amount     int64            `db:"amount" json:"amount"`
	UPIID      string           `db:"upi_id" json:"upi_id"`
	Status     WithdrawalStatus `db:"status" json:"status"`
	ReviewedBy *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewNote *string          `db:"review_note" json:"review_note,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	ReviewedAt *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
}

type CommissionSetting struct {
	Kind             TournamentKind  `db:"kind" json:"kind"`
	PrizePoolPercent decimal.Decimal `db:"prize_pool_percent" json:"prize_pool_percent"`
	OrganizerPercent decimal.Decimal `db:"organizer_percent" json:"organizer_percent"`
	PlatformPercent  decimal.Decimal `db:"platform_percent" json:"platform_percent"`
}
