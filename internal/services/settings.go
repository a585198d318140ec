package services

import (
	"context"
	"fmt"
	"time"

	"tourney/internal/config"
	"tourney/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Split is a prize/organizer/platform percentage triple.
type Split struct {
	PrizePool decimal.Decimal
	Organizer decimal.Decimal
	Platform  decimal.Decimal
}

func (s Split) Valid() bool {
	if s.PrizePool.IsNegative() || s.Organizer.IsNegative() || s.Platform.IsNegative() {
		return false
	}
	return s.PrizePool.Add(s.Organizer).Add(s.Platform).Equal(hundred)
}

// Settings is the snapshot every operation reads once at its start.
type Settings struct {
	JoinLockWindow   time.Duration
	ExitWindow       time.Duration
	DisputeWindow    time.Duration
	HoldingPeriod    time.Duration
	GiveawayEntryFee int64
	MinWithdrawal    int64
	Splits           map[models.TournamentKind]Split
}

func DefaultSettings() Settings {
	return Settings{
		JoinLockWindow:   2 * time.Minute,
		ExitWindow:       30 * time.Minute,
		DisputeWindow:    30 * time.Minute,
		HoldingPeriod:    15 * 24 * time.Hour,
		GiveawayEntryFee: 100,
		MinWithdrawal:    5000,
		Splits: map[models.TournamentKind]Split{
			models.KindOrganizer: pct(80, 10, 10),
			models.KindCreator:   pct(80, 15, 5),
			models.KindLocal:     pct(90, 5, 5),
		},
	}
}

func pct(prize, organizer, platform int64) Split {
	return Split{
		PrizePool: decimal.NewFromInt(prize),
		Organizer: decimal.NewFromInt(organizer),
		Platform:  decimal.NewFromInt(platform),
	}
}

// SettingsFromConfig builds the base snapshot from environment config.
func SettingsFromConfig(cfg config.Economy) (Settings, error) {
	s := DefaultSettings()
	s.JoinLockWindow = cfg.JoinLockWindow
	s.ExitWindow = cfg.ExitWindow
	s.DisputeWindow = cfg.DisputeWindow
	s.HoldingPeriod = cfg.HoldingPeriod
	s.GiveawayEntryFee = cfg.GiveawayEntryFee
	s.MinWithdrawal = cfg.MinWithdrawal
	for kind, raw := range cfg.Splits {
		split, err := parseSplit(raw)
		if err != nil {
			return Settings{}, fmt.Errorf("%s split: %w", kind, err)
		}
		s.Splits[models.TournamentKind(kind)] = split
	}
	return s, nil
}

func parseSplit(raw config.Split) (Split, error) {
	prize, err := decimal.NewFromString(raw.PrizePool)
	if err != nil {
		return Split{}, err
	}
	organizer, err := decimal.NewFromString(raw.Organizer)
	if err != nil {
		return Split{}, err
	}
	platform, err := decimal.NewFromString(raw.Platform)
	if err != nil {
		return Split{}, err
	}
	split := Split{PrizePool: prize, Organizer: organizer, Platform: platform}
	if !split.Valid() {
		return Split{}, ErrInvalidSplit
	}
	return split, nil
}

type SettingsProvider interface {
	Snapshot(ctx context.Context) (Settings, error)
}

type StaticSettings Settings

func (s StaticSettings) Snapshot(context.Context) (Settings, error) {
	return Settings(s).clone(), nil
}

type CommissionLister interface {
	ListCommissions(ctx context.Context) ([]models.CommissionSetting, error)
}

// StoreSettings overlays admin-edited commission splits on a base snapshot.
type StoreSettings struct {
	base  Settings
	store CommissionLister
}

func NewStoreSettings(base Settings, store CommissionLister) *StoreSettings {
	return &StoreSettings{base: base, store: store}
}

func (s *StoreSettings) Snapshot(ctx context.Context) (Settings, error) {
	snapshot := s.base.clone()
	rows, err := s.store.ListCommissions(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("load commission settings: %w", err)
	}
	for _, row := range rows {
		split := Split{PrizePool: row.PrizePoolPercent, Organizer: row.OrganizerPercent, Platform: row.PlatformPercent}
		if split.Valid() {
			snapshot.Splits[row.Kind] = split
		}
	}
	return snapshot, nil
}

func (s Settings) clone() Settings {
	out := s
	out.Splits = make(map[models.TournamentKind]Split, len(s.Splits))
	for kind, split := range s.Splits {
		out.Splits[kind] = split
	}
	return out
}
