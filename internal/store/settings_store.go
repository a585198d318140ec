package store

import (
	"context"

	"tourney/internal/models"
)

// SettingsStore holds the admin-editable commission split per tournament kind.
type SettingsStore struct {
	db DB
}

func NewSettingsStore(db DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) ListCommissions(ctx context.Context) ([]models.CommissionSetting, error) {
	var rows []models.CommissionSetting
	err := s.db.SelectContext(ctx, &rows, `
		SELECT kind, prize_pool_percent, organizer_percent, platform_percent
		FROM commission_settings
		ORDER BY kind
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *SettingsStore) UpsertCommission(ctx context.Context, tx Execer, setting models.CommissionSetting) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO commission_settings (kind, prize_pool_percent, organizer_percent, platform_percent)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (kind) DO UPDATE
		SET prize_pool_percent = EXCLUDED.prize_pool_percent,
		    organizer_percent = EXCLUDED.organizer_percent,
		    platform_percent = EXCLUDED.platform_percent,
		    updated_at = NOW()
	`, setting.Kind, setting.PrizePoolPercent, setting.OrganizerPercent, setting.PlatformPercent)
	return err
}
