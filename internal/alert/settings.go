package alert

import (
	"context"
	"fmt"

	"github.com/aerosense-io/aerosense-core/internal/infrastructure/database"
)

// SettingsRepository persists the single notification_settings row.
type SettingsRepository struct {
	db *database.DB
}

// NewSettingsRepository creates a repository over the local database.
func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the current notification settings.
func (r *SettingsRepository) Get(ctx context.Context) (Settings, error) {
	var (
		s           Settings
		enabled     int
		sensitivity string
	)

	err := r.db.QueryRowContext(ctx,
		"SELECT enabled, sensitivity, updated_at FROM notification_settings WHERE id = 1",
	).Scan(&enabled, &sensitivity, &s.UpdatedAt)
	if err != nil {
		return Settings{}, fmt.Errorf("reading notification settings: %w", err)
	}

	s.Enabled = enabled != 0
	s.Sensitivity = Sensitivity(sensitivity)
	return s, nil
}

// Update replaces the notification settings.
func (r *SettingsRepository) Update(ctx context.Context, s Settings) error {
	if s.Sensitivity != SensitivityAll && s.Sensitivity != SensitivityCritical {
		return fmt.Errorf("%w: %q", ErrInvalidSensitivity, s.Sensitivity)
	}

	enabled := 0
	if s.Enabled {
		enabled = 1
	}

	_, err := r.db.ExecContext(ctx,
		"UPDATE notification_settings SET enabled = ?, sensitivity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1",
		enabled, string(s.Sensitivity),
	)
	if err != nil {
		return fmt.Errorf("updating notification settings: %w", err)
	}
	return nil
}
