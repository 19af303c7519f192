package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"lucky-wheel/internal/model"
)

// SettingsRepository reads and writes the single site settings row.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository creates a new SettingsRepository instance.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

// Get returns the current settings.
func (r *SettingsRepository) Get(ctx context.Context) (*model.SiteSettings, error) {
	const query = `
		SELECT maintenance_mode, maintenance_message, jackpot_cooldown_seconds
		FROM site_settings
		WHERE id = 1
	`

	var s model.SiteSettings
	var seconds int64
	if err := r.pool.QueryRow(ctx, query).Scan(&s.MaintenanceMode, &s.MaintenanceMessage, &seconds); err != nil {
		return nil, fmt.Errorf("failed to get site settings: %w", err)
	}
	s.JackpotCooldown = time.Duration(seconds) * time.Second
	return &s, nil
}

// SetMaintenance toggles maintenance mode. An empty message keeps the current one.
func (r *SettingsRepository) SetMaintenance(ctx context.Context, enabled bool, message string) error {
	const query = `
		UPDATE site_settings
		SET maintenance_mode = $1,
			maintenance_message = COALESCE(NULLIF($2::text, ''), maintenance_message)
		WHERE id = 1
	`

	if _, err := r.pool.Exec(ctx, query, enabled, message); err != nil {
		return fmt.Errorf("failed to set maintenance mode: %w", err)
	}
	return nil
}

// SetCooldown changes the jackpot cooldown. Sub-second precision is dropped.
func (r *SettingsRepository) SetCooldown(ctx context.Context, cooldown time.Duration) error {
	const query = `UPDATE site_settings SET jackpot_cooldown_seconds = $1 WHERE id = 1`

	if _, err := r.pool.Exec(ctx, query, int64(cooldown/time.Second)); err != nil {
		return fmt.Errorf("failed to set cooldown: %w", err)
	}
	return nil
}
