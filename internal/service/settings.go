package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"lucky-wheel/internal/model"
)

// SettingsService manages maintenance mode, the jackpot cooldown and wheel reloads.
type SettingsService struct {
	settings SettingsStore
	wheels   WheelCatalog
}

// NewSettingsService creates a SettingsService.
func NewSettingsService(settings SettingsStore, wheels WheelCatalog) *SettingsService {
	return &SettingsService{settings: settings, wheels: wheels}
}

// Get returns the current settings.
func (s *SettingsService) Get(ctx context.Context) (*model.SiteSettings, error) {
	return s.settings.Get(ctx)
}

// SetMaintenance toggles maintenance mode.
func (s *SettingsService) SetMaintenance(ctx context.Context, operatorID int64, enabled bool, message string) error {
	if err := s.settings.SetMaintenance(ctx, enabled, message); err != nil {
		return err
	}
	log.Info().
		Int64("operator_id", operatorID).
		Str("operation", "maintenance").
		Bool("enabled", enabled).
		Msg("Maintenance mode changed")
	return nil
}

// SetCooldown changes the jackpot cooldown.
func (s *SettingsService) SetCooldown(ctx context.Context, operatorID int64, cooldown time.Duration) error {
	if cooldown < 0 {
		return ErrInvalidCooldown
	}
	if err := s.settings.SetCooldown(ctx, cooldown); err != nil {
		return err
	}
	log.Info().
		Int64("operator_id", operatorID).
		Str("operation", "set_cooldown").
		Dur("cooldown", cooldown).
		Msg("Jackpot cooldown changed")
	return nil
}

// ReloadWheels re-reads the wheel definitions. The previous catalogue stays active on error.
func (s *SettingsService) ReloadWheels(operatorID int64) (int, error) {
	n, err := s.wheels.Reload()
	if err != nil {
		log.Error().Err(err).Int64("operator_id", operatorID).Msg("Wheel reload failed")
		return 0, err
	}
	log.Info().
		Int64("operator_id", operatorID).
		Str("operation", "reload").
		Int("wheels", n).
		Msg("Wheels reloaded")
	return n, nil
}
