package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// migration is one idempotent schema step.
type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "users table",
		sql: `
		CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			username VARCHAR(255) NOT NULL DEFAULT '',
			login VARCHAR(64) NOT NULL DEFAULT '',
			intra_id BIGINT NOT NULL DEFAULT 0,
			role VARCHAR(16) NOT NULL DEFAULT 'user',
			test_mode BOOLEAN NOT NULL DEFAULT FALSE,
			last_spin TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_login ON users(login) WHERE login <> '';
	`,
	},
	{
		name: "spins table",
		sql: `
		CREATE TABLE IF NOT EXISTS spins (
			id BIGSERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			wheel_slug VARCHAR(64) NOT NULL,
			wheel_version VARCHAR(96) NOT NULL,
			sector_label VARCHAR(255) NOT NULL,
			color VARCHAR(20) NOT NULL DEFAULT '#FFFFFF',
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			function_ref VARCHAR(128) NOT NULL DEFAULT '',
			result_message TEXT NOT NULL DEFAULT '',
			result_data JSONB NOT NULL DEFAULT '{}'::jsonb,
			success BOOLEAN NOT NULL,
			cancelled BOOLEAN NOT NULL DEFAULT FALSE,
			cancelled_at TIMESTAMPTZ,
			cancelled_by BIGINT,
			cancellation_reason TEXT,
			CONSTRAINT spins_cancel_requires_success CHECK (NOT cancelled OR (success AND result_data <> '{}'::jsonb))
		);
		CREATE INDEX IF NOT EXISTS idx_spins_user_time ON spins(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_spins_wheel_time ON spins(wheel_slug, created_at DESC);
	`,
	},
	{
		name: "spin_marks table",
		sql: `
		CREATE TABLE IF NOT EXISTS spin_marks (
			spin_id BIGINT NOT NULL REFERENCES spins(id) ON DELETE CASCADE,
			marked_by BIGINT NOT NULL,
			note VARCHAR(200) NOT NULL DEFAULT '',
			marked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (spin_id, marked_by)
		);
	`,
	},
	{
		name: "tickets table",
		sql: `
		CREATE TABLE IF NOT EXISTS tickets (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
			wheel_slug VARCHAR(64) NOT NULL,
			granted_by BIGINT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			used_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_tickets_unused ON tickets(user_id, wheel_slug, created_at) WHERE used_at IS NULL;
	`,
	},
	{
		name: "unique_group_owners table",
		sql: `
		CREATE TABLE IF NOT EXISTS unique_group_owners (
			group_id BIGINT PRIMARY KEY,
			owner_user_id BIGINT NOT NULL,
			owner_intra_id BIGINT NOT NULL,
			previous_user_id BIGINT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`,
	},
	{
		name: "site_settings table",
		sql: `
		CREATE TABLE IF NOT EXISTS site_settings (
			id SMALLINT PRIMARY KEY CHECK (id = 1),
			maintenance_mode BOOLEAN NOT NULL DEFAULT FALSE,
			maintenance_message TEXT NOT NULL DEFAULT 'The wheel is under maintenance. Please check back later.',
			jackpot_cooldown_seconds BIGINT NOT NULL DEFAULT 86400
		);
	`,
	},
}

// Migrate applies the schema and seeds the settings row with the given default cooldown.
func Migrate(ctx context.Context, pool *pgxpool.Pool, defaultCooldown time.Duration) error {
	log.Info().Msg("Running database migrations...")

	for i, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		log.Info().Int("step", i+1).Str("migration", m.name).Msg("Migration applied")
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO site_settings (id, jackpot_cooldown_seconds)
		VALUES (1, $1)
		ON CONFLICT (id) DO NOTHING
	`, int64(defaultCooldown/time.Second))
	if err != nil {
		return fmt.Errorf("failed to seed site settings: %w", err)
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
