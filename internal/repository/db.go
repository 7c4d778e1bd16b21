package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewDB creates a new PostgreSQL connection pool.
func NewDB(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations executes the initial schema migration.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS subscriptions (
			id                 TEXT PRIMARY KEY,
			user_address       TEXT NOT NULL,
			plan_id            TEXT NOT NULL,
			status             TEXT NOT NULL,
			delegated_key_id   TEXT NOT NULL,
			key_registered     BOOLEAN NOT NULL DEFAULT FALSE,
			next_charge_due_at TIMESTAMPTZ NOT NULL,
			auth_payload       TEXT NOT NULL,
			auth_signature     TEXT NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_address);
		CREATE INDEX IF NOT EXISTS idx_subscriptions_due ON subscriptions(status, next_charge_due_at);

		CREATE TABLE IF NOT EXISTS subscription_keys (
			subscription_id TEXT PRIMARY KEY REFERENCES subscriptions(id),
			encrypted_key   TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS payment_history (
			id               TEXT PRIMARY KEY,
			delegated_key_id TEXT NOT NULL,
			amount           BIGINT NOT NULL,
			tx_ref           TEXT NOT NULL DEFAULT '',
			outcome          TEXT NOT NULL,
			recorded_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_payment_history_key ON payment_history(delegated_key_id, recorded_at DESC);

		CREATE TABLE IF NOT EXISTS credentials (
			id         TEXT PRIMARY KEY,
			public_key TEXT NOT NULL,
			address    TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	_, err := pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
