package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// KeyRepository stores encrypted delegated key material, one row per
// subscription, in its own table. Kept apart from the subscription row
// so the general read path never touches signing material.
type KeyRepository struct {
	db *pgxpool.Pool
}

func NewKeyRepository(db *pgxpool.Pool) *KeyRepository {
	return &KeyRepository{db: db}
}

func (r *KeyRepository) Put(ctx context.Context, subscriptionID, encryptedKey string) error {
	query := `
		INSERT INTO subscription_keys (subscription_id, encrypted_key)
		VALUES ($1, $2)
		ON CONFLICT (subscription_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, subscriptionID, encryptedKey)
	if err != nil {
		return fmt.Errorf("failed to store subscription key: %w", err)
	}
	return nil
}

func (r *KeyRepository) Get(ctx context.Context, subscriptionID string) (string, error) {
	var encrypted string
	err := r.db.QueryRow(ctx,
		`SELECT encrypted_key FROM subscription_keys WHERE subscription_id = $1`,
		subscriptionID,
	).Scan(&encrypted)
	if err == pgx.ErrNoRows {
		return "", fmt.Errorf("no key material for subscription %s", subscriptionID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load subscription key: %w", err)
	}
	return encrypted, nil
}
