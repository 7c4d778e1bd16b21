package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/streamgate/backend/internal/domain"
)

// CredentialRepository stores passkey credentials keyed by the opaque
// credential id.
type CredentialRepository struct {
	db *pgxpool.Pool
}

func NewCredentialRepository(db *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Upsert(ctx context.Context, cred *domain.Credential) error {
	query := `
		INSERT INTO credentials (id, public_key, address)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET public_key = $2, address = $3
	`
	_, err := r.db.Exec(ctx, query, cred.ID, cred.PublicKey, cred.Address)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) Get(ctx context.Context, id string) (*domain.Credential, error) {
	var cred domain.Credential
	err := r.db.QueryRow(ctx,
		`SELECT id, public_key, address FROM credentials WHERE id = $1`, id,
	).Scan(&cred.ID, &cred.PublicKey, &cred.Address)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return &cred, nil
}

// ListIDs returns every stored credential id, for the login discovery
// flow.
func (r *CredentialRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM credentials ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan credential id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
