package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/streamgate/backend/internal/domain"
)

// PaymentHistoryRepository persists the append-only payment ledger.
// Rows are never updated or deleted.
type PaymentHistoryRepository struct {
	db *pgxpool.Pool
}

func NewPaymentHistoryRepository(db *pgxpool.Pool) *PaymentHistoryRepository {
	return &PaymentHistoryRepository{db: db}
}

func (r *PaymentHistoryRepository) Append(ctx context.Context, entry *domain.PaymentEntry) error {
	query := `
		INSERT INTO payment_history (id, delegated_key_id, amount, tx_ref, outcome, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.DelegatedKeyID, entry.Amount, entry.TxRef, entry.Outcome, entry.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append payment entry: %w", err)
	}
	return nil
}

// ListByKey returns the newest entries for a delegated key, newest first.
func (r *PaymentHistoryRepository) ListByKey(ctx context.Context, delegatedKeyID string, limit int) ([]domain.PaymentEntry, error) {
	query := `
		SELECT id, delegated_key_id, amount, tx_ref, outcome, recorded_at
		FROM payment_history
		WHERE delegated_key_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, delegatedKeyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment history: %w", err)
	}
	defer rows.Close()

	var entries []domain.PaymentEntry
	for rows.Next() {
		var e domain.PaymentEntry
		if err := rows.Scan(&e.ID, &e.DelegatedKeyID, &e.Amount, &e.TxRef, &e.Outcome, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
