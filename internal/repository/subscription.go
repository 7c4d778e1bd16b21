package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/streamgate/backend/internal/domain"
)

const subscriptionColumns = `id, user_address, plan_id, status, delegated_key_id,
	key_registered, next_charge_due_at, auth_payload, auth_signature, created_at, updated_at`

// SubscriptionRepository persists subscriptions in Postgres.
type SubscriptionRepository struct {
	db *pgxpool.Pool
}

func NewSubscriptionRepository(db *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		sub.ID, sub.UserAddress, sub.PlanID, sub.Status, sub.DelegatedKeyID,
		sub.KeyRegistered, sub.NextChargeDueAt, sub.AuthPayload, sub.AuthSignature,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

// FindCurrentByUser returns the user's most recent non-cancelled
// subscription. The "most recent by due time" ordering stands in for a
// uniqueness constraint the schema does not enforce.
func (r *SubscriptionRepository) FindCurrentByUser(ctx context.Context, userAddress string) (*domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_address = $1 AND status IN ('pending_activation', 'active', 'past_due')
		ORDER BY next_charge_due_at DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, userAddress))
}

// FindDue returns subscriptions whose next charge time has elapsed.
// past_due rows intentionally match so a manual retry and the sweep may
// race; the engine serializes per subscription.
func (r *SubscriptionRepository) FindDue(ctx context.Context, now time.Time) ([]*domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status IN ('active', 'past_due') AND next_charge_due_at <= $1
		ORDER BY next_charge_due_at ASC
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		var sub domain.Subscription
		if err := scanSubscription(rows, &sub); err != nil {
			return nil, err
		}
		subs = append(subs, &sub)
	}
	return subs, rows.Err()
}

// RecordChargeOutcome writes the post-charge state. The write is
// conditional on the row not being cancelled, so a charge that was in
// flight when the user cancelled can never resurrect the subscription.
func (r *SubscriptionRepository) RecordChargeOutcome(ctx context.Context, id string, status domain.Status, keyRegistered bool, nextDue time.Time) error {
	query := `
		UPDATE subscriptions
		SET status = $1, key_registered = $2, next_charge_due_at = $3, updated_at = NOW()
		WHERE id = $4 AND status <> 'cancelled'
	`
	_, err := r.db.Exec(ctx, query, status, keyRegistered, nextDue, id)
	if err != nil {
		return fmt.Errorf("failed to record charge outcome: %w", err)
	}
	return nil
}

// MarkCancelled cancels a subscription. Idempotent; a missing row is a
// no-op.
func (r *SubscriptionRepository) MarkCancelled(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE subscriptions SET status = 'cancelled', updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SubscriptionRepository) scanOne(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	if err := scanSubscription(row, &sub); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func scanSubscription(row rowScanner, sub *domain.Subscription) error {
	err := row.Scan(
		&sub.ID, &sub.UserAddress, &sub.PlanID, &sub.Status, &sub.DelegatedKeyID,
		&sub.KeyRegistered, &sub.NextChargeDueAt, &sub.AuthPayload, &sub.AuthSignature,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to scan subscription: %w", err)
	}
	return nil
}
