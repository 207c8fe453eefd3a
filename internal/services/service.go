package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tubematch/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
)

// BillingStore persists one billing record per user. Every write overwrites
// whole fields keyed by a stable id so replayed events converge.
type BillingStore interface {
	HasActiveSubscription(ctx context.Context, userID string) (bool, error)
	GetBillingRecord(ctx context.Context, userID string) (models.BillingRecord, error)
	UserIDByCustomer(ctx context.Context, customerID string) (string, error)
	UpsertBillingRecord(ctx context.Context, rec models.BillingRecord) error
	ApplySubscriptionPatch(ctx context.Context, userID string, patch models.SubscriptionPatch) error
	ExpireSubscription(ctx context.Context, userID string, at time.Time) error
}

// Store is the Postgres BillingStore.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store over pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// HasActiveSubscription reports whether userID has a record with status active.
func (s *Store) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	const op = "services.Store.HasActiveSubscription"
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM billing_records
			WHERE user_id = $1 AND status = $2
		)`, userID, models.StatusActive).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// GetBillingRecord returns the record for userID or ErrNotFound.
func (s *Store) GetBillingRecord(ctx context.Context, userID string) (models.BillingRecord, error) {
	var rec models.BillingRecord
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, stripe_customer_id, stripe_subscription_id, plan_type, status,
			current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at
		FROM billing_records WHERE user_id = $1`, userID,
	).Scan(&rec.UserID, &rec.StripeCustomerID, &rec.StripeSubscriptionID, &rec.PlanType, &rec.Status,
		&rec.CurrentPeriodStart, &rec.CurrentPeriodEnd, &rec.CancelAtPeriodEnd, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.BillingRecord{}, ErrNotFound
	}
	if err != nil {
		return models.BillingRecord{}, fmt.Errorf("services.Store.GetBillingRecord: %w", err)
	}
	return rec, nil
}

// UserIDByCustomer maps a billing customer id to its user, or ErrNotFound.
func (s *Store) UserIDByCustomer(ctx context.Context, customerID string) (string, error) {
	var userID string
	err := s.pool.QueryRow(ctx, `
		SELECT user_id FROM billing_records
		WHERE stripe_customer_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`, customerID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("services.Store.UserIDByCustomer: %w", err)
	}
	return userID, nil
}

// UpsertBillingRecord inserts rec or overwrites the existing row for the same
// user. created_at is kept from the first insert.
func (s *Store) UpsertBillingRecord(ctx context.Context, rec models.BillingRecord) error {
	const op = "services.Store.UpsertBillingRecord"
	if rec.UserID == "" || rec.StripeCustomerID == "" {
		return fmt.Errorf("%s: %w", op, ErrInvalidRequest)
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO billing_records (user_id, stripe_customer_id, stripe_subscription_id, plan_type, status,
			current_period_start, current_period_end, cancel_at_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (user_id)
		DO UPDATE SET stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			plan_type = EXCLUDED.plan_type,
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			updated_at = EXCLUDED.updated_at`,
		rec.UserID, rec.StripeCustomerID, rec.StripeSubscriptionID, rec.PlanType, rec.Status,
		rec.CurrentPeriodStart, rec.CurrentPeriodEnd, rec.CancelAtPeriodEnd, updatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ApplySubscriptionPatch overwrites the provider-owned fields of an
// existing record. ErrNotFound when the user has none.
func (s *Store) ApplySubscriptionPatch(ctx context.Context, userID string, patch models.SubscriptionPatch) error {
	const op = "services.Store.ApplySubscriptionPatch"
	ct, err := s.pool.Exec(ctx, `
		UPDATE billing_records
		SET status = $1, current_period_start = $2, current_period_end = $3,
			cancel_at_period_end = $4, updated_at = $5
		WHERE user_id = $6`,
		patch.Status, patch.CurrentPeriodStart, patch.CurrentPeriodEnd, patch.CancelAtPeriodEnd, patch.UpdatedAt, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpireSubscription marks the record expired at the given time.
func (s *Store) ExpireSubscription(ctx context.Context, userID string, at time.Time) error {
	const op = "services.Store.ExpireSubscription"
	ct, err := s.pool.Exec(ctx, `
		UPDATE billing_records SET status = $1, updated_at = $2
		WHERE user_id = $3`, models.StatusExpired, at, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
