// Package postgres provides a PostgreSQL implementation of the
// tiergate.SnapshotStore interface. Snapshots live in a single table and
// writes are single-row upserts, which gives the document-level atomicity
// the reconciler relies on.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wardline/tiergate/pkg/tiergate"
)

// Store implements tiergate.SnapshotStore using PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL store configuration.
type Config struct {
	// Table is the snapshot table name (default: "subscription_snapshots")
	Table string
}

// New creates a new PostgreSQL snapshot store.
func New(pool *pgxpool.Pool, config Config) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	if config.Table == "" {
		config.Table = "subscription_snapshots"
	}
	return &Store{pool: pool, config: config}, nil
}

// CreateSchema creates the snapshot table and the customer-ID index if
// they do not exist yet.
func (s *Store) CreateSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id             TEXT PRIMARY KEY,
			billing_customer_id TEXT,
			subscription_id     TEXT,
			status              TEXT NOT NULL DEFAULT 'none',
			tier                TEXT NOT NULL DEFAULT 'free',
			current_period_end  TIMESTAMPTZ,
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS %s_customer_idx
			ON %s (billing_customer_id)
			WHERE billing_customer_id IS NOT NULL;
	`, s.config.Table, s.config.Table, s.config.Table))
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GetSnapshot implements tiergate.SnapshotStore.
func (s *Store) GetSnapshot(ctx context.Context, userID string) (*tiergate.Snapshot, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT user_id, billing_customer_id, subscription_id, status, tier, current_period_end, updated_at
		FROM %s WHERE user_id = $1
	`, s.config.Table), userID)

	return scanSnapshot(row)
}

// FindByCustomerID implements tiergate.SnapshotStore.
func (s *Store) FindByCustomerID(ctx context.Context, customerID string) (*tiergate.Snapshot, error) {
	if customerID == "" {
		return nil, tiergate.ErrSnapshotNotFound
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT user_id, billing_customer_id, subscription_id, status, tier, current_period_end, updated_at
		FROM %s WHERE billing_customer_id = $1 LIMIT 1
	`, s.config.Table), customerID)

	return scanSnapshot(row)
}

// SetSnapshot implements tiergate.SnapshotStore using a single-row upsert.
func (s *Store) SetSnapshot(ctx context.Context, snap *tiergate.Snapshot) error {
	if snap == nil || snap.UserID == "" {
		return tiergate.ErrInvalidSnapshot
	}

	var customerID, subscriptionID *string
	if snap.BillingCustomerID != "" {
		customerID = &snap.BillingCustomerID
	}
	if snap.SubscriptionID != "" {
		subscriptionID = &snap.SubscriptionID
	}

	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (user_id, billing_customer_id, subscription_id, status, tier, current_period_end, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			billing_customer_id = COALESCE(EXCLUDED.billing_customer_id, %s.billing_customer_id),
			subscription_id     = EXCLUDED.subscription_id,
			status              = EXCLUDED.status,
			tier                = EXCLUDED.tier,
			current_period_end  = EXCLUDED.current_period_end,
			updated_at          = EXCLUDED.updated_at
	`, s.config.Table, s.config.Table),
		snap.UserID, customerID, subscriptionID,
		string(snap.Status), snap.Tier.String(), snap.CurrentPeriodEnd, snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*tiergate.Snapshot, error) {
	var (
		snap           tiergate.Snapshot
		customerID     *string
		subscriptionID *string
		statusStr      string
		tierStr        string
		periodEnd      *time.Time
	)

	err := row.Scan(&snap.UserID, &customerID, &subscriptionID, &statusStr, &tierStr, &periodEnd, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tiergate.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	if customerID != nil {
		snap.BillingCustomerID = *customerID
	}
	if subscriptionID != nil {
		snap.SubscriptionID = *subscriptionID
	}
	snap.Status = tiergate.ParseStatus(statusStr)
	if tier, err := tiergate.ParseTier(tierStr); err == nil {
		snap.Tier = tier
	}
	snap.CurrentPeriodEnd = periodEnd

	return &snap, nil
}
