// Package redis provides a Redis implementation of the
// tiergate.SnapshotStore interface. It is intended as a hot cache or
// primary store for deployments that keep user profiles elsewhere.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wardline/tiergate/pkg/tiergate"
)

// Store implements tiergate.SnapshotStore using Redis.
type Store struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis store configuration.
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "tiergate:")
	KeyPrefix string

	// SnapshotTTL is the TTL for snapshot keys (0 = no expiration)
	SnapshotTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:   "tiergate:",
		SnapshotTTL: 0,
	}
}

// New creates a new Redis snapshot store.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(client redis.UniversalClient, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "tiergate:"
	}

	return &Store{client: client, config: config}, nil
}

// snapshotRecord is the JSON shape stored per user.
type snapshotRecord struct {
	BillingCustomerID string     `json:"billingCustomerId,omitempty"`
	SubscriptionID    string     `json:"subscriptionId,omitempty"`
	Status            string     `json:"status"`
	Tier              string     `json:"tier"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// GetSnapshot implements tiergate.SnapshotStore.
func (s *Store) GetSnapshot(ctx context.Context, userID string) (*tiergate.Snapshot, error) {
	raw, err := s.client.Get(ctx, s.snapshotKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, tiergate.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return decodeRecord(userID, []byte(raw))
}

// FindByCustomerID implements tiergate.SnapshotStore. Lookups go through a
// secondary index key mapping the billing customer ID to the user ID.
func (s *Store) FindByCustomerID(ctx context.Context, customerID string) (*tiergate.Snapshot, error) {
	if customerID == "" {
		return nil, tiergate.ErrSnapshotNotFound
	}

	userID, err := s.client.Get(ctx, s.customerKey(customerID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, tiergate.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to resolve customer index: %w", err)
	}

	return s.GetSnapshot(ctx, userID)
}

// SetSnapshot implements tiergate.SnapshotStore. The snapshot value and the
// customer index are written in one transactional pipeline so readers never
// observe the index without the snapshot.
func (s *Store) SetSnapshot(ctx context.Context, snap *tiergate.Snapshot) error {
	if snap == nil || snap.UserID == "" {
		return tiergate.ErrInvalidSnapshot
	}

	record := snapshotRecord{
		BillingCustomerID: snap.BillingCustomerID,
		SubscriptionID:    snap.SubscriptionID,
		Status:            string(snap.Status),
		Tier:              snap.Tier.String(),
		CurrentPeriodEnd:  snap.CurrentPeriodEnd,
		UpdatedAt:         snap.UpdatedAt,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.snapshotKey(snap.UserID), data, s.config.SnapshotTTL)
		if snap.BillingCustomerID != "" {
			pipe.Set(ctx, s.customerKey(snap.BillingCustomerID), snap.UserID, s.config.SnapshotTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}

	return nil
}

func (s *Store) snapshotKey(userID string) string {
	return s.config.KeyPrefix + "snapshot:" + userID
}

func (s *Store) customerKey(customerID string) string {
	return s.config.KeyPrefix + "customer:" + customerID
}

func decodeRecord(userID string, raw []byte) (*tiergate.Snapshot, error) {
	var record snapshotRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	tier, err := tiergate.ParseTier(record.Tier)
	if err != nil {
		tier = tiergate.TierFree
	}

	return &tiergate.Snapshot{
		UserID:            userID,
		BillingCustomerID: record.BillingCustomerID,
		SubscriptionID:    record.SubscriptionID,
		Status:            tiergate.ParseStatus(record.Status),
		Tier:              tier,
		CurrentPeriodEnd:  record.CurrentPeriodEnd,
		UpdatedAt:         record.UpdatedAt,
	}, nil
}
