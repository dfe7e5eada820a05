package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wardline/tiergate/pkg/tiergate"
)

// setupTestRedis creates a Redis client for testing.
// Requires Redis running on localhost:6379; skips otherwise.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use DB 15 for testing
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test database: %v", err)
	}

	return client
}

func TestNew(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("expected error for nil client")
	}

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	store, err := New(client, Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if store.config.KeyPrefix != "tiergate:" {
		t.Errorf("expected default key prefix, got %q", store.config.KeyPrefix)
	}
}

func TestStore_SetAndGet(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	store, err := New(client, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	end := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	snap := &tiergate.Snapshot{
		UserID:            "u1",
		BillingCustomerID: "cus_1",
		SubscriptionID:    "sub_1",
		Status:            tiergate.StatusActive,
		Tier:              tiergate.TierPremium,
		CurrentPeriodEnd:  &end,
		UpdatedAt:         time.Now().UTC().Truncate(time.Second),
	}

	if err := store.SetSnapshot(ctx, snap); err != nil {
		t.Fatalf("SetSnapshot failed: %v", err)
	}

	got, err := store.GetSnapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if got.Tier != tiergate.TierPremium || got.Status != tiergate.StatusActive {
		t.Errorf("unexpected snapshot: %+v", got)
	}
	if got.CurrentPeriodEnd == nil || !got.CurrentPeriodEnd.Equal(end) {
		t.Errorf("period end mismatch: %v", got.CurrentPeriodEnd)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store, _ := New(client, DefaultConfig())
	if _, err := store.GetSnapshot(context.Background(), "ghost"); !errors.Is(err, tiergate.ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestStore_FindByCustomerID(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	ctx := context.Background()

	store, _ := New(client, DefaultConfig())

	err := store.SetSnapshot(ctx, &tiergate.Snapshot{
		UserID:            "u1",
		BillingCustomerID: "cus_1",
		Status:            tiergate.StatusActive,
		Tier:              tiergate.TierPro,
		UpdatedAt:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("SetSnapshot failed: %v", err)
	}

	got, err := store.FindByCustomerID(ctx, "cus_1")
	if err != nil {
		t.Fatalf("FindByCustomerID failed: %v", err)
	}
	if got.UserID != "u1" {
		t.Errorf("FindByCustomerID returned user %q, want u1", got.UserID)
	}

	if _, err := store.FindByCustomerID(ctx, "cus_unknown"); !errors.Is(err, tiergate.ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestStore_SetInvalid(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	store, _ := New(client, DefaultConfig())

	if err := store.SetSnapshot(context.Background(), nil); !errors.Is(err, tiergate.ErrInvalidSnapshot) {
		t.Errorf("expected ErrInvalidSnapshot for nil, got %v", err)
	}
	if err := store.SetSnapshot(context.Background(), &tiergate.Snapshot{}); !errors.Is(err, tiergate.ErrInvalidSnapshot) {
		t.Errorf("expected ErrInvalidSnapshot for empty user ID, got %v", err)
	}
}
