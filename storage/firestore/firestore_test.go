package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/wardline/tiergate/pkg/tiergate"
)

const testProjectID = "test-project"

func setupFirestoreClient(t *testing.T) *firestore.Client {
	t.Helper()

	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set; skipping Firestore tests")
	}

	ctx := context.Background()
	client, err := firestore.NewClient(ctx, testProjectID)
	if err != nil {
		t.Fatalf("Failed to create Firestore client: %v", err)
	}

	return client
}

// testCollection returns a unique collection name per test run so
// parallel runs against the emulator do not collide.
func testCollection(testName string) string {
	return fmt.Sprintf("test_users_%s_%d", testName, time.Now().UnixNano())
}

func TestNew(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Error("expected error for nil client")
	}
}

func TestStore_SetAndGet(t *testing.T) {
	client := setupFirestoreClient(t)
	defer client.Close()
	ctx := context.Background()

	store, err := New(client, Config{UsersCollection: testCollection("setget")})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	end := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Millisecond)
	snap := &tiergate.Snapshot{
		UserID:            "u1",
		BillingCustomerID: "cus_1",
		SubscriptionID:    "sub_1",
		Status:            tiergate.StatusActive,
		Tier:              tiergate.TierPro,
		CurrentPeriodEnd:  &end,
		UpdatedAt:         time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := store.SetSnapshot(ctx, snap); err != nil {
		t.Fatalf("SetSnapshot failed: %v", err)
	}

	got, err := store.GetSnapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if got.Tier != tiergate.TierPro || got.Status != tiergate.StatusActive {
		t.Errorf("unexpected snapshot: %+v", got)
	}
	if got.SubscriptionID != "sub_1" {
		t.Errorf("subscription ID mismatch: %q", got.SubscriptionID)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	client := setupFirestoreClient(t)
	defer client.Close()

	store, _ := New(client, Config{UsersCollection: testCollection("notfound")})
	if _, err := store.GetSnapshot(context.Background(), "ghost"); !errors.Is(err, tiergate.ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestStore_MergePreservesOtherFields(t *testing.T) {
	client := setupFirestoreClient(t)
	defer client.Close()
	ctx := context.Background()

	collection := testCollection("merge")
	store, _ := New(client, Config{UsersCollection: collection})

	// Seed a user document with non-billing fields.
	_, err := client.Collection(collection).Doc("u1").Set(ctx, map[string]interface{}{
		"displayName": "Test User",
		"email":       "test@example.com",
	})
	if err != nil {
		t.Fatalf("failed to seed user doc: %v", err)
	}

	err = store.SetSnapshot(ctx, &tiergate.Snapshot{
		UserID:            "u1",
		BillingCustomerID: "cus_1",
		SubscriptionID:    "sub_1",
		Status:            tiergate.StatusActive,
		Tier:              tiergate.TierPremium,
		UpdatedAt:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("SetSnapshot failed: %v", err)
	}

	doc, err := client.Collection(collection).Doc("u1").Get(ctx)
	if err != nil {
		t.Fatalf("failed to read user doc: %v", err)
	}
	data := doc.Data()
	if data["displayName"] != "Test User" {
		t.Error("merge write must not touch non-billing fields")
	}
	if data["tier"] != "premium" {
		t.Errorf("tier field not written: %v", data["tier"])
	}
}

func TestStore_CancellationClearsSubscriptionID(t *testing.T) {
	client := setupFirestoreClient(t)
	defer client.Close()
	ctx := context.Background()

	store, _ := New(client, Config{UsersCollection: testCollection("cancel")})

	err := store.SetSnapshot(ctx, &tiergate.Snapshot{
		UserID:            "u1",
		BillingCustomerID: "cus_1",
		SubscriptionID:    "sub_1",
		Status:            tiergate.StatusActive,
		Tier:              tiergate.TierPro,
		UpdatedAt:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("SetSnapshot failed: %v", err)
	}

	err = store.SetSnapshot(ctx, &tiergate.Snapshot{
		UserID:            "u1",
		BillingCustomerID: "cus_1",
		Status:            tiergate.StatusCanceled,
		Tier:              tiergate.TierFree,
		UpdatedAt:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("SetSnapshot failed: %v", err)
	}

	got, err := store.GetSnapshot(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSnapshot failed: %v", err)
	}
	if got.SubscriptionID != "" {
		t.Errorf("subscription ID not cleared: %q", got.SubscriptionID)
	}
	if got.Status != tiergate.StatusCanceled || got.Tier != tiergate.TierFree {
		t.Errorf("unexpected snapshot after cancellation: %+v", got)
	}
}

func TestStore_FindByCustomerID(t *testing.T) {
	client := setupFirestoreClient(t)
	defer client.Close()
	ctx := context.Background()

	store, _ := New(client, Config{UsersCollection: testCollection("find")})

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
