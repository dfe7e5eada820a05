// Package firestore provides a Firestore implementation of the
// tiergate.SnapshotStore interface. Billing fields live on the user
// document itself, so merge writes update subscription state without
// touching the rest of the user record.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/wardline/tiergate/pkg/tiergate"
)

const (
	fieldCustomerID     = "billingCustomerId"
	fieldSubscriptionID = "subscriptionId"
	fieldStatus         = "subscriptionStatus"
	fieldTier           = "tier"
	fieldPeriodEnd      = "currentPeriodEnd"
	fieldUpdatedAt      = "billingUpdatedAt"
)

// Store implements tiergate.SnapshotStore using Google Cloud Firestore.
type Store struct {
	client          *firestore.Client
	usersCollection string
}

// Config holds Firestore store configuration.
type Config struct {
	// UsersCollection is the Firestore collection holding user documents.
	// Default: "users"
	UsersCollection string
}

// New creates a new Firestore snapshot store.
func New(client *firestore.Client, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	if config.UsersCollection == "" {
		config.UsersCollection = "users"
	}

	return &Store{
		client:          client,
		usersCollection: config.UsersCollection,
	}, nil
}

// GetSnapshot implements tiergate.SnapshotStore.
func (s *Store) GetSnapshot(ctx context.Context, userID string) (*tiergate.Snapshot, error) {
	doc := s.client.Collection(s.usersCollection).Doc(userID)
	snap, err := doc.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, tiergate.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if !snap.Exists() {
		return nil, tiergate.ErrSnapshotNotFound
	}

	return decodeSnapshot(userID, snap.Data()), nil
}

// FindByCustomerID implements tiergate.SnapshotStore. The lookup is an
// equality filter on the billing customer ID with a result limit of one.
func (s *Store) FindByCustomerID(ctx context.Context, customerID string) (*tiergate.Snapshot, error) {
	if customerID == "" {
		return nil, tiergate.ErrSnapshotNotFound
	}

	query := s.client.Collection(s.usersCollection).
		Where(fieldCustomerID, "==", customerID).
		Limit(1)

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query by customer ID: %w", err)
	}
	if len(docs) == 0 {
		return nil, tiergate.ErrSnapshotNotFound
	}

	return decodeSnapshot(docs[0].Ref.ID, docs[0].Data()), nil
}

// SetSnapshot implements tiergate.SnapshotStore. The write is a merge, so
// concurrent reconciliations cannot interleave individual field writes and
// non-billing fields on the user document are left alone. An empty
// SubscriptionID deletes the stored field rather than writing "".
func (s *Store) SetSnapshot(ctx context.Context, snap *tiergate.Snapshot) error {
	if snap == nil || snap.UserID == "" {
		return tiergate.ErrInvalidSnapshot
	}

	doc := s.client.Collection(s.usersCollection).Doc(snap.UserID)

	data := map[string]interface{}{
		fieldStatus:    string(snap.Status),
		fieldTier:      snap.Tier.String(),
		fieldUpdatedAt: snap.UpdatedAt,
	}

	if snap.BillingCustomerID != "" {
		data[fieldCustomerID] = snap.BillingCustomerID
	}

	if snap.SubscriptionID != "" {
		data[fieldSubscriptionID] = snap.SubscriptionID
	} else {
		data[fieldSubscriptionID] = firestore.Delete
	}

	if snap.CurrentPeriodEnd != nil {
		data[fieldPeriodEnd] = *snap.CurrentPeriodEnd
	} else {
		data[fieldPeriodEnd] = firestore.Delete
	}

	if _, err := doc.Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to set snapshot: %w", err)
	}

	return nil
}

func decodeSnapshot(userID string, data map[string]interface{}) *tiergate.Snapshot {
	tier, err := tiergate.ParseTier(getString(data, fieldTier))
	if err != nil {
		tier = tiergate.TierFree
	}

	snap := &tiergate.Snapshot{
		UserID:            userID,
		BillingCustomerID: getString(data, fieldCustomerID),
		SubscriptionID:    getString(data, fieldSubscriptionID),
		Status:            tiergate.ParseStatus(getString(data, fieldStatus)),
		Tier:              tier,
		UpdatedAt:         getTime(data, fieldUpdatedAt),
	}

	if end, ok := data[fieldPeriodEnd].(time.Time); ok && !end.IsZero() {
		snap.CurrentPeriodEnd = &end
	}

	return snap
}

// Helper functions for type conversion from Firestore data

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}
