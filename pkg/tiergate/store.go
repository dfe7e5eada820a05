package tiergate

import "context"

// SnapshotStore defines the interface for snapshot persistence.
// Implementations must apply SetSnapshot as a document-level atomic merge:
// concurrent writers may not interleave individual field writes, and the
// write must not clobber unrelated (non-billing) fields on the user record.
type SnapshotStore interface {
	// GetSnapshot retrieves the snapshot for a user by internal ID.
	// Returns ErrSnapshotNotFound when the user has never been synced.
	GetSnapshot(ctx context.Context, userID string) (*Snapshot, error)

	// FindByCustomerID retrieves the snapshot whose BillingCustomerID
	// equals customerID (equality filter, at most one result).
	// Returns ErrSnapshotNotFound when no user matches.
	FindByCustomerID(ctx context.Context, customerID string) (*Snapshot, error)

	// SetSnapshot persists the billing fields of the snapshot as a merge
	// write keyed by snap.UserID, creating the record if absent.
	SetSnapshot(ctx context.Context, snap *Snapshot) error
}
