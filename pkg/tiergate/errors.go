package tiergate

import "errors"

var (
	// ErrSnapshotNotFound is returned when a user has no stored snapshot
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrInvalidSnapshot is returned for snapshots missing a user ID
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrInvalidTier is returned for unknown tier names
	ErrInvalidTier = errors.New("invalid tier")

	// ErrStoreUnavailable is returned when the snapshot store is not configured
	ErrStoreUnavailable = errors.New("snapshot store unavailable")
)
