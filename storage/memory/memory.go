// Package memory provides an in-memory implementation of the
// tiergate.SnapshotStore interface. It is primarily intended for testing
// and development.
package memory

import (
	"context"
	"sync"

	"github.com/wardline/tiergate/pkg/tiergate"
)

// Store implements tiergate.SnapshotStore using in-memory maps.
type Store struct {
	mu         sync.RWMutex
	snapshots  map[string]*tiergate.Snapshot
	byCustomer map[string]string // billing customer ID -> user ID
}

// New creates a new in-memory snapshot store.
func New() *Store {
	return &Store{
		snapshots:  make(map[string]*tiergate.Snapshot),
		byCustomer: make(map[string]string),
	}
}

// GetSnapshot implements tiergate.SnapshotStore.
func (s *Store) GetSnapshot(_ context.Context, userID string) (*tiergate.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[userID]
	if !ok {
		return nil, tiergate.ErrSnapshotNotFound
	}
	return snap.Clone(), nil
}

// FindByCustomerID implements tiergate.SnapshotStore.
func (s *Store) FindByCustomerID(_ context.Context, customerID string) (*tiergate.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if customerID == "" {
		return nil, tiergate.ErrSnapshotNotFound
	}
	userID, ok := s.byCustomer[customerID]
	if !ok {
		return nil, tiergate.ErrSnapshotNotFound
	}
	snap, ok := s.snapshots[userID]
	if !ok {
		return nil, tiergate.ErrSnapshotNotFound
	}
	return snap.Clone(), nil
}

// SetSnapshot implements tiergate.SnapshotStore.
func (s *Store) SetSnapshot(_ context.Context, snap *tiergate.Snapshot) error {
	if snap == nil || snap.UserID == "" {
		return tiergate.ErrInvalidSnapshot
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to prevent external mutations.
	s.snapshots[snap.UserID] = snap.Clone()
	if snap.BillingCustomerID != "" {
		s.byCustomer[snap.BillingCustomerID] = snap.UserID
	}
	return nil
}

// Clear removes all data (useful for testing).
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = make(map[string]*tiergate.Snapshot)
	s.byCustomer = make(map[string]string)
}
