package tiergate

import "time"

// Snapshot is the locally persisted copy of one user's billing state,
// kept in sync via webhook events rather than live provider queries.
// There is exactly one snapshot per user.
type Snapshot struct {
	// UserID is the internal user identifier the snapshot is keyed by.
	UserID string

	// BillingCustomerID is the provider's customer identifier. It is the
	// join key between inbound webhook events and local user records and
	// is immutable once assigned.
	BillingCustomerID string

	// SubscriptionID identifies the active subscription at the provider.
	// Empty means no subscription; it is cleared exactly when Status
	// becomes canceled.
	SubscriptionID string

	// Status is the subscription lifecycle state from the last event.
	Status Status

	// Tier is derived solely from the provider's price identifier at the
	// moment of the triggering event, never from prior local state.
	Tier Tier

	// CurrentPeriodEnd marks when the current paid period ends.
	// Nil for free users.
	CurrentPeriodEnd *time.Time

	// UpdatedAt is the timestamp of the last reconciliation.
	UpdatedAt time.Time
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	if s.CurrentPeriodEnd != nil {
		end := *s.CurrentPeriodEnd
		out.CurrentPeriodEnd = &end
	}
	return &out
}
