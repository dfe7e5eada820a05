// Package billing defines the provider abstraction that keeps subscription
// snapshots in sync with an external billing system. Provider
// implementations live in subpackages (e.g. billing/stripe).
package billing

import (
	"context"
	"net/http"

	"github.com/wardline/tiergate/pkg/tiergate"
)

// Provider is the generic interface that any billing backend must implement.
// This allows the application to swap billing systems with zero logic changes.
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time events.
	// The implementation handles signature verification, parsing, and
	// snapshot updates internally.
	WebhookHandler() http.Handler

	// SyncUser forces a synchronization of the user's state from the provider
	// into the snapshot store. This is used for "Restore Purchases" flows or
	// nightly reconciliation jobs. Returns the detected tier and any error.
	SyncUser(ctx context.Context, userID string) (tiergate.Tier, error)
}
