package billing

import (
	"time"

	"github.com/wardline/tiergate/pkg/tiergate"
)

// WebhookEvent contains information about an applied webhook event.
// It is passed to the WebhookCallback after the snapshot has been
// successfully written to storage.
type WebhookEvent struct {
	// UserID is the internal user identifier
	UserID string

	// PreviousTier is the tier before the webhook update
	PreviousTier tiergate.Tier

	// NewTier is the tier after the webhook update
	NewTier tiergate.Tier

	// PreviousStatus is the subscription status before the update
	PreviousStatus tiergate.Status

	// NewStatus is the subscription status after the update
	NewStatus tiergate.Status

	// Provider is the billing provider name ("stripe")
	Provider string

	// EventType is the provider-specific event type
	// (e.g., "customer.subscription.updated", "invoice.payment_failed")
	EventType string

	// EventTimestamp is when the event occurred (from provider)
	EventTimestamp time.Time

	// CurrentPeriodEnd is when the paid period ends (nil if unknown)
	CurrentPeriodEnd *time.Time
}
