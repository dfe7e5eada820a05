package billing

import (
	"context"
	"net/http"

	"github.com/wardline/tiergate/pkg/tiergate"
)

// WebhookCallback is invoked after a webhook event has been applied to the
// snapshot store. Returning an error does not roll back the snapshot write;
// it is logged and the webhook is still acknowledged.
type WebhookCallback func(ctx context.Context, event WebhookEvent) error

// Config defines the standard configuration all providers should accept.
type Config struct {
	// Store is the snapshot store that webhook events reconcile into.
	Store tiergate.SnapshotStore

	// PriceMapping maps provider price IDs to tiers.
	// For example: map[string]tiergate.Tier{"price_1abc": tiergate.TierPro}
	PriceMapping map[string]tiergate.Tier

	// WebhookSecret is used to verify incoming webhook signatures.
	WebhookSecret string

	// APIKey is used for outbound API calls to the billing provider
	// (e.g. SyncUser, checkout session creation).
	APIKey string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, the provider SDK's default client is used.
	// Allows custom timeouts, proxies, or instrumentation.
	HTTPClient *http.Client

	// Logger is an optional structured logger.
	// If nil, logging is silently dropped (no-op).
	Logger tiergate.Logger

	// Metrics is an optional metrics collector for billing operations.
	// If nil, metrics are silently ignored (no-op).
	// Use billing/metrics/prometheus.DefaultMetrics(namespace) for Prometheus.
	Metrics Metrics

	// WebhookCallback is invoked after each applied webhook event, after the
	// snapshot write succeeds. Useful for cache invalidation or notifying
	// other systems of tier changes.
	WebhookCallback WebhookCallback
}
