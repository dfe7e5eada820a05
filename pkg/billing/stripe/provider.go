// Package stripe implements the billing.Provider interface for Stripe.
// Webhook events are reconciled into the snapshot store; access decisions
// are made elsewhere from the stored snapshots.
package stripe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/wardline/tiergate/pkg/billing"
	"github.com/wardline/tiergate/pkg/billing/internal"
	"github.com/wardline/tiergate/pkg/tiergate"
)

const (
	providerName             = "stripe"
	defaultHTTPTimeout       = 10 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	metadataUserIDKey        = "user_id"
)

// fallbackPaidTier is assigned when a webhook carries a price ID missing
// from the mapping. A price reaching the webhook was sold to a paying
// customer, so an unmapped one grants the lowest paid tier instead of
// locking the customer out while the mapping catches up.
const fallbackPaidTier = tiergate.TierPro

// Config extends billing.Config with Stripe-specific options.
type Config struct {
	billing.Config // Base config (Store, PriceMapping, etc.)

	// IgnoreStaleEvents drops webhook events whose creation time is not
	// newer than the stored snapshot's UpdatedAt. Off by default: event
	// application is already replay-safe, and Stripe's ordering is good
	// enough that dropping is rarely worth the clock-skew risk.
	IgnoreStaleEvents bool
}

// Provider implements the billing.Provider interface for Stripe.
type Provider struct {
	config        Config
	store         tiergate.SnapshotStore
	httpClient    *http.Client
	rateLimiter   *internal.RateLimiter
	priceMapping  map[string]tiergate.Tier // Price ID (lowercase) -> Tier
	webhookSecret []byte
	apiKey        string
	stripeClient  *stripe.Client
	logger        tiergate.Logger
	metrics       billing.Metrics
	callback      billing.WebhookCallback
}

// NewProvider creates a new Stripe billing provider.
func NewProvider(config Config) (*Provider, error) {
	if config.Store == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	webhookSecret := strings.TrimSpace(config.WebhookSecret)
	if webhookSecret == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	stripeClient := stripe.NewClient(apiKey)

	// Price IDs are matched case-insensitively.
	priceMapping := make(map[string]tiergate.Tier, len(config.PriceMapping))
	for priceID, tier := range config.PriceMapping {
		priceMapping[strings.ToLower(strings.TrimSpace(priceID))] = tier
	}

	logger := config.Logger
	if logger == nil {
		logger = &tiergate.NoopLogger{}
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	return &Provider{
		config:        config,
		store:         config.Store,
		httpClient:    httpClient,
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		priceMapping:  priceMapping,
		webhookSecret: []byte(webhookSecret),
		apiKey:        apiKey,
		stripeClient:  stripeClient,
		logger:        logger,
		metrics:       metrics,
		callback:      config.WebhookCallback,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks.
func (p *Provider) WebhookHandler() http.Handler {
	handler := http.HandlerFunc(p.handleWebhook)
	return p.rateLimiter.Middleware(handler)
}

// SyncUser synchronizes a user's snapshot from the Stripe API.
func (p *Provider) SyncUser(ctx context.Context, userID string) (tiergate.Tier, error) {
	return p.syncUserFromAPI(ctx, userID)
}

// ResolveTier maps a Stripe Price ID to a tier. Unmapped paid prices fall
// back to the lowest paid tier with a warning.
func (p *Provider) ResolveTier(priceID string) tiergate.Tier {
	if priceID == "" {
		return tiergate.TierFree
	}

	key := strings.ToLower(strings.TrimSpace(priceID))
	if tier, ok := p.priceMapping[key]; ok {
		return tier
	}

	p.logger.Warn("unmapped price ID, assigning fallback paid tier",
		tiergate.Field{Key: "price_id", Value: priceID},
		tiergate.Field{Key: "tier", Value: fallbackPaidTier.String()},
	)
	return fallbackPaidTier
}

// PriceIDForTier returns the Stripe Price ID configured for a tier.
// The reverse of ResolveTier; used when creating checkout sessions.
//
// Note: if multiple Price IDs map to the same tier (e.g., monthly and
// yearly), the first match wins. Map billing cycles as distinct prices if
// that matters for your setup.
func (p *Provider) PriceIDForTier(tier tiergate.Tier) string {
	for priceID, mapped := range p.priceMapping {
		if mapped == tier {
			return priceID
		}
	}
	return ""
}
