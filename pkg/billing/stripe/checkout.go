package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/wardline/tiergate/pkg/billing"
	"github.com/wardline/tiergate/pkg/tiergate"
)

// CheckoutURL creates a Stripe Checkout Session for a tier and returns its
// URL. The tier is resolved to a Stripe Price ID through the configured
// PriceMapping.
func (p *Provider) CheckoutURL(ctx context.Context, userID string, tier tiergate.Tier, successURL, cancelURL string) (string, error) {
	startTime := time.Now()

	priceID := p.PriceIDForTier(tier)
	if priceID == "" {
		p.metrics.RecordAPICall(providerName, "/v1/checkout/sessions", "tier_not_found")
		return "", fmt.Errorf("%w: %s", billing.ErrTierNotConfigured, tier)
	}

	// Only a hard lookup failure aborts; an unknown customer just means
	// Stripe will create one during checkout. Failing on real errors
	// prevents duplicate customers.
	customerID, err := p.resolveCustomerID(ctx, userID)
	if err != nil && !errors.Is(err, billing.ErrCustomerNotFound) && !errors.Is(err, billing.ErrUserNotFound) {
		p.metrics.RecordAPICall(providerName, "/v1/checkout/sessions", "customer_resolution_failed")
		return "", fmt.Errorf("failed to resolve customer: %w", err)
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}

	// The webhook handler identifies the user through this metadata.
	params.Metadata = map[string]string{metadataUserIDKey: userID}
	params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{}
	params.SubscriptionData.AddMetadata(metadataUserIDKey, userID)

	if customerID != "" {
		params.Customer = stripe.String(customerID)
	} else {
		params.ClientReferenceID = stripe.String(userID)
		params.CustomerCreation = stripe.String("always")
	}

	session, err := p.stripeClient.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/v1/checkout/sessions", "error")
		p.metrics.RecordAPICallDuration(providerName, "/v1/checkout/sessions", time.Since(startTime))
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	p.metrics.RecordAPICall(providerName, "/v1/checkout/sessions", "success")
	p.metrics.RecordAPICallDuration(providerName, "/v1/checkout/sessions", time.Since(startTime))

	return session.URL, nil
}

// PortalURL creates a Stripe Customer Portal Session and returns its URL.
// The portal lets users manage their subscription, update payment methods,
// or cancel.
func (p *Provider) PortalURL(ctx context.Context, userID, returnURL string) (string, error) {
	startTime := time.Now()

	customerID, err := p.resolveCustomerID(ctx, userID)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/v1/billing_portal/sessions", "customer_not_found")
		return "", fmt.Errorf("%w: %s", billing.ErrCustomerNotFound, userID)
	}

	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}

	session, err := p.stripeClient.V1BillingPortalSessions.Create(ctx, params)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/v1/billing_portal/sessions", "error")
		p.metrics.RecordAPICallDuration(providerName, "/v1/billing_portal/sessions", time.Since(startTime))
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}

	p.metrics.RecordAPICall(providerName, "/v1/billing_portal/sessions", "success")
	p.metrics.RecordAPICallDuration(providerName, "/v1/billing_portal/sessions", time.Since(startTime))

	return session.URL, nil
}

// resolveCustomerID finds the Stripe Customer ID for a user, preferring the
// stored snapshot over the slow Stripe Search API.
func (p *Provider) resolveCustomerID(ctx context.Context, userID string) (string, error) {
	snap, err := p.store.GetSnapshot(ctx, userID)
	if err == nil && snap.BillingCustomerID != "" {
		return snap.BillingCustomerID, nil
	}
	if err != nil && !errors.Is(err, tiergate.ErrSnapshotNotFound) {
		return "", fmt.Errorf("failed to load snapshot: %w", err)
	}

	return p.searchCustomerByMetadata(ctx, userID)
}
