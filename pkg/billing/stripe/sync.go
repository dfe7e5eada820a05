package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/wardline/tiergate/pkg/billing"
	"github.com/wardline/tiergate/pkg/tiergate"
)

// syncUserFromAPI rebuilds a user's snapshot from the Stripe API. Used for
// "Restore Purchases" flows and reconciliation jobs that cannot rely on
// having seen every webhook.
func (p *Provider) syncUserFromAPI(ctx context.Context, userID string) (tiergate.Tier, error) {
	startTime := time.Now()

	if userID == "" {
		p.metrics.RecordUserSync(providerName, "error")
		return tiergate.TierFree, fmt.Errorf("user ID is required")
	}

	prev, err := p.store.GetSnapshot(ctx, userID)
	if err != nil && err != tiergate.ErrSnapshotNotFound {
		p.metrics.RecordUserSync(providerName, "error")
		p.metrics.RecordUserSyncDuration(providerName, time.Since(startTime))
		return tiergate.TierFree, fmt.Errorf("failed to load snapshot: %w", err)
	}

	// FAST PATH: the stored snapshot already knows the customer ID.
	customerID := ""
	if prev != nil {
		customerID = prev.BillingCustomerID
	}

	// SLOW PATH: Stripe Search API (eventually consistent, ~500ms).
	if customerID == "" {
		p.metrics.RecordAPICall(providerName, "/v1/customers/search", "slow_path")
		customerID, err = p.searchCustomerByMetadata(ctx, userID)
		if err != nil {
			if err == billing.ErrUserNotFound {
				// No Stripe customer: the user has never paid.
				return p.syncToFree(ctx, prev, userID, startTime)
			}
			p.metrics.RecordUserSync(providerName, "error")
			p.metrics.RecordUserSyncDuration(providerName, time.Since(startTime))
			return tiergate.TierFree, err
		}
	}

	return p.syncCustomer(ctx, prev, customerID, userID, startTime)
}

// searchCustomerByMetadata searches for a customer by metadata using the
// Stripe Search API.
func (p *Provider) searchCustomerByMetadata(ctx context.Context, userID string) (string, error) {
	params := &stripe.CustomerSearchParams{}
	params.Query = fmt.Sprintf("metadata['%s']:'%s'", metadataUserIDKey, userID)

	for cust, err := range p.stripeClient.V1Customers.Search(ctx, params) {
		if err != nil {
			return "", fmt.Errorf("stripe search error: %w", err)
		}
		// Search can return partial matches; verify before trusting.
		if cust.Metadata != nil && cust.Metadata[metadataUserIDKey] == userID {
			return cust.ID, nil
		}
	}

	return "", billing.ErrUserNotFound
}

// syncCustomer lists the customer's subscriptions and writes a snapshot
// reflecting the best one.
func (p *Provider) syncCustomer(ctx context.Context, prev *tiergate.Snapshot, customerID, userID string, startTime time.Time) (tiergate.Tier, error) {
	params := &stripe.SubscriptionListParams{}
	params.Customer = stripe.String(customerID)
	params.Status = stripe.String("all")

	var subscriptions []*stripe.Subscription
	for sub, err := range p.stripeClient.V1Subscriptions.List(ctx, params) {
		if err != nil {
			p.metrics.RecordAPICall(providerName, "/v1/subscriptions", "error")
			p.metrics.RecordUserSync(providerName, "error")
			p.metrics.RecordUserSyncDuration(providerName, time.Since(startTime))
			return tiergate.TierFree, fmt.Errorf("failed to list subscriptions: %w", err)
		}
		subscriptions = append(subscriptions, sub)
	}
	p.metrics.RecordAPICall(providerName, "/v1/subscriptions", "200")

	now := time.Now().UTC()

	best := p.pickSubscription(subscriptions)

	var next *tiergate.Snapshot
	if best == nil {
		next = cancellationChange().applyTo(prev, userID, now)
		next.Status = tiergate.StatusNone
	} else {
		status := tiergate.ParseStatus(string(best.Status))
		tier := p.tierFromSubscription(best)
		next = subscriptionChange(best.ID, status, tier, subscriptionPeriodEnd(best, nil)).applyTo(prev, userID, now)
	}
	if next.BillingCustomerID == "" {
		next.BillingCustomerID = customerID
	}

	prevTier := tiergate.TierFree
	if prev != nil {
		prevTier = prev.Tier
	}
	if prevTier != next.Tier {
		p.metrics.RecordTierChange(providerName, prevTier.String(), next.Tier.String())
	}

	if err := p.store.SetSnapshot(ctx, next); err != nil {
		p.metrics.RecordUserSync(providerName, "error")
		p.metrics.RecordUserSyncDuration(providerName, time.Since(startTime))
		return next.Tier, fmt.Errorf("failed to set snapshot: %w", err)
	}

	p.metrics.RecordUserSync(providerName, "success")
	p.metrics.RecordUserSyncDuration(providerName, time.Since(startTime))
	return next.Tier, nil
}

// syncToFree writes a free snapshot for users without a Stripe customer.
func (p *Provider) syncToFree(ctx context.Context, prev *tiergate.Snapshot, userID string, startTime time.Time) (tiergate.Tier, error) {
	next := cancellationChange().applyTo(prev, userID, time.Now().UTC())
	next.Status = tiergate.StatusNone

	if err := p.store.SetSnapshot(ctx, next); err != nil {
		p.metrics.RecordUserSync(providerName, "error")
		p.metrics.RecordUserSyncDuration(providerName, time.Since(startTime))
		return tiergate.TierFree, fmt.Errorf("failed to set snapshot: %w", err)
	}

	p.metrics.RecordUserSync(providerName, "success")
	p.metrics.RecordUserSyncDuration(providerName, time.Since(startTime))
	return tiergate.TierFree, nil
}

// pickSubscription chooses which subscription a snapshot should reflect:
// entitled subscriptions first, then highest tier, then most recent.
func (p *Provider) pickSubscription(subscriptions []*stripe.Subscription) *stripe.Subscription {
	var best *stripe.Subscription
	var bestEntitled bool
	var bestTier tiergate.Tier

	for _, sub := range subscriptions {
		entitled := tiergate.ParseStatus(string(sub.Status)).Entitled()
		tier := p.tierFromSubscription(sub)

		if best == nil {
			best, bestEntitled, bestTier = sub, entitled, tier
			continue
		}
		if entitled != bestEntitled {
			if entitled {
				best, bestEntitled, bestTier = sub, entitled, tier
			}
			continue
		}
		if tier != bestTier {
			if tier > bestTier {
				best, bestEntitled, bestTier = sub, entitled, tier
			}
			continue
		}
		if sub.Created > best.Created {
			best = sub
		}
	}

	return best
}
