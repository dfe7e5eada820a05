package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/wardline/tiergate/pkg/billing"
	"github.com/wardline/tiergate/pkg/billing/internal"
	"github.com/wardline/tiergate/pkg/tiergate"
)

const (
	outcomeApplied = "applied"
	outcomeIgnored = "ignored"
)

// outcome describes how an event was handled. An ignored event is still
// acknowledged with 200 so Stripe does not retry it.
type outcome struct {
	status string
	event  *billing.WebhookEvent
}

var ignored = outcome{status: outcomeIgnored}

// handleWebhook processes incoming Stripe webhook events.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(p.webhookSecret) == 0 {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	// Read and validate body (with size limit protection)
	body, err := internal.ReadBodyStrict(w, r, 256*1024)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")

	// No snapshot is read or written before the signature checks out.
	event, err := webhook.ConstructEvent(body, sig, string(p.webhookSecret))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	result, err := p.processEvent(r.Context(), &event)
	if err != nil {
		// 5xx tells Stripe to redeliver; reapplying is safe.
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
		return
	}

	if result.status == outcomeApplied && result.event != nil && p.callback != nil {
		if cbErr := p.callback(r.Context(), *result.event); cbErr != nil {
			// The snapshot write already succeeded; the callback is advisory.
			p.logger.Error("webhook callback failed",
				tiergate.Field{Key: "event_type", Value: eventType},
				tiergate.Field{Key: "user_id", Value: result.event.UserID},
				tiergate.Field{Key: "error", Value: cbErr.Error()},
			)
		}
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		return
	}

	p.metrics.RecordWebhookEvent(providerName, eventType, result.status)
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
}

// processEvent dispatches a verified webhook event.
func (p *Provider) processEvent(ctx context.Context, event *stripe.Event) (outcome, error) {
	eventTime := time.Unix(event.Created, 0).UTC()

	switch event.Type {
	case "checkout.session.completed":
		return p.applyCheckoutCompleted(ctx, event, eventTime)
	case "customer.subscription.created", "customer.subscription.updated":
		return p.applySubscriptionEvent(ctx, event, eventTime)
	case "customer.subscription.deleted":
		return p.applySubscriptionDeleted(ctx, event, eventTime)
	case "invoice.payment_failed":
		return p.applyInvoiceFailed(ctx, event, eventTime)
	default:
		// Unknown event type - acknowledge without touching state.
		return ignored, nil
	}
}

// applyCheckoutCompleted processes checkout.session.completed events. The
// session itself carries no subscription status, so the subscription is
// fetched before the snapshot is written.
func (p *Provider) applyCheckoutCompleted(ctx context.Context, event *stripe.Event, eventTime time.Time) (outcome, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return ignored, fmt.Errorf("%w: checkout session: %v", billing.ErrInvalidWebhookPayload, err)
	}

	userID := ""
	if session.Metadata != nil {
		userID = session.Metadata[metadataUserIDKey]
	}
	if userID == "" {
		p.logger.Warn("checkout session missing user_id metadata, skipping",
			tiergate.Field{Key: "session_id", Value: session.ID},
		)
		return ignored, nil
	}

	subscriptionID := ""
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}
	if subscriptionID == "" {
		// Not a subscription checkout.
		return ignored, nil
	}

	sub, err := p.stripeClient.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/v1/subscriptions", "error")
		return ignored, fmt.Errorf("failed to fetch subscription %s: %w", subscriptionID, err)
	}
	p.metrics.RecordAPICall(providerName, "/v1/subscriptions", "200")

	prev, err := p.store.GetSnapshot(ctx, userID)
	if err != nil && !errors.Is(err, tiergate.ErrSnapshotNotFound) {
		return ignored, fmt.Errorf("failed to load snapshot: %w", err)
	}

	if p.staleFor(prev, eventTime) {
		return ignored, nil
	}

	status := tiergate.ParseStatus(string(sub.Status))
	tier := p.tierFromSubscription(sub)
	ch := subscriptionChange(sub.ID, status, tier, subscriptionPeriodEnd(sub, nil))

	next := ch.applyTo(prev, userID, eventTime)
	if next.BillingCustomerID == "" {
		next.BillingCustomerID = customerIDFromSubscription(sub, &session)
	}

	return p.writeSnapshot(ctx, prev, next, event)
}

// applySubscriptionEvent processes customer.subscription.created and
// customer.subscription.updated events.
func (p *Provider) applySubscriptionEvent(ctx context.Context, event *stripe.Event, eventTime time.Time) (outcome, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return ignored, fmt.Errorf("%w: subscription: %v", billing.ErrInvalidWebhookPayload, err)
	}

	prev, out, err := p.lookupByCustomer(ctx, customerIDFromSubscription(&sub, nil), event)
	if prev == nil {
		return out, err
	}

	if p.staleFor(prev, eventTime) {
		return ignored, nil
	}

	status := tiergate.ParseStatus(string(sub.Status))
	tier := p.tierFromSubscription(&sub)
	ch := subscriptionChange(sub.ID, status, tier, subscriptionPeriodEnd(&sub, event.Data.Raw))

	next := ch.applyTo(prev, prev.UserID, eventTime)

	return p.writeSnapshot(ctx, prev, next, event)
}

// applySubscriptionDeleted processes customer.subscription.deleted events.
func (p *Provider) applySubscriptionDeleted(ctx context.Context, event *stripe.Event, eventTime time.Time) (outcome, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return ignored, fmt.Errorf("%w: subscription: %v", billing.ErrInvalidWebhookPayload, err)
	}

	prev, out, err := p.lookupByCustomer(ctx, customerIDFromSubscription(&sub, nil), event)
	if prev == nil {
		return out, err
	}

	if p.staleFor(prev, eventTime) {
		return ignored, nil
	}

	next := cancellationChange().applyTo(prev, prev.UserID, eventTime)

	return p.writeSnapshot(ctx, prev, next, event)
}

// applyInvoiceFailed processes invoice.payment_failed events. The status
// moves to past_due but the tier is untouched; Stripe decides later whether
// the subscription survives, and that arrives as a subscription event.
func (p *Provider) applyInvoiceFailed(ctx context.Context, event *stripe.Event, eventTime time.Time) (outcome, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return ignored, fmt.Errorf("%w: invoice: %v", billing.ErrInvalidWebhookPayload, err)
	}

	customerID := ""
	if invoice.Customer != nil {
		customerID = invoice.Customer.ID
	}

	prev, out, err := p.lookupByCustomer(ctx, customerID, event)
	if prev == nil {
		return out, err
	}

	if p.staleFor(prev, eventTime) {
		return ignored, nil
	}

	next := pastDueChange().applyTo(prev, prev.UserID, eventTime)

	return p.writeSnapshot(ctx, prev, next, event)
}

// lookupByCustomer resolves the snapshot owning a billing customer ID.
// A customer no user maps to is acknowledged and logged: failing the
// webhook would only make Stripe redeliver an event nobody can own.
func (p *Provider) lookupByCustomer(ctx context.Context, customerID string, event *stripe.Event) (*tiergate.Snapshot, outcome, error) {
	if customerID == "" {
		p.logger.Warn("webhook event carries no customer ID, skipping",
			tiergate.Field{Key: "event_type", Value: string(event.Type)},
			tiergate.Field{Key: "event_id", Value: event.ID},
		)
		return nil, ignored, nil
	}

	prev, err := p.store.FindByCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, tiergate.ErrSnapshotNotFound) {
			p.logger.Warn("no user matches billing customer, skipping",
				tiergate.Field{Key: "customer_id", Value: customerID},
				tiergate.Field{Key: "event_type", Value: string(event.Type)},
				tiergate.Field{Key: "event_id", Value: event.ID},
			)
			return nil, ignored, nil
		}
		return nil, ignored, fmt.Errorf("failed to find snapshot for customer %s: %w", customerID, err)
	}

	return prev, outcome{}, nil
}

// staleFor reports whether an event predates the stored snapshot and stale
// events are configured to be dropped.
func (p *Provider) staleFor(prev *tiergate.Snapshot, eventTime time.Time) bool {
	if !p.config.IgnoreStaleEvents || prev == nil {
		return false
	}
	return !eventTime.After(prev.UpdatedAt)
}

// writeSnapshot persists the next snapshot and builds the applied outcome.
func (p *Provider) writeSnapshot(ctx context.Context, prev, next *tiergate.Snapshot, event *stripe.Event) (outcome, error) {
	if err := p.store.SetSnapshot(ctx, next); err != nil {
		return ignored, fmt.Errorf("failed to set snapshot: %w", err)
	}

	prevTier := tiergate.TierFree
	prevStatus := tiergate.StatusNone
	if prev != nil {
		prevTier = prev.Tier
		prevStatus = prev.Status
	}

	if prevTier != next.Tier {
		p.metrics.RecordTierChange(providerName, prevTier.String(), next.Tier.String())
	}

	p.logger.Info("snapshot reconciled from webhook",
		tiergate.Field{Key: "user_id", Value: next.UserID},
		tiergate.Field{Key: "event_type", Value: string(event.Type)},
		tiergate.Field{Key: "tier", Value: next.Tier.String()},
		tiergate.Field{Key: "status", Value: string(next.Status)},
	)

	return outcome{
		status: outcomeApplied,
		event: &billing.WebhookEvent{
			UserID:           next.UserID,
			PreviousTier:     prevTier,
			NewTier:          next.Tier,
			PreviousStatus:   prevStatus,
			NewStatus:        next.Status,
			Provider:         providerName,
			EventType:        string(event.Type),
			EventTimestamp:   next.UpdatedAt,
			CurrentPeriodEnd: next.CurrentPeriodEnd,
		},
	}, nil
}

// tierFromSubscription resolves the nominal tier from subscription items.
// With multiple items the highest tier wins.
func (p *Provider) tierFromSubscription(sub *stripe.Subscription) tiergate.Tier {
	tier := tiergate.TierFree
	if sub.Items == nil {
		return tier
	}
	for _, item := range sub.Items.Data {
		if item.Price == nil {
			continue
		}
		if t := p.ResolveTier(item.Price.ID); t > tier {
			tier = t
		}
	}
	return tier
}

// subscriptionPeriodEnd extracts the paid-through time. Items carry the
// period end in current API versions; older webhook payloads put it on the
// subscription object, so the raw event JSON is the fallback.
func subscriptionPeriodEnd(sub *stripe.Subscription, raw json.RawMessage) *time.Time {
	var latest int64
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.CurrentPeriodEnd > latest {
				latest = item.CurrentPeriodEnd
			}
		}
	}

	if latest == 0 && len(raw) > 0 {
		var aux struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
		}
		if err := json.Unmarshal(raw, &aux); err == nil {
			latest = aux.CurrentPeriodEnd
		}
	}

	if latest == 0 {
		return nil
	}
	end := time.Unix(latest, 0).UTC()
	return &end
}

// customerIDFromSubscription extracts the billing customer ID, preferring
// the subscription's customer over the checkout session's.
func customerIDFromSubscription(sub *stripe.Subscription, session *stripe.CheckoutSession) string {
	if sub != nil && sub.Customer != nil && sub.Customer.ID != "" {
		return sub.Customer.ID
	}
	if session != nil && session.Customer != nil {
		return session.Customer.ID
	}
	return ""
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
