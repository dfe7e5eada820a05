package stripe

import (
	"testing"
	"time"

	"github.com/wardline/tiergate/pkg/tiergate"
)

func TestSubscriptionChange_Active(t *testing.T) {
	now := time.Now().UTC()
	end := now.Add(30 * 24 * time.Hour)

	prev := &tiergate.Snapshot{
		UserID:            "u1",
		BillingCustomerID: "cus_1",
		Status:            tiergate.StatusNone,
		Tier:              tiergate.TierFree,
	}

	next := subscriptionChange("sub_1", tiergate.StatusActive, tiergate.TierPro, &end).applyTo(prev, "u1", now)

	if next.Status != tiergate.StatusActive || next.Tier != tiergate.TierPro {
		t.Errorf("unexpected snapshot: %+v", next)
	}
	if next.SubscriptionID != "sub_1" {
		t.Errorf("subscription ID not set: %q", next.SubscriptionID)
	}
	if next.CurrentPeriodEnd == nil || !next.CurrentPeriodEnd.Equal(end) {
		t.Errorf("period end not set: %v", next.CurrentPeriodEnd)
	}
	if next.BillingCustomerID != "cus_1" {
		t.Error("customer ID must carry over from previous snapshot")
	}
	if prev.Status != tiergate.StatusNone {
		t.Error("previous snapshot must not be mutated")
	}
}

func TestSubscriptionChange_CanceledClearsPaidState(t *testing.T) {
	now := time.Now().UTC()
	end := now.Add(24 * time.Hour)

	prev := &tiergate.Snapshot{
		UserID:            "u1",
		BillingCustomerID: "cus_1",
		SubscriptionID:    "sub_1",
		Status:            tiergate.StatusActive,
		Tier:              tiergate.TierPremium,
		CurrentPeriodEnd:  &end,
	}

	// Tier from the payload is deliberately premium; the canceled status
	// must win.
	next := subscriptionChange("sub_1", tiergate.StatusCanceled, tiergate.TierPremium, &end).applyTo(prev, "u1", now)

	if next.Status != tiergate.StatusCanceled {
		t.Errorf("status = %q, want canceled", next.Status)
	}
	if next.Tier != tiergate.TierFree {
		t.Errorf("tier = %v, want free", next.Tier)
	}
	if next.SubscriptionID != "" {
		t.Errorf("subscription ID not cleared: %q", next.SubscriptionID)
	}
	if next.CurrentPeriodEnd != nil {
		t.Errorf("period end not cleared: %v", next.CurrentPeriodEnd)
	}
}

func TestSubscriptionChange_IncompleteGetsFreeTier(t *testing.T) {
	now := time.Now().UTC()
	next := subscriptionChange("sub_1", tiergate.StatusIncomplete, tiergate.TierPro, nil).applyTo(nil, "u1", now)

	if next.Tier != tiergate.TierFree {
		t.Errorf("tier = %v, want free while payment incomplete", next.Tier)
	}
	if next.SubscriptionID != "sub_1" {
		t.Errorf("subscription ID should be kept for incomplete subscriptions: %q", next.SubscriptionID)
	}
}

func TestCancellationChange(t *testing.T) {
	now := time.Now().UTC()
	end := now.Add(24 * time.Hour)

	prev := &tiergate.Snapshot{
		UserID:            "u1",
		BillingCustomerID: "cus_1",
		SubscriptionID:    "sub_1",
		Status:            tiergate.StatusActive,
		Tier:              tiergate.TierPro,
		CurrentPeriodEnd:  &end,
	}

	next := cancellationChange().applyTo(prev, "u1", now)

	if next.Status != tiergate.StatusCanceled || next.Tier != tiergate.TierFree {
		t.Errorf("unexpected snapshot: %+v", next)
	}
	if next.SubscriptionID != "" || next.CurrentPeriodEnd != nil {
		t.Errorf("paid state not cleared: %+v", next)
	}
	if next.BillingCustomerID != "cus_1" {
		t.Error("customer ID must survive cancellation for future checkouts")
	}
}

func TestPastDueChange_KeepsTier(t *testing.T) {
	now := time.Now().UTC()

	prev := &tiergate.Snapshot{
		UserID:         "u1",
		SubscriptionID: "sub_1",
		Status:         tiergate.StatusActive,
		Tier:           tiergate.TierPremium,
	}

	next := pastDueChange().applyTo(prev, "u1", now)

	if next.Status != tiergate.StatusPastDue {
		t.Errorf("status = %q, want past_due", next.Status)
	}
	if next.Tier != tiergate.TierPremium {
		t.Errorf("tier = %v, want premium preserved", next.Tier)
	}
	if next.SubscriptionID != "sub_1" {
		t.Error("subscription ID must be preserved")
	}
}

func TestChange_Replayable(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := at.Add(30 * 24 * time.Hour)
	ch := subscriptionChange("sub_1", tiergate.StatusActive, tiergate.TierPro, &end)

	prev := &tiergate.Snapshot{UserID: "u1", BillingCustomerID: "cus_1"}

	first := ch.applyTo(prev, "u1", at)
	second := ch.applyTo(first, "u1", at)

	if first.Status != second.Status || first.Tier != second.Tier ||
		first.SubscriptionID != second.SubscriptionID ||
		first.BillingCustomerID != second.BillingCustomerID ||
		!first.UpdatedAt.Equal(second.UpdatedAt) {
		t.Errorf("replaying the same event must be a no-op:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if second.CurrentPeriodEnd == nil || !second.CurrentPeriodEnd.Equal(*first.CurrentPeriodEnd) {
		t.Errorf("period end diverged on replay: %v vs %v", first.CurrentPeriodEnd, second.CurrentPeriodEnd)
	}
}
