package stripe

import (
	"time"

	"github.com/wardline/tiergate/pkg/tiergate"
)

// change describes how a webhook event alters a snapshot. Fields left nil
// are carried over from the previous snapshot, which keeps each event's
// effect a pure function of its payload and makes redelivery harmless.
type change struct {
	subscriptionID  *string
	status          *tiergate.Status
	tier            *tiergate.Tier
	periodEnd       *time.Time
	clearPeriodEnd  bool
	clearSubscriber bool
}

// applyTo produces the next snapshot for userID. prev may be nil for users
// with no stored billing state yet.
func (c change) applyTo(prev *tiergate.Snapshot, userID string, at time.Time) *tiergate.Snapshot {
	next := &tiergate.Snapshot{
		UserID: userID,
		Status: tiergate.StatusNone,
		Tier:   tiergate.TierFree,
	}
	if prev != nil {
		next = prev.Clone()
		next.UserID = userID
	}

	if c.subscriptionID != nil {
		next.SubscriptionID = *c.subscriptionID
	}
	if c.clearSubscriber {
		next.SubscriptionID = ""
	}
	if c.status != nil {
		next.Status = *c.status
	}
	if c.tier != nil {
		next.Tier = *c.tier
	}
	if c.periodEnd != nil {
		end := *c.periodEnd
		next.CurrentPeriodEnd = &end
	}
	if c.clearPeriodEnd {
		next.CurrentPeriodEnd = nil
	}
	next.UpdatedAt = at

	return next
}

// subscriptionChange computes the change for a subscription create or
// update event. Statuses that carry no entitlement force the tier to free;
// a canceled subscription additionally drops its ID and period end.
func subscriptionChange(subscriptionID string, status tiergate.Status, tier tiergate.Tier, periodEnd *time.Time) change {
	ch := change{
		subscriptionID: &subscriptionID,
		status:         &status,
		tier:           &tier,
		periodEnd:      periodEnd,
	}
	if periodEnd == nil {
		ch.clearPeriodEnd = true
	}

	switch status {
	case tiergate.StatusCanceled:
		free := tiergate.TierFree
		ch.tier = &free
		ch.clearSubscriber = true
		ch.subscriptionID = nil
		ch.periodEnd = nil
		ch.clearPeriodEnd = true
	case tiergate.StatusNone, tiergate.StatusIncomplete:
		free := tiergate.TierFree
		ch.tier = &free
	}

	return ch
}

// cancellationChange computes the change for a subscription deletion.
func cancellationChange() change {
	status := tiergate.StatusCanceled
	free := tiergate.TierFree
	return change{
		status:          &status,
		tier:            &free,
		clearSubscriber: true,
		clearPeriodEnd:  true,
	}
}

// pastDueChange computes the change for a failed invoice payment. The tier
// is left untouched: access is decided at check time from the status, so a
// recovered payment restores access without another tier write.
func pastDueChange() change {
	status := tiergate.StatusPastDue
	return change{status: &status}
}
