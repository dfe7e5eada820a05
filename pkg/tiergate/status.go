package tiergate

// Status is the lifecycle state of a user's subscription as last reported
// by the billing provider.
type Status string

const (
	// StatusActive means the subscription is paid up.
	StatusActive Status = "active"
	// StatusTrialing means the subscription is in a trial period.
	StatusTrialing Status = "trialing"
	// StatusPastDue means the latest invoice payment failed.
	StatusPastDue Status = "past_due"
	// StatusCanceled means the subscription was deleted.
	StatusCanceled Status = "canceled"
	// StatusIncomplete means the initial payment never completed.
	StatusIncomplete Status = "incomplete"
	// StatusNone means the user has no subscription at all.
	StatusNone Status = "none"
)

// Entitled reports whether the status still grants paid access.
// Only active and trialing subscriptions do; anything else means the
// nominal tier must not be honored until the next reconciliation.
func (s Status) Entitled() bool {
	return s == StatusActive || s == StatusTrialing
}

// ParseStatus maps a provider status string onto the local status set.
// Provider states outside the local set collapse onto the nearest local
// one: unpaid behaves like past_due, incomplete_expired like incomplete,
// and everything unrecognized like none.
func ParseStatus(s string) Status {
	switch s {
	case "active":
		return StatusActive
	case "trialing":
		return StatusTrialing
	case "past_due", "unpaid":
		return StatusPastDue
	case "canceled":
		return StatusCanceled
	case "incomplete", "incomplete_expired":
		return StatusIncomplete
	default:
		return StatusNone
	}
}
