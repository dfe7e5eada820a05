package tiergate

// GateMetrics defines the interface for tracking access decisions.
type GateMetrics interface {
	// RecordDecision records one access check outcome.
	RecordDecision(required, effective Tier, allowed bool)

	// RecordLookupError records a failed snapshot lookup.
	RecordLookupError()
}

// NoopGateMetrics is a no-op implementation of the GateMetrics interface.
type NoopGateMetrics struct{}

func (n *NoopGateMetrics) RecordDecision(_, _ Tier, _ bool) {}
func (n *NoopGateMetrics) RecordLookupError()               {}
