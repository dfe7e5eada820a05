// Package prommetrics provides a Prometheus implementation of the
// tiergate.GateMetrics interface.
package prommetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/wardline/tiergate/pkg/tiergate"
)

// Metrics implements tiergate.GateMetrics using Prometheus.
type Metrics struct {
	decisionsTotal    *prometheus.CounterVec
	lookupErrorsTotal prometheus.Counter
}

// NewMetrics creates a new Prometheus metrics implementation for the access gate.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		decisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Total number of access gate decisions.",
		}, []string{"required_tier", "effective_tier", "allowed"}),

		lookupErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "lookup_errors_total",
			Help:      "Total number of failed snapshot lookups during access checks.",
		}),
	}
}

func (m *Metrics) RecordDecision(required, effective tiergate.Tier, allowed bool) {
	m.decisionsTotal.WithLabelValues(required.String(), effective.String(), strconv.FormatBool(allowed)).Inc()
}

func (m *Metrics) RecordLookupError() {
	m.lookupErrorsTotal.Inc()
}

// DefaultMetrics returns a GateMetrics implementation using the default
// Prometheus registerer.
func DefaultMetrics(namespace string) tiergate.GateMetrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
