package tiergate

import (
	"context"
	"errors"

	"golang.org/x/sync/singleflight"
)

// Decision is the result of an access check.
type Decision struct {
	// Allowed reports whether the user may access the resource.
	Allowed bool

	// RequiredTier is the minimum tier the resource declared.
	RequiredTier Tier

	// NominalTier is the tier stored on the snapshot, for UI messaging.
	NominalTier Tier

	// EffectiveTier is the tier the decision was made with. It equals
	// NominalTier only while the subscription status is entitled.
	EffectiveTier Tier
}

// Admit decides whether a user holding the given snapshot may access a
// resource requiring the given tier. A nil snapshot (unauthenticated or
// never-synced user) is treated as free; absence never grants access.
// A lapsed paid subscription (status outside active/trialing) is treated
// as free for this decision only; the stored tier is left untouched until
// the next webhook reconciles it.
//
// Admit is a pure function of its inputs and the fixed tier order.
func Admit(snap *Snapshot, required Tier) Decision {
	d := Decision{RequiredTier: required}
	if snap != nil {
		d.NominalTier = snap.Tier
		if snap.Status.Entitled() {
			d.EffectiveTier = snap.Tier
		}
	}
	d.Allowed = d.EffectiveTier.Meets(required)
	return d
}

// Gate answers admit/deny questions against stored snapshots.
// It is safe for unlimited concurrent callers.
type Gate struct {
	store   SnapshotStore
	logger  Logger
	metrics GateMetrics
	group   singleflight.Group
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithLogger sets the gate's logger.
func WithLogger(logger Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithMetrics sets the gate's metrics collector.
func WithMetrics(metrics GateMetrics) GateOption {
	return func(g *Gate) {
		g.metrics = metrics
	}
}

// NewGate creates a Gate backed by the given store.
func NewGate(store SnapshotStore, opts ...GateOption) (*Gate, error) {
	if store == nil {
		return nil, ErrStoreUnavailable
	}
	g := &Gate{
		store:   store,
		logger:  &NoopLogger{},
		metrics: &NoopGateMetrics{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Check loads the user's snapshot and applies Admit. An empty userID or a
// missing snapshot denies paid tiers without error (fail closed). A store
// failure is returned to the caller together with a denying decision so
// boundaries can fail closed without inspecting the error.
func (g *Gate) Check(ctx context.Context, userID string, required Tier) (Decision, error) {
	if userID == "" {
		d := Admit(nil, required)
		g.metrics.RecordDecision(required, d.EffectiveTier, d.Allowed)
		return d, nil
	}

	// Collapse concurrent lookups for the same user into one store read.
	v, err, _ := g.group.Do(userID, func() (interface{}, error) {
		snap, err := g.store.GetSnapshot(ctx, userID)
		if errors.Is(err, ErrSnapshotNotFound) {
			return (*Snapshot)(nil), nil
		}
		return snap, err
	})
	if err != nil {
		g.metrics.RecordLookupError()
		g.logger.Error("snapshot lookup failed",
			Field{Key: "user_id", Value: userID},
			Field{Key: "error", Value: err.Error()})
		return Decision{RequiredTier: required}, err
	}

	snap, _ := v.(*Snapshot)
	d := Admit(snap, required)
	g.metrics.RecordDecision(required, d.EffectiveTier, d.Allowed)
	return d, nil
}
