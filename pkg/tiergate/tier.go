// Package tiergate keeps per-user subscription snapshots in sync with a
// billing provider and answers tier-based access decisions against them.
package tiergate

import "fmt"

// Tier is a user's subscription level. Tiers form a total order
// (Free < Pro < Premium) and gate access to paid content.
type Tier int

const (
	// TierFree is the default tier for users without a paid subscription.
	TierFree Tier = iota
	// TierPro is the lower paid tier.
	TierPro
	// TierPremium is the highest paid tier.
	TierPremium
)

// String returns the canonical lowercase name of the tier.
func (t Tier) String() string {
	switch t {
	case TierFree:
		return "free"
	case TierPro:
		return "pro"
	case TierPremium:
		return "premium"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Valid reports whether t is one of the defined tiers.
func (t Tier) Valid() bool {
	return t >= TierFree && t <= TierPremium
}

// Meets reports whether a user holding tier t satisfies the given
// required tier. The comparison uses the fixed tier order.
func (t Tier) Meets(required Tier) bool {
	return t >= required
}

// ParseTier converts a tier name to its Tier value.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "free", "":
		return TierFree, nil
	case "pro":
		return TierPro, nil
	case "premium":
		return TierPremium, nil
	default:
		return TierFree, fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
}
