// Package fiber provides Fiber middleware for tier-gated access control.
package fiber

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wardline/tiergate/pkg/tiergate"
)

// UserIDExtractor extracts the user ID from a Fiber context.
// Return empty string if user is not authenticated.
type UserIDExtractor func(c *fiber.Ctx) string

// Config holds middleware configuration.
type Config struct {
	// Gate is the access gate instance (required)
	Gate *tiergate.Gate

	// GetUserID extracts user ID from context (required)
	GetUserID UserIDExtractor

	// RequiredTier is the minimum tier needed to pass
	RequiredTier tiergate.Tier

	// OnDenied is called when the user's effective tier is insufficient.
	// If nil, returns 403 JSON with the required and effective tiers.
	OnDenied func(c *fiber.Ctx, decision tiergate.Decision) error

	// OnUnauthorized is called when user is not authenticated.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(c *fiber.Ctx) error

	// OnError is called when the snapshot lookup fails. The request is
	// denied either way; this only customizes the response.
	// If nil, returns 500 Internal Server Error.
	OnError func(c *fiber.Ctx, err error) error
}

// Middleware creates a Fiber middleware that denies requests below the
// required tier.
func Middleware(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Gate == nil {
		panic("tiergate/fiber: Config.Gate is required")
	}
	if cfg.GetUserID == nil {
		panic("tiergate/fiber: Config.GetUserID is required")
	}

	return func(c *fiber.Ctx) error {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}

		decision, err := cfg.Gate.Check(c.UserContext(), userID, cfg.RequiredTier)
		if err != nil {
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		}

		if !decision.Allowed {
			if cfg.OnDenied != nil {
				return cfg.OnDenied(c, decision)
			}
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":          "tier upgrade required",
				"required_tier":  decision.RequiredTier.String(),
				"effective_tier": decision.EffectiveTier.String(),
			})
		}

		return c.Next()
	}
}

// RequireTier is a convenience wrapper for the common case.
func RequireTier(gate *tiergate.Gate, required tiergate.Tier, getUserID UserIDExtractor) fiber.Handler {
	return Middleware(Config{
		Gate:         gate,
		GetUserID:    getUserID,
		RequiredTier: required,
	})
}
