// Package gin provides Gin middleware for tier-gated access control.
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/wardline/tiergate/pkg/tiergate"
)

// UserIDExtractor extracts the user ID from a Gin context.
// Return empty string if user is not authenticated.
type UserIDExtractor func(c *gongin.Context) string

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
	OnDenied func(c *gongin.Context, decision tiergate.Decision)

	// OnUnauthorized is called when user is not authenticated.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(c *gongin.Context)

	// OnError is called when the snapshot lookup fails. The request is
	// denied either way; this only customizes the response.
	// If nil, returns 500 Internal Server Error.
	OnError func(c *gongin.Context, err error)
}

// Middleware creates a Gin middleware that denies requests below the
// required tier.
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Gate == nil {
		panic("tiergate/gin: Config.Gate is required")
	}
	if cfg.GetUserID == nil {
		panic("tiergate/gin: Config.GetUserID is required")
	}

	return func(c *gongin.Context) {
		userID := cfg.GetUserID(c)
		if userID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
				c.Abort()
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gongin.H{"error": "unauthorized"})
			}
			return
		}

		decision, err := cfg.Gate.Check(c.Request.Context(), userID, cfg.RequiredTier)
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
				c.Abort()
			} else {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gongin.H{"error": "internal server error"})
			}
			return
		}

		if !decision.Allowed {
			if cfg.OnDenied != nil {
				cfg.OnDenied(c, decision)
				c.Abort()
			} else {
				c.AbortWithStatusJSON(http.StatusForbidden, gongin.H{
					"error":          "tier upgrade required",
					"required_tier":  decision.RequiredTier.String(),
					"effective_tier": decision.EffectiveTier.String(),
				})
			}
			return
		}

		c.Next()
	}
}

// RequireTier is a convenience wrapper for the common case.
func RequireTier(gate *tiergate.Gate, required tiergate.Tier, getUserID UserIDExtractor) gongin.HandlerFunc {
	return Middleware(Config{
		Gate:         gate,
		GetUserID:    getUserID,
		RequiredTier: required,
	})
}
