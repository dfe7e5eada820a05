// Package echo provides Echo middleware for tier-gated access control.
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wardline/tiergate/pkg/tiergate"
)

// UserIDExtractor extracts the user ID from an Echo context.
// Return empty string if user is not authenticated.
type UserIDExtractor func(c echo.Context) string

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
	OnDenied func(c echo.Context, decision tiergate.Decision) error

	// OnUnauthorized is called when user is not authenticated.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(c echo.Context) error

	// OnError is called when the snapshot lookup fails. The request is
	// denied either way; this only customizes the response.
	// If nil, returns 500 Internal Server Error.
	OnError func(c echo.Context, err error) error
}

// Middleware creates an Echo middleware that denies requests below the
// required tier.
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Gate == nil {
		panic("tiergate/echo: Config.Gate is required")
	}
	if cfg.GetUserID == nil {
		panic("tiergate/echo: Config.GetUserID is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := cfg.GetUserID(c)
			if userID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}

			decision, err := cfg.Gate.Check(c.Request().Context(), userID, cfg.RequiredTier)
			if err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}

			if !decision.Allowed {
				if cfg.OnDenied != nil {
					return cfg.OnDenied(c, decision)
				}
				return c.JSON(http.StatusForbidden, map[string]string{
					"error":          "tier upgrade required",
					"required_tier":  decision.RequiredTier.String(),
					"effective_tier": decision.EffectiveTier.String(),
				})
			}

			return next(c)
		}
	}
}

// RequireTier is a convenience wrapper for the common case.
func RequireTier(gate *tiergate.Gate, required tiergate.Tier, getUserID UserIDExtractor) echo.MiddlewareFunc {
	return Middleware(Config{
		Gate:         gate,
		GetUserID:    getUserID,
		RequiredTier: required,
	})
}
