// Package http provides HTTP middleware for tier-gated access control.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/wardline/tiergate/pkg/tiergate"
)

// UserIDExtractor extracts the user ID from an HTTP request.
// Return empty string if user is not authenticated.
type UserIDExtractor func(r *http.Request) string

// Config holds middleware configuration.
type Config struct {
	// Gate is the access gate instance (required)
	Gate *tiergate.Gate

	// GetUserID extracts user ID from request (required)
	GetUserID UserIDExtractor

	// RequiredTier is the minimum tier needed to pass
	RequiredTier tiergate.Tier

	// OnDenied is called when the user's effective tier is insufficient.
	// If nil, returns 403 JSON with the required and effective tiers.
	OnDenied func(w http.ResponseWriter, r *http.Request, decision tiergate.Decision)

	// OnUnauthorized is called when user is not authenticated.
	// If nil, returns 401 Unauthorized.
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnError is called when the snapshot lookup fails. The request is
	// denied either way; this only customizes the response.
	// If nil, returns 500 Internal Server Error.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// deniedResponse is the default body for an insufficient tier.
type deniedResponse struct {
	Error         string `json:"error"`
	RequiredTier  string `json:"required_tier"`
	EffectiveTier string `json:"effective_tier"`
}

// Middleware creates an HTTP middleware that denies requests below the
// required tier. Lookup failures deny: access is never granted on a guess.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Gate == nil {
		panic("tiergate/http: Config.Gate is required")
	}
	if config.GetUserID == nil {
		panic("tiergate/http: Config.GetUserID is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := config.GetUserID(r)
			if userID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			decision, err := config.Gate.Check(r.Context(), userID, config.RequiredTier)
			if err != nil {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
				return
			}

			if !decision.Allowed {
				if config.OnDenied != nil {
					config.OnDenied(w, r, decision)
				} else {
					writeDenied(w, decision)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HandlerFunc creates an HTTP middleware (HandlerFunc version).
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			middleware(next).ServeHTTP(w, r)
		}
	}
}

// RequireTier is a convenience wrapper for the common case of a gate, an
// extractor, and a minimum tier.
func RequireTier(gate *tiergate.Gate, required tiergate.Tier, getUserID UserIDExtractor) func(http.Handler) http.Handler {
	return Middleware(Config{
		Gate:         gate,
		GetUserID:    getUserID,
		RequiredTier: required,
	})
}

func writeDenied(w http.ResponseWriter, decision tiergate.Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(deniedResponse{
		Error:         "tier upgrade required",
		RequiredTier:  decision.RequiredTier.String(),
		EffectiveTier: decision.EffectiveTier.String(),
	})
}

// Common extractors for convenience

// HeaderUserID returns a UserIDExtractor reading a request header,
// typically set by an upstream authentication layer.
func HeaderUserID(header string) UserIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}
