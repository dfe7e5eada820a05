package fiber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/wardline/tiergate/pkg/tiergate"
	"github.com/wardline/tiergate/storage/memory"
)

func setupGate(t *testing.T, store tiergate.SnapshotStore) *tiergate.Gate {
	t.Helper()
	gate, err := tiergate.NewGate(store)
	if err != nil {
		t.Fatalf("Failed to create gate: %v", err)
	}
	return gate
}

func setupSnapshot(t *testing.T, store tiergate.SnapshotStore, userID string, tier tiergate.Tier, status tiergate.Status) {
	t.Helper()
	err := store.SetSnapshot(context.Background(), &tiergate.Snapshot{
		UserID:    userID,
		Status:    status,
		Tier:      tier,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Failed to set snapshot: %v", err)
	}
}

func headerUserID(c *fiber.Ctx) string {
	return c.Get("X-User-ID")
}

func runRequest(t *testing.T, handler fiber.Handler, userID string) *http.Response {
	t.Helper()

	app := fiber.New()
	app.Get("/premium", handler, func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/premium", http.NoBody)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	return resp
}

func TestMiddleware_AllowsSufficientTier(t *testing.T) {
	store := memory.New()
	setupSnapshot(t, store, "u1", tiergate.TierPremium, tiergate.StatusActive)

	handler := RequireTier(setupGate(t, store), tiergate.TierPremium, headerUserID)

	resp := runRequest(t, handler, "u1")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestMiddleware_DeniesInsufficientTier(t *testing.T) {
	store := memory.New()
	setupSnapshot(t, store, "u1", tiergate.TierFree, tiergate.StatusNone)

	handler := RequireTier(setupGate(t, store), tiergate.TierPro, headerUserID)

	resp := runRequest(t, handler, "u1")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestMiddleware_DeniesCanceledSubscription(t *testing.T) {
	store := memory.New()
	setupSnapshot(t, store, "u1", tiergate.TierPro, tiergate.StatusCanceled)

	handler := RequireTier(setupGate(t, store), tiergate.TierPro, headerUserID)

	resp := runRequest(t, handler, "u1")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403 for canceled subscription", resp.StatusCode)
	}
}

func TestMiddleware_Unauthorized(t *testing.T) {
	store := memory.New()
	handler := RequireTier(setupGate(t, store), tiergate.TierPro, headerUserID)

	resp := runRequest(t, handler, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}
