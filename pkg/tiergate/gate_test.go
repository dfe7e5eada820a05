package tiergate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wardline/tiergate/pkg/tiergate"
	"github.com/wardline/tiergate/storage/memory"
)

func snapshot(tier tiergate.Tier, status tiergate.Status) *tiergate.Snapshot {
	return &tiergate.Snapshot{
		UserID:            "u1",
		BillingCustomerID: "cus_1",
		SubscriptionID:    "sub_1",
		Status:            status,
		Tier:              tier,
		UpdatedAt:         time.Now().UTC(),
	}
}

func TestAdmit_Monotonicity(t *testing.T) {
	tiers := []tiergate.Tier{tiergate.TierFree, tiergate.TierPro, tiergate.TierPremium}

	for _, held := range tiers {
		for _, required := range tiers {
			d := tiergate.Admit(snapshot(held, tiergate.StatusActive), required)
			want := held.Meets(required)
			if d.Allowed != want {
				t.Errorf("Admit(tier=%s, required=%s) = %v, want %v", held, required, d.Allowed, want)
			}
		}
	}
}

func TestAdmit_FailClosedOnAbsence(t *testing.T) {
	for _, required := range []tiergate.Tier{tiergate.TierPro, tiergate.TierPremium} {
		if tiergate.Admit(nil, required).Allowed {
			t.Errorf("nil snapshot must not satisfy required tier %s", required)
		}
	}
	if !tiergate.Admit(nil, tiergate.TierFree).Allowed {
		t.Error("nil snapshot must satisfy the free tier")
	}
}

func TestAdmit_LapsedStatusDowngradesEffectiveTier(t *testing.T) {
	lapsed := []tiergate.Status{
		tiergate.StatusPastDue,
		tiergate.StatusCanceled,
		tiergate.StatusIncomplete,
		tiergate.StatusNone,
	}

	for _, status := range lapsed {
		d := tiergate.Admit(snapshot(tiergate.TierPro, status), tiergate.TierPro)
		if d.Allowed {
			t.Errorf("status %s must not keep granting pro access", status)
		}
		if d.EffectiveTier != tiergate.TierFree {
			t.Errorf("status %s: effective tier = %s, want free", status, d.EffectiveTier)
		}
		if d.NominalTier != tiergate.TierPro {
			t.Errorf("status %s: nominal tier = %s, want pro (preserved for messaging)", status, d.NominalTier)
		}
	}
}

func TestAdmit_TrialingGrantsPaidAccess(t *testing.T) {
	d := tiergate.Admit(snapshot(tiergate.TierPremium, tiergate.StatusTrialing), tiergate.TierPremium)
	if !d.Allowed {
		t.Error("trialing premium user must pass a premium gate")
	}
}

func TestGate_Check(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	gate, err := tiergate.NewGate(store)
	if err != nil {
		t.Fatalf("NewGate failed: %v", err)
	}

	// Unknown user: deny paid, admit free.
	d, err := gate.Check(ctx, "ghost", tiergate.TierPro)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if d.Allowed {
		t.Error("unknown user must not pass a pro gate")
	}

	if err := store.SetSnapshot(ctx, snapshot(tiergate.TierPremium, tiergate.StatusActive)); err != nil {
		t.Fatalf("SetSnapshot failed: %v", err)
	}

	d, err = gate.Check(ctx, "u1", tiergate.TierPro)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !d.Allowed {
		t.Error("active premium user must pass a pro gate")
	}
}

func TestGate_CheckEmptyUserID(t *testing.T) {
	gate, err := tiergate.NewGate(memory.New())
	if err != nil {
		t.Fatalf("NewGate failed: %v", err)
	}

	d, err := gate.Check(context.Background(), "", tiergate.TierPro)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if d.Allowed {
		t.Error("anonymous caller must not pass a pro gate")
	}
}

type failingStore struct{}

func (failingStore) GetSnapshot(_ context.Context, _ string) (*tiergate.Snapshot, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) FindByCustomerID(_ context.Context, _ string) (*tiergate.Snapshot, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) SetSnapshot(_ context.Context, _ *tiergate.Snapshot) error {
	return errors.New("connection refused")
}

func TestGate_CheckStoreFailureDenies(t *testing.T) {
	gate, err := tiergate.NewGate(failingStore{})
	if err != nil {
		t.Fatalf("NewGate failed: %v", err)
	}

	d, err := gate.Check(context.Background(), "u1", tiergate.TierFree)
	if err == nil {
		t.Fatal("expected store error to surface")
	}
	if d.Allowed {
		t.Error("decision must deny when the store is unreachable")
	}
}

func TestNewGate_NilStore(t *testing.T) {
	if _, err := tiergate.NewGate(nil); !errors.Is(err, tiergate.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}
