package strategy

import (
	"context"
	"testing"

	"permsim/internal/domain"
)

func TestInstitutional_Step_OpensAfterStartDelay(t *testing.T) {
	cache := seedCache(t, "ETH-USD", 100_000_000, 0)
	base := NewBase(1, 2, cache, nil, 1, "ETH-USD", 1000, nil)
	inst := NewInstitutional(base, domain.Long, 3, 50, 10, 5, 2000, 0)

	result, err := inst.Step(context.Background(), 1000, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 0 {
		t.Errorf("len(Messages) = %d, want 0 before start_delay elapses", len(result.Messages))
	}
	if inst.phase != hodlerWaiting {
		t.Errorf("phase = %v, want hodlerWaiting", inst.phase)
	}

	result, err = inst.Step(context.Background(), 2000, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1 once start_delay has elapsed", len(result.Messages))
	}
	intent := result.Messages[0].Payload.(domain.Intent)
	if intent.Leverage != 3 {
		t.Errorf("Leverage = %d, want 3", intent.Leverage)
	}
	if inst.phase != hodlerHolding {
		t.Errorf("phase = %v, want hodlerHolding", inst.phase)
	}
}

func TestInstitutional_Step_ClampsLeverageAboveCeiling(t *testing.T) {
	cache := seedCache(t, "ETH-USD", 100_000_000, 0)
	base := NewBase(1, 2, cache, nil, 1, "ETH-USD", 1000, nil)
	inst := NewInstitutional(base, domain.Long, 20, 50, 10, 5, 0, 0)

	result, err := inst.Step(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	intent := result.Messages[0].Payload.(domain.Intent)
	if intent.Leverage != MaxInstitutionalLeverage {
		t.Errorf("Leverage = %d, want clamped to %d", intent.Leverage, MaxInstitutionalLeverage)
	}
}

func TestInstitutional_Step_ClosesAfterHoldDuration(t *testing.T) {
	cache := seedCache(t, "ETH-USD", 100_000_000, 0)
	base := NewBase(1, 2, cache, nil, 1, "ETH-USD", 1000, nil)
	inst := NewInstitutional(base, domain.Long, 2, 50, 50, 50, 0, 5000)
	inst.phase = hodlerHolding
	inst.entryPrice = 100
	inst.openedNs = 0

	result, err := inst.Step(context.Background(), 5000, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1 once hold_duration has elapsed", len(result.Messages))
	}
	if inst.phase != hodlerClosed {
		t.Errorf("phase = %v, want hodlerClosed", inst.phase)
	}
}

func TestInstitutional_Step_ShutdownStopsEarly(t *testing.T) {
	cache := seedCache(t, "ETH-USD", 100_000_000, 0)
	base := NewBase(1, 2, cache, nil, 1, "ETH-USD", 1000, nil)
	inst := NewInstitutional(base, domain.Long, 2, 50, 10, 5, 0, 0)

	inbox := []domain.Envelope{{Payload: domain.Shutdown{}}}
	result, err := inst.Step(context.Background(), 0, inbox)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 0 {
		t.Errorf("len(Messages) = %d, want 0 on shutdown", len(result.Messages))
	}
	if inst.phase != hodlerWaiting {
		t.Errorf("phase = %v, want hodlerWaiting (no entry dispatched)", inst.phase)
	}
}
