package strategy

import (
	"context"
	"testing"

	"permsim/internal/domain"
)

func TestHodler_Step_OpensOnFirstSample(t *testing.T) {
	cache := seedCache(t, "ETH-USD", 100_000_000, 0)
	base := NewBase(1, 2, cache, nil, 1, "ETH-USD", 1000, nil)
	h := NewHodler(base, 1, 10, 5)

	result, err := h.Step(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(result.Messages))
	}
	if h.phase != hodlerHolding {
		t.Errorf("phase = %v, want hodlerHolding", h.phase)
	}
}

func TestHodler_Step_ClosesOnTakeProfit(t *testing.T) {
	cache := seedCache(t, "ETH-USD", 100_000_000, 0)
	base := NewBase(1, 2, cache, nil, 1, "ETH-USD", 1000, nil)
	h := NewHodler(base, 1, 10, 5)
	h.phase = hodlerHolding
	h.entryPrice = 100

	cache.Put(domain.OracleTick{Symbol: "ETH-USD", PriceMid: domain.NewPrice(111_000_000), ReceivedNs: 1000})
	result, err := h.Step(context.Background(), 1000, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(result.Messages))
	}
	if h.phase != hodlerClosed {
		t.Errorf("phase = %v, want hodlerClosed", h.phase)
	}
}

func TestHodler_Step_ClosesOnStopLoss(t *testing.T) {
	cache := seedCache(t, "ETH-USD", 100_000_000, 0)
	base := NewBase(1, 2, cache, nil, 1, "ETH-USD", 1000, nil)
	h := NewHodler(base, 1, 10, 5)
	h.phase = hodlerHolding
	h.entryPrice = 100

	cache.Put(domain.OracleTick{Symbol: "ETH-USD", PriceMid: domain.NewPrice(94_000_000), ReceivedNs: 1000})
	result, err := h.Step(context.Background(), 1000, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(result.Messages))
	}
	if h.phase != hodlerClosed {
		t.Errorf("phase = %v, want hodlerClosed", h.phase)
	}
}

func TestHodler_Step_StaysClosedAfterwards(t *testing.T) {
	cache := seedCache(t, "ETH-USD", 100_000_000, 0)
	base := NewBase(1, 2, cache, nil, 1, "ETH-USD", 1000, nil)
	h := NewHodler(base, 1, 10, 5)
	h.phase = hodlerClosed

	result, err := h.Step(context.Background(), 2000, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 0 {
		t.Errorf("len(Messages) = %d, want 0 once closed", len(result.Messages))
	}
}

func TestHodler_Step_WaitsOutStartDelay(t *testing.T) {
	cache := seedCache(t, "ETH-USD", 100_000_000, 0)
	base := NewBase(1, 2, cache, nil, 1, "ETH-USD", 1000, nil)
	h := NewHodlerWithParams(base, domain.Long, 1, 1, 10, 5, 5000, 0)

	result, err := h.Step(context.Background(), 1000, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 0 {
		t.Errorf("len(Messages) = %d, want 0 before start_delay elapses", len(result.Messages))
	}
	if h.phase != hodlerWaiting {
		t.Errorf("phase = %v, want hodlerWaiting", h.phase)
	}

	result, err = h.Step(context.Background(), 5000, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1 once start_delay has elapsed", len(result.Messages))
	}
	if h.phase != hodlerHolding {
		t.Errorf("phase = %v, want hodlerHolding", h.phase)
	}
}

func TestHodler_Step_ClosesAfterHoldDuration(t *testing.T) {
	cache := seedCache(t, "ETH-USD", 100_000_000, 0)
	base := NewBase(1, 2, cache, nil, 1, "ETH-USD", 1000, nil)
	h := NewHodlerWithParams(base, domain.Long, 1, 1, 50, 50, 0, 10_000)
	h.phase = hodlerHolding
	h.entryPrice = 100
	h.openedNs = 0

	result, err := h.Step(context.Background(), 9_000, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 0 {
		t.Errorf("len(Messages) = %d, want 0 before hold_duration elapses", len(result.Messages))
	}

	result, err = h.Step(context.Background(), 10_000, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1 once hold_duration has elapsed", len(result.Messages))
	}
	if h.phase != hodlerClosed {
		t.Errorf("phase = %v, want hodlerClosed", h.phase)
	}
}

func TestHodler_Step_ShortSideEntersAndExitsOnTakeProfit(t *testing.T) {
	cache := seedCache(t, "ETH-USD", 100_000_000, 0)
	base := NewBase(1, 2, cache, nil, 1, "ETH-USD", 1000, nil)
	h := NewHodlerWithParams(base, domain.Short, 1, 1, 10, 5, 0, 0)

	result, err := h.Step(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	intent := result.Messages[0].Payload.(domain.Intent)
	if intent.Side != domain.Short {
		t.Errorf("Side = %v, want Short", intent.Side)
	}

	cache.Put(domain.OracleTick{Symbol: "ETH-USD", PriceMid: domain.NewPrice(89_000_000), ReceivedNs: 1000})
	result, err = h.Step(context.Background(), 1000, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1: a short profits when price falls", len(result.Messages))
	}
	if h.phase != hodlerClosed {
		t.Errorf("phase = %v, want hodlerClosed", h.phase)
	}
}
