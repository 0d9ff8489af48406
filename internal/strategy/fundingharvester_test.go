package strategy

import (
	"context"
	"testing"

	"permsim/internal/chain"
	"permsim/internal/chain/fakechain"
	"permsim/internal/clock"
	"permsim/internal/domain"
	"permsim/internal/eventbus"
	"permsim/internal/exchangeagent"
	"permsim/internal/pricecache"
)

func newMirror(t *testing.T, backend *fakechain.Backend, symbols []domain.Symbol) *exchangeagent.Agent {
	t.Helper()
	bus := eventbus.New(0, nil, nil)
	client := chain.New(backend, clock.Fast, 100_000, 1, nil, nil)
	return exchangeagent.New(99, client, bus, symbols, 1000, 1000, nil)
}

func TestFundingHarvester_Step_OpensShortOnPositiveRate(t *testing.T) {
	backend := fakechain.New()
	backend.SetMarket(domain.MarketState{Symbol: "ETH-USD", FundingRatePerHour: 0.01})
	mirror := newMirror(t, backend, []domain.Symbol{"ETH-USD"})
	if _, err := mirror.Step(context.Background(), 0, nil); err != nil {
		t.Fatalf("mirror.Step() error = %v", err)
	}

	cache := pricecache.New(1_000_000)
	base := NewBase(1, 99, cache, nil, 1, "ETH-USD", 1000, nil)
	harvester := NewFundingHarvester(base, mirror, 1, 0.005, 0.0025, 0)

	result, err := harvester.Step(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(result.Messages))
	}
	intent := result.Messages[0].Payload.(domain.Intent)
	if intent.Side != domain.Short {
		t.Errorf("Side = %v, want Short", intent.Side)
	}
	if !harvester.inPosition {
		t.Error("expected inPosition after entry")
	}
}

func TestFundingHarvester_Step_OpensLongOnNegativeRate(t *testing.T) {
	backend := fakechain.New()
	backend.SetMarket(domain.MarketState{Symbol: "ETH-USD", FundingRatePerHour: -0.01})
	mirror := newMirror(t, backend, []domain.Symbol{"ETH-USD"})
	if _, err := mirror.Step(context.Background(), 0, nil); err != nil {
		t.Fatalf("mirror.Step() error = %v", err)
	}

	cache := pricecache.New(1_000_000)
	base := NewBase(1, 99, cache, nil, 1, "ETH-USD", 1000, nil)
	harvester := NewFundingHarvester(base, mirror, 1, 0.005, 0.0025, 0)

	result, err := harvester.Step(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	intent := result.Messages[0].Payload.(domain.Intent)
	if intent.Side != domain.Long {
		t.Errorf("Side = %v, want Long", intent.Side)
	}
}

func TestFundingHarvester_Step_ClosesOnceRateDecays(t *testing.T) {
	backend := fakechain.New()
	backend.SetMarket(domain.MarketState{Symbol: "ETH-USD", FundingRatePerHour: 0.01})
	mirror := newMirror(t, backend, []domain.Symbol{"ETH-USD"})
	if _, err := mirror.Step(context.Background(), 0, nil); err != nil {
		t.Fatalf("mirror.Step() error = %v", err)
	}

	cache := pricecache.New(1_000_000)
	base := NewBase(1, 99, cache, nil, 1, "ETH-USD", 1000, nil)
	harvester := NewFundingHarvester(base, mirror, 1, 0.005, 0.0025, 0)
	harvester.inPosition = true
	harvester.side = domain.Short
	harvester.openedNs = 0

	backend.SetMarket(domain.MarketState{Symbol: "ETH-USD", FundingRatePerHour: 0.001})
	if _, err := mirror.Step(context.Background(), 1000, nil); err != nil {
		t.Fatalf("mirror.Step() second error = %v", err)
	}

	result, err := harvester.Step(context.Background(), 1000, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(result.Messages))
	}
	if harvester.inPosition {
		t.Error("expected inPosition cleared after exit")
	}
}

func TestFundingHarvester_Step_ClosesAfterMaxHold(t *testing.T) {
	backend := fakechain.New()
	backend.SetMarket(domain.MarketState{Symbol: "ETH-USD", FundingRatePerHour: 0.01})
	mirror := newMirror(t, backend, []domain.Symbol{"ETH-USD"})
	if _, err := mirror.Step(context.Background(), 0, nil); err != nil {
		t.Fatalf("mirror.Step() error = %v", err)
	}

	cache := pricecache.New(1_000_000)
	base := NewBase(1, 99, cache, nil, 1, "ETH-USD", 1000, nil)
	harvester := NewFundingHarvester(base, mirror, 1, 0.005, 0.0025, 5000)
	harvester.inPosition = true
	harvester.side = domain.Short
	harvester.openedNs = 0

	// Rate stays well above the exit threshold, so only max_hold can close it.
	result, err := harvester.Step(context.Background(), 5000, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1 once max_hold_ns elapses", len(result.Messages))
	}
	if harvester.inPosition {
		t.Error("expected inPosition cleared by the max-hold timer")
	}
}

func TestFundingHarvester_Step_NoMarketIdles(t *testing.T) {
	backend := fakechain.New()
	mirror := newMirror(t, backend, nil)

	cache := pricecache.New(1_000_000)
	base := NewBase(1, 99, cache, nil, 1, "ETH-USD", 1000, nil)
	harvester := NewFundingHarvester(base, mirror, 1, 0.005, 0.0025, 0)

	result, err := harvester.Step(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 0 {
		t.Errorf("len(Messages) = %d, want 0 with no market mirrored", len(result.Messages))
	}
}
