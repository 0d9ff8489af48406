package strategy

import (
	"context"
	"math/big"
	"testing"

	"permsim/internal/chain/fakechain"
	"permsim/internal/domain"
	"permsim/internal/pricecache"
)

func seedCache(t *testing.T, symbol domain.Symbol, mid int64, receivedNs uint64) *pricecache.Cache {
	t.Helper()
	cache := pricecache.New(1_000_000)
	cache.Put(domain.OracleTick{
		Symbol:     symbol,
		PriceMin:   domain.NewPrice(mid - 1_000_000),
		PriceMax:   domain.NewPrice(mid + 1_000_000),
		PriceMid:   domain.NewPrice(mid),
		PublishNs:  receivedNs,
		ReceivedNs: receivedNs,
	})
	return cache
}

func TestMarketMaker_Step_SeedsLongAndShortOnFirstWake(t *testing.T) {
	backend := fakechain.New()
	mirror := newMirror(t, backend, []domain.Symbol{"ETH-USD"})
	cache := pricecache.New(1_000_000)
	base := NewBase(1, 99, cache, nil, 42, "ETH-USD", 1000, nil)
	mm := NewMarketMaker(base, mirror, 10, 1, 0.1)

	result, err := mm.Step(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 2 {
		t.Fatalf("len(Messages) = %d, want 2", len(result.Messages))
	}
	first := result.Messages[0].Payload.(domain.Intent)
	second := result.Messages[1].Payload.(domain.Intent)
	if first.Side != domain.Long || second.Side != domain.Short {
		t.Errorf("sides = %v/%v, want Long then Short", first.Side, second.Side)
	}
	if first.Action != domain.Open || second.Action != domain.Open {
		t.Errorf("actions = %v/%v, want Open/Open", first.Action, second.Action)
	}
}

func TestMarketMaker_Step_SeedsDeficientSideOnImbalance(t *testing.T) {
	backend := fakechain.New()
	backend.SetMarket(domain.MarketState{
		Symbol:     "ETH-USD",
		OILongUSD:  big.NewInt(10_000),
		OIShortUSD: big.NewInt(1_000),
	})
	mirror := newMirror(t, backend, []domain.Symbol{"ETH-USD"})
	if _, err := mirror.Step(context.Background(), 0, nil); err != nil {
		t.Fatalf("mirror.Step() error = %v", err)
	}

	cache := pricecache.New(1_000_000)
	base := NewBase(1, 99, cache, nil, 42, "ETH-USD", 1000, nil)
	mm := NewMarketMaker(base, mirror, 10, 1, 0.1)
	mm.seeded = true

	result, err := mm.Step(context.Background(), 1000, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(result.Messages))
	}
	intent := result.Messages[0].Payload.(domain.Intent)
	if intent.Side != domain.Short {
		t.Errorf("Side = %v, want Short (deficient side)", intent.Side)
	}
}

func TestMarketMaker_Step_BalancedMarketIdles(t *testing.T) {
	backend := fakechain.New()
	backend.SetMarket(domain.MarketState{
		Symbol:     "ETH-USD",
		OILongUSD:  big.NewInt(10_000),
		OIShortUSD: big.NewInt(9_500),
	})
	mirror := newMirror(t, backend, []domain.Symbol{"ETH-USD"})
	if _, err := mirror.Step(context.Background(), 0, nil); err != nil {
		t.Fatalf("mirror.Step() error = %v", err)
	}

	cache := pricecache.New(1_000_000)
	base := NewBase(1, 99, cache, nil, 42, "ETH-USD", 1000, nil)
	mm := NewMarketMaker(base, mirror, 10, 1, 0.1)
	mm.seeded = true

	result, err := mm.Step(context.Background(), 1000, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 0 {
		t.Errorf("len(Messages) = %d, want 0 for balanced market", len(result.Messages))
	}
}

func TestMarketMaker_Step_ShutdownSkipsSeeding(t *testing.T) {
	backend := fakechain.New()
	mirror := newMirror(t, backend, []domain.Symbol{"ETH-USD"})
	cache := pricecache.New(1_000_000)
	base := NewBase(1, 99, cache, nil, 42, "ETH-USD", 1000, nil)
	mm := NewMarketMaker(base, mirror, 10, 1, 0.1)

	inbox := []domain.Envelope{{Payload: domain.Shutdown{}}}
	result, err := mm.Step(context.Background(), 0, inbox)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if result.NextWakeDelta != 0 || len(result.Messages) != 0 {
		t.Errorf("result = %+v, want zero-value on shutdown", result)
	}
	if mm.seeded {
		t.Error("expected seeded to remain false after shutdown")
	}
}
