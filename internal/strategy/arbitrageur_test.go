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

func arbitrageurMirror(t *testing.T, symbol domain.Symbol, markMicroUSD int64) *exchangeagent.Agent {
	t.Helper()
	backend := fakechain.New()
	backend.SetMarket(domain.MarketState{Symbol: symbol, MarkPrice: domain.NewPrice(markMicroUSD)})
	bus := eventbus.New(0, nil, nil)
	client := chain.New(backend, clock.Fast, 100_000, 1, nil, nil)
	mirror := exchangeagent.New(99, client, bus, []domain.Symbol{symbol}, 1000, 1000, nil)
	if _, err := mirror.Step(context.Background(), 0, nil); err != nil {
		t.Fatalf("mirror.Step() error = %v", err)
	}
	return mirror
}

func TestArbitrageur_Step_OpensOnWideOracleExchangeSpread(t *testing.T) {
	cache := pricecache.New(1_000_000)
	cache.Put(domain.OracleTick{
		Symbol:   "ETH-USD",
		PriceMin: domain.NewPrice(104_000_000),
		PriceMax: domain.NewPrice(106_000_000),
		PriceMid: domain.NewPrice(105_000_000), // P_o = 105
	})
	mirror := arbitrageurMirror(t, "ETH-USD", 100_000_000) // P_x = 100, 5% below P_o
	base := NewBase(1, 99, cache, nil, 1, "ETH-USD", 1000, nil)
	arb := NewArbitrageur(base, mirror, 1, 0.1, 1)

	result, err := arb.Step(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(result.Messages))
	}
	intent := result.Messages[0].Payload.(domain.Intent)
	if intent.Side != domain.Long {
		t.Errorf("Side = %v, want Long (exchange cheaper than oracle)", intent.Side)
	}
	if !arb.inPosition {
		t.Error("expected inPosition after entry")
	}
}

func TestArbitrageur_Step_OpensShortWhenExchangeRichToOracle(t *testing.T) {
	cache := pricecache.New(1_000_000)
	cache.Put(domain.OracleTick{
		Symbol:   "ETH-USD",
		PriceMin: domain.NewPrice(99_000_000),
		PriceMax: domain.NewPrice(101_000_000),
		PriceMid: domain.NewPrice(100_000_000), // P_o = 100
	})
	mirror := arbitrageurMirror(t, "ETH-USD", 105_000_000) // P_x = 105, 5% above P_o
	base := NewBase(1, 99, cache, nil, 1, "ETH-USD", 1000, nil)
	arb := NewArbitrageur(base, mirror, 1, 0.1, 1)

	result, err := arb.Step(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	intent := result.Messages[0].Payload.(domain.Intent)
	if intent.Side != domain.Short {
		t.Errorf("Side = %v, want Short (exchange richer than oracle)", intent.Side)
	}
}

func TestArbitrageur_Step_ClosesOnNarrowSpread(t *testing.T) {
	cache := pricecache.New(1_000_000)
	cache.Put(domain.OracleTick{
		Symbol:   "ETH-USD",
		PriceMin: domain.NewPrice(99_950_000),
		PriceMax: domain.NewPrice(100_050_000),
		PriceMid: domain.NewPrice(100_000_000),
	})
	mirror := arbitrageurMirror(t, "ETH-USD", 100_050_000) // 0.05% apart
	base := NewBase(1, 99, cache, nil, 1, "ETH-USD", 1000, nil)
	arb := NewArbitrageur(base, mirror, 1, 0.1, 1)
	arb.inPosition = true
	arb.side = domain.Long

	result, err := arb.Step(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("len(Messages) = %d, want 1", len(result.Messages))
	}
	if arb.inPosition {
		t.Error("expected inPosition cleared after exit")
	}
}

func TestArbitrageur_Step_NoStaleSampleIdles(t *testing.T) {
	cache := pricecache.New(1_000_000)
	mirror := arbitrageurMirror(t, "ETH-USD", 100_000_000)
	base := NewBase(1, 99, cache, nil, 1, "ETH-USD", 1000, nil)
	arb := NewArbitrageur(base, mirror, 1, 0.1, 1)

	result, err := arb.Step(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 0 {
		t.Errorf("len(Messages) = %d, want 0 with no sample", len(result.Messages))
	}
}

func TestArbitrageur_Step_NoMirroredMarketIdles(t *testing.T) {
	cache := pricecache.New(1_000_000)
	cache.Put(domain.OracleTick{
		Symbol:   "ETH-USD",
		PriceMin: domain.NewPrice(99_000_000),
		PriceMax: domain.NewPrice(101_000_000),
		PriceMid: domain.NewPrice(100_000_000),
	})
	backend := fakechain.New()
	bus := eventbus.New(0, nil, nil)
	client := chain.New(backend, clock.Fast, 100_000, 1, nil, nil)
	mirror := exchangeagent.New(99, client, bus, nil, 1000, 1000, nil)
	base := NewBase(1, 99, cache, nil, 1, "ETH-USD", 1000, nil)
	arb := NewArbitrageur(base, mirror, 1, 0.1, 1)

	result, err := arb.Step(context.Background(), 0, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 0 {
		t.Errorf("len(Messages) = %d, want 0 with no mirrored market", len(result.Messages))
	}
}
