package pricecache

import (
	"testing"

	"permsim/internal/domain"
)

func sample(symbol domain.Symbol, receivedNs uint64) domain.OracleTick {
	return domain.OracleTick{
		Symbol:     symbol,
		PriceMin:   domain.NewPrice(99_000_000),
		PriceMax:   domain.NewPrice(101_000_000),
		PriceMid:   domain.NewPrice(100_000_000),
		PublishNs:  receivedNs,
		ReceivedNs: receivedNs,
	}
}

func TestCache_GetFresh(t *testing.T) {
	c := New(1000)
	c.Put(sample("ETH-USD", 100))

	got, ok := c.Get("ETH-USD", 500)
	if !ok {
		t.Fatal("expected fresh hit")
	}
	if got.Symbol != "ETH-USD" {
		t.Errorf("symbol = %v, want ETH-USD", got.Symbol)
	}
}

func TestCache_GetStale(t *testing.T) {
	c := New(1000)
	c.Put(sample("ETH-USD", 100))

	_, ok := c.Get("ETH-USD", 2000)
	if ok {
		t.Fatal("expected stale miss past TTL")
	}
}

func TestCache_GetMissing(t *testing.T) {
	c := New(1000)
	if _, ok := c.Get("BTC-USD", 0); ok {
		t.Fatal("expected miss for unknown symbol")
	}
}

func TestCache_DefaultTTL(t *testing.T) {
	c := New(0)
	if c.ttlNs != DefaultTTL {
		t.Errorf("ttlNs = %d, want default %d", c.ttlNs, DefaultTTL)
	}
}

func TestCache_Symbols(t *testing.T) {
	c := New(1000)
	c.Put(sample("ETH-USD", 0))
	c.Put(sample("BTC-USD", 0))

	symbols := c.Symbols()
	if len(symbols) != 2 {
		t.Fatalf("len(Symbols()) = %d, want 2", len(symbols))
	}
}
