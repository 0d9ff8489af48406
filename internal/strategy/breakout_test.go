package strategy

import (
	"context"
	"testing"

	"permsim/internal/domain"
	"permsim/internal/pendingbook"
	"permsim/internal/pricecache"
)

func fillBreakoutWindow(t *testing.T, b *Breakout, cache *pricecache.Cache, mids []int64) {
	t.Helper()
	for i, mid := range mids {
		now := uint64(i) * 1000
		cache.Put(domain.OracleTick{Symbol: "ETH-USD", PriceMid: domain.NewPrice(mid), ReceivedNs: now})
		if _, err := b.Step(context.Background(), now, nil); err != nil {
			t.Fatalf("Step() %d error = %v", i, err)
		}
	}
}

func TestBreakout_Step_ArmsLongStopAboveHigh(t *testing.T) {
	cache := pricecache.New(10_000_000)
	book := pendingbook.New()
	base := NewBase(1, 2, cache, book, 1, "ETH-USD", 1000, nil)
	b := NewBreakout(base, 4, 1, 1)

	fillBreakoutWindow(t, b, cache, []int64{100_000_000, 100_000_000, 100_000_000})

	now := uint64(3) * 1000
	cache.Put(domain.OracleTick{Symbol: "ETH-USD", PriceMid: domain.NewPrice(110_000_000), ReceivedNs: now})
	if _, err := b.Step(context.Background(), now, nil); err != nil {
		t.Fatalf("Step() error = %v", err)
	}

	if b.pendingEntry == "" {
		t.Fatal("expected an entry order armed once the window fills")
	}
	order, ok := book.Get(b.pendingEntry)
	if !ok {
		t.Fatal("expected entry order present in book")
	}
	if order.Side != domain.Long || order.Kind != domain.Stop {
		t.Errorf("order = %+v, want Long Stop above the prior window's high", order)
	}
}

func TestBreakout_Step_EntryFillArmsStopLossExit(t *testing.T) {
	cache := pricecache.New(10_000_000)
	book := pendingbook.New()
	base := NewBase(1, 2, cache, book, 1, "ETH-USD", 1000, nil)
	b := NewBreakout(base, 3, 1, 1)
	b.window = []float64{100, 100, 110}
	b.exitLevel = 100
	b.side = domain.Long
	b.pendingEntry = b.arm(domain.Stop, domain.Long, domain.Open, tokensFromFloat(1), domain.NewPrice(101_000_000), 1, 0, nil)

	book.Transition(b.pendingEntry, domain.Triggered)
	book.Remove(b.pendingEntry)

	cache.Put(domain.OracleTick{Symbol: "ETH-USD", PriceMid: domain.NewPrice(105_000_000), ReceivedNs: 1000})
	result, err := b.Step(context.Background(), 1000, nil)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if len(result.Messages) != 0 {
		t.Errorf("len(Messages) = %d, want 0 (exit rests, does not dispatch)", len(result.Messages))
	}
	if !b.inPosition {
		t.Error("expected inPosition set once entry fill detected")
	}
	if b.pendingExit == "" {
		t.Fatal("expected a StopLoss exit armed once in position")
	}
	exit, ok := book.Get(b.pendingExit)
	if !ok {
		t.Fatal("expected exit order present in book")
	}
	if exit.Kind != domain.StopLoss || exit.Action != domain.Close {
		t.Errorf("exit = %+v, want StopLoss/Close", exit)
	}
}

func TestBreakout_Step_ExitFillClearsPosition(t *testing.T) {
	cache := pricecache.New(10_000_000)
	book := pendingbook.New()
	base := NewBase(1, 2, cache, book, 1, "ETH-USD", 1000, nil)
	b := NewBreakout(base, 3, 1, 1)
	b.window = []float64{100, 100, 110}
	b.inPosition = true
	b.side = domain.Long
	b.pendingExit = b.arm(domain.StopLoss, domain.Long, domain.Close, tokensFromFloat(1), domain.NewPrice(100_000_000), 1, 0, nil)

	book.Transition(b.pendingExit, domain.Triggered)
	book.Remove(b.pendingExit)

	cache.Put(domain.OracleTick{Symbol: "ETH-USD", PriceMid: domain.NewPrice(95_000_000), ReceivedNs: 1000})
	if _, err := b.Step(context.Background(), 1000, nil); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if b.inPosition {
		t.Error("expected inPosition cleared on exit fill")
	}
}
