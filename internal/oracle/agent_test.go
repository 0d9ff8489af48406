package oracle

import (
	"context"
	"errors"
	"testing"

	"permsim/internal/domain"
	"permsim/internal/eventbus"
	"permsim/internal/pricecache"
)

type fakeProvider struct {
	samples []Sample
	err     error
}

func (f *fakeProvider) Fetch(ctx context.Context, symbols []domain.Symbol) ([]Sample, error) {
	return f.samples, f.err
}

func TestAgent_Step_PublishesTickAndFillsCache(t *testing.T) {
	cache := pricecache.New(10_000)
	bus := eventbus.New(0, nil, nil)
	sub := bus.Subscribe(4)

	provider := &fakeProvider{samples: []Sample{
		{Symbol: "ETH-USD", PriceMin: domain.NewPrice(99_000_000), PriceMax: domain.NewPrice(101_000_000), PublishNs: 1},
	}}
	agent := New(1, provider, cache, bus, []domain.Symbol{"ETH-USD"}, 1000, nil)

	result, err := agent.Step(context.Background(), 500, nil)
	if err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if result.NextWakeDelta != 1000 {
		t.Errorf("NextWakeDelta = %d, want 1000", result.NextWakeDelta)
	}

	if _, ok := cache.Get("ETH-USD", 500); !ok {
		t.Error("expected cache to hold a fresh ETH-USD sample")
	}

	select {
	case ev := <-sub.Events():
		if ev.EventName() != "OracleTick" {
			t.Errorf("event = %s, want OracleTick", ev.EventName())
		}
	default:
		t.Error("expected an OracleTick to be published")
	}
}

func TestAgent_Step_FetchFailureDoesNotUpdateCache(t *testing.T) {
	cache := pricecache.New(10_000)
	bus := eventbus.New(0, nil, nil)

	provider := &fakeProvider{err: errors.New("boom")}
	agent := New(1, provider, cache, bus, []domain.Symbol{"ETH-USD"}, 1000, nil)

	if _, err := agent.Step(context.Background(), 500, nil); err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if _, ok := cache.Get("ETH-USD", 500); ok {
		t.Error("cache should not be updated on fetch failure")
	}
}

func TestAgent_Step_ThreeConsecutiveFailuresDegrade(t *testing.T) {
	cache := pricecache.New(10_000)
	bus := eventbus.New(0, nil, nil)
	sub := bus.Subscribe(8)

	provider := &fakeProvider{err: errors.New("boom")}
	agent := New(1, provider, cache, bus, []domain.Symbol{"ETH-USD"}, 1000, nil)

	for i := 0; i < 3; i++ {
		if _, err := agent.Step(context.Background(), uint64(i)*1000, nil); err != nil {
			t.Fatalf("Step returned error: %v", err)
		}
	}

	found := false
	for i := 0; i < 3; i++ {
		select {
		case ev := <-sub.Events():
			if ev.EventName() == "OracleDegraded" {
				found = true
			}
		default:
		}
	}
	if !found {
		t.Error("expected OracleDegraded after three consecutive failures")
	}
}

func TestAgent_Step_ShutdownSkipsFetch(t *testing.T) {
	cache := pricecache.New(10_000)
	bus := eventbus.New(0, nil, nil)
	provider := &fakeProvider{err: errors.New("should not be called if we skip")}
	agent := New(1, provider, cache, bus, []domain.Symbol{"ETH-USD"}, 1000, nil)

	inbox := []domain.Envelope{{Payload: domain.Shutdown{}}}
	result, err := agent.Step(context.Background(), 0, inbox)
	if err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if result.NextWakeDelta != 1000 {
		t.Errorf("NextWakeDelta = %d, want 1000", result.NextWakeDelta)
	}
}
