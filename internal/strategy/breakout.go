package strategy

import (
	"context"

	"permsim/internal/domain"
	"permsim/internal/kernel"
)

// Breakout tracks a rolling high/low over a window of mid prices and rests a
// Stop order beyond the prior window's high or low by breakoutPct, betting
// momentum carries price through the level. Once the entry fills it arms a
// StopLoss exit back at the level it broke, closing if the breakout fails
// and price falls back inside the range.
type Breakout struct {
	Base
	window      []float64
	windowSize  int
	breakoutPct float64
	sizeTokens  float64

	pendingEntry domain.ClientOrderID
	pendingExit  domain.ClientOrderID
	inPosition   bool
	side         domain.Side
	exitLevel    float64
}

// NewBreakout builds a Breakout over windowSize samples.
func NewBreakout(base Base, windowSize int, breakoutPct, sizeTokens float64) *Breakout {
	if windowSize <= 0 {
		windowSize = 20
	}
	return &Breakout{Base: base, windowSize: windowSize, breakoutPct: breakoutPct, sizeTokens: sizeTokens}
}

func (b *Breakout) Step(_ context.Context, now uint64, inbox []domain.Envelope) (kernel.StepResult, error) {
	if shutdownRequested(inbox) {
		return kernel.StepResult{}, nil
	}

	if b.pendingExit != "" {
		if _, ok := b.book.Get(b.pendingExit); !ok {
			b.pendingExit = ""
			b.inPosition = false
		}
	}
	if b.pendingEntry != "" {
		if _, ok := b.book.Get(b.pendingEntry); !ok {
			b.pendingEntry = ""
			b.inPosition = true
		}
	}

	tick, ok := b.sample(now)
	if !ok {
		return idle(b.wakeDelta)
	}
	mid := priceFloat(tick.PriceMid)

	b.window = append(b.window, mid)
	if len(b.window) > b.windowSize {
		b.window = b.window[len(b.window)-b.windowSize:]
	}

	if b.inPosition && b.pendingExit == "" {
		trigger := domain.NewPrice(int64(b.exitLevel * 1e6))
		b.pendingExit = b.arm(domain.StopLoss, b.side, domain.Close, tokensFromFloat(b.sizeTokens), trigger, 1, now, nil)
		return idle(b.wakeDelta)
	}

	if len(b.window) < b.windowSize || b.inPosition || b.pendingEntry != "" {
		return idle(b.wakeDelta)
	}

	prior := b.window[:len(b.window)-1]
	high, low := prior[0], prior[0]
	for _, v := range prior {
		if v > high {
			high = v
		}
		if v < low {
			low = v
		}
	}

	// Whichever side mid sits closer to decides which level the next wake's
	// breakout order watches; a symmetric two-sided bracket would double the
	// book's churn for no added coverage since only one direction can fill.
	if mid-low <= high-mid {
		trigger := domain.NewPrice(int64(low * (1 - b.breakoutPct/100) * 1e6))
		b.pendingEntry = b.arm(domain.Stop, domain.Short, domain.Open, tokensFromFloat(b.sizeTokens), trigger, 1, now, nil)
		b.side = domain.Short
		b.exitLevel = low
	} else {
		trigger := domain.NewPrice(int64(high * (1 + b.breakoutPct/100) * 1e6))
		b.pendingEntry = b.arm(domain.Stop, domain.Long, domain.Open, tokensFromFloat(b.sizeTokens), trigger, 1, now, nil)
		b.side = domain.Long
		b.exitLevel = high
	}

	return idle(b.wakeDelta)
}
