package strategy

import (
	"context"

	"permsim/internal/domain"
	"permsim/internal/kernel"
)

// Grid rests a ladder of buy limits below and sell limits above the mid
// price, spaced stepPct apart. It re-centers — cancelling every rung and
// arming a fresh ladder — whenever mid has drifted more than one step away
// from the price it last centered on, keeping the ladder around the market
// as it moves; KeeperAgent fires individual rungs as price passes through
// them in between re-centers.
type Grid struct {
	Base
	levels     int
	stepPct    float64
	sizeTokens float64

	centered bool
	centerAt float64
	rungs    []domain.ClientOrderID
}

// NewGrid builds a Grid with the given number of rungs on each side.
func NewGrid(base Base, levels int, stepPct, sizeTokens float64) *Grid {
	if levels <= 0 {
		levels = 5
	}
	return &Grid{Base: base, levels: levels, stepPct: stepPct, sizeTokens: sizeTokens}
}

func (g *Grid) Step(_ context.Context, now uint64, inbox []domain.Envelope) (kernel.StepResult, error) {
	if shutdownRequested(inbox) {
		return kernel.StepResult{}, nil
	}

	tick, ok := g.sample(now)
	if !ok {
		return idle(g.wakeDelta)
	}
	mid := priceFloat(tick.PriceMid)

	if g.centered && g.centerAt > 0 {
		drift := (mid - g.centerAt) / g.centerAt * 100
		if drift < 0 {
			drift = -drift
		}
		if drift <= g.stepPct {
			return idle(g.wakeDelta)
		}
	}

	g.cancelRungs()

	size := tokensFromFloat(g.sizeTokens)
	for i := 1; i <= g.levels; i++ {
		buy := mid * (1 - g.stepPct/100*float64(i))
		sell := mid * (1 + g.stepPct/100*float64(i))
		g.rungs = append(g.rungs,
			g.arm(domain.Limit, domain.Long, domain.Open, size, domain.NewPrice(int64(buy*1e6)), 1, now, nil),
			g.arm(domain.Limit, domain.Short, domain.Open, size, domain.NewPrice(int64(sell*1e6)), 1, now, nil),
		)
	}
	g.centered = true
	g.centerAt = mid

	return idle(g.wakeDelta)
}

func (g *Grid) cancelRungs() {
	for _, id := range g.rungs {
		if g.book.Transition(id, domain.Cancelled) {
			g.book.Remove(id)
		}
	}
	g.rungs = g.rungs[:0]
}
