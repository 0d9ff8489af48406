package strategy

import (
	"context"

	"permsim/internal/domain"
	"permsim/internal/kernel"
	"permsim/pkg/utils"
)

// DefaultOffsetBps is used when a MeanReversion is built with a non-positive
// offset.
const DefaultOffsetBps = 10.0

// MeanReversion tracks a rolling window of mid prices and rests a Limit
// order offsetBps away from mid, on the side the deviation favors, once the
// window's average diverges from the latest sample by deviationPct. The
// entry's mirror-image exit is a TakeProfit armed at the window average as
// soon as the entry fills, closing once price reverts.
type MeanReversion struct {
	Base
	window       []float64
	windowSize   int
	deviationPct float64
	offsetBps    float64
	sizeTokens   float64

	pendingEntry domain.ClientOrderID
	pendingExit  domain.ClientOrderID
	inPosition   bool
	side         domain.Side
}

// NewMeanReversion builds a MeanReversion over windowSize samples.
func NewMeanReversion(base Base, windowSize int, deviationPct, offsetBps, sizeTokens float64) *MeanReversion {
	if windowSize <= 0 {
		windowSize = 20
	}
	if offsetBps <= 0 {
		offsetBps = DefaultOffsetBps
	}
	return &MeanReversion{Base: base, windowSize: windowSize, deviationPct: deviationPct, offsetBps: offsetBps, sizeTokens: sizeTokens}
}

func (m *MeanReversion) Step(_ context.Context, now uint64, inbox []domain.Envelope) (kernel.StepResult, error) {
	if shutdownRequested(inbox) {
		return kernel.StepResult{}, nil
	}

	if m.pendingExit != "" {
		if _, ok := m.book.Get(m.pendingExit); !ok {
			m.pendingExit = ""
			m.inPosition = false
		}
	}
	if m.pendingEntry != "" {
		if _, ok := m.book.Get(m.pendingEntry); !ok {
			m.pendingEntry = ""
			m.inPosition = true
		}
	}

	tick, ok := m.sample(now)
	if !ok {
		return idle(m.wakeDelta)
	}
	mid := priceFloat(tick.PriceMid)

	m.window = append(m.window, mid)
	if len(m.window) > m.windowSize {
		m.window = m.window[len(m.window)-m.windowSize:]
	}

	if m.inPosition && m.pendingExit == "" {
		avg := m.average()
		if avg > 0 {
			target := domain.NewPrice(int64(avg * 1e6))
			kind := domain.TakeProfit
			m.pendingExit = m.arm(kind, m.side, domain.Close, tokensFromFloat(m.sizeTokens), target, 1, now, nil)
		}
		return idle(m.wakeDelta)
	}

	if len(m.window) < m.windowSize || m.inPosition || m.pendingEntry != "" {
		return idle(m.wakeDelta)
	}

	avg := m.average()
	if avg <= 0 {
		return idle(m.wakeDelta)
	}
	deviation := (mid - avg) / avg * 100
	offset := mid * m.offsetBps / 10_000

	switch {
	case deviation <= -m.deviationPct:
		trigger := domain.NewPrice(int64((mid - offset) * 1e6))
		m.pendingEntry = m.arm(domain.Limit, domain.Long, domain.Open, tokensFromFloat(m.sizeTokens), trigger, 1, now, nil)
		m.side = domain.Long
	case deviation >= m.deviationPct:
		trigger := domain.NewPrice(int64((mid + offset) * 1e6))
		m.pendingEntry = m.arm(domain.Limit, domain.Short, domain.Open, tokensFromFloat(m.sizeTokens), trigger, 1, now, nil)
		m.side = domain.Short
	}

	return idle(m.wakeDelta)
}

func (m *MeanReversion) average() float64 {
	if len(m.window) == 0 {
		return 0
	}
	weights := make([]float64, len(m.window))
	for i := range weights {
		weights[i] = 1
	}
	return utils.CalculateWeightedAverage(m.window, weights)
}
