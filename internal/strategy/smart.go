package strategy

import (
	"context"
	"math/big"

	"permsim/internal/domain"
	"permsim/internal/kernel"
)

// DefaultSmaPeriod is the lookback Smart uses for its SMA/RSI/ATR window
// when built with a non-positive period.
const DefaultSmaPeriod = 20

// Smart rests a Limit entry at the current mid once a 20-period SMA
// crossover fires and RSI confirms it isn't chasing an already-extended
// move (RSI < 30 gates a long crossover, RSI > 70 gates a short one), sized
// inversely to ATR so a choppier market gets a smaller clip for the same
// USD risk budget.
type Smart struct {
	Base
	period  int
	riskUSD float64
	window  []float64

	pendingEntry domain.ClientOrderID
	inPosition   bool
	side         domain.Side
}

// NewSmart builds a Smart trader with riskUSD as the notional target ATR
// sizing scales a single unit of volatility against.
func NewSmart(base Base, period int, riskUSD float64) *Smart {
	if period <= 0 {
		period = DefaultSmaPeriod
	}
	return &Smart{Base: base, period: period, riskUSD: riskUSD}
}

func (s *Smart) Step(_ context.Context, now uint64, inbox []domain.Envelope) (kernel.StepResult, error) {
	if shutdownRequested(inbox) {
		return kernel.StepResult{}, nil
	}

	if s.pendingEntry != "" {
		if _, ok := s.book.Get(s.pendingEntry); !ok {
			s.pendingEntry = ""
			s.inPosition = true
		}
	}

	tick, ok := s.sample(now)
	if !ok {
		return idle(s.wakeDelta)
	}
	mid := priceFloat(tick.PriceMid)

	s.window = append(s.window, mid)
	if len(s.window) > s.period+1 {
		s.window = s.window[len(s.window)-(s.period+1):]
	}
	if len(s.window) < s.period+1 {
		return idle(s.wakeDelta)
	}
	if s.pendingEntry != "" {
		return idle(s.wakeDelta)
	}

	prevSma := sma(s.window[:s.period])
	currSma := sma(s.window[1:])
	prevClose := s.window[s.period-1]
	currClose := s.window[s.period]
	crossUp := prevClose <= prevSma && currClose > currSma
	crossDown := prevClose >= prevSma && currClose < currSma

	rsi := relativeStrength(s.window)
	atr := averageTrueRange(s.window)

	switch {
	case !s.inPosition && crossUp && rsi < 30:
		s.side = domain.Long
		s.pendingEntry = s.arm(domain.Limit, domain.Long, domain.Open, atrSizedTokens(s.riskUSD, atr, mid), domain.NewPrice(int64(mid*1e6)), 1, now, nil)
	case !s.inPosition && crossDown && rsi > 70:
		s.side = domain.Short
		s.pendingEntry = s.arm(domain.Limit, domain.Short, domain.Open, atrSizedTokens(s.riskUSD, atr, mid), domain.NewPrice(int64(mid*1e6)), 1, now, nil)
	case s.inPosition && s.side == domain.Long && crossDown:
		s.inPosition = false
		s.pendingEntry = s.arm(domain.Limit, domain.Long, domain.Close, atrSizedTokens(s.riskUSD, atr, mid), domain.NewPrice(int64(mid*1e6)), 1, now, nil)
	case s.inPosition && s.side == domain.Short && crossUp:
		s.inPosition = false
		s.pendingEntry = s.arm(domain.Limit, domain.Short, domain.Close, atrSizedTokens(s.riskUSD, atr, mid), domain.NewPrice(int64(mid*1e6)), 1, now, nil)
	}

	return idle(s.wakeDelta)
}

func sma(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// relativeStrength computes RSI over the diffs in a window of period+1
// closes (the standard gains-over-losses oscillator, unsmoothed).
func relativeStrength(window []float64) float64 {
	var gain, loss float64
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	n := float64(len(window) - 1)
	avgGain, avgLoss := gain/n, loss/n
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// averageTrueRange approximates ATR as the mean absolute tick-to-tick move
// over the window, since strategies only see mid-price samples rather than
// full OHLC bars.
func averageTrueRange(window []float64) float64 {
	if len(window) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(len(window)-1)
}

// atrSizedTokens converts a USD risk budget into a token quantity, dividing
// by ATR so a choppier market (larger ATR) gets a proportionally smaller
// clip for the same dollar risk; a near-zero ATR falls back to pricing the
// budget at mid directly.
func atrSizedTokens(riskUSD, atr, mid float64) *big.Int {
	if atr <= 0 || mid <= 0 {
		return tokensFromFloat(riskUSD / mid)
	}
	units := riskUSD / atr
	return tokensFromFloat(units)
}
