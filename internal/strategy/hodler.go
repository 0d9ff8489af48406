package strategy

import (
	"context"

	"permsim/internal/domain"
	"permsim/internal/kernel"
	"permsim/pkg/utils"
)

// hodlerPhase is Hodler's Waiting/Holding/Closed state machine, the same
// shape as the teacher's state_machine.go ValidTransitions table applied to
// a single buy-and-hold position instead of an arbitrage pair.
type hodlerPhase uint8

const (
	hodlerWaiting hodlerPhase = iota
	hodlerHolding
	hodlerClosed
)

// Hodler waits until startDelayNs has elapsed, then opens one position on
// its first valid price sample after that and holds it until either
// takeProfitPct/stopLossPct is hit or holdDurationNs has elapsed since open,
// whichever comes first.
type Hodler struct {
	Base
	side                       domain.Side
	leverage                   uint32
	sizeTokens                 float64
	takeProfitPct, stopLossPct float64
	startDelayNs               uint64
	holdDurationNs             uint64

	phase      hodlerPhase
	entryPrice float64
	openedNs   uint64
}

// NewHodler builds a Hodler opening a Long at leverage 1 with no hold-time
// cap. Use NewHodlerWithParams for the full §4.6 parameter set (leverage,
// side, start_delay, hold_duration), which Institutional also builds on.
func NewHodler(base Base, sizeTokens, takeProfitPct, stopLossPct float64) *Hodler {
	return NewHodlerWithParams(base, domain.Long, 1, sizeTokens, takeProfitPct, stopLossPct, 0, 0)
}

// NewHodlerWithParams builds a Hodler entering side at leverage once
// startDelayNs has elapsed, closing on takeProfitPct/stopLossPct or after
// holdDurationNs (0 disables the hold-duration close, leaving TP/SL as the
// only exit).
func NewHodlerWithParams(base Base, side domain.Side, leverage uint32, sizeTokens, takeProfitPct, stopLossPct float64, startDelayNs, holdDurationNs uint64) *Hodler {
	if leverage == 0 {
		leverage = 1
	}
	return &Hodler{
		Base:           base,
		side:           side,
		leverage:       leverage,
		sizeTokens:     sizeTokens,
		takeProfitPct:  takeProfitPct,
		stopLossPct:    stopLossPct,
		startDelayNs:   startDelayNs,
		holdDurationNs: holdDurationNs,
	}
}

func (h *Hodler) Step(_ context.Context, now uint64, inbox []domain.Envelope) (kernel.StepResult, error) {
	if shutdownRequested(inbox) || h.phase == hodlerClosed {
		return kernel.StepResult{}, nil
	}

	if h.phase == hodlerWaiting && now < h.startDelayNs {
		return idle(h.wakeDelta)
	}

	tick, ok := h.sample(now)
	if !ok {
		return idle(h.wakeDelta)
	}
	mid := priceFloat(tick.PriceMid)

	var messages []kernel.OutMessage
	switch h.phase {
	case hodlerWaiting:
		messages = append(messages, h.marketIntent(h.side, domain.Open, tokensFromFloat(h.sizeTokens), h.leverage, now))
		h.phase = hodlerHolding
		h.entryPrice = mid
		h.openedNs = now
	case hodlerHolding:
		pnlPct := (mid - h.entryPrice) / h.entryPrice * 100
		if h.side == domain.Short {
			pnlPct = -pnlPct
		}
		heldLongEnough := h.holdDurationNs > 0 && now-h.openedNs >= h.holdDurationNs
		if pnlPct >= h.takeProfitPct || utils.IsStopLossHit(pnlPct, h.stopLossPct) || heldLongEnough {
			messages = append(messages, h.marketIntent(h.side, domain.Close, tokensFromFloat(h.sizeTokens), h.leverage, now))
			h.phase = hodlerClosed
		}
	}

	return kernel.StepResult{Messages: messages, NextWakeDelta: h.wakeDelta}, nil
}
