package strategy

import (
	"context"

	"permsim/internal/domain"
	"permsim/internal/exchangeagent"
	"permsim/internal/kernel"
	"permsim/pkg/utils"
)

// Arbitrageur compares the oracle's own mid price P_o against the exchange's
// mark price P_x — the price its own last fill on this symbol actually
// settled at, mirrored from the ExchangeAgent rather than resampled from the
// same oracle feed. A spread between the two wide enough relative to either
// price is treated as a mispricing worth entering, closed once the spread
// narrows back below an exit threshold. Grounded on arbitrage.go's
// entry_spread/exit_spread gate, adapted from a two-exchange-leg spread to
// this simulator's oracle-vs-exchange spread.
type Arbitrageur struct {
	Base
	mirror         *exchangeagent.Agent
	entrySpreadPct float64
	exitSpreadPct  float64
	sizeTokens     float64

	inPosition bool
	side       domain.Side
}

// NewArbitrageur builds an Arbitrageur reading the exchange's mark price
// from mirror and entering at entrySpreadPct and exiting at exitSpreadPct
// (both percent, §3's net_spread convention).
func NewArbitrageur(base Base, mirror *exchangeagent.Agent, entrySpreadPct, exitSpreadPct, sizeTokens float64) *Arbitrageur {
	return &Arbitrageur{Base: base, mirror: mirror, entrySpreadPct: entrySpreadPct, exitSpreadPct: exitSpreadPct, sizeTokens: sizeTokens}
}

func (a *Arbitrageur) Step(_ context.Context, now uint64, inbox []domain.Envelope) (kernel.StepResult, error) {
	if shutdownRequested(inbox) {
		return kernel.StepResult{}, nil
	}

	tick, ok := a.sample(now)
	if !ok {
		return idle(a.wakeDelta)
	}
	market, ok := a.mirror.Market(a.symbol)
	if !ok || market.MarkPrice == nil {
		return idle(a.wakeDelta)
	}

	oracleMid := priceFloat(tick.PriceMid)
	exchangeMark := priceFloat(market.MarkPrice)
	spreadPct := utils.CalculateSpreadFromPrices(oracleMid, exchangeMark)

	var messages []kernel.OutMessage
	switch {
	case !a.inPosition && utils.IsSpreadSufficient(spreadPct, a.entrySpreadPct):
		side := domain.Long
		if oracleMid < exchangeMark {
			side = domain.Short
		}
		messages = append(messages, a.marketIntent(side, domain.Open, tokensFromFloat(a.sizeTokens), 1, now))
		a.inPosition, a.side = true, side
	case a.inPosition && utils.ShouldExit(spreadPct, a.exitSpreadPct):
		messages = append(messages, a.marketIntent(a.side, domain.Close, tokensFromFloat(a.sizeTokens), 1, now))
		a.inPosition = false
	}

	return kernel.StepResult{Messages: messages, NextWakeDelta: a.wakeDelta}, nil
}
