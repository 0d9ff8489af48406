package strategy

import (
	"context"

	"permsim/internal/domain"
	"permsim/internal/exchangeagent"
	"permsim/internal/kernel"
)

// FundingHarvester opens the side that collects funding (short when the rate
// is positive, long when negative) once the rate clears enterRatePerHour,
// and closes once either the rate decays back past exitRatePerHour or the
// position has been held for maxHoldNs, whichever comes first. Grounded on
// risk.go's periodic-scan RiskMonitor pattern, reading MarketState straight
// from the ExchangeAgent's mirror rather than subscribing to the event bus
// itself.
type FundingHarvester struct {
	Base
	mirror           *exchangeagent.Agent
	sizeTokens       float64
	enterRatePerHour float64
	exitRatePerHour  float64
	maxHoldNs        uint64

	inPosition bool
	side       domain.Side
	openedNs   uint64
}

// NewFundingHarvester builds a FundingHarvester entering at enterRatePerHour,
// exiting once the rate decays past exitRatePerHour, with maxHoldNs == 0
// disabling the hold-duration close (exit on rate decay only). Reading
// market state from mirror.
func NewFundingHarvester(base Base, mirror *exchangeagent.Agent, sizeTokens, enterRatePerHour, exitRatePerHour float64, maxHoldNs uint64) *FundingHarvester {
	return &FundingHarvester{
		Base:             base,
		mirror:           mirror,
		sizeTokens:       sizeTokens,
		enterRatePerHour: enterRatePerHour,
		exitRatePerHour:  exitRatePerHour,
		maxHoldNs:        maxHoldNs,
	}
}

func (f *FundingHarvester) Step(_ context.Context, now uint64, inbox []domain.Envelope) (kernel.StepResult, error) {
	if shutdownRequested(inbox) {
		return kernel.StepResult{}, nil
	}

	market, ok := f.mirror.Market(f.symbol)
	if !ok {
		return idle(f.wakeDelta)
	}

	heldLongEnough := f.inPosition && f.maxHoldNs > 0 && now-f.openedNs >= f.maxHoldNs

	var messages []kernel.OutMessage
	switch {
	case !f.inPosition && market.FundingRatePerHour >= f.enterRatePerHour:
		messages = append(messages, f.marketIntent(domain.Short, domain.Open, tokensFromFloat(f.sizeTokens), 1, now))
		f.inPosition, f.side, f.openedNs = true, domain.Short, now
	case !f.inPosition && market.FundingRatePerHour <= -f.enterRatePerHour:
		messages = append(messages, f.marketIntent(domain.Long, domain.Open, tokensFromFloat(f.sizeTokens), 1, now))
		f.inPosition, f.side, f.openedNs = true, domain.Long, now
	case f.inPosition && f.side == domain.Short && (market.FundingRatePerHour < f.exitRatePerHour || heldLongEnough):
		messages = append(messages, f.marketIntent(domain.Short, domain.Close, tokensFromFloat(f.sizeTokens), 1, now))
		f.inPosition = false
	case f.inPosition && f.side == domain.Long && (market.FundingRatePerHour > -f.exitRatePerHour || heldLongEnough):
		messages = append(messages, f.marketIntent(domain.Long, domain.Close, tokensFromFloat(f.sizeTokens), 1, now))
		f.inPosition = false
	}

	return kernel.StepResult{Messages: messages, NextWakeDelta: f.wakeDelta}, nil
}
