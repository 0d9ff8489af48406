package strategy

import (
	"context"
	"math/big"

	"permsim/internal/domain"
	"permsim/internal/exchangeagent"
	"permsim/internal/kernel"
)

// DefaultImbalanceThreshold is used when a MarketMaker is built with a
// non-positive threshold.
const DefaultImbalanceThreshold = 0.10

// MarketMaker seeds both sides of a symbol's open interest on its first
// wake, then rebalances whenever OI drifts too far from balanced: a Market
// seed order lands on whichever side is deficient. Grounded on
// internal/bot/risk.go's periodic exposure check, adapted from a
// cross-exchange hedge ratio to this simulator's own mirrored OI.
type MarketMaker struct {
	Base
	mirror             *exchangeagent.Agent
	orderSizeTokens    float64
	leverage           uint32
	imbalanceThreshold float64

	seeded bool
}

// NewMarketMaker builds a MarketMaker reading OI from mirror.
func NewMarketMaker(base Base, mirror *exchangeagent.Agent, orderSizeTokens float64, leverage uint32, imbalanceThreshold float64) *MarketMaker {
	if imbalanceThreshold <= 0 {
		imbalanceThreshold = DefaultImbalanceThreshold
	}
	if leverage == 0 {
		leverage = 1
	}
	return &MarketMaker{
		Base:               base,
		mirror:             mirror,
		orderSizeTokens:    orderSizeTokens,
		leverage:           leverage,
		imbalanceThreshold: imbalanceThreshold,
	}
}

func (m *MarketMaker) Step(_ context.Context, now uint64, inbox []domain.Envelope) (kernel.StepResult, error) {
	if shutdownRequested(inbox) {
		return kernel.StepResult{}, nil
	}

	size := tokensFromFloat(m.orderSizeTokens * float64(m.leverage))

	if !m.seeded {
		m.seeded = true
		messages := []kernel.OutMessage{
			m.marketIntent(domain.Long, domain.Open, size, m.leverage, now),
			m.marketIntent(domain.Short, domain.Open, size, m.leverage, now),
		}
		return kernel.StepResult{Messages: messages, NextWakeDelta: m.wakeDelta}, nil
	}

	market, ok := m.mirror.Market(m.symbol)
	if !ok || market.OILongUSD == nil || market.OIShortUSD == nil {
		return idle(m.wakeDelta)
	}

	total := new(big.Int).Add(market.OILongUSD, market.OIShortUSD)
	delta := new(big.Int).Sub(market.OILongUSD, market.OIShortUSD)
	delta.Abs(delta)

	totalF := bigToFloat(total)
	if totalF < 1 {
		totalF = 1
	}
	if bigToFloat(delta)/totalF <= m.imbalanceThreshold {
		return idle(m.wakeDelta)
	}

	side := domain.Long
	if market.OILongUSD.Cmp(market.OIShortUSD) > 0 {
		side = domain.Short
	}
	message := m.marketIntent(side, domain.Open, size, m.leverage, now)
	return kernel.StepResult{Messages: []kernel.OutMessage{message}, NextWakeDelta: m.wakeDelta}, nil
}
