package strategy

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"permsim/internal/domain"
	"permsim/internal/eventbus"
	"permsim/internal/exchangeagent"
	"permsim/internal/kernel"
)

// DefaultMaintenanceMarginFraction is used when a scenario does not
// override the maintenance margin fraction applied to notional size.
const DefaultMaintenanceMarginFraction = 0.05

// ScanTarget is one (account, symbol, side) position LiquidationAgent watches.
type ScanTarget struct {
	Account domain.AgentId
	Symbol  domain.Symbol
	Side    domain.Side
}

// LiquidationAgent periodically scans a fixed list of positions and
// force-closes any whose equity has fallen below maintenanceMarginRatio of
// notional. Grounded on risk.go's RiskMonitor periodic scan, adapted from a
// margin call across two exchange legs to a single on-chain position.
type LiquidationAgent struct {
	id        domain.AgentId
	exchange  domain.AgentId
	mirror    *exchangeagent.Agent
	events    *eventbus.Bus
	targets   []ScanTarget
	mmf       float64
	wakeDelta uint64
	log       *zap.Logger
	seq       uint64
}

// NewLiquidationAgent builds a LiquidationAgent scanning targets every
// wakeDelta. mmf is the maintenance margin fraction applied to each
// position's notional size; a non-positive value falls back to
// DefaultMaintenanceMarginFraction.
func NewLiquidationAgent(id, exchange domain.AgentId, mirror *exchangeagent.Agent, events *eventbus.Bus, targets []ScanTarget, mmf float64, wakeDelta uint64, log *zap.Logger) *LiquidationAgent {
	if wakeDelta == 0 {
		wakeDelta = 1
	}
	if mmf <= 0 {
		mmf = DefaultMaintenanceMarginFraction
	}
	return &LiquidationAgent{
		id:        id,
		exchange:  exchange,
		mirror:    mirror,
		events:    events,
		targets:   targets,
		mmf:       mmf,
		wakeDelta: wakeDelta,
		log:       log,
	}
}

func (l *LiquidationAgent) ID() domain.AgentId { return l.id }

func (l *LiquidationAgent) nextClientOrderID() domain.ClientOrderID {
	l.seq++
	return domain.ClientOrderID(fmt.Sprintf("liq-%d-%d", l.id, l.seq))
}

func (l *LiquidationAgent) Step(_ context.Context, now uint64, inbox []domain.Envelope) (kernel.StepResult, error) {
	if shutdownRequested(inbox) {
		return kernel.StepResult{}, nil
	}

	var messages []kernel.OutMessage
	for _, target := range l.targets {
		pos, ok := l.mirror.Position(target.Account, target.Symbol, target.Side)
		if !ok || pos.Closed() || !underMaintenance(pos, l.mmf) {
			continue
		}

		intent := domain.Intent{
			ClientOrderID: l.nextClientOrderID(),
			Account:       target.Account,
			Symbol:        target.Symbol,
			Side:          target.Side,
			Kind:          domain.LiquidationOrder,
			Action:        domain.Close,
			SizeTokens:    new(big.Int).Set(pos.SizeTokens),
			CreatedNs:     now,
		}
		messages = append(messages, kernel.OutMessage{To: l.exchange, Payload: intent})

		// PositionLiquidated itself is raised by ExchangeAgent once the chain
		// confirms this intent executed, not here at the decision point.
		if l.log != nil {
			l.log.Warn("liquidation triggered",
				zap.Uint32("account", uint32(target.Account)),
				zap.String("symbol", string(target.Symbol)))
		}
	}

	return kernel.StepResult{Messages: messages, NextWakeDelta: l.wakeDelta}, nil
}

// underMaintenance reports whether collateral + unrealized_pnl - accrued
// funding - accrued borrow has fallen to or below maintenance_margin
// (size_usd * mmf), the liquidation threshold a position is held to.
func underMaintenance(pos domain.Position, mmf float64) bool {
	if pos.SizeUSD == nil || pos.Collateral == nil || pos.UnrealizedPnl == nil {
		return false
	}
	equity := new(big.Int).Add(pos.Collateral, pos.UnrealizedPnl)
	if pos.AccruedFunding != nil {
		equity.Sub(equity, pos.AccruedFunding)
	}
	if pos.AccruedBorrow != nil {
		equity.Sub(equity, pos.AccruedBorrow)
	}
	maintenanceMargin := bigToFloat(pos.SizeUSD) * mmf
	return bigToFloat(equity) <= maintenanceMargin
}
