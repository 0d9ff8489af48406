// Package exchangeagent implements the ExchangeAgent of §4.5: the single
// bridge between the in-process kernel and the ChainClient. Every Intent a
// strategy emits passes through here; every Submit/Execute outcome is
// mirrored back into a local Position/MarketState cache and republished as a
// snapshot event. Grounded on the teacher's engine.go executeEntry/
// executeExit pair (one call path per trade direction, object-pooled result
// channel) and risk.go's margin bookkeeping — adapted from two cross-
// exchange legs into the single on-chain leg this simulator has.
package exchangeagent

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"permsim/internal/chain"
	"permsim/internal/domain"
	"permsim/internal/eventbus"
	"permsim/internal/kernel"
)

// positionKey identifies one local position mirror entry.
type positionKey struct {
	account domain.AgentId
	symbol  domain.Symbol
	side    domain.Side
}

// orderOutcome is what a background SubmitAndExecute goroutine reports back
// to the agent's own Step loop.
type orderOutcome struct {
	intent domain.Intent
	ok     bool
}

// Agent is the ExchangeAgent.
type Agent struct {
	id      domain.AgentId
	client  *chain.Client
	events  *eventbus.Bus
	symbols []domain.Symbol
	log     *zap.Logger

	wakeDelta          uint64
	marketRefreshDelta uint64
	lastMarketRefresh  uint64
	refreshedOnce      bool

	outcomes chan orderOutcome

	mu        sync.Mutex
	positions map[positionKey]domain.Position
	markets   map[domain.Symbol]domain.MarketState
}

// New builds an ExchangeAgent. marketRefreshDelta is how often (in virtual
// ns) market state is re-read regardless of wakeDelta — §4.5's "market
// snapshot refresh once/tick" decoupled from the agent's own wake cadence.
func New(id domain.AgentId, client *chain.Client, events *eventbus.Bus, symbols []domain.Symbol, wakeDelta, marketRefreshDelta uint64, log *zap.Logger) *Agent {
	if wakeDelta == 0 {
		wakeDelta = 1
	}
	if marketRefreshDelta == 0 {
		marketRefreshDelta = wakeDelta
	}
	return &Agent{
		id:                 id,
		client:             client,
		events:             events,
		symbols:            symbols,
		log:                log,
		wakeDelta:          wakeDelta,
		marketRefreshDelta: marketRefreshDelta,
		outcomes:           make(chan orderOutcome, 4096),
		positions:          make(map[positionKey]domain.Position),
		markets:            make(map[domain.Symbol]domain.MarketState),
	}
}

func (a *Agent) ID() domain.AgentId { return a.id }

// Step drains completed background order outcomes, dispatches every newly
// received Intent to the ChainClient in its own goroutine, and refreshes
// market state on the configured cadence. It never blocks on a chain call —
// that concurrency lives entirely below the ChainClient line (§5).
func (a *Agent) Step(ctx context.Context, now uint64, inbox []domain.Envelope) (kernel.StepResult, error) {
	for _, env := range inbox {
		switch payload := env.Payload.(type) {
		case domain.Intent:
			a.dispatch(ctx, payload)
		case *domain.Intent:
			if payload != nil {
				a.dispatch(ctx, *payload)
			}
		case domain.Shutdown:
			return kernel.StepResult{}, nil
		}
	}

	a.drainOutcomes()

	if !a.refreshedOnce || now-a.lastMarketRefresh >= a.marketRefreshDelta {
		a.refreshMarkets(ctx)
		a.lastMarketRefresh = now
		a.refreshedOnce = true
	}

	return kernel.StepResult{NextWakeDelta: a.wakeDelta}, nil
}

// dispatch validates intent and, if well-formed, launches the Submit→Execute
// round trip on its own goroutine. ChainClient itself publishes
// OrderSubmitted/OrderExecuted/OrderFailed; dispatch only has to learn
// whether the position mirror needs a refresh afterwards.
func (a *Agent) dispatch(ctx context.Context, intent domain.Intent) {
	if err := intent.Validate(); err != nil {
		a.events.Publish(domain.OrderFailed{
			ClientOrderID: intent.ClientOrderID,
			Account:       intent.Account,
			Reason:        err.Error(),
		})
		return
	}

	go func() {
		_, err := a.client.SubmitAndExecute(ctx, intent)
		a.outcomes <- orderOutcome{intent: intent, ok: err == nil}
	}()
}

// drainOutcomes processes every outcome queued since the last Step without
// blocking.
func (a *Agent) drainOutcomes() {
	for {
		select {
		case out := <-a.outcomes:
			if out.ok {
				a.refreshPosition(context.Background(), out.intent)
			}
		default:
			return
		}
	}
}

// refreshPosition re-reads the account's position for the traded symbol/side
// and republishes it as a PositionSnapshot. A confirmed LiquidationOrder
// additionally raises PositionLiquidated here, on the chain's own
// confirmation rather than at the moment LiquidationAgent merely decided to
// liquidate — a SubmitExhausted/ExecuteError/timeout on the chain round trip
// never reaches this path, so the event can't outrun the on-chain close.
func (a *Agent) refreshPosition(ctx context.Context, intent domain.Intent) {
	pos, err := a.client.ReadPosition(ctx, intent.Account, intent.Symbol, intent.Side)
	if err != nil {
		if a.log != nil {
			a.log.Warn("position refresh failed", zap.Uint32("account", uint32(intent.Account)), zap.Error(err))
		}
		return
	}

	key := positionKey{account: intent.Account, symbol: intent.Symbol, side: intent.Side}
	a.mu.Lock()
	a.positions[key] = pos
	a.mu.Unlock()

	a.events.Publish(domain.PositionSnapshot{Position: pos})

	if intent.Kind == domain.LiquidationOrder {
		a.events.Publish(domain.PositionLiquidated{
			Account:          pos.Account,
			Symbol:           pos.Symbol,
			CollateralLost:   pos.Collateral,
			Pnl:              pos.UnrealizedPnl,
			LiquidationPrice: pos.CurrentPrice,
		})
	}
}

// refreshMarkets re-reads every configured symbol's market state once and
// republishes it, independent of how often any individual strategy wakes.
func (a *Agent) refreshMarkets(ctx context.Context) {
	for _, symbol := range a.symbols {
		market, err := a.client.ReadMarket(ctx, symbol)
		if err != nil {
			if a.log != nil {
				a.log.Warn("market refresh failed", zap.String("symbol", string(symbol)), zap.Error(err))
			}
			continue
		}
		a.mu.Lock()
		a.markets[symbol] = market
		a.mu.Unlock()
		a.events.Publish(domain.MarketSnapshot{Market: market})
	}
}

// Market returns the locally mirrored state for symbol, refreshed once per
// marketRefreshDelta, for strategies that need funding/OI context (e.g.
// FundingHarvester, Arbitrageur) without subscribing to the event stream
// themselves.
func (a *Agent) Market(symbol domain.Symbol) (domain.MarketState, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	market, ok := a.markets[symbol]
	return market, ok
}

// Position returns the locally mirrored position for (account, symbol,
// side), used by strategies that read their own state back out-of-band
// rather than tracking it themselves (e.g. LiquidationAgent's scan).
func (a *Agent) Position(account domain.AgentId, symbol domain.Symbol, side domain.Side) (domain.Position, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pos, ok := a.positions[positionKey{account: account, symbol: symbol, side: side}]
	return pos, ok
}
