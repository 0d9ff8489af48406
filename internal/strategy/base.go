// Package strategy implements the eight uniform trading agents of §4.6 plus
// the LiquidationAgent (§4.8; KeeperAgent itself lives in internal/trigger
// since it is part of the trigger pipeline, not the strategy layer): every
// variant shares the same Agent/Step contract and differs only in the
// decision it makes each wake. Grounded on the teacher's internal/bot
// package — arbitrage.go's entry/exit spread gates become Arbitrageur,
// risk.go's RiskMonitor periodic scan becomes LiquidationAgent, and
// state_machine.go's Waiting/Holding/Closing phases become Hodler — adapted
// throughout from a two-exchange-leg trade to this simulator's single
// on-chain leg.
package strategy

import (
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"permsim/internal/agentrand"
	"permsim/internal/domain"
	"permsim/internal/kernel"
	"permsim/internal/pendingbook"
	"permsim/internal/pricecache"
)

// Base bundles the fields every strategy variant needs: its own identity and
// trading account, the ExchangeAgent it addresses Market intents to, the
// shared oracle cache, an optional pending-order book for variants that rest
// limit/stop orders, and a deterministic per-agent PRNG.
type Base struct {
	id        domain.AgentId
	exchange  domain.AgentId
	cache     *pricecache.Cache
	book      *pendingbook.Book
	rand      *agentrand.Source
	symbol    domain.Symbol
	wakeDelta uint64
	log       *zap.Logger
	seq       uint64
}

// NewBase constructs the shared fields. book may be nil for variants that
// only ever submit Market intents directly.
func NewBase(id, exchange domain.AgentId, cache *pricecache.Cache, book *pendingbook.Book, scenarioSeed uint64, symbol domain.Symbol, wakeDelta uint64, log *zap.Logger) Base {
	if wakeDelta == 0 {
		wakeDelta = 1
	}
	return Base{
		id:        id,
		exchange:  exchange,
		cache:     cache,
		book:      book,
		rand:      agentrand.New(scenarioSeed, id),
		symbol:    symbol,
		wakeDelta: wakeDelta,
		log:       log,
	}
}

// ID satisfies kernel.Agent.
func (b *Base) ID() domain.AgentId { return b.id }

// nextClientOrderID manufactures an id unique within this agent's lifetime.
func (b *Base) nextClientOrderID() domain.ClientOrderID {
	b.seq++
	return domain.ClientOrderID(fmt.Sprintf("%d-%d", b.id, b.seq))
}

// sample returns the latest fresh oracle tick for this strategy's symbol.
func (b *Base) sample(now uint64) (domain.OracleTick, bool) {
	return b.cache.Get(b.symbol, now)
}

// marketIntent builds a kernel.OutMessage carrying an immediately-executed
// Market order addressed to the ExchangeAgent.
func (b *Base) marketIntent(side domain.Side, action domain.Action, sizeTokens *big.Int, leverage uint32, now uint64) kernel.OutMessage {
	return b.intent(domain.Market, side, action, sizeTokens, nil, leverage, now)
}

func (b *Base) intent(kind domain.OrderKind, side domain.Side, action domain.Action, sizeTokens *big.Int, trigger *domain.Price, leverage uint32, now uint64) kernel.OutMessage {
	in := domain.Intent{
		ClientOrderID: b.nextClientOrderID(),
		Account:       b.id,
		Symbol:        b.symbol,
		Side:          side,
		Kind:          kind,
		Action:        action,
		SizeTokens:    sizeTokens,
		TriggerPrice:  trigger,
		Leverage:      leverage,
		CreatedNs:     now,
	}
	return kernel.OutMessage{To: b.exchange, Payload: in}
}

// arm rests a Limit/Stop/TakeProfit/StopLoss order in the shared pending
// book instead of sending it to the ExchangeAgent; KeeperAgent converts it
// to a Market intent once its trigger condition holds.
func (b *Base) arm(kind domain.OrderKind, side domain.Side, action domain.Action, sizeTokens *big.Int, trigger *domain.Price, leverage uint32, now uint64, expiresNs *uint64) domain.ClientOrderID {
	id := b.nextClientOrderID()
	b.book.Arm(domain.PendingOrder{
		Intent: domain.Intent{
			ClientOrderID: id,
			Account:       b.id,
			Symbol:        b.symbol,
			Side:          side,
			Kind:          kind,
			Action:        action,
			SizeTokens:    sizeTokens,
			TriggerPrice:  trigger,
			Leverage:      leverage,
			CreatedNs:     now,
		},
		ExpiresNs: expiresNs,
		PlacedBy:  b.id,
	})
	return id
}

func shutdownRequested(inbox []domain.Envelope) bool {
	for _, env := range inbox {
		if _, ok := env.Payload.(domain.Shutdown); ok {
			return true
		}
	}
	return false
}

func idle(wakeDelta uint64) (kernel.StepResult, error) {
	return kernel.StepResult{NextWakeDelta: wakeDelta}, nil
}

// priceFloat converts a Price to a float64 USD value for the comparisons and
// spread math pkg/utils already implements in float64 — precision enough for
// strategy decisions, which never touch the exact-integer chain boundary
// directly (ChainClient/domain.Price own that).
func priceFloat(p *domain.Price) float64 {
	if p == nil {
		return 0
	}
	micro := p.MicroUSD()
	return float64(micro.Int64()) / 1e6
}

// tokensFromFloat converts a token quantity expressed as a float64 (already
// lot-rounded by the caller) into the integer SizeTokens an Intent carries.
func tokensFromFloat(tokens float64) *big.Int {
	if tokens <= 0 {
		return big.NewInt(0)
	}
	return big.NewInt(int64(tokens))
}

// bigToFloat widens a *big.Int USD amount to a float64 for the ratio/average
// math strategies do in-process; nil is treated as zero.
func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
