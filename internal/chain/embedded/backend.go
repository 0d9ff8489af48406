// Package embedded is the simulator's own pluggable chain.Backend (§6.4):
// an in-process stand-in for the remote settlement contract, used when no
// real DEX endpoint is configured. Its AMM math is intentionally coarse —
// the spec only fixes the narrow Backend call contract, not the matching
// engine's internals — and it is grounded on internal/chain/fakechain's key
// scheme and method set, generalized from a scripted test double into a
// runtime collaborator that actually prices fills off the live oracle cache.
package embedded

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"permsim/internal/chain"
	"permsim/internal/clock"
	"permsim/internal/domain"
	"permsim/internal/pricecache"
	"permsim/internal/simerr"
)

// DefaultFeeBps is the taker fee charged on every fill's notional, expressed
// in basis points of USD notional.
const DefaultFeeBps = 5.0

// DefaultLiquidityUSD is the book depth assumed for every symbol when a
// scenario doesn't override it, used only to size the price-impact gate
// below.
const DefaultLiquidityUSD = 1_000_000 * 1_000_000 // micro-USD

// DefaultMaxPriceImpactBps is the close-side price-impact threshold (§9) a
// scenario doesn't override: 500bps (5%) of book depth per fill.
const DefaultMaxPriceImpactBps = 500.0

type pendingOrder struct {
	intent    domain.Intent
	fillPrice *domain.Price
}

// Backend is an in-memory matching engine. It fills every order immediately
// at the oracle mid price observed at submit time, applies a flat taker fee,
// and maintains a weighted-average-entry position per (account, symbol,
// side).
type Backend struct {
	mu sync.Mutex

	cache  *pricecache.Cache
	clk    *clock.Clock
	feeBps float64

	priceImpactMode   chain.PriceImpactMode
	maxPriceImpactBps float64
	liquidityUSD      *big.Int

	orderSeq   uint64
	pending    map[string]pendingOrder
	positions  map[string]domain.Position
	markets    map[domain.Symbol]domain.MarketState
	collateral map[domain.AgentId]*big.Int
}

// New builds an embedded Backend pricing fills off cache. feeBps <= 0 falls
// back to DefaultFeeBps. The price-impact gate (§9) defaults to
// PriceImpactCap at DefaultMaxPriceImpactBps against DefaultLiquidityUSD of
// assumed book depth per symbol; use WithPriceImpact to override per
// scenario.
func New(cache *pricecache.Cache, clk *clock.Clock, feeBps float64) *Backend {
	if feeBps <= 0 {
		feeBps = DefaultFeeBps
	}
	return &Backend{
		cache:             cache,
		clk:               clk,
		feeBps:            feeBps,
		priceImpactMode:   chain.PriceImpactCap,
		maxPriceImpactBps: DefaultMaxPriceImpactBps,
		liquidityUSD:      big.NewInt(DefaultLiquidityUSD),
		pending:           make(map[string]pendingOrder),
		positions:         make(map[string]domain.Position),
		markets:           make(map[domain.Symbol]domain.MarketState),
		collateral:        make(map[domain.AgentId]*big.Int),
	}
}

// WithPriceImpact overrides the close-side price-impact gate (§9):
// mode selects Cap vs ForcedClose, maxImpactBps <= 0 keeps
// DefaultMaxPriceImpactBps, and liquidityUSD <= 0 keeps DefaultLiquidityUSD.
// Returns b for chaining at construction time.
func (b *Backend) WithPriceImpact(mode chain.PriceImpactMode, maxImpactBps float64, liquidityUSD int64) *Backend {
	b.priceImpactMode = mode
	if maxImpactBps > 0 {
		b.maxPriceImpactBps = maxImpactBps
	}
	if liquidityUSD > 0 {
		b.liquidityUSD = big.NewInt(liquidityUSD)
	}
	return b
}

var _ chain.Backend = (*Backend)(nil)

func posKey(account domain.AgentId, symbol domain.Symbol, side domain.Side) string {
	return fmt.Sprintf("%d-%s-%d", account, symbol, side)
}

func (b *Backend) midPrice(symbol domain.Symbol) *domain.Price {
	if tick, ok := b.cache.Get(symbol, b.clk.NowVns()); ok && tick.PriceMid != nil {
		return tick.PriceMid
	}
	return domain.NewPrice(1_000_000)
}

// SubmitOrder records the order at its current oracle price and hands back
// an opaque order id; the actual position update happens in ExecuteOrder, as
// a real two-phase settlement would.
func (b *Backend) SubmitOrder(_ context.Context, intent domain.Intent, _ uint64, _ uint64) (string, error) {
	id := atomic.AddUint64(&b.orderSeq, 1)
	orderID := fmt.Sprintf("order-%d-%s", id, intent.ClientOrderID)
	price := b.midPrice(intent.Symbol)

	b.mu.Lock()
	b.pending[orderID] = pendingOrder{intent: intent, fillPrice: price}
	b.mu.Unlock()

	return orderID, nil
}

// ExecuteOrder applies the pending order to the position book and returns
// the fill.
func (b *Backend) ExecuteOrder(_ context.Context, orderID string, _ uint64) (chain.ExecutionResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	po, ok := b.pending[orderID]
	if !ok {
		return chain.ExecutionResult{}, fmt.Errorf("embedded: unknown order %s", orderID)
	}
	delete(b.pending, orderID)

	intent := po.intent
	price := po.fillPrice
	sizeTokens := intent.SizeTokens
	if intent.Action == domain.Close || intent.Action == domain.Decrease {
		sizeTokens = b.applyPriceImpact(sizeTokens, price)
	}
	notionalUSD := new(big.Int).Mul(sizeTokens, price.MicroUSD())
	notionalUSD.Quo(notionalUSD, big.NewInt(1_000_000))
	feeUSD := new(big.Int).Mul(notionalUSD, big.NewInt(int64(b.feeBps*100)))
	feeUSD.Quo(feeUSD, big.NewInt(1_000_000))

	key := posKey(intent.Account, intent.Symbol, intent.Side)
	pos := b.positions[key]
	pos.Account, pos.Symbol, pos.Side = intent.Account, intent.Symbol, intent.Side

	switch intent.Action {
	case domain.Open, domain.Increase:
		leverage := pos.LeverageActual
		if intent.Leverage > 0 {
			leverage = intent.Leverage
		} else if leverage == 0 {
			leverage = 1
		}
		collateral := new(big.Int).Div(notionalUSD, big.NewInt(int64(leverage)))
		available := b.collateral[intent.Account]
		if available == nil {
			available = big.NewInt(0)
		}
		if available.Cmp(collateral) < 0 {
			return chain.ExecutionResult{}, &simerr.InsufficientCollateralError{
				Account:   uint32(intent.Account),
				Required:  collateral.String(),
				Available: available.String(),
			}
		}
		b.collateral[intent.Account] = new(big.Int).Sub(available, collateral)

		pos.LeverageActual = leverage
		if pos.EntryPrice != nil && pos.SizeTokens != nil && pos.SizeTokens.Sign() > 0 {
			weighted := new(big.Int).Mul(pos.EntryPrice.MicroUSD(), pos.SizeTokens)
			weighted.Add(weighted, new(big.Int).Mul(price.MicroUSD(), sizeTokens))
			weighted.Quo(weighted, new(big.Int).Add(pos.SizeTokens, sizeTokens))
			pos.EntryPrice = domain.NewPriceFromBig(weighted)
		} else {
			pos.EntryPrice = price
		}
		pos.SizeTokens = addBig(pos.SizeTokens, sizeTokens)
		pos.SizeUSD = addBig(pos.SizeUSD, notionalUSD)
		pos.Collateral = addBig(pos.Collateral, collateral)
		pos.CurrentPrice = price
		pos.OpenedNs = intent.CreatedNs
	case domain.Close, domain.Decrease:
		pnl := realizedPnl(intent.Side, pos.EntryPrice, price, sizeTokens)
		pos.UnrealizedPnl = addBig(pos.UnrealizedPnl, pnl)

		released := big.NewInt(0)
		if pos.SizeTokens != nil && pos.SizeTokens.Sign() > 0 && pos.Collateral != nil {
			released = new(big.Int).Mul(pos.Collateral, sizeTokens)
			released.Quo(released, pos.SizeTokens)
		}
		b.collateral[intent.Account] = addBig(b.collateral[intent.Account], released)
		pos.Collateral = subBig(pos.Collateral, released)

		pos.SizeTokens = subBig(pos.SizeTokens, sizeTokens)
		pos.SizeUSD = subBig(pos.SizeUSD, notionalUSD)
		pos.CurrentPrice = price
	}
	pos.LastSyncNs = intent.CreatedNs
	b.positions[key] = pos

	market := b.markets[intent.Symbol]
	market.Symbol = intent.Symbol
	market.LastRefreshNs = intent.CreatedNs
	market.LiquidityUSD = b.liquidityUSD
	market.MarkPrice = price
	if intent.Side == domain.Long {
		market.OILongUSD = addBig(market.OILongUSD, notionalUSD)
	} else {
		market.OIShortUSD = addBig(market.OIShortUSD, notionalUSD)
	}
	b.markets[intent.Symbol] = market

	return chain.ExecutionResult{OrderID: orderID, FillPrice: price, FeePaidUSD: feeUSD}, nil
}

// applyPriceImpact is the close-side price-impact gate (§9): a source
// contract aborts a close with PriceImpactLargerThanOrderSize once the
// requested notional exceeds maxPriceImpactBps of the assumed book depth.
// PriceImpactCap clamps the executed size down to what fits within that
// threshold instead of aborting; PriceImpactForcedClose executes the full
// requested size regardless of impact.
func (b *Backend) applyPriceImpact(sizeTokens *big.Int, price *domain.Price) *big.Int {
	if b.priceImpactMode == chain.PriceImpactForcedClose || sizeTokens == nil || sizeTokens.Sign() <= 0 {
		return sizeTokens
	}

	notional := new(big.Int).Mul(sizeTokens, price.MicroUSD())
	notional.Quo(notional, big.NewInt(1_000_000))

	threshold := new(big.Int).Mul(b.liquidityUSD, big.NewInt(int64(b.maxPriceImpactBps*100)))
	threshold.Quo(threshold, big.NewInt(1_000_000))

	if notional.Cmp(threshold) <= 0 {
		return sizeTokens
	}

	capped := new(big.Int).Mul(threshold, big.NewInt(1_000_000))
	capped.Quo(capped, price.MicroUSD())
	if capped.Sign() <= 0 {
		return big.NewInt(0)
	}
	return capped
}

// CancelOrder drops a pending order before it executes.
func (b *Backend) CancelOrder(_ context.Context, orderID string, _ uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, orderID)
	return nil
}

// Deposit credits account's free collateral balance, which ExecuteOrder
// draws down on every Open/Increase and InsufficientCollateralError guards.
func (b *Backend) Deposit(_ context.Context, account domain.AgentId, amount *big.Int, _ uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.collateral[account] = addBig(b.collateral[account], amount)
	return nil
}

// Withdraw debits account's free collateral balance, refusing to overdraw
// it the same way ExecuteOrder refuses to open a position the account can't
// margin.
func (b *Backend) Withdraw(_ context.Context, account domain.AgentId, amount *big.Int, _ uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	available := b.collateral[account]
	if available == nil {
		available = big.NewInt(0)
	}
	if available.Cmp(amount) < 0 {
		return &simerr.InsufficientCollateralError{
			Account:   uint32(account),
			Required:  amount.String(),
			Available: available.String(),
		}
	}
	b.collateral[account] = new(big.Int).Sub(available, amount)
	return nil
}

func (b *Backend) ReadPosition(_ context.Context, account domain.AgentId, symbol domain.Symbol, side domain.Side) (domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pos, ok := b.positions[posKey(account, symbol, side)]; ok {
		return pos, nil
	}
	return domain.Position{Account: account, Symbol: symbol, Side: side}, nil
}

func (b *Backend) ReadMarket(_ context.Context, symbol domain.Symbol) (domain.MarketState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state, ok := b.markets[symbol]; ok {
		return state, nil
	}
	return domain.MarketState{Symbol: symbol}, nil
}

func addBig(a, b *big.Int) *big.Int {
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Add(a, b)
}

func subBig(a, b *big.Int) *big.Int {
	if a == nil {
		a = big.NewInt(0)
	}
	if b == nil {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Sub(a, b)
}

// realizedPnl is (exit - entry) * size for longs, negated for shorts,
// denominated in USD (micro-USD cancels against the size/price product the
// same way notionalUSD above does).
func realizedPnl(side domain.Side, entry, exit *domain.Price, sizeTokens *big.Int) *big.Int {
	if entry == nil || exit == nil || sizeTokens == nil {
		return big.NewInt(0)
	}
	diff := new(big.Int).Sub(exit.MicroUSD(), entry.MicroUSD())
	pnl := new(big.Int).Mul(diff, sizeTokens)
	pnl.Quo(pnl, big.NewInt(1_000_000))
	if side == domain.Short {
		pnl.Neg(pnl)
	}
	return pnl
}
