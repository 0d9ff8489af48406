// Package domain holds the plain data model shared by every simulator
// component: agents, orders, positions, markets and the envelopes that move
// between them. Nothing here owns behaviour beyond small invariant checks —
// the kernel, exchange agent and strategies operate on these types, never the
// other way round.
package domain

import (
	"math/big"

	"permsim/internal/simerr"
)

var (
	errInvalidSize    = simerr.NewConfigError("size_tokens must be > 0")
	errMissingTrigger = simerr.NewConfigError("trigger_price required for Limit/Stop/TakeProfit/StopLoss")
)

// AgentId is a stable integer assigned at scenario load. It doubles as the
// mailbox address and the logical on-chain account identity; an external
// address book maps it to a signing keypair.
type AgentId uint32

// Symbol is an opaque, bytewise-compared trading pair identity (e.g. "ETH-USD").
type Symbol string

// Side is the direction of a position or order.
type Side uint8

const (
	Long Side = iota
	Short
)

func (s Side) String() string {
	if s == Long {
		return "long"
	}
	return "short"
}

// OrderKind distinguishes the trigger semantics of an order.
type OrderKind uint8

const (
	Market OrderKind = iota
	Limit
	Stop
	TakeProfit
	StopLoss
	LiquidationOrder
)

func (k OrderKind) String() string {
	switch k {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case Stop:
		return "stop"
	case TakeProfit:
		return "take_profit"
	case StopLoss:
		return "stop_loss"
	case LiquidationOrder:
		return "liquidation"
	default:
		return "unknown"
	}
}

// Action describes what an order does to the identity's position.
type Action uint8

const (
	Open Action = iota
	Close
	Increase
	Decrease
)

func (a Action) String() string {
	switch a {
	case Open:
		return "open"
	case Close:
		return "close"
	case Increase:
		return "increase"
	case Decrease:
		return "decrease"
	default:
		return "unknown"
	}
}

// ClientOrderID is assigned by the emitting agent and used for idempotent
// resubmission at the matching-engine boundary (§6.4 of the design).
type ClientOrderID string

// Intent is an in-simulator order request that has not yet been submitted
// on-chain. It is emitted by a strategy and addressed to the ExchangeAgent.
type Intent struct {
	ClientOrderID ClientOrderID
	Account       AgentId
	Symbol        Symbol
	Side          Side
	Kind          OrderKind
	Action        Action
	SizeTokens    *big.Int // smallest on-chain unit, always > 0
	TriggerPrice  *Price   // required for Limit/Stop/TakeProfit/StopLoss
	Leverage      uint32
	CreatedNs     uint64
}

// Validate enforces the Order/Intent invariants from §3 of the design, ahead
// of any chain call — a violation here is always a ConfigError, never an
// on-chain round trip.
func (in *Intent) Validate() error {
	if in.SizeTokens == nil || in.SizeTokens.Sign() <= 0 {
		return errInvalidSize
	}
	switch in.Kind {
	case Limit, Stop, TakeProfit, StopLoss:
		if in.TriggerPrice == nil {
			return errMissingTrigger
		}
	}
	return nil
}

// Position mirrors on-chain state for one (account, symbol, side). The chain
// is authoritative; this is an eventually-consistent local copy stamped with
// the virtual time of its last sync.
type Position struct {
	Account          AgentId
	Symbol           Symbol
	Side             Side
	SizeUSD          *big.Int
	SizeTokens       *big.Int
	Collateral       *big.Int
	EntryPrice       *Price
	CurrentPrice     *Price
	UnrealizedPnl    *big.Int
	LiquidationPrice *Price
	LeverageActual   uint32
	OpenedNs         uint64
	LastSyncNs       uint64
	AccruedFunding   *big.Int
	AccruedBorrow    *big.Int
}

// Closed reports whether the position has zero size, per the invariant
// size_tokens == 0 <=> closed.
func (p *Position) Closed() bool {
	return p.SizeTokens == nil || p.SizeTokens.Sign() == 0
}

// MarketState is derived from on-chain reads and refreshed once per tick by
// the ExchangeAgent, independent of tick rate.
type MarketState struct {
	Symbol             Symbol
	OILongUSD          *big.Int
	OIShortUSD         *big.Int
	LiquidityUSD       *big.Int
	FundingRatePerHour float64
	BorrowRatePerHour  float64
	// MarkPrice is the exchange's own execution-price estimate (P_x): the
	// price the last fill on this symbol actually settled at on-chain, as
	// distinct from PriceCache's independent oracle mid (P_o). Nil until at
	// least one order on the symbol has executed.
	MarkPrice     *Price
	LastRefreshNs uint64
}

// PendingOrderState is the lifecycle state of a resting order.
type PendingOrderState uint8

const (
	Armed PendingOrderState = iota
	Triggered
	Cancelled
	Expired
)

func (s PendingOrderState) String() string {
	switch s {
	case Armed:
		return "armed"
	case Triggered:
		return "triggered"
	case Cancelled:
		return "cancelled"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// validTransitions enumerates the legal PendingOrder state graph, in the
// same explicit map-of-allowed-edges shape the teacher uses for position
// state transitions.
var validTransitions = map[PendingOrderState][]PendingOrderState{
	Armed: {Triggered, Cancelled, Expired},
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to PendingOrderState) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// PendingOrder is a resting limit/stop/TP/SL order awaiting a trigger.
type PendingOrder struct {
	Intent
	ExpiresNs *uint64
	PlacedBy  AgentId
	State     PendingOrderState
}

// Envelope is one message travelling the MessageBus. `EnqueuedVns` is the
// virtual-time nanosecond at which it was placed on the bus, used only for
// diagnostics — ordering itself is FIFO per (From, To), not timestamp based.
type Envelope struct {
	From        AgentId
	To          AgentId
	Payload     any
	EnqueuedVns uint64
}

// Shutdown is delivered exactly once to every agent at kernel termination.
type Shutdown struct{}
