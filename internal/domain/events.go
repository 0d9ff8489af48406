package domain

import "math/big"

// Event is the closed set of domain events the EventBus fans out. Every
// concrete event type below implements it by having an EventName method —
// a cheap tagged-union in place of an interface{} + type switch scattered
// across subscribers.
type Event interface {
	EventName() string
}

// OracleTick is broadcast by OracleAgent after a successful fetch+validate.
type OracleTick struct {
	Symbol     Symbol
	PriceMin   *Price
	PriceMax   *Price
	PriceMid   *Price
	PublishNs  uint64
	ReceivedNs uint64
}

func (OracleTick) EventName() string { return "OracleTick" }

// OracleDegraded is raised after three consecutive fetch failures for a
// symbol.
type OracleDegraded struct {
	Symbol          Symbol
	ConsecutiveFail int
}

func (OracleDegraded) EventName() string { return "OracleDegraded" }

// OrderSubmitted is emitted once ChainClient accepts the Submit phase.
type OrderSubmitted struct {
	ClientOrderID ClientOrderID
	Account       AgentId
	Symbol        Symbol
	Nonce         uint64
}

func (OrderSubmitted) EventName() string { return "OrderSubmitted" }

// OrderExecuted is emitted on confirmation of the Execute phase.
type OrderExecuted struct {
	ClientOrderID ClientOrderID
	Account       AgentId
	Symbol        Symbol
	Side          Side
	Action        Action
	FillPrice     *Price
	FeePaidUSD    *big.Int
}

func (OrderExecuted) EventName() string { return "OrderExecuted" }

// OrderFailed covers every terminal failure path: SubmitExhausted, execute
// failure, insufficient collateral, timeout, shutdown.
type OrderFailed struct {
	ClientOrderID ClientOrderID
	Account       AgentId
	Reason        string
}

func (OrderFailed) EventName() string { return "OrderFailed" }

// PositionSnapshot republishes the local position mirror after a sync.
type PositionSnapshot struct {
	Position Position
}

func (PositionSnapshot) EventName() string { return "PositionSnapshot" }

// MarketSnapshot is published exactly once per tick per configured symbol.
type MarketSnapshot struct {
	Market MarketState
}

func (MarketSnapshot) EventName() string { return "MarketSnapshot" }

// PositionLiquidated reports a confirmed liquidation.
type PositionLiquidated struct {
	Account          AgentId
	Symbol           Symbol
	CollateralLost   *big.Int
	Pnl              *big.Int
	LiquidationPrice *Price
}

func (PositionLiquidated) EventName() string { return "PositionLiquidated" }
