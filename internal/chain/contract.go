// Package chain implements the ChainClient of §4.5/§5/§6.4: the only
// component allowed to talk to the remote matching/settlement contract, and
// the only place in the simulator where goroutines run concurrently across
// more than one logical identity. Everything above this package is
// single-threaded cooperative; everything the Backend interface touches is
// out of scope for this repository (§1's "remote DEX contract" collaborator,
// modelled here only by its narrow call contract).
package chain

import (
	"context"
	"math/big"

	"permsim/internal/domain"
)

// ExecutionResult is what a successful ExecuteOrder call reports.
type ExecutionResult struct {
	OrderID    string
	FillPrice  *domain.Price
	FeePaidUSD *big.Int
}

// Backend is the remote settlement contract's call surface (§6.4). Every
// call is assumed idempotent with respect to the client_order_id embedded in
// the intent passed to SubmitOrder.
type Backend interface {
	SubmitOrder(ctx context.Context, intent domain.Intent, nonce uint64, gas uint64) (orderID string, err error)
	ExecuteOrder(ctx context.Context, orderID string, gas uint64) (ExecutionResult, error)
	CancelOrder(ctx context.Context, orderID string, gas uint64) error
	Deposit(ctx context.Context, account domain.AgentId, amountUSD *big.Int, gas uint64) error
	Withdraw(ctx context.Context, account domain.AgentId, amountUSD *big.Int, gas uint64) error
	ReadPosition(ctx context.Context, account domain.AgentId, symbol domain.Symbol, side domain.Side) (domain.Position, error)
	ReadMarket(ctx context.Context, symbol domain.Symbol) (domain.MarketState, error)
}

// Gas multipliers against base_gas (§4.5). The base itself is configuration.
const (
	GasMultiplierDepositWithdraw = 1.0
	GasMultiplierSubmit          = 1.0
	GasMultiplierExecute         = 1.5
	GasMultiplierCancel          = 0.5
)

// PriceImpactMode selects how a Backend reacts when closing a position would
// move the book further than its configured price-impact threshold allows —
// the two gates a real settlement contract's PriceImpactLargerThanOrderSize
// abort leaves open (§9): clamp the fill down to what fits, or push the
// close through in full anyway.
type PriceImpactMode uint8

const (
	// PriceImpactCap clamps the executed size to the largest amount that
	// keeps the fill's notional within the configured impact threshold; the
	// remainder of the requested close is left resting on the position.
	PriceImpactCap PriceImpactMode = iota
	// PriceImpactForcedClose ignores the threshold and executes the full
	// requested size regardless of impact.
	PriceImpactForcedClose
)

func (m PriceImpactMode) String() string {
	if m == PriceImpactForcedClose {
		return "forced_close"
	}
	return "cap"
}

func scaledGas(baseGas uint64, multiplier float64) uint64 {
	return uint64(float64(baseGas) * multiplier)
}
