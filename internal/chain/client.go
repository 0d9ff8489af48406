package chain

import (
	"context"
	"math/big"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"permsim/internal/clock"
	"permsim/internal/domain"
	"permsim/internal/eventbus"
	"permsim/internal/metrics"
	"permsim/internal/simerr"
	"permsim/pkg/ratelimit"
	"permsim/pkg/retry"
)

// DefaultChainTimeout is the per-call deadline in realtime mode (§5: "15s chain").
const DefaultChainTimeout = 15 * time.Second

// identitySlot serializes every call for one signing identity and owns its
// nonce counter, per §4.5/§5 "Chain nonces: owned by ChainClient, one
// counter per identity, incremented only inside the per-identity serialized
// channel."
type identitySlot struct {
	mu    sync.Mutex
	nonce uint64
}

// Client is the ChainClient.
type Client struct {
	backend Backend
	mode    clock.Mode
	baseGas uint64
	limiter *ratelimit.RateLimiter
	events  *eventbus.Bus
	log     *zap.Logger

	identitiesMu sync.Mutex
	identities   map[domain.AgentId]*identitySlot

	sem chan struct{}
}

// New builds a Client. numIdentities bounds submission concurrency at
// min(numIdentities, 32) per §4.5. events may be nil in tests that don't
// care about the OrderSubmitted/OrderExecuted/OrderFailed stream.
func New(backend Backend, mode clock.Mode, baseGas uint64, numIdentities int, events *eventbus.Bus, log *zap.Logger) *Client {
	concurrency := numIdentities
	if concurrency <= 0 || concurrency > 32 {
		concurrency = 32
	}
	return &Client{
		backend:    backend,
		mode:       mode,
		baseGas:    baseGas,
		limiter:    ratelimit.NewRateLimiter(float64(concurrency)*10, float64(concurrency)*20),
		events:     events,
		log:        log,
		identities: make(map[domain.AgentId]*identitySlot),
		sem:        make(chan struct{}, concurrency),
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

func (c *Client) publish(ev domain.Event) {
	if c.events != nil {
		c.events.Publish(ev)
	}
}

func (c *Client) slotFor(account domain.AgentId) *identitySlot {
	c.identitiesMu.Lock()
	defer c.identitiesMu.Unlock()
	slot, ok := c.identities[account]
	if !ok {
		slot = &identitySlot{}
		c.identities[account] = slot
	}
	return slot
}

func (c *Client) submitConfig() retry.Config {
	cfg := retry.ChainSubmitConfig()
	if c.mode == clock.Fast {
		return retry.Immediate(cfg)
	}
	return cfg
}

// SubmitAndExecute runs the two-phase lifecycle of §4.5: a retried Submit
// followed by a single, never-retried Execute. Calls for the same identity
// are serialized through that identity's slot; calls for different
// identities may run concurrently, bounded by the client's semaphore.
func (c *Client) SubmitAndExecute(ctx context.Context, intent domain.Intent) (ExecutionResult, error) {
	slot := c.slotFor(intent.Account)

	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return ExecutionResult{}, ctx.Err()
	}
	defer func() { <-c.sem }()

	slot.mu.Lock()
	defer slot.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return ExecutionResult{}, err
	}

	nonce := slot.nonce
	slot.nonce++

	submitGas := scaledGas(c.baseGas, GasMultiplierSubmit)
	executeGas := scaledGas(c.baseGas, GasMultiplierExecute)
	identity := strconv.FormatUint(uint64(intent.Account), 10)

	var orderID string
	attempt := 0
	submitStart := time.Now()
	err := retry.Do(ctx, func() error {
		attempt++
		id, submitErr := c.backend.SubmitOrder(ctx, intent, nonce, submitGas)
		if submitErr != nil {
			return submitErr
		}
		orderID = id
		return nil
	}, c.submitConfig())
	if err != nil {
		metrics.RecordSubmit(identity, "rejected", msSince(submitStart))
		c.publish(domain.OrderFailed{ClientOrderID: intent.ClientOrderID, Account: intent.Account, Reason: simerr.ReasonSubmitExhausted})
		return ExecutionResult{}, &simerr.SubmitError{Account: uint32(intent.Account), Attempt: attempt, Cause: err}
	}
	metrics.RecordSubmit(identity, "accepted", msSince(submitStart))
	c.publish(domain.OrderSubmitted{ClientOrderID: intent.ClientOrderID, Account: intent.Account, Symbol: intent.Symbol, Nonce: nonce})

	executeStart := time.Now()
	result, execErr := c.backend.ExecuteOrder(ctx, orderID, executeGas)
	if execErr != nil {
		metrics.RecordExecute(identity, "reverted", msSince(executeStart))
		c.publish(domain.OrderFailed{ClientOrderID: intent.ClientOrderID, Account: intent.Account, Reason: simerr.ReasonExecuteFailed})
		return ExecutionResult{}, &simerr.ExecuteError{OrderID: orderID, Cause: execErr}
	}
	metrics.RecordExecute(identity, "filled", msSince(executeStart))
	c.publish(domain.OrderExecuted{
		ClientOrderID: intent.ClientOrderID,
		Account:       intent.Account,
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		Action:        intent.Action,
		FillPrice:     result.FillPrice,
		FeePaidUSD:    result.FeePaidUSD,
	})
	return result, nil
}

// Cancel cancels a previously submitted order at 0.5x gas.
func (c *Client) Cancel(ctx context.Context, orderID string) error {
	return c.backend.CancelOrder(ctx, orderID, scaledGas(c.baseGas, GasMultiplierCancel))
}

// Deposit credits account's collateral at 1x gas.
func (c *Client) Deposit(ctx context.Context, account domain.AgentId, amountUSD *big.Int) error {
	return c.backend.Deposit(ctx, account, amountUSD, scaledGas(c.baseGas, GasMultiplierDepositWithdraw))
}

// Withdraw debits account's collateral at 1x gas.
func (c *Client) Withdraw(ctx context.Context, account domain.AgentId, amountUSD *big.Int) error {
	return c.backend.Withdraw(ctx, account, amountUSD, scaledGas(c.baseGas, GasMultiplierDepositWithdraw))
}

// ReadPosition is a pass-through read, not subject to nonce serialization.
func (c *Client) ReadPosition(ctx context.Context, account domain.AgentId, symbol domain.Symbol, side domain.Side) (domain.Position, error) {
	return c.backend.ReadPosition(ctx, account, symbol, side)
}

// ReadMarket is a pass-through read, not subject to nonce serialization.
func (c *Client) ReadMarket(ctx context.Context, symbol domain.Symbol) (domain.MarketState, error) {
	return c.backend.ReadMarket(ctx, symbol)
}
