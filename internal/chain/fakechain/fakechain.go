// Package fakechain is an in-memory chain.Backend used only by tests: a
// deterministic stand-in for the remote settlement contract that lets
// callers script failures per call kind without touching any real RPC
// surface.
package fakechain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"permsim/internal/chain"
	"permsim/internal/domain"
)

// Backend is a scripted, in-memory chain.Backend.
type Backend struct {
	mu sync.Mutex

	// FailSubmitTimes makes the first N SubmitOrder calls fail.
	FailSubmitTimes int
	submitFailures  int

	// FailExecute makes every ExecuteOrder call fail.
	FailExecute bool

	// SeenNonces records every nonce SubmitOrder was called with, in call
	// order, so tests can assert per-identity monotonicity.
	SeenNonces []uint64

	orderSeq  uint64
	positions map[string]domain.Position
	markets   map[domain.Symbol]domain.MarketState
}

// New builds an empty fake backend.
func New() *Backend {
	return &Backend{
		positions: make(map[string]domain.Position),
		markets:   make(map[domain.Symbol]domain.MarketState),
	}
}

// SetPosition scripts the value ReadPosition returns for one
// (account, symbol, side) key, letting tests seed position mirrors without
// a real SubmitAndExecute round trip.
func (b *Backend) SetPosition(pos domain.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := fmt.Sprintf("%d-%s-%d", pos.Account, pos.Symbol, pos.Side)
	b.positions[key] = pos
}

// SetMarket scripts the value ReadMarket returns for symbol.
func (b *Backend) SetMarket(state domain.MarketState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markets[state.Symbol] = state
}

var errScriptedSubmitFailure = errors.New("fakechain: scripted submit failure")
var errScriptedExecuteFailure = errors.New("fakechain: scripted execute failure")

func (b *Backend) SubmitOrder(_ context.Context, intent domain.Intent, nonce uint64, _ uint64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.SeenNonces = append(b.SeenNonces, nonce)

	if b.submitFailures < b.FailSubmitTimes {
		b.submitFailures++
		return "", errScriptedSubmitFailure
	}

	id := atomic.AddUint64(&b.orderSeq, 1)
	return fmt.Sprintf("order-%d-%s", id, intent.ClientOrderID), nil
}

func (b *Backend) ExecuteOrder(_ context.Context, orderID string, _ uint64) (chain.ExecutionResult, error) {
	if b.FailExecute {
		return chain.ExecutionResult{}, errScriptedExecuteFailure
	}
	return chain.ExecutionResult{
		OrderID:    orderID,
		FillPrice:  domain.NewPrice(1_000_000),
		FeePaidUSD: big.NewInt(0),
	}, nil
}

func (b *Backend) CancelOrder(_ context.Context, _ string, _ uint64) error {
	return nil
}

func (b *Backend) Deposit(_ context.Context, _ domain.AgentId, _ *big.Int, _ uint64) error {
	return nil
}

func (b *Backend) Withdraw(_ context.Context, _ domain.AgentId, _ *big.Int, _ uint64) error {
	return nil
}

func (b *Backend) ReadPosition(_ context.Context, account domain.AgentId, symbol domain.Symbol, side domain.Side) (domain.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := fmt.Sprintf("%d-%s-%d", account, symbol, side)
	if pos, ok := b.positions[key]; ok {
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
