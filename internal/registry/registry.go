// Package registry holds the gateway's read model: the latest
// PositionSnapshot/MarketSnapshot per key, kept eventually consistent by
// draining the EventBus the same way PriceCache does for prices — single
// writer (the gateway's bridge goroutine), many readers (HTTP handlers).
package registry

import (
	"sync"

	"permsim/internal/domain"
)

type positionKey struct {
	account domain.AgentId
	symbol  domain.Symbol
	side    domain.Side
}

// Registry is safe for concurrent reads and writes.
type Registry struct {
	mu        sync.RWMutex
	positions map[positionKey]domain.Position
	markets   map[domain.Symbol]domain.MarketState
}

func New() *Registry {
	return &Registry{
		positions: make(map[positionKey]domain.Position),
		markets:   make(map[domain.Symbol]domain.MarketState),
	}
}

// Apply folds a domain event into the read model. Events this registry
// doesn't track are ignored.
func (r *Registry) Apply(ev domain.Event) {
	switch e := ev.(type) {
	case domain.PositionSnapshot:
		r.mu.Lock()
		r.positions[positionKey{e.Position.Account, e.Position.Symbol, e.Position.Side}] = e.Position
		r.mu.Unlock()
	case domain.MarketSnapshot:
		r.mu.Lock()
		r.markets[e.Market.Symbol] = e.Market
		r.mu.Unlock()
	case domain.PositionLiquidated:
		r.mu.Lock()
		delete(r.positions, positionKey{e.Account, e.Symbol, domain.Long})
		delete(r.positions, positionKey{e.Account, e.Symbol, domain.Short})
		r.mu.Unlock()
	}
}

// PositionsFor returns every tracked position for account.
func (r *Registry) PositionsFor(account domain.AgentId) []domain.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Position, 0, len(r.positions))
	for key, pos := range r.positions {
		if key.account == account {
			out = append(out, pos)
		}
	}
	return out
}

// Position returns the tracked position for (account, symbol, side), if
// any.
func (r *Registry) Position(account domain.AgentId, symbol domain.Symbol, side domain.Side) (domain.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.positions[positionKey{account, symbol, side}]
	return pos, ok
}

// Markets returns every tracked market snapshot.
func (r *Registry) Markets() []domain.MarketState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.MarketState, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m)
	}
	return out
}

// Market returns the tracked snapshot for symbol, if any.
func (r *Registry) Market(symbol domain.Symbol) (domain.MarketState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[symbol]
	return m, ok
}
