// Package pendingbook holds every PendingOrder awaiting a trigger: limit and
// stop/TP/SL intents a strategy has armed but the chain has not yet executed
// as a Market order. Ownership follows §3: the book is kernel-owned shared
// state, read by KeeperAgent every tick and written by whichever strategy
// armed or cancelled an order.
package pendingbook

import (
	"sort"
	"sync"

	"permsim/internal/domain"
)

// Book is a concurrency-safe table of PendingOrders keyed by ClientOrderID.
type Book struct {
	mu      sync.RWMutex
	orders  map[domain.ClientOrderID]domain.PendingOrder
}

// New builds an empty Book.
func New() *Book {
	return &Book{orders: make(map[domain.ClientOrderID]domain.PendingOrder)}
}

// Arm inserts a new Armed PendingOrder. Re-arming an existing
// ClientOrderID overwrites it.
func (b *Book) Arm(order domain.PendingOrder) {
	order.State = domain.Armed
	b.mu.Lock()
	b.orders[order.ClientOrderID] = order
	b.mu.Unlock()
}

// Transition moves an order to a new state if the transition is legal per
// domain.CanTransition. Returns false if the order is missing or the
// transition is illegal.
func (b *Book) Transition(id domain.ClientOrderID, to domain.PendingOrderState) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.orders[id]
	if !ok || !domain.CanTransition(order.State, to) {
		return false
	}
	order.State = to
	b.orders[id] = order
	return true
}

// Remove deletes an order outright (used once a Triggered order has been
// submitted to the ExchangeAgent and no longer needs tracking).
func (b *Book) Remove(id domain.ClientOrderID) {
	b.mu.Lock()
	delete(b.orders, id)
	b.mu.Unlock()
}

// Get returns the order for id, if present.
func (b *Book) Get(id domain.ClientOrderID) (domain.PendingOrder, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	order, ok := b.orders[id]
	return order, ok
}

// Armed returns every Armed order for symbol, sorted by PlacedBy then
// ClientOrderID so callers that need a deterministic scan order (KeeperAgent)
// get one without re-deriving it.
func (b *Book) Armed(symbol domain.Symbol) []domain.PendingOrder {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []domain.PendingOrder
	for _, order := range b.orders {
		if order.State == domain.Armed && order.Symbol == symbol {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PlacedBy != out[j].PlacedBy {
			return out[i].PlacedBy < out[j].PlacedBy
		}
		return out[i].ClientOrderID < out[j].ClientOrderID
	})
	return out
}

// ExpireBefore transitions every Armed order with ExpiresNs <= now to
// Expired and returns the ones that changed.
func (b *Book) ExpireBefore(now uint64) []domain.PendingOrder {
	b.mu.Lock()
	defer b.mu.Unlock()

	var expired []domain.PendingOrder
	for id, order := range b.orders {
		if order.State != domain.Armed || order.ExpiresNs == nil {
			continue
		}
		if *order.ExpiresNs <= now {
			order.State = domain.Expired
			b.orders[id] = order
			expired = append(expired, order)
		}
	}
	return expired
}
