// Package mailbox implements the Kernel's MessageBus: an in-process,
// strongly-typed mailbox keyed by AgentId. Delivery is FIFO per (from, to)
// pair only — there is no global order across distinct senders into the
// same mailbox, matching §4.2 and invariant I5.
package mailbox

import (
	"sync"

	"permsim/internal/domain"
	"permsim/internal/simerr"
)

// DefaultCapacity is the per-mailbox overflow threshold from §4.2.
const DefaultCapacity = 10_000

// Bus is the Kernel-owned mailbox table. Every method takes the internal
// mutex, so the HTTP/WebSocket gateway can inject intents from its own
// goroutine while the single-threaded kernel loop sends and drains.
type Bus struct {
	mu       sync.Mutex
	capacity int
	boxes    map[domain.AgentId][]domain.Envelope
}

// New constructs a Bus with the given per-mailbox capacity (0 means
// DefaultCapacity).
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{capacity: capacity, boxes: make(map[domain.AgentId][]domain.Envelope)}
}

// Send enqueues payload from `from` to `to`, stamped with the virtual time
// `nowVns`. It fails with MailboxFullError once `to`'s queue reaches
// capacity; per §7 this is a programmer error, logged by the caller, and the
// send is simply dropped.
func (b *Bus) Send(from, to domain.AgentId, payload any, nowVns uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.boxes[to]
	if len(q) >= b.capacity {
		return &simerr.MailboxFullError{To: uint32(to)}
	}
	b.boxes[to] = append(q, domain.Envelope{From: from, To: to, Payload: payload, EnqueuedVns: nowVns})
	return nil
}

// Drain returns and clears every envelope queued for `to`, in FIFO order per
// sender (the append-only slice above already preserves per-sender FIFO
// since a single sender's sends are appended in call order).
func (b *Bus) Drain(to domain.AgentId) []domain.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.boxes[to]
	if len(q) == 0 {
		return nil
	}
	delete(b.boxes, to)
	return q
}

// Depth reports the current queue length for `to`, used by the mailbox-depth
// gauge in internal/metrics.
func (b *Bus) Depth(to domain.AgentId) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.boxes[to])
}

// Broadcast delivers payload to every id in `to` on a best-effort basis: a
// MailboxFull for one recipient is ignored and delivery continues with the
// rest (the Kernel's Shutdown delivery relies on this).
func (b *Bus) Broadcast(from domain.AgentId, to []domain.AgentId, payload any, nowVns uint64) {
	for _, id := range to {
		_ = b.Send(from, id, payload, nowVns)
	}
}
