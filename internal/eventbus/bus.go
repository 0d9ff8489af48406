// Package eventbus fans domain events out to subscribers. Delivery within a
// process is synchronous and ordered; a slow subscriber backpressures the
// publisher by blocking Publish up to a configurable timeout, after which
// the event is dropped and a counter incremented. Grounded on the teacher's
// websocket Hub broadcast-with-slow-client-eviction shape, adapted from
// broadcasting to registered websocket connections to broadcasting to
// in-process Subscriber channels.
package eventbus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"permsim/internal/domain"
)

// DefaultBackpressureTimeout is the §4.9 default publish timeout.
const DefaultBackpressureTimeout = 50 * time.Millisecond

// Subscriber receives events on a buffered channel. Subscribe returns one so
// callers (CSV logger, websocket hub, deterministic-replay test harness) can
// range over it independently.
type Subscriber struct {
	ch chan domain.Event
}

// Events exposes the subscriber's channel for ranging.
func (s *Subscriber) Events() <-chan domain.Event { return s.ch }

// Bus is the process-wide event fan-out.
type Bus struct {
	mu          sync.RWMutex
	subs        map[*Subscriber]struct{}
	timeout     time.Duration
	log         *zap.Logger
	dropCounter prometheus.Counter
	recorded    []domain.Event // optional deterministic-replay capture
	recording   bool
}

// New constructs a Bus. dropCounter may be nil in tests.
func New(timeout time.Duration, log *zap.Logger, dropCounter prometheus.Counter) *Bus {
	if timeout <= 0 {
		timeout = DefaultBackpressureTimeout
	}
	return &Bus{
		subs:        make(map[*Subscriber]struct{}),
		timeout:     timeout,
		log:         log,
		dropCounter: dropCounter,
	}
}

// Subscribe registers a new subscriber with the given channel buffer size.
func (b *Bus) Subscribe(buffer int) *Subscriber {
	s := &Subscriber{ch: make(chan domain.Event, buffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes and closes a subscriber.
func (b *Bus) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
	}
	b.mu.Unlock()
}

// EnableRecording starts capturing every published event in call order, for
// the deterministic-replay property (§8 scenario 6). Recording is append-only
// and never blocks Publish.
func (b *Bus) EnableRecording() {
	b.mu.Lock()
	b.recording = true
	b.mu.Unlock()
}

// Recorded returns the captured sequence so far.
func (b *Bus) Recorded() []domain.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Event, len(b.recorded))
	copy(out, b.recorded)
	return out
}

// Publish delivers ev to every subscriber, blocking up to the configured
// timeout per subscriber before dropping. Each subscriber sees events in
// publish order; the order in which subscribers are visited is not defined.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.Lock()
	if b.recording {
		b.recorded = append(b.recorded, ev)
	}
	subs := make([]*Subscriber, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- ev:
		case <-time.After(b.timeout):
			if b.dropCounter != nil {
				b.dropCounter.Inc()
			}
			if b.log != nil {
				b.log.Warn("eventbus: dropped event, slow subscriber", zap.String("event", ev.EventName()))
			}
		}
	}
}
