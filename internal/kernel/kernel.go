// Package kernel implements the discrete-event scheduler of §4.3: a
// min-heap of (next_wake_vns, AgentId) pairs, ticked either as fast as
// possible or pinned to wall-clock boundaries. The kernel is single-threaded
// cooperative by design (§5) — agents never run concurrently within a tick,
// so there are no data races on kernel-owned state. Grounded on the
// teacher's engine.go Run() loop and periodic-task dispatch, restructured
// from a goroutine-per-task pool into one sequential tick loop; the
// concurrency the teacher spent on worker pools here moves below the
// ChainClient line instead (see internal/chain).
package kernel

import (
	"container/heap"
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"permsim/internal/clock"
	"permsim/internal/domain"
	"permsim/internal/eventbus"
	"permsim/internal/mailbox"
	"permsim/internal/metrics"
)

// StepResult is what an Agent's Step returns: messages to enqueue and the
// delta (in virtual ns) until its next wake.
type StepResult struct {
	Messages      []OutMessage
	NextWakeDelta uint64
}

// OutMessage addresses a payload at another agent.
type OutMessage struct {
	To      domain.AgentId
	Payload any
}

// Agent is the uniform contract every strategy, the ExchangeAgent, the
// OracleAgent, the KeeperAgent and the LiquidationAgent implement.
type Agent interface {
	ID() domain.AgentId
	Step(ctx context.Context, now uint64, inbox []domain.Envelope) (StepResult, error)
}

// scheduleEntry is one element of the wake min-heap.
type scheduleEntry struct {
	nextWake uint64
	agent    domain.AgentId
}

type scheduleHeap []scheduleEntry

func (h scheduleHeap) Len() int { return len(h) }
func (h scheduleHeap) Less(i, j int) bool {
	if h[i].nextWake != h[j].nextWake {
		return h[i].nextWake < h[j].nextWake
	}
	return h[i].agent < h[j].agent
}
func (h scheduleHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scheduleHeap) Push(x interface{}) { *h = append(*h, x.(scheduleEntry)) }
func (h *scheduleHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Kernel owns the agent table, the wake schedule and the mailbox.
type Kernel struct {
	clock    *clock.Clock
	bus      *mailbox.Bus
	events   *eventbus.Bus
	log      *zap.Logger
	agents   map[domain.AgentId]Agent
	schedule scheduleHeap
	tickMs   int
}

// New constructs a Kernel. tickMs only matters in realtime mode.
func New(c *clock.Clock, bus *mailbox.Bus, events *eventbus.Bus, log *zap.Logger, tickMs int) *Kernel {
	if tickMs <= 0 {
		tickMs = 100
	}
	return &Kernel{
		clock:  c,
		bus:    bus,
		events: events,
		log:    log,
		agents: make(map[domain.AgentId]Agent),
		tickMs: tickMs,
	}
}

// Register adds an agent to the kernel with an initial wake offset (virtual
// ns from now). Registration must happen before Run.
func (k *Kernel) Register(a Agent, initialWakeDelta uint64) {
	k.agents[a.ID()] = a
	heap.Push(&k.schedule, scheduleEntry{nextWake: k.clock.NowVns() + initialWakeDelta, agent: a.ID()})
}

// Run drives the kernel until durationVns (fast mode) elapses or ctx is
// cancelled (realtime mode, external shutdown signal). It implements the
// five-step tick algorithm of §4.3.
func (k *Kernel) Run(ctx context.Context, durationVns uint64) {
	startVns := k.clock.NowVns()
	for {
		select {
		case <-ctx.Done():
			k.shutdown()
			return
		default:
		}

		if k.clock.Mode() == clock.Realtime {
			boundary := k.clock.TickBoundary(k.tickMs)
			select {
			case <-ctx.Done():
				k.shutdown()
				return
			case <-time.After(time.Until(boundary)):
			}
		} else if len(k.schedule) > 0 {
			// Fast mode: jump straight to the next scheduled wake.
			k.clock.Advance(k.schedule[0].nextWake)
		}

		target := k.clock.NowVns()
		if durationVns > 0 && target-startVns >= durationVns {
			k.shutdown()
			return
		}

		due := k.popDue(target)
		if len(due) == 0 {
			if k.clock.Mode() == clock.Fast && len(k.schedule) == 0 {
				k.shutdown()
				return
			}
			continue
		}

		tickStart := time.Now()
		for _, id := range due {
			k.runAgent(ctx, id, target)
		}
		metrics.RecordTick(float64(time.Since(tickStart)) / float64(time.Millisecond))
	}
}

// popDue removes and returns every agent whose next_wake <= target, in
// stable order: by next_wake then AgentId (guaranteed by the heap's Less).
func (k *Kernel) popDue(target uint64) []domain.AgentId {
	var due []domain.AgentId
	for len(k.schedule) > 0 && k.schedule[0].nextWake <= target {
		entry := heap.Pop(&k.schedule).(scheduleEntry)
		due = append(due, entry.agent)
	}
	return due
}

func (k *Kernel) runAgent(ctx context.Context, id domain.AgentId, now uint64) {
	agent, ok := k.agents[id]
	if !ok {
		return
	}
	inbox := k.bus.Drain(id)
	metrics.RecordSchedule(strconv.FormatUint(uint64(id), 10), len(inbox))
	result, err := agent.Step(ctx, now, inbox)
	if err != nil {
		if k.log != nil {
			k.log.Warn("agent step failed", zap.Uint32("agent", uint32(id)), zap.Error(err))
		}
		// Strategy-level decision errors skip the tick silently per §7; the
		// agent still must be rescheduled or it falls out of the loop.
		heap.Push(&k.schedule, scheduleEntry{nextWake: now + 1, agent: id})
		return
	}

	for _, msg := range result.Messages {
		if sendErr := k.bus.Send(id, msg.To, msg.Payload, now); sendErr != nil && k.log != nil {
			k.log.Warn("mailbox full", zap.Uint32("to", uint32(msg.To)), zap.Error(sendErr))
		}
	}

	// I3: next_wake strictly greater than this tick's now.
	delta := result.NextWakeDelta
	if delta == 0 {
		delta = 1
	}
	heap.Push(&k.schedule, scheduleEntry{nextWake: now + delta, agent: id})
}

// shutdown delivers a single Shutdown message to every registered agent and
// drains one final step from each, per §4.3 termination and §5 cancellation.
func (k *Kernel) shutdown() {
	now := k.clock.NowVns()
	for id := range k.agents {
		k.bus.Broadcast(id, []domain.AgentId{id}, domain.Shutdown{}, now)
	}
	for id, agent := range k.agents {
		inbox := k.bus.Drain(id)
		_, _ = agent.Step(context.Background(), now, inbox)
	}
	if k.log != nil {
		k.log.Info("kernel shutdown complete", zap.Uint64("now_vns", now))
	}
}
