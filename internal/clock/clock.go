// Package clock provides the Kernel's single time source: now_vns() -> u64.
// Two modes exist — fast (virtual time jumps to the next scheduled wake) and
// realtime (virtual time tracks the monotonic wall clock since start).
// Switching modes mid-run is forbidden; Mode is fixed at construction.
package clock

import "time"

// Mode selects how a Clock advances.
type Mode uint8

const (
	// Fast advances only when the kernel explicitly Advance()s it to the
	// next scheduled wake — there is no wall-clock coupling at all.
	Fast Mode = iota
	// Realtime pins virtual nanoseconds to time.Since(start).
	Realtime
)

// Clock is the kernel's notion of virtual time.
type Clock struct {
	mode  Mode
	start time.Time
	fastN uint64 // current virtual ns, fast mode only
}

// New constructs a Clock in the given mode, virtual time zeroed at
// construction.
func New(mode Mode) *Clock {
	return &Clock{mode: mode, start: time.Now()}
}

// Mode reports the fixed mode this clock was constructed with.
func (c *Clock) Mode() Mode { return c.mode }

// NowVns returns the current virtual-time nanosecond count.
func (c *Clock) NowVns() uint64 {
	if c.mode == Realtime {
		return uint64(time.Since(c.start).Nanoseconds())
	}
	return c.fastN
}

// Advance is only valid in Fast mode: it jumps virtual time forward to
// target, which must be >= the current value. The kernel calls this once
// per tick with the next scheduled wake time.
func (c *Clock) Advance(target uint64) {
	if c.mode != Fast {
		return
	}
	if target > c.fastN {
		c.fastN = target
	}
}

// TickBoundary returns the next realtime tick boundary, tickMs apart,
// aligned to the clock's start. Only meaningful in Realtime mode.
func (c *Clock) TickBoundary(tickMs int) time.Time {
	elapsed := time.Since(c.start)
	tick := time.Duration(tickMs) * time.Millisecond
	n := elapsed/tick + 1
	return c.start.Add(n * tick)
}
