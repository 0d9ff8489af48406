// Package pricecache holds the single most recent OracleSample per symbol.
// OracleAgent is the sole writer; every strategy, KeeperAgent and
// LiquidationAgent read through Get and tolerate a Stale answer rather than
// blocking on a fresher one (§4.4/§5: single writer, many tolerant readers).
package pricecache

import (
	"sync"

	"permsim/internal/domain"
)

// DefaultTTL is used when a Cache is built with a non-positive ttlNs.
const DefaultTTL = 30 * 1e9 // 30s in ns, kept in virtual-time units like everything else in the kernel

// Cache is a Symbol -> OracleSample map with a uniform per-entry TTL measured
// in virtual nanoseconds.
type Cache struct {
	mu      sync.RWMutex
	entries map[domain.Symbol]domain.OracleTick
	ttlNs   uint64
}

// New builds a Cache with the given TTL in virtual nanoseconds.
func New(ttlNs uint64) *Cache {
	if ttlNs == 0 {
		ttlNs = DefaultTTL
	}
	return &Cache{entries: make(map[domain.Symbol]domain.OracleTick), ttlNs: ttlNs}
}

// Put records a fresh sample. Called only by OracleAgent.
func (c *Cache) Put(sample domain.OracleTick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sample.Symbol] = sample
}

// Get returns the cached sample for symbol and whether it is fresh as of
// now. A missing entry and a stale entry are both reported as !ok, so
// callers don't need a separate existence check.
func (c *Cache) Get(symbol domain.Symbol, now uint64) (domain.OracleTick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sample, found := c.entries[symbol]
	if !found {
		return domain.OracleTick{}, false
	}
	if now-sample.ReceivedNs > c.ttlNs {
		return domain.OracleTick{}, false
	}
	return sample, true
}

// Symbols returns every symbol currently held, fresh or not.
func (c *Cache) Symbols() []domain.Symbol {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Symbol, 0, len(c.entries))
	for s := range c.entries {
		out = append(out, s)
	}
	return out
}
