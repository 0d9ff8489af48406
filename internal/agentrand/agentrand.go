// Package agentrand gives every strategy its own deterministic source of
// randomness. Two runs with the same scenario seed and the same agent table
// must draw the exact same pseudo-random sequence per agent regardless of
// kernel tick order, so the stream is keyed from (scenario_seed, agent_id)
// rather than drawn from one shared generator. Grounded on the teacher's
// FNV-1a sharding idiom (used there to shard pairs across worker pools) fed
// into math/rand/v2's PCG, which is the generator the standard library
// recommends for anything that needs a stable, seedable stream.
package agentrand

import (
	"hash"
	"hash/fnv"
	"math/rand/v2"

	"permsim/internal/domain"
)

// Source is one agent's private PRNG stream.
type Source struct {
	r *rand.Rand
}

// seed64 derives two 64-bit seed halves from (scenarioSeed, agentID) via
// FNV-1a, giving rand.NewPCG a 128-bit seed distinct per agent even when
// scenarioSeed repeats across scenarios.
func seed64(scenarioSeed uint64, agentID domain.AgentId) (uint64, uint64) {
	h1 := fnv.New64a()
	writeSeedInput(h1, scenarioSeed, agentID, 1)
	h2 := fnv.New64a()
	writeSeedInput(h2, scenarioSeed, agentID, 2)
	return h1.Sum64(), h2.Sum64()
}

func writeSeedInput(h hash.Hash64, scenarioSeed uint64, agentID domain.AgentId, salt byte) {
	var buf [13]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(scenarioSeed >> (8 * i))
	}
	for i := 0; i < 4; i++ {
		buf[8+i] = byte(uint32(agentID) >> (8 * i))
	}
	buf[12] = salt
	_, _ = h.Write(buf[:])
}

// New builds the deterministic PRNG for one agent under one scenario seed.
func New(scenarioSeed uint64, agentID domain.AgentId) *Source {
	s1, s2 := seed64(scenarioSeed, agentID)
	return &Source{r: rand.New(rand.NewPCG(s1, s2))}
}

// Float64 returns a pseudo-random number in [0, 1).
func (s *Source) Float64() float64 { return s.r.Float64() }

// IntN returns a pseudo-random number in [0, n).
func (s *Source) IntN(n int) int { return s.r.IntN(n) }

// Jitter returns a value uniformly distributed in [base*(1-frac), base*(1+frac)].
func (s *Source) Jitter(base, frac float64) float64 {
	if frac <= 0 {
		return base
	}
	return base * (1 + frac*(2*s.r.Float64()-1))
}

// Bool returns true with the given probability, clamped to [0, 1].
func (s *Source) Bool(probability float64) bool {
	if probability <= 0 {
		return false
	}
	if probability >= 1 {
		return true
	}
	return s.r.Float64() < probability
}
