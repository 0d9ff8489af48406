// Package syntheticfeed is the oracle.Provider used when no real price feed
// endpoint is configured: a per-symbol random walk seeded from the
// scenario's seed via internal/agentrand, so a run is exactly reproducible
// across two processes given the same scenario file.
package syntheticfeed

import (
	"context"
	"math/big"
	"sync"

	"permsim/internal/agentrand"
	"permsim/internal/domain"
	"permsim/internal/oracle"
)

// symbolState is one symbol's current mid price and its private RNG stream.
type symbolState struct {
	mid *big.Int // micro-USD
	rng *agentrand.Source
}

// Provider generates a bounded random walk per symbol around its starting
// price, publishing a PriceMin/PriceMax spread of spreadBps around the walk.
type Provider struct {
	mu        sync.Mutex
	state     map[domain.Symbol]*symbolState
	spreadBps float64
	volBps    float64
}

// New seeds one walk per symbol at startMicroUSD, keyed off scenarioSeed so
// repeated runs of the same scenario draw the same sequence. volBps is the
// per-tick step size and spreadBps the min/max band width, both in basis
// points of the current mid.
func New(scenarioSeed uint64, symbols []domain.Symbol, startMicroUSD int64, volBps, spreadBps float64) *Provider {
	state := make(map[domain.Symbol]*symbolState, len(symbols))
	for i, sym := range symbols {
		state[sym] = &symbolState{
			mid: big.NewInt(startMicroUSD),
			rng: agentrand.New(scenarioSeed, domain.AgentId(i+1)),
		}
	}
	return &Provider{state: state, spreadBps: spreadBps, volBps: volBps}
}

// Fetch advances every symbol's walk by one step and returns the resulting
// band. A symbol this Provider wasn't seeded with is silently omitted, which
// OracleAgent treats as a per-symbol fetch failure.
func (p *Provider) Fetch(_ context.Context, symbols []domain.Symbol) ([]oracle.Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]oracle.Sample, 0, len(symbols))
	for _, sym := range symbols {
		st, ok := p.state[sym]
		if !ok {
			continue
		}
		step := st.rng.Jitter(0, p.volBps/10_000)
		delta := new(big.Int).Mul(st.mid, big.NewInt(int64(step*1_000_000)))
		delta.Quo(delta, big.NewInt(1_000_000))
		st.mid.Add(st.mid, delta)
		if st.mid.Sign() <= 0 {
			st.mid.SetInt64(1)
		}

		half := new(big.Int).Mul(st.mid, big.NewInt(int64(p.spreadBps)))
		half.Quo(half, big.NewInt(20_000))
		min := new(big.Int).Sub(st.mid, half)
		max := new(big.Int).Add(st.mid, half)

		out = append(out, oracle.Sample{
			Symbol:   sym,
			PriceMin: domain.NewPriceFromBig(min),
			PriceMax: domain.NewPriceFromBig(max),
		})
	}
	return out, nil
}

var _ oracle.Provider = (*Provider)(nil)
