// Package oracle implements the OracleAgent of §4.4: a kernel.Agent that
// wakes on a fixed cadence, pulls a price band per symbol from an external
// Provider, validates it, writes it into the shared PriceCache and
// broadcasts an OracleTick. Grounded on the teacher's periodic price-poll
// goroutine (rewritten here as a single Step instead of its own ticker,
// since the kernel owns all scheduling).
package oracle

import (
	"context"

	"go.uber.org/zap"

	"permsim/internal/domain"
	"permsim/internal/eventbus"
	"permsim/internal/kernel"
	"permsim/internal/metrics"
	"permsim/internal/pricecache"
)

// degradedThreshold is the consecutive-failure count that raises
// OracleDegraded for a symbol (§4.4: "three consecutive failures").
const degradedThreshold = 3

// Agent is the OracleAgent.
type Agent struct {
	id             domain.AgentId
	provider       Provider
	cache          *pricecache.Cache
	events         *eventbus.Bus
	symbols        []domain.Symbol
	wakeIntervalNs uint64
	log            *zap.Logger

	fails map[domain.Symbol]int
}

// New builds an OracleAgent. wakeIntervalNs is the fixed re-fetch cadence in
// virtual nanoseconds.
func New(id domain.AgentId, provider Provider, cache *pricecache.Cache, events *eventbus.Bus, symbols []domain.Symbol, wakeIntervalNs uint64, log *zap.Logger) *Agent {
	if wakeIntervalNs == 0 {
		wakeIntervalNs = 1_000_000_000
	}
	return &Agent{
		id:             id,
		provider:       provider,
		cache:          cache,
		events:         events,
		symbols:        symbols,
		wakeIntervalNs: wakeIntervalNs,
		log:            log,
		fails:          make(map[domain.Symbol]int),
	}
}

func (a *Agent) ID() domain.AgentId { return a.id }

func (a *Agent) Step(ctx context.Context, now uint64, inbox []domain.Envelope) (kernel.StepResult, error) {
	for _, env := range inbox {
		if _, ok := env.Payload.(domain.Shutdown); ok {
			return kernel.StepResult{NextWakeDelta: a.wakeIntervalNs}, nil
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, DefaultFetchTimeout)
	samples, err := a.provider.Fetch(fetchCtx, a.symbols)
	cancel()

	bySymbol := make(map[domain.Symbol]Sample, len(samples))
	for _, s := range samples {
		bySymbol[s.Symbol] = s
	}

	for _, symbol := range a.symbols {
		s, ok := bySymbol[symbol]
		valid := ok && err == nil && s.PriceMin.Cmp(s.PriceMax) <= 0
		if !valid {
			a.fails[symbol]++
			metrics.RecordOracleFetchFailure(string(symbol))
			if a.fails[symbol] == degradedThreshold {
				a.events.Publish(domain.OracleDegraded{Symbol: symbol, ConsecutiveFail: a.fails[symbol]})
				if a.log != nil {
					a.log.Warn("oracle degraded", zap.String("symbol", string(symbol)))
				}
			}
			continue
		}
		a.fails[symbol] = 0
		tick := domain.OracleTick{
			Symbol:     symbol,
			PriceMin:   s.PriceMin,
			PriceMax:   s.PriceMax,
			PriceMid:   domain.Mid(s.PriceMin, s.PriceMax),
			PublishNs:  s.PublishNs,
			ReceivedNs: now,
		}
		a.cache.Put(tick)
		a.events.Publish(tick)
	}

	return kernel.StepResult{NextWakeDelta: a.wakeIntervalNs}, nil
}
