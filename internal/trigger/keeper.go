package trigger

import (
	"context"

	"go.uber.org/zap"

	"permsim/internal/domain"
	"permsim/internal/kernel"
	"permsim/internal/metrics"
	"permsim/internal/pendingbook"
	"permsim/internal/pricecache"
)

// Keeper is the KeeperAgent: each tick it scans every configured symbol's
// Armed pending orders against the latest oracle band and submits Market
// intents for whatever triggers. When several KeeperAgents are configured,
// the kernel's stable (next_wake, AgentId) tick order already runs the
// lowest AgentId first; pendingbook.Book.Transition is the compare-and-swap
// that makes only the first keeper's match stick, giving the deterministic
// tie-break §4.7 asks for without any extra coordination.
type Keeper struct {
	id        domain.AgentId
	book      *pendingbook.Book
	cache     *pricecache.Cache
	exchange  domain.AgentId
	symbols   []domain.Symbol
	wakeDelta uint64
	log       *zap.Logger
}

// New builds a KeeperAgent addressing exchange as the ExchangeAgent's id.
func New(id domain.AgentId, book *pendingbook.Book, cache *pricecache.Cache, exchange domain.AgentId, symbols []domain.Symbol, wakeDelta uint64, log *zap.Logger) *Keeper {
	if wakeDelta == 0 {
		wakeDelta = 1
	}
	return &Keeper{id: id, book: book, cache: cache, exchange: exchange, symbols: symbols, wakeDelta: wakeDelta, log: log}
}

func (k *Keeper) ID() domain.AgentId { return k.id }

func (k *Keeper) Step(ctx context.Context, now uint64, inbox []domain.Envelope) (kernel.StepResult, error) {
	var messages []kernel.OutMessage

	for _, symbol := range k.symbols {
		sample, ok := k.cache.Get(symbol, now)
		if !ok {
			continue
		}
		metrics.UpdatePriceCacheStaleness(string(symbol), float64(now-sample.ReceivedNs)/1e6)
		for _, order := range k.book.Armed(symbol) {
			if !Holds(order, sample.PriceMax, sample.PriceMin) {
				continue
			}
			if !k.book.Transition(order.ClientOrderID, domain.Triggered) {
				continue
			}
			intent := order.Intent
			intent.Kind = domain.Market
			messages = append(messages, kernel.OutMessage{To: k.exchange, Payload: intent})
			k.book.Remove(order.ClientOrderID)
			metrics.RecordTrigger(string(symbol), order.Kind.String())
			if k.log != nil {
				k.log.Debug("keeper fired pending order",
					zap.String("order", string(order.ClientOrderID)),
					zap.String("symbol", string(symbol)))
			}
		}
	}

	expired := k.book.ExpireBefore(now)
	for _, order := range expired {
		k.book.Remove(order.ClientOrderID)
		metrics.RecordExpiry(string(order.Intent.Symbol))
	}

	return kernel.StepResult{Messages: messages, NextWakeDelta: k.wakeDelta}, nil
}
