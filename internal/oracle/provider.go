package oracle

import (
	"context"
	"time"

	"permsim/internal/domain"
)

// Sample is what a Provider returns for one symbol: the raw band and when
// the provider says it was published. OracleAgent fills in ReceivedNs and
// validates the band before writing to the cache.
type Sample struct {
	Symbol    domain.Symbol
	PriceMin  *domain.Price
	PriceMax  *domain.Price
	PublishNs uint64
}

// Provider is the external price collaborator (§6.2). Implementations may
// return a subset of the requested symbols on partial failure; OracleAgent
// treats any symbol missing from the result as a fetch failure for that
// symbol alone.
type Provider interface {
	Fetch(ctx context.Context, symbols []domain.Symbol) ([]Sample, error)
}

// DefaultFetchTimeout is applied by OracleAgent around every Provider.Fetch
// call, per §6.2's "timeout defaults to 10s".
const DefaultFetchTimeout = 10 * time.Second
