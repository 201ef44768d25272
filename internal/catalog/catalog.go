// Package catalog records which value indexes exist for each document. The
// builder marks an index after a successful build and abort clears it, so
// the catalog never advertises an index with a dangling key count.
package catalog

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/resilience"
)

// Catalog is the document metadata store.
type Catalog interface {
	MarkIndexed(ctx context.Context, document, index string) error
	ClearIndexed(ctx context.Context, document, index string) error
	IsIndexed(ctx context.Context, document, index string) (bool, error)
	// Indexes lists the indexes of document in ascending order.
	Indexes(ctx context.Context, document string) ([]string, error)
}

// FromConfig returns the catalog selected by cfg. The returned close func
// releases any connection the catalog holds.
func FromConfig(cfg config.Config) (Catalog, func() error, error) {
	switch cfg.Catalog.Backend {
	case "", "file":
		return NewFile(cfg.Index.DataDir), func() error { return nil }, nil
	case "redis":
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		breaker := resilience.NewCircuitBreaker("catalog", resilience.CircuitBreakerConfig{})
		return NewGuarded(NewRedis(client, cfg.Redis.KeyPrefix), breaker, 0), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
}
