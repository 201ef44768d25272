package catalog

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/resilience"
)

const defaultCallTimeout = 2 * time.Second

// Guarded bounds every call of a remote catalog by a timeout and stops
// calling it through a circuit breaker once it keeps failing.
type Guarded struct {
	next    Catalog
	breaker *resilience.CircuitBreaker
	timeout time.Duration
}

func NewGuarded(next Catalog, breaker *resilience.CircuitBreaker, timeout time.Duration) *Guarded {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Guarded{next: next, breaker: breaker, timeout: timeout}
}

func (g *Guarded) call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return g.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, g.timeout, "catalog "+name, fn)
	})
}

func (g *Guarded) MarkIndexed(ctx context.Context, document, index string) error {
	return g.call(ctx, "mark", func(ctx context.Context) error {
		return g.next.MarkIndexed(ctx, document, index)
	})
}

func (g *Guarded) ClearIndexed(ctx context.Context, document, index string) error {
	return g.call(ctx, "clear", func(ctx context.Context) error {
		return g.next.ClearIndexed(ctx, document, index)
	})
}

func (g *Guarded) IsIndexed(ctx context.Context, document, index string) (bool, error) {
	var ok bool
	err := g.call(ctx, "check", func(ctx context.Context) error {
		var err error
		ok, err = g.next.IsIndexed(ctx, document, index)
		return err
	})
	return ok, err
}

func (g *Guarded) Indexes(ctx context.Context, document string) ([]string, error) {
	var idx []string
	err := g.call(ctx, "list", func(ctx context.Context) error {
		var err error
		idx, err = g.next.Indexes(ctx, document)
		return err
	})
	return idx, err
}
