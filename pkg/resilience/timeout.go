package resilience

import (
	"context"
	"time"

	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
)

// WithTimeout runs fn under a context that expires after timeout. A missed
// deadline is reported as ErrIO so callers may retry it; cancellation of the
// parent is reported as ErrCancelled.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := fn(tctx)
	if err == nil || tctx.Err() == nil {
		return err
	}
	if ctx.Err() != nil {
		return apperr.Wrap(apperr.ErrCancelled, ctx.Err(), name)
	}
	return apperr.Wrap(apperr.ErrIO, err, name+" timed out after "+timeout.String())
}
