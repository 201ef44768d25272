package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
)

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker("catalog", CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	now := time.Unix(1000, 0)
	cb.now = func() time.Time { return now }
	boom := errors.New("connection refused")

	assert.Equal(t, boom, cb.Execute(func() error { return boom }))
	assert.Equal(t, StateClosed, cb.Current())
	assert.Equal(t, boom, cb.Execute(func() error { return boom }))
	assert.Equal(t, StateOpen, cb.Current())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, apperr.ErrIO)
	assert.False(t, called)

	now = now.Add(time.Minute)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.Current())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("catalog", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	now := time.Unix(1000, 0)
	cb.now = func() time.Time { return now }
	boom := errors.New("timeout")

	cb.Execute(func() error { return boom })
	now = now.Add(time.Second)
	cb.Execute(func() error { return boom })
	assert.Equal(t, StateOpen, cb.Current())
}

func TestCircuitBreakerIgnoresPermanentErrors(t *testing.T) {
	cb := NewCircuitBreaker("catalog", CircuitBreakerConfig{FailureThreshold: 1})
	bad := apperr.New(apperr.ErrInvalidInput, "bad name")
	assert.Equal(t, error(bad), cb.Execute(func() error { return bad }))
	assert.Equal(t, StateClosed, cb.Current())
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 5*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, apperr.ErrIO)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = WithTimeout(ctx, time.Second, "cancelled", func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, apperr.ErrCancelled)

	require.NoError(t, WithTimeout(context.Background(), 0, "unbounded", func(context.Context) error { return nil }))
}
