package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
)

var errRemote = errors.New("502 from endpoint")

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

// --- circuit breaker ---

func TestBreakerOpensAfterThreshold(t *testing.T) {
	var states []State
	cb := NewCircuitBreaker("llm", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
		OnStateChange:    func(_ string, to State) { states = append(states, to) },
	})

	assert.ErrorIs(t, cb.Execute(func() error { return errRemote }), errRemote)
	assert.Equal(t, StateClosed, cb.Current())
	assert.ErrorIs(t, cb.Execute(func() error { return errRemote }), errRemote)
	assert.Equal(t, StateOpen, cb.Current())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, []State{StateClosed, StateOpen}, states)
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker("embeddings", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	_ = cb.Execute(func() error { return errRemote })
	require.Equal(t, StateOpen, cb.Current())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.Current())
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker("embeddings", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	_ = cb.Execute(func() error { return errRemote })

	time.Sleep(20 * time.Millisecond)
	_ = cb.Execute(func() error { return errRemote })
	assert.Equal(t, StateOpen, cb.Current())
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	cb := NewCircuitBreaker("llm", CircuitBreakerConfig{FailureThreshold: 1})

	err := cb.Execute(func() error { return context.Canceled })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.Current())
}

func TestBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker("llm", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	_ = cb.Execute(func() error { return errRemote })

	cb.Reset()

	assert.Equal(t, StateClosed, cb.Current())
	assert.NoError(t, cb.Execute(func() error { return nil }))
}

// --- retry ---

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "embed", fastRetry(), func() error {
		calls++
		if calls < 3 {
			return errRemote
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "embed", fastRetry(), func() error {
		calls++
		return errRemote
	})

	assert.ErrorIs(t, err, errRemote)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "embed", fastRetry(), func() error {
		calls++
		return Permanent(errRemote)
	})

	assert.Equal(t, errRemote, err)
	assert.Equal(t, 1, calls)
}

func TestRetryStopsOnOpenCircuit(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "embed", fastRetry(), func() error {
		calls++
		return ErrCircuitOpen
	})

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry()
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour

	calls := 0
	err := Retry(ctx, "embed", cfg, func() error {
		calls++
		cancel()
		return errRemote
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoffCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFraction: 0.2}

	for attempt := 1; attempt <= 10; attempt++ {
		d := backoff(attempt, cfg)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

// --- timeout ---

func TestWithTimeoutExpires(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "llm", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithTimeoutPassesResult(t *testing.T) {
	err := WithTimeout(context.Background(), time.Second, "llm", func(context.Context) error {
		return errRemote
	})
	assert.Equal(t, errRemote, err)

	assert.NoError(t, WithTimeout(context.Background(), 0, "llm", func(context.Context) error { return nil }))
}

func TestWithTimeoutParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithTimeout(ctx, time.Second, "llm", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
}
