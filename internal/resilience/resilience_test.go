package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerTransitions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		SuccessThreshold: 1,
	})
	cb.now = func() time.Time { return now }

	fail := func() error { return errBoom }
	ok := func() error { return nil }

	assert.ErrorIs(t, cb.Call(fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Call(fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	// trial call after the recovery timeout fails and reopens
	now = now.Add(time.Minute + time.Second)
	assert.ErrorIs(t, cb.Call(fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(time.Minute + time.Second)
	require.NoError(t, cb.Call(ok))
	assert.Equal(t, StateClosed, cb.State())

	stats := cb.GetStats()
	assert.Equal(t, "closed", stats["state"])
	assert.Equal(t, 2, stats["trips"])
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2})

	_ = cb.Call(func() error { return errBoom })
	require.NoError(t, cb.Call(func() error { return nil }))
	_ = cb.Call(func() error { return errBoom })

	assert.Equal(t, StateClosed, cb.State())

	cb.Reset()
	assert.Equal(t, 0, cb.GetStats()["failures"])
}

func TestRetry(t *testing.T) {
	fast := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}
	errFatal := errors.New("fatal")

	tests := []struct {
		name      string
		config    RetryConfig
		failures  int
		fatal     bool
		wantCalls int
		wantErr   error
	}{
		{name: "first attempt succeeds", config: fast, wantCalls: 1},
		{name: "succeeds on last attempt", config: fast, failures: 2, wantCalls: 3},
		{name: "exhausts attempts", config: fast, failures: 5, wantCalls: 3, wantErr: errBoom},
		{name: "zero attempts runs once", config: RetryConfig{}, failures: 5, wantCalls: 1, wantErr: errBoom},
		{
			name: "non retryable error stops",
			config: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: time.Millisecond,
				Retryable:    func(err error) bool { return !errors.Is(err, errFatal) },
			},
			failures:  5,
			fatal:     true,
			wantCalls: 1,
			wantErr:   errFatal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), tt.config, func(context.Context) error {
				calls++
				if calls <= tt.failures {
					if tt.fatal {
						return errFatal
					}
					return errBoom
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Retry(ctx, RetryConfig{MaxAttempts: 10, InitialDelay: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errBoom
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}

	assert.Equal(t, 100*time.Millisecond, backoff(cfg, 0))
	assert.Equal(t, 400*time.Millisecond, backoff(cfg, 2))
	assert.Equal(t, time.Second, backoff(cfg, 10))

	cfg.JitterEnabled = true
	d := backoff(cfg, 1)
	assert.GreaterOrEqual(t, d, 200*time.Millisecond)
	assert.Less(t, d, 220*time.Millisecond)
}
