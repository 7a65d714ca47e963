// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuGH/xdesign/internal/metrics"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time { return m.now }

var errBoom = errors.New("boom")

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test-open", 3, 10*time.Second, WithClock(clock))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
		assert.Equal(t, StateClosed, cb.State())
	}
	require.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("test-reset", 2, time.Second)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, succeed))
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test-probe", 1, 10*time.Second, WithClock(clock))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	clock.now = clock.now.Add(11 * time.Second)

	// While the probe is in flight a second caller is rejected.
	probeStarted := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			close(probeStarted)
			<-release
			return nil
		})
	}()
	<-probeStarted
	assert.Equal(t, StateHalfOpen, cb.State())
	require.ErrorIs(t, cb.Execute(ctx, succeed), ErrCircuitOpen)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test-reopen", 1, 10*time.Second, WithClock(clock))
	ctx := context.Background()

	before := counterValue(t, "test-reopen", "half_open_failure")

	_ = cb.Execute(ctx, fail)
	clock.now = clock.now.Add(11 * time.Second)
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, before+1, counterValue(t, "test-reopen", "half_open_failure"))
}

func TestCircuitBreaker_CanceledContextIsNotAFailure(t *testing.T) {
	cb := NewCircuitBreaker("test-cancel", 1, time.Second)
	err := cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, cb.Execute(ctx, succeed), context.Canceled)
}

func TestCircuitBreaker_PanicRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test-panic", 1, time.Second, WithPanicRecovery(true))
	assert.Panics(t, func() {
		_ = cb.Execute(context.Background(), func(context.Context) error { panic("kaboom") })
	})
	assert.Equal(t, StateOpen, cb.State())
}

func counterValue(t *testing.T, component, reason string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, metrics.CircuitBreakerTrips.WithLabelValues(component, reason).Write(m))
	return m.GetCounter().GetValue()
}
