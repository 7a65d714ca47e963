// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func testEngine(j Journal, attempts int) *Engine {
	return NewEngine(j,
		WithRetryPolicy(RetryPolicy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, Multiplier: 2}),
		WithSleeper(noSleep),
	)
}

func TestStepMemoizesAcrossResume(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	e := testEngine(j, 3)

	run, err := e.Begin(ctx, "kind", "run-1", map[string]string{"prompt": "x"})
	require.NoError(t, err)

	calls := 0
	first, err := Step(ctx, run, "plan", func(context.Context) ([]string, error) {
		calls++
		return []string{"home", "profile"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"home", "profile"}, first)

	// Simulate a crash: a new engine over the same journal resumes the run.
	e2 := testEngine(j, 3)
	resumed, err := e2.Begin(ctx, "kind", "run-1", nil)
	require.NoError(t, err)
	assert.True(t, resumed.Replayed("plan"))

	second, err := Step(ctx, resumed, "plan", func(context.Context) ([]string, error) {
		calls++
		return nil, errors.New("must not run")
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestStepRetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	e := testEngine(NewMemoryJournal(), 3)
	run, err := e.Begin(ctx, "kind", "run-2", nil)
	require.NoError(t, err)

	attempts := 0
	out, err := Step(ctx, run, "flaky", func(context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, 3, attempts)
}

func TestStepExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	e := testEngine(j, 2)
	run, err := e.Begin(ctx, "kind", "run-3", nil)
	require.NoError(t, err)

	boom := errors.New("model unavailable")
	_, err = Step(ctx, run, "generated-screen-1", func(context.Context) (string, error) {
		return "", boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, boom)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "generated-screen-1", stepErr.Step)
	assert.Equal(t, 2, stepErr.Attempts)

	require.NoError(t, run.Finish(ctx, err))
	rec, err := j.Load(ctx, "run-3")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Contains(t, rec.LastError, "model unavailable")
}

func TestStepPermanentErrorStopsRetrying(t *testing.T) {
	ctx := context.Background()
	e := testEngine(NewMemoryJournal(), 5)
	run, err := e.Begin(ctx, "kind", "run-4", nil)
	require.NoError(t, err)

	attempts := 0
	_, err = Step(ctx, run, "plan", func(context.Context) (int, error) {
		attempts++
		return 0, Permanent(errors.New("bad input"))
	})
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, attempts)
}

func TestCanceledRunStaysUnfinished(t *testing.T) {
	j := NewMemoryJournal()
	e := testEngine(j, 3)
	ctx, cancel := context.WithCancel(context.Background())

	run, err := e.Begin(ctx, "kind", "run-5", nil)
	require.NoError(t, err)
	_, err = Step(ctx, run, "first", func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)

	cancel()
	_, err = Step(ctx, run, "second", func(ctx context.Context) (int, error) { return 0, ctx.Err() })
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, run.Finish(ctx, err))

	pending, err := e.Unfinished(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "run-5", pending[0].RunID)
	assert.Equal(t, []string{"first"}, pending[0].Order)
}

func TestBeginRejectsKindMismatch(t *testing.T) {
	ctx := context.Background()
	e := testEngine(NewMemoryJournal(), 1)
	_, err := e.Begin(ctx, "a", "run-6", nil)
	require.NoError(t, err)
	_, err = e.Begin(ctx, "b", "run-6", nil)
	require.Error(t, err)
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(4))
}

func TestStepFamily(t *testing.T) {
	assert.Equal(t, "generated-screen", stepFamily("generated-screen-12"))
	assert.Equal(t, "analyze-and-plan-screens", stepFamily("analyze-and-plan-screens"))
	assert.Equal(t, "regenerate-frame", stepFamily("regenerate-frame"))
	assert.Equal(t, "x-", stepFamily("x-"))
}
