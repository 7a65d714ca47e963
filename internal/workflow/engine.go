// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package workflow runs named, memoized, retryable steps whose results are
// journaled, so that an interrupted run resumes without re-running steps that
// already finished.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/ManuGH/xdesign/internal/log"
	"github.com/ManuGH/xdesign/internal/metrics"
	"github.com/ManuGH/xdesign/internal/telemetry"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrRetriesExhausted is matched by every StepError.
var ErrRetriesExhausted = errors.New("workflow: retries exhausted")

// StepError reports a step that failed on its last allowed attempt.
type StepError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// RetryPolicy controls per-step retries.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
	}
}

// Backoff returns the wait before attempt+1.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := float64(p.InitialBackoff)
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 1; i < attempt; i++ {
		d *= mult
		if p.MaxBackoff > 0 && d >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	return time.Duration(d)
}

// Engine starts and resumes runs against a journal.
type Engine struct {
	journal Journal
	policy  func() RetryPolicy
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
	tracer  trace.Tracer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPolicySource reads the retry policy on every step, so a reloaded
// configuration applies to the next step.
func WithPolicySource(fn func() RetryPolicy) EngineOption {
	return func(e *Engine) { e.policy = fn }
}

// WithRetryPolicy fixes the retry policy.
func WithRetryPolicy(p RetryPolicy) EngineOption {
	return func(e *Engine) { e.policy = func() RetryPolicy { return p } }
}

// WithSleeper replaces the backoff wait, mainly for tests.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) EngineOption {
	return func(e *Engine) { e.sleep = fn }
}

func NewEngine(journal Journal, opts ...EngineOption) *Engine {
	e := &Engine{
		journal: journal,
		policy:  DefaultRetryPolicy,
		sleep:   sleepCtx,
		now:     func() time.Time { return time.Now().UTC() },
		tracer:  telemetry.Tracer("xdesign/workflow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Journal exposes the underlying journal.
func (e *Engine) Journal() Journal {
	return e.journal
}

// Begin opens run runID. A journaled run is resumed with its memoized steps;
// otherwise a new record holding input is written.
func (e *Engine) Begin(ctx context.Context, kind, runID string, input any) (*Run, error) {
	rec, err := e.journal.Load(ctx, runID)
	switch {
	case err == nil:
		if rec.Kind != kind {
			return nil, fmt.Errorf("run %s is journaled as %s, not %s", runID, rec.Kind, kind)
		}
		if rec.Status != StatusRunning {
			rec.Status = StatusRunning
			rec.LastError = ""
		}
	case errors.Is(err, ErrRunNotFound):
		buf, mErr := json.Marshal(input)
		if mErr != nil {
			return nil, fmt.Errorf("marshal run input: %w", mErr)
		}
		now := e.now()
		rec = &Record{
			RunID:     runID,
			Kind:      kind,
			Input:     buf,
			Steps:     map[string]json.RawMessage{},
			Status:    StatusRunning,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.journal.Save(ctx, rec); err != nil {
			return nil, fmt.Errorf("journal run %s: %w", runID, err)
		}
	default:
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	if rec.Steps == nil {
		rec.Steps = map[string]json.RawMessage{}
	}

	metrics.RunsActive.WithLabelValues(kind).Inc()
	return &Run{engine: e, rec: rec}, nil
}

// Run is one in-flight workflow execution. Steps of a run are sequential.
type Run struct {
	engine *Engine
	mu     sync.Mutex
	rec    *Record
	done   bool
}

func (r *Run) ID() string   { return r.rec.RunID }
func (r *Run) Kind() string { return r.rec.Kind }

// Replayed reports whether step already has a journaled result.
func (r *Run) Replayed(step string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rec.Steps[step]
	return ok
}

// Step runs fn as the named step of run and memoizes its result. A step
// already in the journal returns the stored result without calling fn.
// Failures are retried per the engine policy; when they run out the error is
// a *StepError. Context cancellation is returned as is and leaves the run
// resumable.
func Step[T any](ctx context.Context, r *Run, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	e := r.engine

	r.mu.Lock()
	raw, ok := r.rec.Steps[name]
	r.mu.Unlock()
	if ok {
		var out T
		if err := json.Unmarshal(raw, &out); err != nil {
			return zero, fmt.Errorf("decode memoized step %q: %w", name, err)
		}
		metrics.IncStepReplayed(r.rec.Kind)
		log.FromContext(ctx).Debug().Str(log.FieldStep, name).Msg("step replayed from journal")
		return out, nil
	}

	policy := e.policy()
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	metricStep := stepFamily(name)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		stepCtx, span := e.tracer.Start(ctx, "workflow.step",
			trace.WithAttributes(telemetry.StepAttributes(r.rec.Kind, r.rec.RunID, name, attempt)...))
		start := time.Now()
		out, err := fn(stepCtx)
		metrics.ObserveStep(r.rec.Kind, metricStep, time.Since(start), err)

		if err == nil {
			buf, mErr := json.Marshal(out)
			if mErr != nil {
				span.End()
				return zero, fmt.Errorf("encode step %q result: %w", name, mErr)
			}
			r.mu.Lock()
			r.rec.Steps[name] = buf
			r.rec.Order = append(r.rec.Order, name)
			r.rec.UpdatedAt = e.now()
			saveErr := e.journal.Save(ctx, r.rec)
			r.mu.Unlock()
			span.End()
			if saveErr != nil {
				return zero, fmt.Errorf("journal step %q: %w", name, saveErr)
			}
			return out, nil
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return zero, &StepError{Step: name, Attempts: attempt, Err: perm.err}
		}
		if attempt == maxAttempts {
			break
		}

		wait := policy.Backoff(attempt)
		log.FromContext(ctx).Warn().
			Err(err).
			Str(log.FieldStep, name).
			Int(log.FieldAttempt, attempt).
			Dur("backoff", wait).
			Msg("workflow step failed, retrying")
		if err := e.sleep(ctx, wait); err != nil {
			return zero, err
		}
	}
	return zero, &StepError{Step: name, Attempts: maxAttempts, Err: lastErr}
}

// Finish records the terminal state of the run. A context error leaves the
// run in the journal as running so that recovery picks it up.
func (r *Run) Finish(ctx context.Context, runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil
	}
	r.done = true
	metrics.RunsActive.WithLabelValues(r.rec.Kind).Dec()

	if runErr != nil && (errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)) {
		return nil
	}
	metrics.RecordRun(r.rec.Kind, runErr)

	r.rec.Status = StatusCompleted
	r.rec.LastError = ""
	if runErr != nil {
		r.rec.Status = StatusFailed
		r.rec.LastError = runErr.Error()
	}
	r.rec.UpdatedAt = r.engine.now()
	// The run context may already be done at this point.
	return r.engine.journal.Save(context.WithoutCancel(ctx), r.rec)
}

// Unfinished lists runs that were interrupted before Finish.
func (e *Engine) Unfinished(ctx context.Context) ([]*Record, error) {
	return e.journal.Unfinished(ctx)
}

// stepFamily strips a trailing "-<n>" index so metric labels stay bounded.
func stepFamily(name string) string {
	i := strings.LastIndexByte(name, '-')
	if i < 0 || i == len(name)-1 {
		return name
	}
	for _, r := range name[i+1:] {
		if !unicode.IsDigit(r) {
			return name
		}
	}
	return name[:i]
}
