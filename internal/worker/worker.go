// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package worker consumes enqueued jobs and runs them through the
// orchestrators with bounded concurrency.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ManuGH/xdesign/internal/bus"
	"github.com/ManuGH/xdesign/internal/log"
	"github.com/ManuGH/xdesign/internal/metrics"
	"github.com/ManuGH/xdesign/internal/model"
	"github.com/ManuGH/xdesign/internal/workflow"
	"golang.org/x/sync/errgroup"
)

// Generator runs the main generation workflow.
type Generator interface {
	Generate(ctx context.Context, job model.GenerateJob) error
}

// Regenerator runs the single-frame regeneration workflow.
type Regenerator interface {
	Regenerate(ctx context.Context, job model.RegenerateJob) error
}

// Worker consumes JobChannel. Jobs run out-of-band from the HTTP request
// that enqueued them.
type Worker struct {
	Bus         bus.Bus
	Journal     workflow.Journal
	Generator   Generator
	Regenerator Regenerator
	Concurrency int
}

// Run recovers unfinished runs from the journal, then consumes jobs until ctx
// is done. It returns after every started job has returned.
func (w *Worker) Run(ctx context.Context) error {
	limit := w.Concurrency
	if limit <= 0 {
		limit = 1
	}
	logger := log.WithComponent("worker")

	sub, err := w.Bus.Subscribe(ctx, JobChannel)
	if err != nil {
		return fmt.Errorf("subscribe to jobs: %w", err)
	}
	defer func() { _ = sub.Close() }()

	// Job failures are logged by the job itself and never cancel siblings,
	// so the group context is not used.
	var g errgroup.Group
	g.SetLimit(limit)

	if err := w.recover(ctx, &g); err != nil {
		_ = g.Wait()
		return fmt.Errorf("recovery sweep failed: %w", err)
	}

	logger.Info().Int("concurrency", limit).Msg("worker started")
	defer func() { logger.Info().Msg("worker stopped") }()

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				_ = g.Wait()
				return errors.New("job channel closed")
			}
			job, err := decodeJob(model.JobKind(msg.Topic), msg.Data)
			if err != nil {
				logger.Error().Err(err).Str(log.FieldTopic, msg.Topic).Msg("dropping undecodable job")
				continue
			}
			w.dispatch(ctx, &g, job, "queue")
		}
	}
}

// recover re-dispatches every run the journal still lists as running.
func (w *Worker) recover(ctx context.Context, g *errgroup.Group) error {
	if w.Journal == nil {
		return nil
	}
	recs, err := w.Journal.Unfinished(ctx)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		job, err := decodeJob(model.JobKind(rec.Kind), rec.Input)
		if err != nil {
			log.L().Error().Err(err).Str(log.FieldRunID, rec.RunID).Msg("cannot recover run")
			continue
		}
		metrics.RunsRecovered.Inc()
		log.L().Info().Str(log.FieldRunID, rec.RunID).Str("kind", rec.Kind).Strs("completed_steps", rec.Order).Msg("resuming unfinished run")
		w.dispatch(ctx, g, job, "recovery")
	}
	return nil
}

type job struct {
	kind       model.JobKind
	runID      string
	generate   *model.GenerateJob
	regenerate *model.RegenerateJob
}

func decodeJob(kind model.JobKind, data json.RawMessage) (job, error) {
	switch kind {
	case model.JobGenerateScreens:
		var j model.GenerateJob
		if err := json.Unmarshal(data, &j); err != nil {
			return job{}, fmt.Errorf("decode %s: %w", kind, err)
		}
		return job{kind: kind, runID: j.RunID, generate: &j}, nil
	case model.JobRegenerateFrame:
		var j model.RegenerateJob
		if err := json.Unmarshal(data, &j); err != nil {
			return job{}, fmt.Errorf("decode %s: %w", kind, err)
		}
		return job{kind: kind, runID: j.RunID, regenerate: &j}, nil
	default:
		return job{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidJob, kind)
	}
}

// dispatch blocks while the worker is at its concurrency limit.
func (w *Worker) dispatch(ctx context.Context, g *errgroup.Group, j job, source string) {
	metrics.IncJobDispatched(string(j.kind), source)
	g.Go(func() error {
		ctx := log.ContextWithRunID(ctx, j.runID)
		var err error
		switch {
		case j.generate != nil:
			err = w.Generator.Generate(ctx, *j.generate)
		case j.regenerate != nil:
			err = w.Regenerator.Regenerate(ctx, *j.regenerate)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			logger := log.WithContext(ctx, log.WithComponent("worker"))
			logger.Error().
				Err(err).
				Str("kind", string(j.kind)).
				Msg("job failed")
		}
		return nil
	})
}
