// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/xdesign/internal/bus"
	"github.com/ManuGH/xdesign/internal/model"
	"github.com/google/uuid"
)

// JobChannel is the bus channel carrying enqueued jobs.
const JobChannel = "jobs"

// ErrInvalidJob is returned for a job missing its identifying fields.
var ErrInvalidJob = errors.New("invalid job")

// Queue enqueues jobs for the worker.
type Queue struct {
	bus bus.Bus
}

func NewQueue(b bus.Bus) *Queue {
	return &Queue{bus: b}
}

// EnqueueGenerate enqueues a main generation run and returns its run id.
func (q *Queue) EnqueueGenerate(ctx context.Context, job model.GenerateJob) (string, error) {
	if job.UserID == "" || job.ProjectID == "" {
		return "", fmt.Errorf("%w: user and project are required", ErrInvalidJob)
	}
	if job.RunID == "" {
		job.RunID = uuid.NewString()
	}
	return job.RunID, q.enqueue(ctx, model.JobGenerateScreens, job)
}

// EnqueueRegenerate enqueues a single-frame regeneration and returns its run id.
func (q *Queue) EnqueueRegenerate(ctx context.Context, job model.RegenerateJob) (string, error) {
	if job.UserID == "" || job.ProjectID == "" || job.FrameID == "" {
		return "", fmt.Errorf("%w: user, project and frame are required", ErrInvalidJob)
	}
	if job.RunID == "" {
		job.RunID = uuid.NewString()
	}
	return job.RunID, q.enqueue(ctx, model.JobRegenerateFrame, job)
}

// Ready reports whether a worker is consuming the queue. Buses that cannot
// tell are assumed ready.
func (q *Queue) Ready() bool {
	if c, ok := q.bus.(interface{ Subscribers(string) int }); ok {
		return c.Subscribers(JobChannel) > 0
	}
	return true
}

func (q *Queue) enqueue(ctx context.Context, kind model.JobKind, job any) error {
	msg, err := bus.NewMessage(string(kind), job)
	if err != nil {
		return fmt.Errorf("encode %s job: %w", kind, err)
	}
	if err := q.bus.Publish(ctx, JobChannel, msg); err != nil {
		return fmt.Errorf("enqueue %s job: %w", kind, err)
	}
	return nil
}
