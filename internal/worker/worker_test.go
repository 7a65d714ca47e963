// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/xdesign/internal/bus"
	"github.com/ManuGH/xdesign/internal/model"
	"github.com/ManuGH/xdesign/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recorder struct {
	mu          sync.Mutex
	generated   []model.GenerateJob
	regenerated []model.RegenerateJob

	gate    chan struct{}
	running atomic.Int32
	peak    atomic.Int32
}

func (r *recorder) enter() {
	n := r.running.Add(1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
}

func (r *recorder) Generate(ctx context.Context, job model.GenerateJob) error {
	r.enter()
	defer r.running.Add(-1)
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	r.generated = append(r.generated, job)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Regenerate(_ context.Context, job model.RegenerateJob) error {
	r.mu.Lock()
	r.regenerated = append(r.regenerated, job)
	r.mu.Unlock()
	return nil
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.generated), len(r.regenerated)
}

func startWorker(t *testing.T, w *Worker) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
}

func waitSubscribed(t *testing.T, b *bus.MemoryBus) {
	t.Helper()
	require.Eventually(t, func() bool { return b.Channels() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestWorkerDispatchesQueuedJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := bus.NewMemoryBus(bus.WithBlockingPublish(), bus.WithSubscriberBuffer(8))
	rec := &recorder{}
	stop := startWorker(t, &Worker{Bus: b, Generator: rec, Regenerator: rec, Concurrency: 2})
	defer stop()
	waitSubscribed(t, b)

	q := NewQueue(b)
	ctx := context.Background()
	runID, err := q.EnqueueGenerate(ctx, model.GenerateJob{UserID: "u1", ProjectID: "p1", Prompt: "app"})
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	_, err = q.EnqueueRegenerate(ctx, model.RegenerateJob{UserID: "u1", ProjectID: "p1", FrameID: "f1", RunID: "fixed"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		g, r := rec.counts()
		return g == 1 && r == 1
	}, 2*time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, runID, rec.generated[0].RunID)
	assert.Equal(t, "fixed", rec.regenerated[0].RunID)
}

func TestWorkerRespectsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := bus.NewMemoryBus(bus.WithBlockingPublish(), bus.WithSubscriberBuffer(8))
	rec := &recorder{gate: make(chan struct{})}
	stop := startWorker(t, &Worker{Bus: b, Generator: rec, Regenerator: rec, Concurrency: 2})
	defer stop()
	waitSubscribed(t, b)

	q := NewQueue(b)
	for i := 0; i < 5; i++ {
		_, err := q.EnqueueGenerate(context.Background(), model.GenerateJob{UserID: "u1", ProjectID: "p1"})
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return rec.running.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	for i := 0; i < 5; i++ {
		rec.gate <- struct{}{}
	}
	require.Eventually(t, func() bool {
		g, _ := rec.counts()
		return g == 5
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), rec.peak.Load())
}

func TestWorkerRecoversUnfinishedRuns(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	journal := workflow.NewMemoryJournal()
	engine := workflow.NewEngine(journal)
	interrupted := model.GenerateJob{RunID: "run-crashed", UserID: "u1", ProjectID: "p1", Prompt: "app"}
	_, err := engine.Begin(ctx, string(model.JobGenerateScreens), interrupted.RunID, interrupted)
	require.NoError(t, err)

	finished, err := engine.Begin(ctx, string(model.JobRegenerateFrame), "run-done", model.RegenerateJob{RunID: "run-done"})
	require.NoError(t, err)
	require.NoError(t, finished.Finish(ctx, nil))

	b := bus.NewMemoryBus(bus.WithBlockingPublish())
	rec := &recorder{}
	stop := startWorker(t, &Worker{Bus: b, Journal: journal, Generator: rec, Regenerator: rec, Concurrency: 1})
	defer stop()

	require.Eventually(t, func() bool {
		g, _ := rec.counts()
		return g == 1
	}, 2*time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, interrupted, rec.generated[0])
	assert.Empty(t, rec.regenerated)
}

func TestQueueRejectsIncompleteJobs(t *testing.T) {
	q := NewQueue(bus.NewMemoryBus())
	_, err := q.EnqueueGenerate(context.Background(), model.GenerateJob{UserID: "u1"})
	assert.ErrorIs(t, err, ErrInvalidJob)
	_, err = q.EnqueueRegenerate(context.Background(), model.RegenerateJob{UserID: "u1", ProjectID: "p1"})
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestQueueFailsWithoutWorker(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := bus.NewMemoryBus(bus.WithBlockingPublish())
	q := NewQueue(b)
	assert.False(t, q.Ready())
	_, err := q.EnqueueGenerate(context.Background(), model.GenerateJob{UserID: "u1", ProjectID: "p1"})
	require.ErrorIs(t, err, bus.ErrNoSubscribers)

	stop := startWorker(t, &Worker{Bus: b, Generator: &recorder{}, Regenerator: &recorder{}})
	waitSubscribed(t, b)
	assert.True(t, q.Ready())
	stop()
	assert.False(t, q.Ready())
}

func TestDecodeJobUnknownKind(t *testing.T) {
	_, err := decodeJob("ui/unknown", []byte(`{}`))
	assert.ErrorIs(t, err, ErrInvalidJob)
}
