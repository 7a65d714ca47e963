// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package watch

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/xdesign/internal/api"
	"github.com/ManuGH/xdesign/internal/bus"
	"github.com/ManuGH/xdesign/internal/canvas"
	"github.com/ManuGH/xdesign/internal/events"
	"github.com/ManuGH/xdesign/internal/model"
	"github.com/ManuGH/xdesign/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopJobs struct{}

func (noopJobs) EnqueueGenerate(context.Context, model.GenerateJob) (string, error) {
	return "run", nil
}

func (noopJobs) EnqueueRegenerate(context.Context, model.RegenerateJob) (string, error) {
	return "run", nil
}

type daemon struct {
	store  *store.MemoryStore
	events *bus.MemoryBus
	url    string
}

func startDaemon(t *testing.T) *daemon {
	t.Helper()
	d := &daemon{store: store.NewMemoryStore(), events: bus.NewMemoryBus(bus.WithSubscriberBuffer(32))}
	srv := api.New(api.Config{Heartbeat: time.Hour}, api.Deps{Store: d.store, Events: d.events, Jobs: noopJobs{}})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	d.url = ts.URL
	return d
}

func (d *daemon) publish(t *testing.T, user string, topic events.Topic, payload any) {
	t.Helper()
	msg, err := events.Encode(topic, payload)
	require.NoError(t, err)
	require.NoError(t, d.events.Publish(context.Background(), model.UserChannel(user), msg))
}

type recorder struct {
	mu     sync.Mutex
	states []canvas.State
}

func (r *recorder) record(st canvas.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
}

func (r *recorder) last() canvas.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return canvas.State{}
	}
	return r.states[len(r.states)-1]
}

func TestRunFollowsGenerationAndResyncs(t *testing.T) {
	d := startDaemon(t)
	ctx := context.Background()
	p, err := d.store.CreateProject(ctx, model.Project{UserID: "alice", Name: "Demo"})
	require.NoError(t, err)

	rec := &recorder{}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- Run(runCtx, Config{Server: d.url, User: "alice", Project: p.ID, OnState: rec.record})
	}()

	require.Eventually(t, func() bool { return d.events.Channels() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, canvas.StatusRunning, rec.last().Status)

	d.publish(t, "alice", events.TopicGenerationStart, events.StatusPayload{Status: events.StatusRunning, ProjectID: p.ID})
	d.publish(t, "alice", events.TopicAnalysisStart, events.StatusPayload{Status: events.StatusAnalyzing, ProjectID: p.ID})
	d.publish(t, "alice", events.TopicAnalysisComplete, events.AnalysisCompletePayload{
		Status:       events.StatusGenerating,
		Theme:        "ocean-breeze",
		TotalScreens: 1,
		Screens:      []model.ScreenSpec{{ID: "home", Name: "Home"}},
		ProjectID:    p.ID,
	})

	require.Eventually(t, func() bool {
		st := rec.last()
		return len(st.Frames) == 1 && st.Frames[0].IsLoading
	}, 5*time.Second, 10*time.Millisecond)

	home, err := d.store.CreateFrame(ctx, model.NewFrame{ProjectID: p.ID, Title: "Home", HTML: "<div>home</div>"})
	require.NoError(t, err)
	d.publish(t, "alice", events.TopicFrameCreated, events.FrameCreatedPayload{Frame: home, ScreenID: "home", ProjectID: p.ID})

	// Stored but never announced; only a resync can surface it.
	_, err = d.store.CreateFrame(ctx, model.NewFrame{ProjectID: p.ID, Title: "Extra", HTML: "<div>extra</div>"})
	require.NoError(t, err)
	d.publish(t, "alice", events.TopicGenerationComplete, events.StatusPayload{Status: events.StatusCompleted, ProjectID: p.ID})

	require.Eventually(t, func() bool {
		st := rec.last()
		return st.Status.Quiescent() && len(st.Frames) == 2
	}, 5*time.Second, 10*time.Millisecond)

	st := rec.last()
	assert.Equal(t, home.ID, st.Frames[0].ID)
	assert.Equal(t, "<div>home</div>", st.Frames[0].HTML)
	assert.False(t, st.Frames[0].IsLoading)
	assert.Equal(t, "Extra", st.Frames[1].Title)
	assert.Equal(t, "ocean-breeze", st.Theme)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunBootstrapErrors(t *testing.T) {
	d := startDaemon(t)
	ctx := context.Background()

	err := Run(ctx, Config{Server: d.url, User: "alice", Project: "missing"})
	require.ErrorIs(t, err, ErrNotFound)

	err = Run(ctx, Config{Server: d.url, Project: "x"})
	require.Error(t, err)

	err = Run(ctx, Config{Server: "ftp://example", User: "alice", Project: "x"})
	require.Error(t, err)
}

func TestFetchProjectHidesForeignProjects(t *testing.T) {
	d := startDaemon(t)
	p, err := d.store.CreateProject(context.Background(), model.Project{UserID: "alice", Name: "Mine"})
	require.NoError(t, err)

	c, err := NewClient(d.url, "bob", "")
	require.NoError(t, err)
	_, err = c.FetchProject(context.Background(), p.ID)
	require.ErrorIs(t, err, ErrNotFound)

	c, err = NewClient(d.url, "alice", "")
	require.NoError(t, err)
	got, err := c.FetchProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mine", got.Name)
}
