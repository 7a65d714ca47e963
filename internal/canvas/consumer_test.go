// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package canvas

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/xdesign/internal/bus"
	"github.com/ManuGH/xdesign/internal/events"
	"github.com/ManuGH/xdesign/internal/model"
	"github.com/ManuGH/xdesign/internal/theme"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs due timers on the calling goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

const pid = "p1"

func statusEvent(topic events.Topic, status string) events.Event {
	return events.Event{Topic: topic, ProjectID: pid, Status: &events.StatusPayload{Status: status, ProjectID: pid}}
}

func analysisComplete(themeID string, ids ...string) events.Event {
	specs := make([]model.ScreenSpec, len(ids))
	for i, id := range ids {
		specs[i] = model.ScreenSpec{ID: id, Name: "Screen " + id}
	}
	return events.Event{Topic: events.TopicAnalysisComplete, ProjectID: pid, AnalysisComplete: &events.AnalysisCompletePayload{
		Status: events.StatusGenerating, Theme: themeID, TotalScreens: len(ids), Screens: specs, ProjectID: pid,
	}}
}

func frameCreated(screenID, frameID, html string) events.Event {
	return events.Event{Topic: events.TopicFrameCreated, ProjectID: pid, FrameCreated: &events.FrameCreatedPayload{
		Frame:     model.Frame{ID: frameID, ProjectID: pid, Title: "Screen " + screenID, HTML: html},
		ScreenID:  screenID,
		ProjectID: pid,
	}}
}

func newTestConsumer(t *testing.T, project model.Project, clock *fakeClock, watchdog time.Duration) *Consumer {
	t.Helper()
	project.ID = pid
	c := NewConsumer(project, Options{Clock: clock, WatchdogTimeout: watchdog})
	t.Cleanup(c.Close)
	return c
}

func TestInitialStatus(t *testing.T) {
	clock := &fakeClock{}
	empty := newTestConsumer(t, model.Project{}, clock, 0)
	assert.Equal(t, StatusRunning, empty.State().Status)
	assert.Equal(t, theme.DefaultID, empty.State().Theme)

	seeded := newTestConsumer(t, model.Project{Theme: "midnight", Frames: []model.Frame{{ID: "f0"}}}, clock, 0)
	assert.Equal(t, StatusIdle, seeded.State().Status)
	assert.Equal(t, "midnight", seeded.State().Theme)
}

func TestFullRunWithSettle(t *testing.T) {
	clock := &fakeClock{}
	var changes []Status
	c := NewConsumer(model.Project{ID: pid}, Options{Clock: clock, OnChange: func(s State) { changes = append(changes, s.Status) }})
	defer c.Close()

	c.Apply(statusEvent(events.TopicGenerationStart, events.StatusRunning))
	c.Apply(statusEvent(events.TopicAnalysisStart, events.StatusAnalyzing))
	assert.Equal(t, StatusAnalyzing, c.State().Status)

	c.Apply(analysisComplete("forest-calm", "home", "stats"))
	st := c.State()
	assert.Equal(t, StatusGenerating, st.Status)
	assert.Equal(t, "forest-calm", st.Theme)
	require.Len(t, st.Frames, 2)
	assert.True(t, st.Frames[0].IsLoading)
	assert.Empty(t, st.Frames[0].HTML)

	c.Apply(frameCreated("home", "f-home", "<div>home</div>"))
	c.Apply(frameCreated("stats", "f-stats", "<div>stats</div>"))
	c.Apply(statusEvent(events.TopicGenerationComplete, events.StatusCompleted))
	assert.Equal(t, StatusCompleted, c.State().Status)

	clock.Advance(DefaultSettleDelay - time.Millisecond)
	assert.Equal(t, StatusCompleted, c.State().Status)
	clock.Advance(time.Millisecond)
	assert.Equal(t, StatusIdle, c.State().Status)

	want := []model.Frame{
		{ID: "f-home", ProjectID: pid, Title: "Screen home", HTML: "<div>home</div>"},
		{ID: "f-stats", ProjectID: pid, Title: "Screen stats", HTML: "<div>stats</div>"},
	}
	if diff := cmp.Diff(want, c.State().Frames); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, StatusIdle, changes[len(changes)-1])
}

func TestSettleCancelledByNewRun(t *testing.T) {
	clock := &fakeClock{}
	c := newTestConsumer(t, model.Project{}, clock, 0)
	c.Apply(statusEvent(events.TopicGenerationComplete, events.StatusCompleted))
	c.Apply(statusEvent(events.TopicGenerationStart, events.StatusRunning))
	clock.Advance(time.Second)
	assert.Equal(t, StatusRunning, c.State().Status)
}

func TestAnalysisStartDoesNotFallThrough(t *testing.T) {
	c := newTestConsumer(t, model.Project{}, &fakeClock{}, 0)
	c.Apply(statusEvent(events.TopicAnalysisStart, events.StatusAnalyzing))
	st := c.State()
	assert.Equal(t, StatusAnalyzing, st.Status)
	assert.Empty(t, st.Frames)
}

func TestStatusDoesNotMoveBackwards(t *testing.T) {
	c := newTestConsumer(t, model.Project{}, &fakeClock{}, 0)
	c.Apply(analysisComplete("midnight", "a"))
	c.Apply(statusEvent(events.TopicAnalysisStart, events.StatusAnalyzing))
	c.Apply(statusEvent(events.TopicGenerationStart, events.StatusRunning))
	assert.Equal(t, StatusGenerating, c.State().Status)
}

func TestFrameCreatedIsIdempotent(t *testing.T) {
	c := newTestConsumer(t, model.Project{}, &fakeClock{}, 0)
	c.Apply(analysisComplete("midnight", "home"))
	ev := frameCreated("home", "f-home", "<div>home</div>")
	c.Apply(ev)
	once := c.State()
	c.Apply(ev)
	if diff := cmp.Diff(once, c.State()); diff != "" {
		t.Errorf("duplicate frame.created changed state (-once +twice):\n%s", diff)
	}
	require.Len(t, once.Frames, 1)
	assert.False(t, once.Frames[0].IsLoading)
}

func TestAnalysisCompleteIsAdditive(t *testing.T) {
	existing := []model.Frame{{ID: "f0", Title: "Old", HTML: "<div>old</div>"}}
	c := newTestConsumer(t, model.Project{Frames: existing}, &fakeClock{}, 0)

	c.Apply(analysisComplete("midnight", "a", "b", "c"))
	st := c.State()
	require.Len(t, st.Frames, 4)
	assert.Equal(t, existing[0], st.Frames[0])
	for _, f := range st.Frames[1:] {
		assert.True(t, f.IsLoading)
	}

	// A duplicate, even after placeholders were replaced, adds nothing.
	c.Apply(frameCreated("a", "f-a", "<div>a</div>"))
	c.Apply(analysisComplete("midnight", "a", "b", "c"))
	assert.Len(t, c.State().Frames, 4)
}

func TestSecondJobReusingScreenIDsGetsPlaceholders(t *testing.T) {
	clock := &fakeClock{}
	c := newTestConsumer(t, model.Project{}, clock, 0)

	c.Apply(statusEvent(events.TopicGenerationStart, events.StatusRunning))
	c.Apply(analysisComplete("midnight", "home"))
	c.Apply(frameCreated("home", "f-home-1", "<div>home</div>"))
	c.Apply(statusEvent(events.TopicGenerationComplete, events.StatusCompleted))
	clock.Advance(DefaultSettleDelay)
	require.Equal(t, StatusIdle, c.State().Status)

	c.Apply(statusEvent(events.TopicGenerationStart, events.StatusRunning))
	c.Apply(analysisComplete("midnight", "home", "settings"))
	st := c.State()
	require.Len(t, st.Frames, 3)
	assert.Equal(t, "f-home-1", st.Frames[0].ID)
	var placeholders []string
	for _, f := range st.Frames {
		if f.IsLoading {
			placeholders = append(placeholders, f.ID)
		}
	}
	assert.Equal(t, []string{"home", "settings"}, placeholders)

	c.Apply(frameCreated("home", "f-home-2", "<div>home v2</div>"))
	st = c.State()
	require.Len(t, st.Frames, 3)
	assert.Equal(t, "f-home-2", st.Frames[1].ID)
	assert.False(t, st.Frames[1].IsLoading)
}

func TestDuplicateGenerationStartKeepsJobScreens(t *testing.T) {
	c := newTestConsumer(t, model.Project{}, &fakeClock{}, 0)
	c.Apply(statusEvent(events.TopicGenerationStart, events.StatusRunning))
	c.Apply(analysisComplete("midnight", "home"))
	c.Apply(frameCreated("home", "f-home", "<div>home</div>"))

	c.Apply(statusEvent(events.TopicGenerationStart, events.StatusRunning))
	c.Apply(analysisComplete("midnight", "home"))
	st := c.State()
	require.Len(t, st.Frames, 1)
	assert.Equal(t, "f-home", st.Frames[0].ID)
}

func TestMissingAnalysisCompleteStillAppendsFrames(t *testing.T) {
	c := newTestConsumer(t, model.Project{}, &fakeClock{}, 0)
	c.Apply(statusEvent(events.TopicGenerationStart, events.StatusRunning))
	c.Apply(frameCreated("home", "f-home", "<div>home</div>"))
	st := c.State()
	require.Len(t, st.Frames, 1)
	assert.Equal(t, "f-home", st.Frames[0].ID)
}

func TestOtherProjectEventsIgnored(t *testing.T) {
	c := newTestConsumer(t, model.Project{}, &fakeClock{}, 0)
	before := c.State()
	ev := analysisComplete("midnight", "x")
	ev.ProjectID = "other"
	c.Apply(ev)
	assert.Equal(t, before, c.State())
}

func TestGenerationErrorFails(t *testing.T) {
	c := newTestConsumer(t, model.Project{}, &fakeClock{}, 0)
	c.Apply(statusEvent(events.TopicAnalysisStart, events.StatusAnalyzing))
	c.Apply(events.Event{Topic: events.TopicGenerationError, ProjectID: pid, Error: &events.ErrorPayload{Status: events.StatusFailed, Error: "boom", ProjectID: pid}})
	assert.Equal(t, StatusFailed, c.State().Status)
}

func TestWatchdogMarksFailed(t *testing.T) {
	clock := &fakeClock{}
	c := newTestConsumer(t, model.Project{}, clock, time.Minute)

	c.Apply(statusEvent(events.TopicGenerationStart, events.StatusRunning))
	clock.Advance(50 * time.Second)
	c.Apply(statusEvent(events.TopicAnalysisStart, events.StatusAnalyzing))
	clock.Advance(50 * time.Second)
	assert.Equal(t, StatusAnalyzing, c.State().Status, "progress resets the watchdog")

	clock.Advance(10 * time.Second)
	assert.Equal(t, StatusFailed, c.State().Status)

	// A late completion still wins.
	c.Apply(statusEvent(events.TopicGenerationComplete, events.StatusCompleted))
	assert.Equal(t, StatusCompleted, c.State().Status)
}

func TestWatchdogIdleNeverFires(t *testing.T) {
	clock := &fakeClock{}
	c := newTestConsumer(t, model.Project{Frames: []model.Frame{{ID: "f0"}}}, clock, time.Second)
	clock.Advance(time.Hour)
	assert.Equal(t, StatusIdle, c.State().Status)
}

func TestLateEventsAfterCompletionKeepStatus(t *testing.T) {
	clock := &fakeClock{}
	c := newTestConsumer(t, model.Project{}, clock, time.Minute)

	c.Apply(statusEvent(events.TopicGenerationStart, events.StatusRunning))
	c.Apply(statusEvent(events.TopicAnalysisStart, events.StatusAnalyzing))
	c.Apply(analysisComplete("midnight", "home"))
	c.Apply(frameCreated("home", "f-home", "<div>home</div>"))
	c.Apply(statusEvent(events.TopicGenerationComplete, events.StatusCompleted))

	c.Apply(statusEvent(events.TopicAnalysisStart, events.StatusAnalyzing))
	assert.Equal(t, StatusCompleted, c.State().Status)
	c.Apply(analysisComplete("midnight", "home"))
	assert.Equal(t, StatusCompleted, c.State().Status)
	assert.Len(t, c.State().Frames, 1)

	clock.Advance(DefaultSettleDelay)
	assert.Equal(t, StatusIdle, c.State().Status)
	clock.Advance(2 * time.Minute)
	assert.Equal(t, StatusIdle, c.State().Status)
}

func TestRegenerationLoadingFlags(t *testing.T) {
	c := newTestConsumer(t, model.Project{Frames: []model.Frame{{ID: "f0", HTML: "<div>old</div>"}}}, &fakeClock{}, 0)

	c.Apply(events.Event{Topic: events.TopicRegenerationStart, ProjectID: pid, Status: &events.StatusPayload{Status: events.StatusRegenerating, ProjectID: pid, FrameID: "f0"}})
	assert.True(t, c.State().Frames[0].IsLoading)

	c.Apply(events.Event{Topic: events.TopicFrameRegenerated, ProjectID: pid, FrameRegenerated: &events.FrameRegeneratedPayload{
		Frame: model.Frame{ID: "f0", HTML: "<div>new</div>"}, ProjectID: pid,
	}})
	st := c.State()
	assert.False(t, st.Frames[0].IsLoading)
	assert.Equal(t, "<div>new</div>", st.Frames[0].HTML)
	assert.Equal(t, StatusIdle, st.Status)

	c.Apply(events.Event{Topic: events.TopicRegenerationStart, ProjectID: pid, Status: &events.StatusPayload{Status: events.StatusRegenerating, ProjectID: pid, FrameID: "f0"}})
	c.Apply(events.Event{Topic: events.TopicRegenerationError, ProjectID: pid, Error: &events.ErrorPayload{Status: events.StatusError, Error: "x", ProjectID: pid, FrameID: "f0"}})
	assert.False(t, c.State().Frames[0].IsLoading)
}

func TestEventsWithoutPayloadAreIgnored(t *testing.T) {
	seed := model.Project{Theme: "midnight", Frames: []model.Frame{{ID: "f0", HTML: "<div>old</div>"}}}
	c := newTestConsumer(t, seed, &fakeClock{}, 0)
	before := c.State()

	for _, topic := range []events.Topic{
		events.TopicAnalysisComplete,
		events.TopicFrameCreated,
		events.TopicFrameRegenerated,
		events.TopicRegenerationStart,
		events.TopicRegenerationComplete,
		events.TopicRegenerationError,
	} {
		require.NotPanics(t, func() { c.Apply(events.Event{Topic: topic, ProjectID: pid}) }, topic)
	}
	st := c.State()
	if diff := cmp.Diff(before.Frames, st.Frames); diff != "" {
		t.Errorf("frames changed (-want +got):\n%s", diff)
	}
	assert.Equal(t, before.Theme, st.Theme)
}

func TestResyncReplacesFrames(t *testing.T) {
	c := newTestConsumer(t, model.Project{}, &fakeClock{}, 0)
	c.Apply(analysisComplete("midnight", "a", "b"))
	c.Resync(model.Project{ID: pid, Theme: "midnight", Frames: []model.Frame{{ID: "f-a"}}})
	st := c.State()
	require.Len(t, st.Frames, 1)
	assert.Equal(t, "f-a", st.Frames[0].ID)
	assert.Equal(t, StatusGenerating, st.Status)
}

func TestRunConsumesSubscription(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := bus.NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, model.UserChannel("u1"))
	require.NoError(t, err)

	got := make(chan Status, 8)
	c := NewConsumer(model.Project{ID: pid}, Options{OnChange: func(s State) { got <- s.Status }})

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, sub.C()) }()

	msg, err := events.Encode(events.TopicAnalysisStart, events.StatusPayload{Status: events.StatusAnalyzing, ProjectID: pid})
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, model.UserChannel("u1"), msg))
	require.NoError(t, b.Publish(ctx, model.UserChannel("u1"), bus.Message{Topic: "bogus"}))

	select {
	case s := <-got:
		assert.Equal(t, StatusAnalyzing, s)
	case <-time.After(2 * time.Second):
		t.Fatal("no state change observed")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	c.Close()
	require.NoError(t, sub.Close())
}
