// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package canvas

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/xdesign/internal/bus"
	"github.com/ManuGH/xdesign/internal/events"
	"github.com/ManuGH/xdesign/internal/fsm"
	"github.com/ManuGH/xdesign/internal/log"
	"github.com/ManuGH/xdesign/internal/model"
	"github.com/ManuGH/xdesign/internal/theme"
	"github.com/rs/zerolog"
)

// DefaultSettleDelay is how long completed is shown before reverting to idle.
const DefaultSettleDelay = 100 * time.Millisecond

type trigger string

const (
	triggerStart    trigger = "start"
	triggerAnalyze  trigger = "analyze"
	triggerPlan     trigger = "plan"
	triggerComplete trigger = "complete"
	triggerSettle   trigger = "settle"
	triggerFail     trigger = "fail"
	triggerTimeout  trigger = "timeout"
)

// Status only moves forward within a job. A late or duplicate event that
// would move it backwards has no edge and is ignored. completed is left only
// by generation.start or the settle to idle.
func transitions() []fsm.Transition[Status, trigger] {
	var t []fsm.Transition[Status, trigger]
	t = append(t, fsm.Edges(triggerStart, StatusRunning,
		StatusIdle, StatusRunning, StatusCompleted, StatusFailed)...)
	t = append(t, fsm.Edges(triggerAnalyze, StatusAnalyzing,
		StatusIdle, StatusRunning, StatusAnalyzing, StatusFailed)...)
	t = append(t, fsm.Edges(triggerPlan, StatusGenerating,
		StatusIdle, StatusRunning, StatusAnalyzing, StatusGenerating, StatusFailed)...)
	t = append(t, fsm.Edges(triggerComplete, StatusCompleted,
		StatusRunning, StatusAnalyzing, StatusGenerating, StatusCompleted, StatusFailed)...)
	t = append(t, fsm.Edges(triggerSettle, StatusIdle, StatusCompleted)...)
	t = append(t, fsm.Edges(triggerFail, StatusFailed,
		StatusIdle, StatusRunning, StatusAnalyzing, StatusGenerating, StatusFailed)...)
	t = append(t, fsm.Edges(triggerTimeout, StatusFailed,
		StatusRunning, StatusAnalyzing, StatusGenerating)...)
	return t
}

func triggerFor(topic events.Topic) (trigger, bool) {
	switch topic {
	case events.TopicGenerationStart:
		return triggerStart, true
	case events.TopicAnalysisStart:
		return triggerAnalyze, true
	case events.TopicAnalysisComplete:
		return triggerPlan, true
	case events.TopicGenerationComplete:
		return triggerComplete, true
	case events.TopicGenerationError:
		return triggerFail, true
	}
	return "", false
}

// Options tune a Consumer. Zero values select defaults; a zero
// WatchdogTimeout disables the watchdog.
type Options struct {
	SettleDelay     time.Duration
	WatchdogTimeout time.Duration
	Clock           Clock
	// OnChange receives a snapshot after every change. It is called without
	// the consumer lock held.
	OnChange func(State)
}

// Consumer maintains the view of one project from its lifecycle events.
type Consumer struct {
	projectID string
	opts      Options
	logger    zerolog.Logger

	mu       sync.Mutex
	view     view
	machine  *fsm.Machine[Status, trigger]
	epoch    uint64 // bumped on every status change
	seen     uint64 // events applied for this project
	settle   Timer
	watchdog Timer
	closed   bool
}

// NewConsumer seeds a consumer from the authoritative project state. The
// initial status is idle when the project already has frames, else running.
func NewConsumer(project model.Project, opts Options) *Consumer {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	initial := StatusRunning
	if len(project.Frames) > 0 {
		initial = StatusIdle
	}
	themeID := project.Theme
	if themeID == "" {
		themeID = theme.DefaultID
	}
	m, err := fsm.New(initial, transitions())
	if err != nil {
		panic(err)
	}
	c := &Consumer{
		projectID: project.ID,
		opts:      opts,
		logger:    log.WithComponent("canvas").With().Str(log.FieldProjectID, project.ID).Logger(),
		view:      newView(project.Frames, themeID),
		machine:   m,
	}
	c.mu.Lock()
	c.armWatchdogLocked()
	c.mu.Unlock()
	return c
}

// State returns a snapshot of the view.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Consumer) snapshotLocked() State {
	frames := make([]model.Frame, len(c.view.frames))
	copy(frames, c.view.frames)
	return State{
		ProjectID: c.projectID,
		Frames:    frames,
		Theme:     c.view.theme,
		Status:    c.machine.State(),
	}
}

// Apply reduces one event. Events of other projects are ignored; a nil
// topic payload leaves frames and theme untouched.
func (c *Consumer) Apply(ev events.Event) {
	if ev.ProjectID != c.projectID {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.seen++
	if ev.Topic == events.TopicGenerationStart && !c.machine.State().InProgress() {
		c.view.resetJob()
	}
	changed := c.view.apply(ev)
	if tr, ok := triggerFor(ev.Topic); ok && c.fireLocked(tr) {
		changed = true
	}
	c.armWatchdogLocked()
	c.notifyUnlock(changed)
}

// Resync replaces frames and theme with the authoritative project state.
// The status is kept.
func (c *Consumer) Resync(project model.Project) {
	if project.ID != c.projectID {
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	themeID := project.Theme
	if themeID == "" {
		themeID = c.view.theme
	}
	c.view = newView(project.Frames, themeID)
	c.logger.Debug().Int("frames", len(project.Frames)).Msg("view resynchronized")
	c.notifyUnlock(true)
}

// Run applies messages until ctx is done or msgs is closed. Undecodable
// messages are skipped.
func (c *Consumer) Run(ctx context.Context, msgs <-chan bus.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			ev, err := events.Decode(msg)
			if err != nil {
				c.logger.Warn().Err(err).Str(log.FieldTopic, msg.Topic).Msg("skipping undecodable event")
				continue
			}
			c.Apply(ev)
		}
	}
}

// Close stops pending timers. Later events are ignored.
func (c *Consumer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	stopTimer(&c.settle)
	stopTimer(&c.watchdog)
}

func (c *Consumer) fireLocked(tr trigger) bool {
	from := c.machine.State()
	to, err := c.machine.Fire(context.Background(), tr)
	if err != nil {
		if !errors.Is(err, fsm.ErrInvalidTransition) {
			c.logger.Warn().Err(err).Msg("status transition failed")
		} else {
			c.logger.Debug().Str(log.FieldOldState, string(from)).Str(log.FieldEvent, string(tr)).Msg("ignoring out-of-order event")
		}
		return false
	}
	if to == from {
		return false
	}
	c.epoch++
	c.logger.Info().Str(log.FieldOldState, string(from)).Str(log.FieldNewState, string(to)).Msg("job status changed")

	stopTimer(&c.settle)
	if to == StatusCompleted {
		epoch := c.epoch
		c.settle = c.opts.Clock.AfterFunc(c.opts.SettleDelay, func() { c.onSettle(epoch) })
	}
	return true
}

func (c *Consumer) onSettle(epoch uint64) {
	c.mu.Lock()
	if c.closed || c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.notifyUnlock(c.fireLocked(triggerSettle))
}

func (c *Consumer) armWatchdogLocked() {
	stopTimer(&c.watchdog)
	if c.opts.WatchdogTimeout <= 0 || !c.machine.State().InProgress() {
		return
	}
	seen := c.seen
	c.watchdog = c.opts.Clock.AfterFunc(c.opts.WatchdogTimeout, func() { c.onWatchdog(seen) })
}

func (c *Consumer) onWatchdog(seen uint64) {
	c.mu.Lock()
	if c.closed || c.seen != seen {
		c.mu.Unlock()
		return
	}
	changed := c.fireLocked(triggerTimeout)
	if changed {
		c.logger.Warn().Dur("timeout", c.opts.WatchdogTimeout).Msg("no progress events, marking job failed")
	}
	c.notifyUnlock(changed)
}

// notifyUnlock releases the lock and reports the change, if any.
func (c *Consumer) notifyUnlock(changed bool) {
	var snap State
	if changed && c.opts.OnChange != nil {
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()
	if changed && c.opts.OnChange != nil {
		c.opts.OnChange(snap)
	}
}

func stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
