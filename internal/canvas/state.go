// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package canvas reduces the lifecycle event stream of one project into the
// client view: its frames, its theme and the job status.
package canvas

import (
	"github.com/ManuGH/xdesign/internal/events"
	"github.com/ManuGH/xdesign/internal/model"
)

// Status is the client-visible job status.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRunning    Status = "running"
	StatusAnalyzing  Status = "analyzing"
	StatusGenerating Status = "generating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// InProgress reports whether a job is believed to be running.
func (s Status) InProgress() bool {
	return s == StatusRunning || s == StatusAnalyzing || s == StatusGenerating
}

// Quiescent reports whether the view should match the store.
func (s Status) Quiescent() bool {
	return s == StatusIdle || s == StatusCompleted || s == StatusFailed
}

// State is a snapshot of the view.
type State struct {
	ProjectID string
	Frames    []model.Frame
	Theme     string
	Status    Status
}

// view holds frames and theme. Status lives in the consumer's machine.
type view struct {
	frames []model.Frame
	theme  string
	// screens maps planned screen ids of the current job to the frame that
	// materialized them.
	screens map[string]string
}

func newView(frames []model.Frame, theme string) view {
	return view{
		frames:  append([]model.Frame(nil), frames...),
		theme:   theme,
		screens: make(map[string]string),
	}
}

// resetJob forgets the screen ids of the previous job.
func (v *view) resetJob() {
	v.screens = make(map[string]string)
}

func (v *view) indexOf(id string) int {
	for i, f := range v.frames {
		if f.ID == id {
			return i
		}
	}
	return -1
}

// apply reduces one event into frames and theme. It reports whether the view changed.
func (v *view) apply(ev events.Event) bool {
	switch ev.Topic {
	case events.TopicAnalysisComplete:
		p := ev.AnalysisComplete
		if p == nil {
			return false
		}
		changed := false
		if p.Theme != "" && p.Theme != v.theme {
			v.theme = p.Theme
			changed = true
		}
		for _, s := range p.Screens {
			if _, done := v.screens[s.ID]; done || v.indexOf(s.ID) >= 0 {
				continue
			}
			v.frames = append(v.frames, model.Frame{ID: s.ID, Title: s.Name, IsLoading: true})
			changed = true
		}
		return changed

	case events.TopicFrameCreated:
		p := ev.FrameCreated
		if p == nil {
			return false
		}
		frame := p.Frame
		frame.IsLoading = false
		if p.ScreenID != "" {
			v.screens[p.ScreenID] = frame.ID
		}
		i := v.indexOf(p.ScreenID)
		if p.ScreenID == "" || i < 0 {
			i = v.indexOf(frame.ID)
		}
		if i < 0 {
			v.frames = append(v.frames, frame)
			return true
		}
		if framesEqual(v.frames[i], frame) {
			return false
		}
		v.frames[i] = frame
		return true

	case events.TopicFrameRegenerated:
		if ev.FrameRegenerated == nil {
			return false
		}
		frame := ev.FrameRegenerated.Frame
		frame.IsLoading = false
		if i := v.indexOf(frame.ID); i >= 0 {
			v.frames[i] = frame
			return true
		}
		return false

	case events.TopicRegenerationStart, events.TopicRegenerationComplete:
		if ev.Status == nil {
			return false
		}
		return v.setLoading(ev.Status.FrameID, ev.Topic == events.TopicRegenerationStart)
	case events.TopicRegenerationError:
		if ev.Error == nil {
			return false
		}
		return v.setLoading(ev.Error.FrameID, false)
	}
	return false
}

func (v *view) setLoading(frameID string, loading bool) bool {
	i := v.indexOf(frameID)
	if i < 0 || v.frames[i].IsLoading == loading {
		return false
	}
	v.frames[i].IsLoading = loading
	return true
}

func framesEqual(a, b model.Frame) bool {
	return a.ID == b.ID && a.Title == b.Title && a.HTML == b.HTML &&
		a.IsLoading == b.IsLoading && a.UpdatedAt.Equal(b.UpdatedAt)
}
