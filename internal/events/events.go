// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package events defines the lifecycle topics published on a user's channel
// and their payloads.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/ManuGH/xdesign/internal/bus"
	"github.com/ManuGH/xdesign/internal/model"
)

// Topic names a lifecycle event.
type Topic string

const (
	TopicGenerationStart      Topic = "generation.start"
	TopicAnalysisStart        Topic = "analysis.start"
	TopicAnalysisComplete     Topic = "analysis.complete"
	TopicFrameCreated         Topic = "frame.created"
	TopicGenerationComplete   Topic = "generation.complete"
	TopicGenerationError      Topic = "generation.error"
	TopicRegenerationStart    Topic = "regeneration.start"
	TopicFrameRegenerated     Topic = "frame.regenerated"
	TopicRegenerationComplete Topic = "regeneration.complete"
	TopicRegenerationError    Topic = "regeneration.error"
)

// Topics lists every topic in publication order of a full run.
var Topics = []Topic{
	TopicGenerationStart,
	TopicAnalysisStart,
	TopicAnalysisComplete,
	TopicFrameCreated,
	TopicGenerationComplete,
	TopicGenerationError,
	TopicRegenerationStart,
	TopicFrameRegenerated,
	TopicRegenerationComplete,
	TopicRegenerationError,
}

// Status payload values.
const (
	StatusRunning      = "running"
	StatusAnalyzing    = "analyzing"
	StatusGenerating   = "generating"
	StatusCompleted    = "completed"
	StatusRegenerating = "regenerating"
	StatusFailed       = "failed"
	StatusError        = "error"
)

// StatusPayload carries a bare status transition.
type StatusPayload struct {
	Status    string `json:"status"`
	ProjectID string `json:"projectId"`
	FrameID   string `json:"frameId,omitempty"`
}

type AnalysisCompletePayload struct {
	Status       string             `json:"status"`
	Theme        string             `json:"theme"`
	TotalScreens int                `json:"totalScreens"`
	Screens      []model.ScreenSpec `json:"screens"`
	ProjectID    string             `json:"projectId"`
}

type FrameCreatedPayload struct {
	Frame     model.Frame `json:"frame"`
	ScreenID  string      `json:"screenId"`
	ProjectID string      `json:"projectId"`
}

type FrameRegeneratedPayload struct {
	Frame     model.Frame `json:"frame"`
	ProjectID string      `json:"projectId"`
}

// ErrorPayload is carried by generation.error and regeneration.error.
type ErrorPayload struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	ProjectID string `json:"projectId"`
	FrameID   string `json:"frameId,omitempty"`
}

// Event is a decoded lifecycle message. Exactly one payload field matching
// Topic is set.
type Event struct {
	Topic            Topic
	ProjectID        string
	Status           *StatusPayload
	AnalysisComplete *AnalysisCompletePayload
	FrameCreated     *FrameCreatedPayload
	FrameRegenerated *FrameRegeneratedPayload
	Error            *ErrorPayload
}

// Encode wraps a payload into a bus message.
func Encode(topic Topic, payload any) (bus.Message, error) {
	return bus.NewMessage(string(topic), payload)
}

// Decode parses a bus message into an Event. Unknown topics are an error.
func Decode(msg bus.Message) (Event, error) {
	ev := Event{Topic: Topic(msg.Topic)}
	var err error
	switch ev.Topic {
	case TopicGenerationStart, TopicAnalysisStart, TopicGenerationComplete,
		TopicRegenerationStart, TopicRegenerationComplete:
		var p StatusPayload
		err = json.Unmarshal(msg.Data, &p)
		ev.Status, ev.ProjectID = &p, p.ProjectID
	case TopicAnalysisComplete:
		var p AnalysisCompletePayload
		err = json.Unmarshal(msg.Data, &p)
		ev.AnalysisComplete, ev.ProjectID = &p, p.ProjectID
	case TopicFrameCreated:
		var p FrameCreatedPayload
		err = json.Unmarshal(msg.Data, &p)
		ev.FrameCreated, ev.ProjectID = &p, p.ProjectID
	case TopicFrameRegenerated:
		var p FrameRegeneratedPayload
		err = json.Unmarshal(msg.Data, &p)
		ev.FrameRegenerated, ev.ProjectID = &p, p.ProjectID
	case TopicGenerationError, TopicRegenerationError:
		var p ErrorPayload
		err = json.Unmarshal(msg.Data, &p)
		ev.Error, ev.ProjectID = &p, p.ProjectID
	default:
		return Event{}, fmt.Errorf("unknown topic %q", msg.Topic)
	}
	if err != nil {
		return Event{}, fmt.Errorf("decode %s: %w", msg.Topic, err)
	}
	return ev, nil
}
