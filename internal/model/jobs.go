// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// JobKind identifies an enqueue message type.
type JobKind string

const (
	JobGenerateScreens JobKind = "ui/generate.screens"
	JobRegenerateFrame JobKind = "ui/regenerate.frame"
)

// GenerateJob triggers the main generation workflow.
type GenerateJob struct {
	RunID     string  `json:"runId"`
	UserID    string  `json:"userId"`
	ProjectID string  `json:"projectId"`
	Prompt    string  `json:"prompt"`
	Frames    []Frame `json:"frames"`
	Theme     string  `json:"theme,omitempty"`
}

// RegenerateJob triggers the single-frame regeneration workflow.
type RegenerateJob struct {
	RunID          string  `json:"runId"`
	UserID         string  `json:"userId"`
	ProjectID      string  `json:"projectId"`
	FrameID        string  `json:"frameId"`
	Prompt         string  `json:"prompt"`
	Theme          string  `json:"theme"`
	ExistingFrames []Frame `json:"existingFrames"`
}
