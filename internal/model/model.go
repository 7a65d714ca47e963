// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package model holds the persisted and ephemeral records shared by the
// generation pipeline, the frame store and the canvas consumer.
package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	MinPlanScreens = 1
	MaxPlanScreens = 4
)

// Project owns an ordered set of frames and the theme they share.
type Project struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Theme     string    `json:"theme"`
	Frames    []Frame   `json:"frames,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Frame is one generated screen. IsLoading is a client-only flag and is never persisted.
type Frame struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId,omitempty"`
	Title     string    `json:"title"`
	HTML      string    `json:"htmlContent"`
	X         *float64  `json:"x,omitempty"`
	Y         *float64  `json:"y,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`

	IsLoading bool `json:"isLoading,omitempty"`
}

// NewFrame is the create request for a frame. An empty ID is assigned by the store;
// a non-empty ID makes the create idempotent.
type NewFrame struct {
	ID        string
	ProjectID string
	Title     string
	HTML      string
}

// ScreenSpec is one planner-produced screen description.
type ScreenSpec struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Purpose           string `json:"purpose"`
	VisualDescription string `json:"visualDescription"`
}

// GenerationPlan is the planner output for one run.
type GenerationPlan struct {
	Theme   string       `json:"theme"`
	Screens []ScreenSpec `json:"screens"`
}

// Validate enforces the 1..4 screen bound and non-empty identifiers.
func (p GenerationPlan) Validate() error {
	if n := len(p.Screens); n < MinPlanScreens || n > MaxPlanScreens {
		return fmt.Errorf("plan must contain %d..%d screens, got %d", MinPlanScreens, MaxPlanScreens, n)
	}
	seen := make(map[string]struct{}, len(p.Screens))
	for i, s := range p.Screens {
		if strings.TrimSpace(s.ID) == "" {
			return fmt.Errorf("screen %d has no id", i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("duplicate screen id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	return nil
}

// UserChannel returns the event channel name for a user.
func UserChannel(userID string) string {
	return "user:" + userID
}
