// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ManuGH/xdesign/internal/model"
)

// PlanRequest is the input of one planning call. ContextMarkup and
// ExistingTheme are set for continuation runs only.
type PlanRequest struct {
	Prompt        string
	ContextMarkup string
	ExistingTheme string
}

// Planner turns a prompt into a validated GenerationPlan.
type Planner struct {
	client *Client
}

func NewPlanner(c *Client) *Planner {
	return &Planner{client: c}
}

func (p *Planner) Plan(ctx context.Context, req PlanRequest) (model.GenerationPlan, error) {
	msg, err := p.client.complete(ctx, "plan", chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: planningSystemPrompt()},
			{Role: "user", Content: planningUserPrompt(req)},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return model.GenerationPlan{}, err
	}
	return ParsePlan(msg.Content)
}

// ParsePlan decodes and validates planner output. Code fences around the
// JSON object are tolerated.
func ParsePlan(raw string) (model.GenerationPlan, error) {
	text := strings.TrimSpace(raw)
	if i := strings.IndexByte(text, '{'); i > 0 {
		text = text[i:]
	}
	if j := strings.LastIndexByte(text, '}'); j >= 0 && j < len(text)-1 {
		text = text[:j+1]
	}

	var plan model.GenerationPlan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return model.GenerationPlan{}, fmt.Errorf("decode plan: %w", err)
	}
	if err := plan.Validate(); err != nil {
		return model.GenerationPlan{}, fmt.Errorf("invalid plan: %w", err)
	}
	return plan, nil
}
