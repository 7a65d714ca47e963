// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package generation runs the screen generation and single-frame
// regeneration workflows: plan, render, persist, publish.
package generation

import (
	"context"
	"errors"

	"github.com/ManuGH/xdesign/internal/bus"
	"github.com/ManuGH/xdesign/internal/events"
	"github.com/ManuGH/xdesign/internal/llm"
	"github.com/ManuGH/xdesign/internal/log"
	"github.com/ManuGH/xdesign/internal/model"
	"github.com/ManuGH/xdesign/internal/store"
	"github.com/ManuGH/xdesign/internal/telemetry"
	"github.com/ManuGH/xdesign/internal/workflow"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Step names. Screen steps are StepScreenPrefix followed by the screen index.
const (
	StepLoadProject     = "load-existing-frames"
	StepPlan            = "analyze-and-plan-screens"
	StepScreenPrefix    = "generated-screen-"
	StepRegenerateFrame = "regenerate-frame"
)

// ErrFrameNotFound is returned when a regeneration targets a missing frame.
var ErrFrameNotFound = errors.New("frame not found")

// Planner produces the screen plan for a prompt.
type Planner interface {
	Plan(ctx context.Context, req llm.PlanRequest) (model.GenerationPlan, error)
}

// Renderer produces raw markup for one screen.
type Renderer interface {
	Render(ctx context.Context, req llm.RenderRequest) (string, error)
}

// Deps are the collaborators shared by both orchestrators.
type Deps struct {
	Store    store.Store
	Bus      bus.Bus
	Engine   *workflow.Engine
	Planner  Planner
	Renderer Renderer
}

// frameNamespace seeds deterministic frame ids.
var frameNamespace = uuid.MustParse("6f1f7c52-3c1e-4d59-9a57-1f0e6c4b2a10")

// FrameID derives the frame id persisted by step of run. A retried or
// replayed step therefore writes the same frame.
func FrameID(runID, step string) string {
	return uuid.NewSHA1(frameNamespace, []byte(runID+"/"+step)).String()
}

type publisher struct {
	bus     bus.Bus
	channel string
	logger  zerolog.Logger
}

// publish is best effort: delivery failures are logged, never returned.
func (p publisher) publish(ctx context.Context, topic events.Topic, payload any) {
	msg, err := events.Encode(topic, payload)
	if err == nil {
		err = p.bus.Publish(ctx, p.channel, msg)
	}
	if err != nil {
		p.logger.Warn().Err(err).Str(log.FieldTopic, string(topic)).Msg("publish lifecycle event failed")
	}
}

func runContext(ctx context.Context, component, runID string, fields func(*zerolog.Context)) (context.Context, zerolog.Logger) {
	ctx = log.ContextWithRunID(ctx, runID)
	lc := log.WithComponentFromContext(ctx, component).With()
	if fields != nil {
		fields(&lc)
	}
	logger := lc.Logger()
	return logger.WithContext(ctx), logger
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

var tracer trace.Tracer = telemetry.Tracer("xdesign/generation")

var (
	_ Planner  = (*llm.Planner)(nil)
	_ Renderer = (*llm.Renderer)(nil)
)
