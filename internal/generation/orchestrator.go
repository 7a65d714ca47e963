// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package generation

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ManuGH/xdesign/internal/events"
	"github.com/ManuGH/xdesign/internal/llm"
	"github.com/ManuGH/xdesign/internal/log"
	"github.com/ManuGH/xdesign/internal/metrics"
	"github.com/ManuGH/xdesign/internal/model"
	"github.com/ManuGH/xdesign/internal/store"
	"github.com/ManuGH/xdesign/internal/telemetry"
	"github.com/ManuGH/xdesign/internal/theme"
	"github.com/ManuGH/xdesign/internal/workflow"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Orchestrator runs the main generation workflow.
type Orchestrator struct {
	deps Deps
}

func NewOrchestrator(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

// projectSnapshot is the project state read once at the start of a run.
type projectSnapshot struct {
	Frames []model.Frame `json:"frames"`
	Theme  string        `json:"theme"`
}

// planResult is the memoized output of the planning step.
type planResult struct {
	Theme   string             `json:"theme"`
	Screens []model.ScreenSpec `json:"screens"`
}

// Generate plans the screens for job and renders them one by one, persisting
// and publishing each frame as it completes. When a step runs out of retries
// generation.error is published and the step error returned; frames created
// before the failure stay persisted.
func (o *Orchestrator) Generate(ctx context.Context, job model.GenerateJob) (err error) {
	ctx, logger := runContext(ctx, "generation", job.RunID, func(c *zerolog.Context) {
		*c = c.Str(log.FieldProjectID, job.ProjectID).Str(log.FieldUserID, job.UserID)
	})
	ctx, span := tracer.Start(ctx, "generation.generate", trace.WithAttributes(telemetry.GenerationAttributes(job.ProjectID, "", "")...))
	defer span.End()

	pub := publisher{bus: o.deps.Bus, channel: model.UserChannel(job.UserID), logger: logger}

	run, err := o.deps.Engine.Begin(ctx, string(model.JobGenerateScreens), job.RunID, job)
	if err != nil {
		return err
	}
	defer func() {
		if ferr := run.Finish(ctx, err); ferr != nil {
			logger.Error().Err(ferr).Msg("failed to journal run outcome")
		}
		switch {
		case err == nil:
		case isCanceled(err):
			logger.Info().Err(err).Msg("generation interrupted, run stays resumable")
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			pub.publish(context.WithoutCancel(ctx), events.TopicGenerationError, events.ErrorPayload{
				Status:    events.StatusFailed,
				Error:     err.Error(),
				ProjectID: job.ProjectID,
			})
			logger.Error().Err(err).Msg("generation failed")
		}
	}()

	pub.publish(ctx, events.TopicGenerationStart, events.StatusPayload{Status: events.StatusRunning, ProjectID: job.ProjectID})

	// The caller-supplied frames are ignored: the store is authoritative. The
	// snapshot is memoized so a resumed run does not mistake its own frames
	// for pre-existing ones.
	snap, err := workflow.Step(ctx, run, StepLoadProject, func(ctx context.Context) (projectSnapshot, error) {
		frames, err := o.deps.Store.FindFramesByProject(ctx, job.ProjectID)
		if err != nil {
			return projectSnapshot{}, fmt.Errorf("load frames: %w", err)
		}
		stored, err := o.deps.Store.GetProjectTheme(ctx, job.ProjectID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return projectSnapshot{}, workflow.Permanent(fmt.Errorf("project %s: %w", job.ProjectID, err))
			}
			return projectSnapshot{}, fmt.Errorf("load project theme: %w", err)
		}
		return projectSnapshot{Frames: frames, Theme: stored}, nil
	})
	if err != nil {
		return err
	}
	isContinuation := len(snap.Frames) > 0

	plan, err := workflow.Step(ctx, run, StepPlan, func(ctx context.Context) (planResult, error) {
		return o.plan(ctx, pub, job, snap, isContinuation)
	})
	if err != nil {
		return err
	}
	span.SetAttributes(telemetry.GenerationAttributes("", "", plan.Theme)...)

	themeStyle := theme.StyleText(plan.Theme)
	accumulated := append([]model.Frame(nil), snap.Frames...)

	for i, spec := range plan.Screens {
		step := StepScreenPrefix + strconv.Itoa(i)
		contextMarkup := BuildContext(accumulated)

		frame, err := workflow.Step(ctx, run, step, func(ctx context.Context) (model.Frame, error) {
			return o.renderScreen(ctx, pub, job, step, spec, i, len(plan.Screens), contextMarkup, themeStyle)
		})
		if err != nil {
			return err
		}
		accumulated = append(accumulated, frame)
	}

	pub.publish(ctx, events.TopicGenerationComplete, events.StatusPayload{Status: events.StatusCompleted, ProjectID: job.ProjectID})
	logger.Info().Int("screens", len(plan.Screens)).Str(log.FieldTheme, plan.Theme).Msg("generation completed")
	return nil
}

func (o *Orchestrator) plan(ctx context.Context, pub publisher, job model.GenerateJob, snap projectSnapshot, isContinuation bool) (planResult, error) {
	pub.publish(ctx, events.TopicAnalysisStart, events.StatusPayload{Status: events.StatusAnalyzing, ProjectID: job.ProjectID})

	req := llm.PlanRequest{Prompt: job.Prompt}
	if isContinuation {
		req.ContextMarkup = BuildContext(snap.Frames)
		req.ExistingTheme = snap.Theme
	}
	plan, err := o.deps.Planner.Plan(ctx, req)
	if err != nil {
		return planResult{}, err
	}
	if err := plan.Validate(); err != nil {
		return planResult{}, fmt.Errorf("planner returned invalid plan: %w", err)
	}
	metrics.ObservePlan(len(plan.Screens))

	var resolved string
	if isContinuation && snap.Theme != "" {
		resolved = snap.Theme
	} else {
		resolved = theme.Resolve(plan.Theme).ID
		if err := o.deps.Store.SetProjectTheme(ctx, job.ProjectID, resolved); err != nil {
			return planResult{}, fmt.Errorf("store project theme: %w", err)
		}
	}

	pub.publish(ctx, events.TopicAnalysisComplete, events.AnalysisCompletePayload{
		Status:       events.StatusGenerating,
		Theme:        resolved,
		TotalScreens: len(plan.Screens),
		Screens:      plan.Screens,
		ProjectID:    job.ProjectID,
	})
	return planResult{Theme: resolved, Screens: plan.Screens}, nil
}

func (o *Orchestrator) renderScreen(ctx context.Context, pub publisher, job model.GenerateJob, step string, spec model.ScreenSpec, index, total int, contextMarkup, themeStyle string) (model.Frame, error) {
	raw, err := o.deps.Renderer.Render(ctx, llm.RenderRequest{
		Spec:          spec,
		Index:         index,
		Total:         total,
		ContextMarkup: contextMarkup,
		ThemeStyle:    themeStyle,
	})
	if err != nil {
		return model.Frame{}, err
	}

	frame, err := o.deps.Store.CreateFrame(ctx, model.NewFrame{
		ID:        FrameID(job.RunID, step),
		ProjectID: job.ProjectID,
		Title:     spec.Name,
		HTML:      ExtractMarkup(raw),
	})
	if err != nil {
		return model.Frame{}, fmt.Errorf("persist frame for screen %s: %w", spec.ID, err)
	}
	metrics.IncFramePersisted("create")

	pub.publish(ctx, events.TopicFrameCreated, events.FrameCreatedPayload{
		Frame:     frame,
		ScreenID:  spec.ID,
		ProjectID: job.ProjectID,
	})
	log.FromContext(ctx).Info().Str(log.FieldScreenID, spec.ID).Str(log.FieldFrameID, frame.ID).Msg("screen generated")
	return frame, nil
}
