// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package generation

import (
	"context"
	"errors"
	"fmt"

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

// StepLoadFrame memoizes the target frame so a resumed run still renders
// against the pre-regeneration markup.
const StepLoadFrame = "load-target-frame"

// frameNotFoundMessage is the error text clients receive for a missing target.
const frameNotFoundMessage = "Frame not found"

// Regenerator rewrites one existing frame in place.
type Regenerator struct {
	deps Deps
}

func NewRegenerator(deps Deps) *Regenerator {
	return &Regenerator{deps: deps}
}

type regenTarget struct {
	Frame model.Frame `json:"frame"`
	Theme string      `json:"theme"`
}

// Regenerate re-renders job.FrameID using the other frames of the project as
// context and the target's previous markup as reference. The frame keeps its
// id; only its markup and updatedAt change.
func (g *Regenerator) Regenerate(ctx context.Context, job model.RegenerateJob) (err error) {
	ctx, logger := runContext(ctx, "regeneration", job.RunID, func(c *zerolog.Context) {
		*c = c.Str(log.FieldProjectID, job.ProjectID).
			Str(log.FieldFrameID, job.FrameID).
			Str(log.FieldUserID, job.UserID)
	})
	ctx, span := tracer.Start(ctx, "generation.regenerate", trace.WithAttributes(telemetry.GenerationAttributes(job.ProjectID, "", job.Theme)...))
	defer span.End()

	pub := publisher{bus: g.deps.Bus, channel: model.UserChannel(job.UserID), logger: logger}
	publishError := func(ctx context.Context, msg string) {
		pub.publish(ctx, events.TopicRegenerationError, events.ErrorPayload{
			Status:    events.StatusError,
			Error:     msg,
			ProjectID: job.ProjectID,
			FrameID:   job.FrameID,
		})
	}

	run, err := g.deps.Engine.Begin(ctx, string(model.JobRegenerateFrame), job.RunID, job)
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
			logger.Info().Err(err).Msg("regeneration interrupted, run stays resumable")
		case errors.Is(err, ErrFrameNotFound):
			logger.Warn().Msg("regeneration target not found")
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			publishError(context.WithoutCancel(ctx), err.Error())
			logger.Error().Err(err).Msg("regeneration failed")
		}
	}()

	pub.publish(ctx, events.TopicRegenerationStart, events.StatusPayload{
		Status:    events.StatusRegenerating,
		ProjectID: job.ProjectID,
		FrameID:   job.FrameID,
	})

	target, err := workflow.Step(ctx, run, StepLoadFrame, func(ctx context.Context) (regenTarget, error) {
		frame, err := g.deps.Store.GetFrame(ctx, job.FrameID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && frame.ProjectID != job.ProjectID) {
			return regenTarget{}, workflow.Permanent(ErrFrameNotFound)
		}
		if err != nil {
			return regenTarget{}, fmt.Errorf("load frame: %w", err)
		}
		themeID := job.Theme
		if themeID == "" {
			if themeID, err = g.deps.Store.GetProjectTheme(ctx, job.ProjectID); err != nil {
				return regenTarget{}, fmt.Errorf("load project theme: %w", err)
			}
		}
		return regenTarget{Frame: frame, Theme: themeID}, nil
	})
	if err != nil {
		if errors.Is(err, ErrFrameNotFound) {
			publishError(ctx, frameNotFoundMessage)
		}
		return err
	}

	others := make([]model.Frame, 0, len(job.ExistingFrames))
	for _, f := range job.ExistingFrames {
		if f.ID != job.FrameID {
			others = append(others, f)
		}
	}

	updated, err := workflow.Step(ctx, run, StepRegenerateFrame, func(ctx context.Context) (model.Frame, error) {
		raw, err := g.deps.Renderer.Render(ctx, llm.RenderRequest{
			Spec:          model.ScreenSpec{ID: target.Frame.ID, Name: target.Frame.Title},
			Index:         0,
			Total:         1,
			ContextMarkup: BuildContext(others),
			ThemeStyle:    theme.StyleText(target.Theme),
			Original: &llm.OriginalFrame{
				Title:  target.Frame.Title,
				HTML:   target.Frame.HTML,
				Prompt: job.Prompt,
			},
		})
		if err != nil {
			return model.Frame{}, err
		}
		frame, err := g.deps.Store.UpdateFrame(ctx, job.FrameID, ExtractMarkup(raw))
		if err != nil {
			return model.Frame{}, fmt.Errorf("update frame: %w", err)
		}
		metrics.IncFramePersisted("update")

		pub.publish(ctx, events.TopicFrameRegenerated, events.FrameRegeneratedPayload{
			Frame:     frame,
			ProjectID: job.ProjectID,
		})
		return frame, nil
	})
	if err != nil {
		return err
	}

	pub.publish(ctx, events.TopicRegenerationComplete, events.StatusPayload{
		Status:    events.StatusCompleted,
		ProjectID: job.ProjectID,
		FrameID:   job.FrameID,
	})
	logger.Info().Str(log.FieldFrameID, updated.ID).Msg("frame regenerated")
	return nil
}
