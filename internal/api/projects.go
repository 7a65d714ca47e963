// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ManuGH/xdesign/internal/api/middleware"
	"github.com/ManuGH/xdesign/internal/llm"
	"github.com/ManuGH/xdesign/internal/log"
	"github.com/ManuGH/xdesign/internal/model"
	"github.com/ManuGH/xdesign/internal/store"
	"github.com/ManuGH/xdesign/internal/telemetry"
	"github.com/go-chi/chi/v5"
)

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type regenerateRequest struct {
	FrameID string `json:"frameId"`
	Prompt  string `json:"prompt"`
}

type createProjectResponse struct {
	Project model.Project `json:"project"`
	RunID   string        `json:"runId"`
}

type acceptedResponse struct {
	RunID     string `json:"runId"`
	ProjectID string `json:"projectId"`
	FrameID   string `json:"frameId,omitempty"`
}

// POST /api/projects
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req promptRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		writeBadRequest(w, r, "Missing prompt")
		return
	}

	userID := userFrom(ctx)
	project, err := s.deps.Store.CreateProject(ctx, model.Project{
		UserID: userID,
		Name:   s.projectName(ctx, prompt),
	})
	if err != nil {
		writeInternal(w, r, "create project failed", err)
		return
	}

	runID, err := s.deps.Jobs.EnqueueGenerate(ctx, model.GenerateJob{
		UserID:    userID,
		ProjectID: project.ID,
		Prompt:    prompt,
	})
	if err != nil {
		s.enqueueFailed(w, r, err)
		return
	}

	logger := log.FromContext(ctx)
	logger.Info().
		Str(log.FieldProjectID, project.ID).
		Str(log.FieldRunID, runID).
		Str("name", project.Name).
		Msg("project created")
	middleware.AddSpanAttributes(r, telemetry.GenerationAttributes(project.ID, "", "")...)
	writeJSON(w, r, http.StatusCreated, createProjectResponse{Project: project, RunID: runID})
}

// GET /api/projects/{id}
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadOwnedProject(w, r)
	if !ok {
		return
	}
	if project.Frames == nil {
		project.Frames = []model.Frame{}
	}
	writeJSON(w, r, http.StatusOK, project)
}

// POST /api/projects/{id}/generate
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		writeBadRequest(w, r, "Missing prompt")
		return
	}
	project, ok := s.loadOwnedProject(w, r)
	if !ok {
		return
	}

	runID, err := s.deps.Jobs.EnqueueGenerate(r.Context(), model.GenerateJob{
		UserID:    project.UserID,
		ProjectID: project.ID,
		Prompt:    prompt,
		Frames:    project.Frames,
		Theme:     project.Theme,
	})
	if err != nil {
		s.enqueueFailed(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, acceptedResponse{RunID: runID, ProjectID: project.ID})
}

// POST /api/projects/{id}/frames/regenerate
func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	req.FrameID = strings.TrimSpace(req.FrameID)
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.FrameID == "" || req.Prompt == "" {
		writeBadRequest(w, r, "Frame ID and prompt are required")
		return
	}
	project, ok := s.loadOwnedProject(w, r)
	if !ok {
		return
	}
	if !containsFrame(project.Frames, req.FrameID) {
		writeNotFound(w, r, "frame/not_found", "Frame not found")
		return
	}

	runID, err := s.deps.Jobs.EnqueueRegenerate(r.Context(), model.RegenerateJob{
		UserID:         project.UserID,
		ProjectID:      project.ID,
		FrameID:        req.FrameID,
		Prompt:         req.Prompt,
		Theme:          project.Theme,
		ExistingFrames: project.Frames,
	})
	if err != nil {
		s.enqueueFailed(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusAccepted, acceptedResponse{RunID: runID, ProjectID: project.ID, FrameID: req.FrameID})
}

// loadOwnedProject answers 404 for projects that are missing or belong to
// another user, so ownership is not observable.
func (s *Server) loadOwnedProject(w http.ResponseWriter, r *http.Request) (model.Project, bool) {
	id := chi.URLParam(r, "id")
	project, err := s.deps.Store.GetProject(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeNotFound(w, r, "project/not_found", "Project not found")
		return model.Project{}, false
	case err != nil:
		writeInternal(w, r, "load project failed", err)
		return model.Project{}, false
	case project.UserID != userFrom(r.Context()):
		writeNotFound(w, r, "project/not_found", "Project not found")
		return model.Project{}, false
	}
	return project, true
}

func (s *Server) enqueueFailed(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Error().Err(err).Msg("enqueue failed")
	writeUnavailable(w, r, "Job queue is unavailable")
}

func (s *Server) projectName(ctx context.Context, prompt string) string {
	if s.deps.Namer != nil {
		return s.deps.Namer.Name(ctx, prompt)
	}
	return llm.CleanName(prompt)
}

func containsFrame(frames []model.Frame, id string) bool {
	for _, f := range frames {
		if f.ID == id {
			return true
		}
	}
	return false
}
