// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/xdesign/internal/model"
	"github.com/google/uuid"
)

// MemoryStore implements Store using maps (thread-safe).
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]model.Project
	frames   map[string]model.Frame
	order    map[string][]string // project id -> frame ids in creation order
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]model.Project),
		frames:   make(map[string]model.Frame),
		order:    make(map[string][]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) CreateProject(_ context.Context, p model.Project) (model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, ok := s.projects[p.ID]; ok {
		return model.Project{}, fmt.Errorf("project %s already exists", p.ID)
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Frames = nil
	s.projects[p.ID] = p
	return p, nil
}

func (s *MemoryStore) GetProject(_ context.Context, id string) (model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return model.Project{}, ErrNotFound
	}
	p.Frames = s.framesLocked(id)
	return p, nil
}

func (s *MemoryStore) GetProjectTheme(_ context.Context, projectID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return "", ErrNotFound
	}
	return p.Theme, nil
}

func (s *MemoryStore) SetProjectTheme(_ context.Context, projectID, theme string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return ErrNotFound
	}
	p.Theme = theme
	p.UpdatedAt = s.now()
	s.projects[projectID] = p
	return nil
}

func (s *MemoryStore) FindFramesByProject(_ context.Context, projectID string) ([]model.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.framesLocked(projectID), nil
}

func (s *MemoryStore) framesLocked(projectID string) []model.Frame {
	ids := s.order[projectID]
	out := make([]model.Frame, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.frames[id])
	}
	return out
}

func (s *MemoryStore) GetFrame(_ context.Context, id string) (model.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.frames[id]
	if !ok {
		return model.Frame{}, ErrNotFound
	}
	return f, nil
}

func (s *MemoryStore) CreateFrame(_ context.Context, nf model.NewFrame) (model.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[nf.ProjectID]; !ok {
		return model.Frame{}, fmt.Errorf("create frame in project %s: %w", nf.ProjectID, ErrNotFound)
	}
	if nf.ID != "" {
		if existing, ok := s.frames[nf.ID]; ok {
			return existing, nil
		}
	} else {
		nf.ID = uuid.NewString()
	}
	now := s.now()
	f := model.Frame{
		ID:        nf.ID,
		ProjectID: nf.ProjectID,
		Title:     nf.Title,
		HTML:      nf.HTML,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.frames[f.ID] = f
	s.order[f.ProjectID] = append(s.order[f.ProjectID], f.ID)
	return f, nil
}

func (s *MemoryStore) UpdateFrame(_ context.Context, id, html string) (model.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.frames[id]
	if !ok {
		return model.Frame{}, ErrNotFound
	}
	f.HTML = html
	f.UpdatedAt = s.now()
	s.frames[id] = f
	return f, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
