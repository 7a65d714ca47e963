// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store persists projects and their frames.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ManuGH/xdesign/internal/model"
)

// ErrNotFound is returned when a project or frame does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the frame store contract used by the orchestrators and the API.
type Store interface {
	CreateProject(ctx context.Context, p model.Project) (model.Project, error)
	// GetProject returns the project with its frames in creation order.
	GetProject(ctx context.Context, id string) (model.Project, error)
	GetProjectTheme(ctx context.Context, projectID string) (string, error)
	SetProjectTheme(ctx context.Context, projectID, theme string) error

	// FindFramesByProject returns frames ordered by creation.
	FindFramesByProject(ctx context.Context, projectID string) ([]model.Frame, error)
	GetFrame(ctx context.Context, id string) (model.Frame, error)
	// CreateFrame inserts a frame. When f.ID is set and already stored the
	// existing frame is returned unchanged.
	CreateFrame(ctx context.Context, f model.NewFrame) (model.Frame, error)
	// UpdateFrame replaces the markup of an existing frame and bumps updatedAt.
	UpdateFrame(ctx context.Context, id, html string) (model.Frame, error)

	Close() error
}

// NewStore creates a store for the backend. An empty backend means sqlite;
// sqlite without a data directory falls back to memory.
func NewStore(backend, dir string) (Store, error) {
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "sqlite":
		if dir == "" {
			return NewMemoryStore(), nil
		}
		return NewSqliteStore(filepath.Join(dir, DBFileName))
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown frame store backend: %s (supported: sqlite, memory)", backend)
	}
}
