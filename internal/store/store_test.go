// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ManuGH/xdesign/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := NewSqliteStore(filepath.Join(t.TempDir(), DBFileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func TestStoreContract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			p, err := s.CreateProject(ctx, model.Project{UserID: "u1", Name: "Fitness"})
			require.NoError(t, err)
			require.NotEmpty(t, p.ID)

			theme, err := s.GetProjectTheme(ctx, p.ID)
			require.NoError(t, err)
			assert.Empty(t, theme)
			require.NoError(t, s.SetProjectTheme(ctx, p.ID, "midnight"))
			theme, err = s.GetProjectTheme(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, "midnight", theme)

			titles := []string{"Home", "Workouts", "Profile"}
			for _, title := range titles {
				_, err := s.CreateFrame(ctx, model.NewFrame{ProjectID: p.ID, Title: title, HTML: "<div>" + title + "</div>"})
				require.NoError(t, err)
			}

			frames, err := s.FindFramesByProject(ctx, p.ID)
			require.NoError(t, err)
			require.Len(t, frames, 3)
			for i, f := range frames {
				assert.Equal(t, titles[i], f.Title, "creation order")
				assert.Equal(t, p.ID, f.ProjectID)
			}

			updated, err := s.UpdateFrame(ctx, frames[1].ID, "<div>new</div>")
			require.NoError(t, err)
			assert.Equal(t, frames[1].ID, updated.ID)
			assert.Equal(t, "<div>new</div>", updated.HTML)
			assert.False(t, updated.UpdatedAt.Before(frames[1].UpdatedAt))

			got, err := s.GetProject(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, "u1", got.UserID)
			assert.Equal(t, "midnight", got.Theme)
			require.Len(t, got.Frames, 3)
			assert.Equal(t, "<div>new</div>", got.Frames[1].HTML)
		})
	}
}

func TestStoreCreateFrameIdempotentOnID(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p, err := s.CreateProject(ctx, model.Project{UserID: "u1", Name: "x"})
			require.NoError(t, err)

			first, err := s.CreateFrame(ctx, model.NewFrame{ID: "fixed", ProjectID: p.ID, Title: "A", HTML: "<div>1</div>"})
			require.NoError(t, err)
			second, err := s.CreateFrame(ctx, model.NewFrame{ID: "fixed", ProjectID: p.ID, Title: "B", HTML: "<div>2</div>"})
			require.NoError(t, err)

			assert.Equal(t, first.ID, second.ID)
			assert.Equal(t, "<div>1</div>", second.HTML)

			frames, err := s.FindFramesByProject(ctx, p.ID)
			require.NoError(t, err)
			assert.Len(t, frames, 1)
		})
	}
}

func TestStoreNotFound(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.GetProject(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.GetProjectTheme(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.SetProjectTheme(ctx, "nope", "x"), ErrNotFound)
			_, err = s.GetFrame(ctx, "nope")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.UpdateFrame(ctx, "nope", "<div/>")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.CreateFrame(ctx, model.NewFrame{ProjectID: "nope", Title: "t"})
			assert.ErrorIs(t, err, ErrNotFound)

			frames, err := s.FindFramesByProject(ctx, "nope")
			require.NoError(t, err)
			assert.Empty(t, frames)
		})
	}
}

func TestNewStoreBackends(t *testing.T) {
	s, err := NewStore("", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewStore("memory", t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = NewStore("sqlite", t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &SqliteStore{}, s)
	require.NoError(t, s.Close())

	_, err = NewStore("bolt", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown frame store backend")
}
