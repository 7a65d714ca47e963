// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/xdesign/internal/model"
	"github.com/ManuGH/xdesign/internal/persistence/sqlite"
	"github.com/google/uuid"
)

const (
	// DBFileName is the database file created under the data directory.
	DBFileName    = "xdesign.sqlite"
	schemaVersion = 1
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	theme TEXT NOT NULL DEFAULT '',
	created_at_ns INTEGER NOT NULL,
	updated_at_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id);

CREATE TABLE IF NOT EXISTS frames (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	html TEXT NOT NULL,
	x REAL,
	y REAL,
	created_at_ns INTEGER NOT NULL,
	updated_at_ns INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_frames_project ON frames(project_id, created_at_ns);
`

// SqliteStore implements Store using SQLite.
type SqliteStore struct {
	DB  *sql.DB
	now func() time.Time
}

// NewSqliteStore opens the database at dbPath and applies the schema.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(context.Background(), db, schemaVersion, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("frame store: migration failed: %w", err)
	}
	return &SqliteStore{DB: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SqliteStore) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Frames = nil
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO projects (id, user_id, name, theme, created_at_ns, updated_at_ns) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, p.Theme, now.UnixNano(), now.UnixNano())
	if err != nil {
		return model.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

func (s *SqliteStore) GetProject(ctx context.Context, id string) (model.Project, error) {
	var (
		p                model.Project
		created, updated int64
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, user_id, name, theme, created_at_ns, updated_at_ns FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.UserID, &p.Name, &p.Theme, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Project{}, ErrNotFound
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("select project: %w", err)
	}
	p.CreatedAt = time.Unix(0, created).UTC()
	p.UpdatedAt = time.Unix(0, updated).UTC()

	frames, err := s.FindFramesByProject(ctx, id)
	if err != nil {
		return model.Project{}, err
	}
	p.Frames = frames
	return p, nil
}

func (s *SqliteStore) GetProjectTheme(ctx context.Context, projectID string) (string, error) {
	var theme string
	err := s.DB.QueryRowContext(ctx, `SELECT theme FROM projects WHERE id = ?`, projectID).Scan(&theme)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select project theme: %w", err)
	}
	return theme, nil
}

func (s *SqliteStore) SetProjectTheme(ctx context.Context, projectID, theme string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE projects SET theme = ?, updated_at_ns = ? WHERE id = ?`,
		theme, s.now().UnixNano(), projectID)
	if err != nil {
		return fmt.Errorf("update project theme: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const frameColumns = `id, project_id, title, html, x, y, created_at_ns, updated_at_ns`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFrame(row rowScanner) (model.Frame, error) {
	var (
		f                model.Frame
		x, y             sql.NullFloat64
		created, updated int64
	)
	if err := row.Scan(&f.ID, &f.ProjectID, &f.Title, &f.HTML, &x, &y, &created, &updated); err != nil {
		return model.Frame{}, err
	}
	if x.Valid {
		f.X = &x.Float64
	}
	if y.Valid {
		f.Y = &y.Float64
	}
	f.CreatedAt = time.Unix(0, created).UTC()
	f.UpdatedAt = time.Unix(0, updated).UTC()
	return f, nil
}

func (s *SqliteStore) FindFramesByProject(ctx context.Context, projectID string) ([]model.Frame, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+frameColumns+` FROM frames WHERE project_id = ? ORDER BY created_at_ns ASC, rowid ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("select frames: %w", err)
	}
	defer rows.Close()

	frames := []model.Frame{}
	for rows.Next() {
		f, err := scanFrame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

func (s *SqliteStore) GetFrame(ctx context.Context, id string) (model.Frame, error) {
	f, err := scanFrame(s.DB.QueryRowContext(ctx, `SELECT `+frameColumns+` FROM frames WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Frame{}, ErrNotFound
	}
	if err != nil {
		return model.Frame{}, fmt.Errorf("select frame: %w", err)
	}
	return f, nil
}

func (s *SqliteStore) CreateFrame(ctx context.Context, nf model.NewFrame) (model.Frame, error) {
	if nf.ID == "" {
		nf.ID = uuid.NewString()
	}
	now := s.now().UnixNano()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Frame{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE id = ?`, nf.ProjectID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Frame{}, fmt.Errorf("create frame in project %s: %w", nf.ProjectID, ErrNotFound)
	}
	if err != nil {
		return model.Frame{}, fmt.Errorf("check project: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO frames (id, project_id, title, html, created_at_ns, updated_at_ns) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		nf.ID, nf.ProjectID, nf.Title, nf.HTML, now, now)
	if err != nil {
		return model.Frame{}, fmt.Errorf("insert frame: %w", err)
	}
	f, err := scanFrame(tx.QueryRowContext(ctx, `SELECT `+frameColumns+` FROM frames WHERE id = ?`, nf.ID))
	if err != nil {
		return model.Frame{}, fmt.Errorf("reload frame: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Frame{}, err
	}
	return f, nil
}

func (s *SqliteStore) UpdateFrame(ctx context.Context, id, html string) (model.Frame, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE frames SET html = ?, updated_at_ns = ? WHERE id = ?`, html, s.now().UnixNano(), id)
	if err != nil {
		return model.Frame{}, fmt.Errorf("update frame: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Frame{}, err
	}
	if n == 0 {
		return model.Frame{}, ErrNotFound
	}
	return s.GetFrame(ctx, id)
}

// Ping verifies the database is reachable.
func (s *SqliteStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

var _ Store = (*SqliteStore)(nil)
