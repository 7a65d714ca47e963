// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ManuGH/xdesign/internal/log"
	"github.com/google/renameio/v2"
)

// FileJournal keeps one JSON file per unfinished run in a directory.
// Every write is an atomic replace; finished runs are removed.
type FileJournal struct {
	dir string
	mu  sync.Mutex
}

func NewFileJournal(dir string) (*FileJournal, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	return &FileJournal{dir: dir}, nil
}

func (j *FileJournal) path(runID string) string {
	return filepath.Join(j.dir, filepath.Base(runID)+".json")
}

func (j *FileJournal) Load(_ context.Context, runID string) (*Record, error) {
	data, err := os.ReadFile(j.path(runID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", runID, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing run %s: %w", runID, err)
	}
	return &rec, nil
}

func (j *FileJournal) Save(ctx context.Context, rec *Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	path := j.path(rec.RunID)
	if rec.Status != StatusRunning {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing finished run: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending journal file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			log.FromContext(ctx).Debug().Err(err).Msg("cleanup pending journal file")
		}
	}()
	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write journal file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace journal file: %w", err)
	}
	return nil
}

func (j *FileJournal) Unfinished(ctx context.Context) ([]*Record, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return nil, fmt.Errorf("list journal dir: %w", err)
	}
	var out []*Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rec, err := j.Load(ctx, strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			log.FromContext(ctx).Warn().Err(err).Str("file", e.Name()).Msg("skipping unreadable journal entry")
			continue
		}
		if rec.Status == StatusRunning {
			out = append(out, rec)
		}
	}
	sortByCreation(out)
	return out, nil
}

func (j *FileJournal) Close() error {
	return nil
}

var _ Journal = (*FileJournal)(nil)
