// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ErrRunNotFound is returned by Journal.Load for an unknown run id.
var ErrRunNotFound = errors.New("workflow: run not found")

// RunStatus is the durable state of a run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Record is the durable cursor of one run: its input and the memoized output
// of every step that finished.
type Record struct {
	RunID     string                     `json:"run_id"`
	Kind      string                     `json:"kind"`
	Input     json.RawMessage            `json:"input"`
	Steps     map[string]json.RawMessage `json:"steps"`
	Order     []string                   `json:"order"`
	Status    RunStatus                  `json:"status"`
	LastError string                     `json:"last_error,omitempty"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

func (r *Record) clone() *Record {
	out := *r
	out.Steps = make(map[string]json.RawMessage, len(r.Steps))
	for k, v := range r.Steps {
		out.Steps[k] = append(json.RawMessage(nil), v...)
	}
	out.Order = append([]string(nil), r.Order...)
	out.Input = append(json.RawMessage(nil), r.Input...)
	return &out
}

// Journal persists run records.
type Journal interface {
	Load(ctx context.Context, runID string) (*Record, error)
	Save(ctx context.Context, rec *Record) error
	// Unfinished returns running records ordered by creation time.
	Unfinished(ctx context.Context) ([]*Record, error)
	Close() error
}

// NewJournal creates a journal for the backend. An empty backend means badger;
// badger without a data directory falls back to memory.
func NewJournal(backend, dir string) (Journal, error) {
	if backend == "" {
		backend = "badger"
	}
	switch backend {
	case "badger":
		if dir == "" {
			return NewMemoryJournal(), nil
		}
		return OpenBadgerJournal(filepath.Join(dir, "journal"))
	case "file":
		if dir == "" {
			return nil, fmt.Errorf("file journal requires a data directory")
		}
		return NewFileJournal(filepath.Join(dir, "runs"))
	case "memory":
		return NewMemoryJournal(), nil
	default:
		return nil, fmt.Errorf("unknown journal backend: %s (supported: badger, file, memory)", backend)
	}
}

// MemoryJournal implements Journal using a map (thread-safe).
type MemoryJournal struct {
	mu   sync.RWMutex
	runs map[string]*Record
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{runs: make(map[string]*Record)}
}

func (j *MemoryJournal) Load(_ context.Context, runID string) (*Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	rec, ok := j.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return rec.clone(), nil
}

func (j *MemoryJournal) Save(_ context.Context, rec *Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs[rec.RunID] = rec.clone()
	return nil
}

func (j *MemoryJournal) Unfinished(_ context.Context) ([]*Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []*Record
	for _, rec := range j.runs {
		if rec.Status == StatusRunning {
			out = append(out, rec.clone())
		}
	}
	sortByCreation(out)
	return out, nil
}

func (j *MemoryJournal) Close() error {
	return nil
}

func sortByCreation(recs []*Record) {
	sort.SliceStable(recs, func(a, b int) bool {
		return recs[a].CreatedAt.Before(recs[b].CreatedAt)
	})
}
