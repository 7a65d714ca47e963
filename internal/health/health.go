// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package health serves liveness and readiness probes backed by component checks.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/xdesign/internal/log"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one component check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Response struct {
	Status    Status                 `json:"status"`
	Ready     bool                   `json:"ready"`
	Version   string                 `json:"version,omitempty"`
	Uptime    int64                  `json:"uptimeSeconds"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

type funcChecker struct {
	name     string
	degraded bool
	fn       func(ctx context.Context) error
}

// CheckFunc adapts fn into a Checker that reports unhealthy on error.
func CheckFunc(name string, fn func(ctx context.Context) error) Checker {
	return funcChecker{name: name, fn: fn}
}

// SoftCheckFunc is CheckFunc for optional components: errors degrade but do
// not fail readiness.
func SoftCheckFunc(name string, fn func(ctx context.Context) error) Checker {
	return funcChecker{name: name, degraded: true, fn: fn}
}

func (c funcChecker) Name() string { return c.name }

func (c funcChecker) Check(ctx context.Context) CheckResult {
	if err := c.fn(ctx); err != nil {
		st := StatusUnhealthy
		if c.degraded {
			st = StatusDegraded
		}
		return CheckResult{Status: st, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// Manager runs registered checks for the probe endpoints.
type Manager struct {
	version string
	started time.Time
	timeout time.Duration

	mu       sync.RWMutex
	checkers []Checker
}

func NewManager(version string) *Manager {
	return &Manager{version: version, started: time.Now(), timeout: 2 * time.Second}
}

func (m *Manager) RegisterChecker(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Health is the liveness view. Checks run only when verbose is set.
func (m *Manager) Health(ctx context.Context, verbose bool) Response {
	resp := Response{
		Status:    StatusHealthy,
		Ready:     true,
		Version:   m.version,
		Uptime:    int64(time.Since(m.started).Seconds()),
		Timestamp: time.Now(),
	}
	if verbose {
		m.runChecks(ctx, &resp)
	}
	return resp
}

// Ready always runs the checks; any unhealthy component clears Ready.
func (m *Manager) Ready(ctx context.Context) Response {
	resp := m.Health(ctx, false)
	m.runChecks(ctx, &resp)
	return resp
}

func (m *Manager) runChecks(ctx context.Context, resp *Response) {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()
	if len(checkers) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp.Checks = make(map[string]CheckResult, len(checkers))
	for _, c := range checkers {
		res := c.Check(ctx)
		resp.Checks[c.Name()] = res
		switch res.Status {
		case StatusUnhealthy:
			resp.Status = StatusUnhealthy
			resp.Ready = false
		case StatusDegraded:
			if resp.Status == StatusHealthy {
				resp.Status = StatusDegraded
			}
		}
	}
}

// ServeHealth always answers 200 while the process is alive.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	resp := m.Health(r.Context(), r.URL.Query().Get("verbose") == "true")
	m.write(w, r, http.StatusOK, resp)
}

// ServeReady answers 503 while any required component is unhealthy.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	resp := m.Ready(r.Context())
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	m.write(w, r, code, resp)
}

func (m *Manager) write(w http.ResponseWriter, r *http.Request, code int, resp Response) {
	logger := log.WithComponentFromContext(r.Context(), "health")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "health.encode_error").Msg("failed to encode health response")
	}
	logger.Debug().
		Str(log.FieldEvent, "health.checked").
		Str("status", string(resp.Status)).
		Bool("ready", resp.Ready).
		Msg("health check performed")
}
