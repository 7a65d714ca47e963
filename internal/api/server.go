// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api is the HTTP surface: project bootstrap, job enqueue and the
// per-user realtime event stream.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ManuGH/xdesign/internal/api/middleware"
	"github.com/ManuGH/xdesign/internal/bus"
	"github.com/ManuGH/xdesign/internal/health"
	"github.com/ManuGH/xdesign/internal/model"
	"github.com/ManuGH/xdesign/internal/store"
	"github.com/ManuGH/xdesign/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DefaultUserHeader = "X-User-ID"
	DefaultHeartbeat  = 15 * time.Second
	maxBodyBytes      = 1 << 20
)

// Enqueuer accepts jobs for the worker.
type Enqueuer interface {
	EnqueueGenerate(ctx context.Context, job model.GenerateJob) (string, error)
	EnqueueRegenerate(ctx context.Context, job model.RegenerateJob) (string, error)
}

// Namer names a new project after its prompt.
type Namer interface {
	Name(ctx context.Context, prompt string) string
}

var _ Enqueuer = (*worker.Queue)(nil)

type Config struct {
	// UserHeader carries the trusted caller identity.
	UserHeader         string
	RateLimitPerMinute int
	// TracingService names the server spans; empty disables HTTP tracing.
	TracingService string
	// Heartbeat is the realtime comment interval that keeps proxies from
	// closing idle streams.
	Heartbeat time.Duration
}

type Deps struct {
	Store  store.Store
	Events bus.Bus
	Jobs   Enqueuer
	Namer  Namer           // optional
	Health *health.Manager // optional
}

type Server struct {
	cfg     Config
	deps    Deps
	handler http.Handler
}

func New(cfg Config, deps Deps) *Server {
	if cfg.UserHeader == "" {
		cfg.UserHeader = DefaultUserHeader
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if deps.Health == nil {
		deps.Health = health.NewManager("")
	}
	s := &Server{cfg: cfg, deps: deps}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler with the full middleware stack.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
		RateLimitPerMinute:    s.cfg.RateLimitPerMinute,
		RateLimitKeyHeader:    s.cfg.UserHeader,
	})

	r.Get("/healthz", s.deps.Health.ServeHealth)
	r.Get("/readyz", s.deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Post("/projects", s.handleCreateProject)
		r.Get("/projects/{id}", s.handleGetProject)
		r.Post("/projects/{id}/generate", s.handleGenerate)
		r.Post("/projects/{id}/frames/regenerate", s.handleRegenerate)
		r.Get("/realtime", s.handleRealtime)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeNotFound(w, r, "route/not_found", "No such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, r, http.StatusMethodNotAllowed, "route/method_not_allowed", "Method Not Allowed", "METHOD_NOT_ALLOWED", "")
	})
	return r
}
