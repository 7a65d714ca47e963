// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon assembles and supervises the service: the HTTP server, the
// job worker and the resources they share.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/xdesign/internal/config"
	"github.com/rs/zerolog"
)

// ShutdownHook releases a resource during graceful shutdown. Hooks run in
// reverse registration order.
type ShutdownHook func(ctx context.Context) error

// Manager starts the servers and background workers and stops them.
type Manager interface {
	// Start blocks until ctx is cancelled or a subsystem fails.
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	RegisterShutdownHook(name string, hook ShutdownHook)
	// Addr reports the bound API address once Start is listening.
	Addr() string
}

type manager struct {
	serverCfg config.ServerConfig
	deps      Deps
	logger    zerolog.Logger

	apiServer     *http.Server
	shutdownHooks []namedHook
	workerDone    chan struct{}
	cancelWorker  context.CancelFunc

	mu       sync.Mutex
	addr     string
	started  bool
	stopping bool
}

type namedHook struct {
	name string
	hook ShutdownHook
}

func NewManager(serverCfg config.ServerConfig, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	return &manager{
		serverCfg: serverCfg,
		deps:      deps,
		logger:    deps.Logger.With().Str("component", "manager").Logger(),
	}, nil
}

func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("manager already started")
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info().
		Str("listen", m.serverCfg.ListenAddr).
		Dur("read_timeout", m.serverCfg.ReadTimeout).
		Dur("shutdown_timeout", m.serverCfg.ShutdownTimeout).
		Msg("starting daemon manager")

	errChan := make(chan error, 2)
	if m.deps.Worker != nil {
		m.startWorker(ctx, errChan)
	}
	if err := m.startAPIServer(errChan); err != nil {
		m.stopWorker()
		return fmt.Errorf("failed to start API server: %w", err)
	}

	var runErr error
	select {
	case runErr = <-errChan:
		m.logger.Error().Err(runErr).Msg("subsystem failed, initiating shutdown")
	case <-ctx.Done():
		m.logger.Info().Msg("shutdown signal received")
	}

	// Detached but bounded, so shutdown completes after the parent is cancelled.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout+5*time.Second)
	defer cancel()
	if err := m.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func (m *manager) startAPIServer(errChan chan<- error) error {
	ln, err := net.Listen("tcp", m.serverCfg.ListenAddr)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.addr = ln.Addr().String()
	m.mu.Unlock()

	m.apiServer = &http.Server{
		Handler:           m.deps.APIHandler,
		ReadTimeout:       m.serverCfg.ReadTimeout,
		ReadHeaderTimeout: m.serverCfg.ReadTimeout / 2,
		WriteTimeout:      m.serverCfg.WriteTimeout,
		IdleTimeout:       m.serverCfg.IdleTimeout,
	}

	go func() {
		m.logger.Info().Str("addr", ln.Addr().String()).Msg("API server listening")
		if err := m.apiServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Str("event", "api.server.failed").Msg("API server failed")
			errChan <- fmt.Errorf("API server: %w", err)
		}
	}()
	return nil
}

// startWorker runs the worker on its own context so that it outlives the
// HTTP server during shutdown and drains started jobs last.
func (m *manager) startWorker(ctx context.Context, errChan chan<- error) {
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancelWorker = cancel
	m.workerDone = make(chan struct{})
	go func() {
		defer close(m.workerDone)
		if err := m.deps.Worker.Run(wctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error().Err(err).Str("event", "worker.failed").Msg("worker failed")
			errChan <- fmt.Errorf("worker: %w", err)
		}
	}()
}

func (m *manager) stopWorker() {
	if m.cancelWorker != nil {
		m.cancelWorker()
	}
}

func (m *manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

func (m *manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	m.mu.Unlock()

	m.logger.Info().Msg("shutting down daemon manager")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if m.apiServer != nil {
		if err := m.apiServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("API server shutdown: %w", err))
		}
	}

	if m.workerDone != nil {
		m.stopWorker()
		select {
		case <-m.workerDone:
		case <-shutdownCtx.Done():
			errs = append(errs, fmt.Errorf("worker drain: %w", shutdownCtx.Err()))
		}
	}

	for i := len(m.shutdownHooks) - 1; i >= 0; i-- {
		h := m.shutdownHooks[i]
		start := time.Now()
		if err := h.hook(shutdownCtx); err != nil {
			m.logger.Error().Err(err).Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Msg("daemon manager stopped cleanly")
	return nil
}

func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
}
