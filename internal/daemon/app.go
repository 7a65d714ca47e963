// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/xdesign/internal/config"
	"github.com/ManuGH/xdesign/internal/log"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// App owns the runtime lifecycle around the Manager: config watching,
// SIGHUP reloads and applying reloaded settings.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.ConfigHolder
	reloadSignal os.Signal
}

func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.ConfigHolder) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run blocks until ctx is cancelled or the manager fails.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.cfgHolder != nil {
		if err := a.cfgHolder.StartWatcher(gctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}

		applyCh := make(chan config.AppConfig, 1)
		a.cfgHolder.RegisterListener(applyCh)
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case cfg := <-applyCh:
					a.apply(cfg)
				}
			}
		})

		if a.reloadSignal != nil {
			g.Go(func() error {
				hup := make(chan os.Signal, 1)
				signal.Notify(hup, a.reloadSignal)
				defer signal.Stop(hup)
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-hup:
						a.logger.Info().Str(log.FieldEvent, "config.reload_signal").Msg("received reload signal, reloading config")
						if err := a.cfgHolder.Reload(gctx); err != nil {
							a.logger.Warn().Err(err).Str(log.FieldEvent, "config.reload_failed").Msg("config reload failed")
						}
					}
				}
			})
		}
	}

	g.Go(func() error {
		return a.manager.Start(gctx)
	})

	err := g.Wait()
	if a.cfgHolder != nil {
		a.cfgHolder.Wait()
	}
	return err
}

// apply hot-applies the settings that can change without a restart. The
// retry policy is read through the holder on every step.
func (a *App) apply(cfg config.AppConfig) {
	log.Reconfigure(log.Config{Level: cfg.LogLevel, Service: "xdesign", Version: cfg.Version})
	a.logger.Info().
		Str(log.FieldEvent, "config.applied").
		Str("log_level", cfg.LogLevel).
		Int("max_attempts", cfg.Workflow.MaxAttempts).
		Msg("applied reloaded configuration")
}
