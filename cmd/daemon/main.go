// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command daemon serves the design API and runs the generation worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ManuGH/xdesign/internal/config"
	"github.com/ManuGH/xdesign/internal/daemon"
	"github.com/ManuGH/xdesign/internal/health"
	xlog "github.com/ManuGH/xdesign/internal/log"
	"github.com/ManuGH/xdesign/internal/version"
	"github.com/ManuGH/xdesign/internal/workflow"
)

const serviceName = "xdesign"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("xdesign-daemon"))
		os.Exit(0)
	}

	xlog.Configure(xlog.Config{Level: "info", Service: serviceName, Version: version.Version})
	logger := xlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	if path == "" {
		path = resolveDefaultConfigPath()
	}
	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xlog.FieldEvent, "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}

	xlog.Reconfigure(xlog.Config{Level: cfg.LogLevel, Service: serviceName, Version: cfg.Version})
	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str(xlog.FieldEvent, "config.loaded").
		Str("source", source).
		Str("path", path).
		Str("config", cfg.String()).
		Msg("configuration loaded")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str(xlog.FieldEvent, "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
	}

	holder := config.NewConfigHolder(cfg, loader, path)
	rt, err := daemon.Build(ctx, cfg, func() workflow.RetryPolicy {
		return daemon.PolicyFromConfig(holder.Get().Workflow)
	})
	if err != nil {
		logger.Fatal().Err(err).Str(xlog.FieldEvent, "runtime.build_failed").Msg("failed to assemble runtime")
	}

	mgr, err := daemon.NewManager(cfg.Server, daemon.Deps{
		Logger:     xlog.WithComponent("manager"),
		APIHandler: rt.API.Handler(),
		Worker:     rt.Worker,
	})
	if err != nil {
		_ = rt.Close(context.WithoutCancel(ctx))
		logger.Fatal().Err(err).Msg("failed to create daemon manager")
	}
	rt.RegisterHooks(mgr)

	logger.Info().
		Str(xlog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("listen", cfg.Server.ListenAddr).
		Msg("starting xdesign daemon")

	if err := daemon.NewApp(logger, mgr, holder).Run(ctx); err != nil {
		logger.Error().Err(err).Str(xlog.FieldEvent, "daemon.failed").Msg("daemon stopped with error")
		os.Exit(1)
	}
	logger.Info().Str(xlog.FieldEvent, "shutdown.complete").Msg("daemon stopped")
}

// resolveDefaultConfigPath picks up config.yaml from the data directory.
func resolveDefaultConfigPath() string {
	dataDir := strings.TrimSpace(os.Getenv(config.EnvPrefix + "DATA_DIR"))
	if dataDir == "" {
		dataDir = config.Defaults().DataDir
	}
	p := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}
