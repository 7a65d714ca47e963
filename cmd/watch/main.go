// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command watch follows one project's canvas through the realtime stream and
// logs every frame and status change.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ManuGH/xdesign/internal/api"
	"github.com/ManuGH/xdesign/internal/config"
	xlog "github.com/ManuGH/xdesign/internal/log"
	"github.com/ManuGH/xdesign/internal/version"
	"github.com/ManuGH/xdesign/internal/watch"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	server := flag.String("server", config.ParseString(config.EnvPrefix+"SERVER", "http://localhost:8080"), "daemon base URL")
	user := flag.String("user", config.ParseString(config.EnvPrefix+"USER", ""), "user id sent with every request")
	project := flag.String("project", "", "project id to watch")
	userHeader := flag.String("user-header", api.DefaultUserHeader, "header carrying the user id")
	watchdog := flag.Duration("watchdog", 2*time.Minute, "fail a stalled run after this long without events (0 disables)")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("xdesign-watch"))
		os.Exit(0)
	}

	xlog.Configure(xlog.Config{Level: *logLevel, Service: "xdesign-watch", Version: version.Version})
	logger := xlog.WithComponent("watch")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := watch.Run(ctx, watch.Config{
		Server:     *server,
		User:       *user,
		UserHeader: *userHeader,
		Project:    *project,
		Watchdog:   *watchdog,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Str(xlog.FieldProjectID, *project).Msg("watch failed")
		os.Exit(1)
	}
}
