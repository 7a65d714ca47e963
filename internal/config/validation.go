// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"time"

	"github.com/ManuGH/xdesign/internal/validate"
)

// Validate validates an AppConfig using the centralized validation package.
func Validate(cfg AppConfig) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(cfg.LogLevel); err != nil {
		v.AddError("LogLevel", "must be one of trace, debug, info, warn, error", cfg.LogLevel)
	}

	v.ListenAddr("Server.ListenAddr", cfg.Server.ListenAddr)
	v.NonNegative("Server.RateLimit", cfg.Server.RateLimit)
	v.NotEmpty("Server.UserHeader", cfg.Server.UserHeader)
	v.Duration("Server.ShutdownTimeout", cfg.Server.ShutdownTimeout, time.Second, 0)

	v.OneOf("Store.Backend", cfg.Store.Backend, []string{"sqlite", "memory"})
	if cfg.Store.Verify != "" {
		v.OneOf("Store.Verify", cfg.Store.Verify, []string{"quick", "full"})
	}
	v.OneOf("Journal.Backend", cfg.Journal.Backend, []string{"badger", "file", "memory"})
	if cfg.Store.Backend == "sqlite" || cfg.Journal.Backend != "memory" {
		v.Directory("DataDir", cfg.DataDir, false)
	}

	v.OneOf("Bus.Backend", cfg.Bus.Backend, []string{"memory", "redis"})
	v.Positive("Bus.SubscriberBuffer", cfg.Bus.SubscriberBuffer)
	if cfg.Bus.Backend == "redis" || cfg.Images.Cache == "redis" {
		v.NotEmpty("Redis.Addr", cfg.Redis.Addr)
		v.NonNegative("Redis.DB", cfg.Redis.DB)
	}

	v.URL("Provider.BaseURL", cfg.Provider.BaseURL, []string{"http", "https"})
	v.NotEmpty("Provider.Model", cfg.Provider.Model)
	v.Duration("Provider.Timeout", cfg.Provider.Timeout, time.Second, 0)
	v.Positive("Provider.BreakerThreshold", cfg.Provider.BreakerThreshold)
	if cfg.Provider.RateLimit < 0 {
		v.AddError("Provider.RateLimit", "cannot be negative", cfg.Provider.RateLimit)
	}

	v.URL("Images.BaseURL", cfg.Images.BaseURL, []string{"http", "https"})
	v.OneOf("Images.Cache", cfg.Images.Cache, []string{"memory", "redis", "none"})

	v.Range("Workflow.Concurrency", cfg.Workflow.Concurrency, 1, 64)
	v.Positive("Workflow.QueueSize", cfg.Workflow.QueueSize)
	v.Range("Workflow.MaxAttempts", cfg.Workflow.MaxAttempts, 1, 20)
	v.Duration("Workflow.InitialBackoff", cfg.Workflow.InitialBackoff, time.Millisecond, 0)
	v.Duration("Workflow.MaxBackoff", cfg.Workflow.MaxBackoff, cfg.Workflow.InitialBackoff, 0)
	if cfg.Workflow.Multiplier < 1 {
		v.AddError("Workflow.Multiplier", "must be at least 1", cfg.Workflow.Multiplier)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.Fraction("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate)
	}

	return v.Err()
}
