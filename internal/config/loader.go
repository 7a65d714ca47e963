// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key string, dst *string) {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	*dst = ParseString(key, *dst)
}

func (l *Loader) envBool(key string, dst *bool) {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	*dst = ParseBool(key, *dst)
}

func (l *Loader) envInt(key string, dst *int) {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	*dst = ParseInt(key, *dst)
}

func (l *Loader) envDuration(key string, dst *time.Duration) {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	*dst = ParseDuration(key, *dst)
}

func (l *Loader) envFloat(key string, dst *float64) {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	*dst = ParseFloat(key, *dst)
}

// Load loads configuration with precedence: ENV > File > Defaults, then
// validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)

	if cfg.DataDir != "" {
		if abs, err := filepath.Abs(cfg.DataDir); err == nil {
			cfg.DataDir = abs
		}
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile decodes the YAML file over cfg. Unknown keys are rejected.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	return nil
}

func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	l.envString("DATA_DIR", &cfg.DataDir)
	l.envString("LOG_LEVEL", &cfg.LogLevel)

	l.envString("LISTEN_ADDR", &cfg.Server.ListenAddr)
	l.envDuration("READ_TIMEOUT", &cfg.Server.ReadTimeout)
	l.envDuration("WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	l.envDuration("SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	l.envInt("RATE_LIMIT", &cfg.Server.RateLimit)
	l.envString("USER_HEADER", &cfg.Server.UserHeader)

	l.envString("STORE_BACKEND", &cfg.Store.Backend)
	l.envString("STORE_VERIFY", &cfg.Store.Verify)
	l.envString("JOURNAL_BACKEND", &cfg.Journal.Backend)

	l.envString("BUS_BACKEND", &cfg.Bus.Backend)
	l.envInt("BUS_SUBSCRIBER_BUFFER", &cfg.Bus.SubscriberBuffer)
	l.envString("REDIS_ADDR", &cfg.Redis.Addr)
	l.envString("REDIS_PASSWORD", &cfg.Redis.Password)
	l.envInt("REDIS_DB", &cfg.Redis.DB)
	l.envString("REDIS_PREFIX", &cfg.Redis.Prefix)

	l.envString("PROVIDER_BASE_URL", &cfg.Provider.BaseURL)
	l.envString("PROVIDER_API_KEY", &cfg.Provider.APIKey)
	l.envString("PROVIDER_MODEL", &cfg.Provider.Model)
	l.envDuration("PROVIDER_TIMEOUT", &cfg.Provider.Timeout)
	l.envFloat("PROVIDER_RATE_LIMIT", &cfg.Provider.RateLimit)
	l.envInt("PROVIDER_BURST", &cfg.Provider.Burst)

	l.envString("UNSPLASH_BASE_URL", &cfg.Images.BaseURL)
	l.envString("UNSPLASH_ACCESS_KEY", &cfg.Images.AccessKey)
	l.envDuration("IMAGE_CACHE_TTL", &cfg.Images.CacheTTL)
	l.envString("IMAGE_CACHE", &cfg.Images.Cache)

	l.envInt("WORKFLOW_CONCURRENCY", &cfg.Workflow.Concurrency)
	l.envInt("WORKFLOW_QUEUE_SIZE", &cfg.Workflow.QueueSize)
	l.envInt("WORKFLOW_MAX_ATTEMPTS", &cfg.Workflow.MaxAttempts)
	l.envDuration("WORKFLOW_INITIAL_BACKOFF", &cfg.Workflow.InitialBackoff)
	l.envDuration("WORKFLOW_MAX_BACKOFF", &cfg.Workflow.MaxBackoff)

	l.envBool("TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	l.envString("TELEMETRY_EXPORTER", &cfg.Telemetry.Exporter)
	l.envString("TELEMETRY_ENDPOINT", &cfg.Telemetry.Endpoint)
	l.envFloat("TELEMETRY_SAMPLING_RATE", &cfg.Telemetry.SamplingRate)
}
