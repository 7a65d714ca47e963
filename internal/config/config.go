// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the daemon configuration: defaults, then the YAML
// file, then XDESIGN_* environment overrides.
package config

import (
	"fmt"
	"time"
)

// AppConfig is the complete daemon configuration.
type AppConfig struct {
	Version  string `yaml:"-"`
	DataDir  string `yaml:"dataDir"`
	LogLevel string `yaml:"logLevel"`

	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Journal   JournalConfig   `yaml:"journal"`
	Bus       BusConfig       `yaml:"bus"`
	Redis     RedisConfig     `yaml:"redis"`
	Provider  ProviderConfig  `yaml:"provider"`
	Images    ImagesConfig    `yaml:"images"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listenAddr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// RateLimit is requests per minute per client IP; 0 disables it.
	RateLimit  int    `yaml:"rateLimit"`
	UserHeader string `yaml:"userHeader"`
}

type StoreConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `yaml:"backend"`
	// Verify runs a sqlite integrity check ("quick" or "full") at startup; empty skips it.
	Verify string `yaml:"verify"`
}

type JournalConfig struct {
	// Backend is "badger", "file" or "memory".
	Backend string `yaml:"backend"`
}

type BusConfig struct {
	// Backend is "memory" or "redis".
	Backend          string `yaml:"backend"`
	SubscriberBuffer int    `yaml:"subscriberBuffer"`
}

// RedisConfig is shared by the redis bus and the redis image cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type ProviderConfig struct {
	BaseURL string        `yaml:"baseURL"`
	APIKey  string        `yaml:"apiKey"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	// RateLimit is requests per second; 0 means unlimited.
	RateLimit        float64       `yaml:"rateLimit"`
	Burst            int           `yaml:"burst"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

type ImagesConfig struct {
	BaseURL   string        `yaml:"baseURL"`
	AccessKey string        `yaml:"accessKey"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheTTL  time.Duration `yaml:"cacheTTL"`
	// Cache is "memory", "redis" or "none".
	Cache string `yaml:"cache"`
}

type WorkflowConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	QueueSize      int           `yaml:"queueSize"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
	Multiplier     float64       `yaml:"multiplier"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	ServiceName  string  `yaml:"serviceName"`
	Environment  string  `yaml:"environment"`
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:  "/var/lib/xdesign",
		LogLevel: "info",
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    0, // SSE streams stay open
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       120,
			UserHeader:      "X-User-ID",
		},
		Store:   StoreConfig{Backend: "sqlite"},
		Journal: JournalConfig{Backend: "badger"},
		Bus:     BusConfig{Backend: "memory", SubscriberBuffer: 64},
		Redis:   RedisConfig{Addr: "localhost:6379", Prefix: "xdesign:"},
		Provider: ProviderConfig{
			BaseURL:          "https://openrouter.ai/api/v1",
			Model:            "google/gemini-3-pro-preview",
			Timeout:          3 * time.Minute,
			RateLimit:        2,
			Burst:            4,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Images: ImagesConfig{
			BaseURL:  "https://api.unsplash.com",
			Timeout:  10 * time.Second,
			CacheTTL: time.Hour,
			Cache:    "memory",
		},
		Workflow: WorkflowConfig{
			Concurrency:    4,
			QueueSize:      32,
			MaxAttempts:    4,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			Multiplier:     2,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1,
			ServiceName:  "xdesign",
			Environment:  "production",
		},
	}
}

// String renders the configuration with secrets masked.
func (c AppConfig) String() string {
	return fmt.Sprintf("AppConfig{DataDir:%s LogLevel:%s Listen:%s Store:%s Journal:%s Bus:%s Model:%s APIKey:%s UnsplashKey:%s Concurrency:%d}",
		c.DataDir, c.LogLevel, c.Server.ListenAddr, c.Store.Backend, c.Journal.Backend, c.Bus.Backend,
		c.Provider.Model, maskSecret(c.Provider.APIKey), maskSecret(c.Images.AccessKey), c.Workflow.Concurrency)
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
