// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ManuGH/xdesign/internal/api"
	"github.com/ManuGH/xdesign/internal/bus"
	"github.com/ManuGH/xdesign/internal/cache"
	"github.com/ManuGH/xdesign/internal/config"
	"github.com/ManuGH/xdesign/internal/generation"
	"github.com/ManuGH/xdesign/internal/health"
	"github.com/ManuGH/xdesign/internal/imagesearch"
	"github.com/ManuGH/xdesign/internal/llm"
	"github.com/ManuGH/xdesign/internal/log"
	"github.com/ManuGH/xdesign/internal/persistence/sqlite"
	"github.com/ManuGH/xdesign/internal/store"
	"github.com/ManuGH/xdesign/internal/telemetry"
	"github.com/ManuGH/xdesign/internal/worker"
	"github.com/ManuGH/xdesign/internal/workflow"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var errWorkerNotListening = errors.New("worker is not consuming jobs")

// Runtime is the assembled service graph of one daemon process.
type Runtime struct {
	Store   store.Store
	Journal workflow.Journal
	Events  bus.Bus
	Queue   *worker.Queue
	Worker  *worker.Worker
	Health  *health.Manager
	API     *api.Server

	logger  zerolog.Logger
	closers []namedHook
}

// PolicyFromConfig maps the workflow settings onto a retry policy.
func PolicyFromConfig(c config.WorkflowConfig) workflow.RetryPolicy {
	p := workflow.DefaultRetryPolicy()
	if c.MaxAttempts > 0 {
		p.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoff > 0 {
		p.InitialBackoff = c.InitialBackoff
	}
	if c.MaxBackoff > 0 {
		p.MaxBackoff = c.MaxBackoff
	}
	if c.Multiplier > 0 {
		p.Multiplier = c.Multiplier
	}
	return p
}

// Build opens every resource named by cfg and wires the service graph.
// policy is consulted on every workflow step; nil fixes it to cfg's values.
// On error everything opened so far is closed.
func Build(ctx context.Context, cfg config.AppConfig, policy func() workflow.RetryPolicy) (_ *Runtime, err error) {
	rt := &Runtime{logger: log.WithComponent("runtime"), Health: health.NewManager(cfg.Version)}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	if err := rt.initTelemetry(ctx, cfg); err != nil {
		return nil, err
	}
	if err := rt.openStore(cfg); err != nil {
		return nil, err
	}

	journal, err := workflow.NewJournal(cfg.Journal.Backend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	rt.Journal = journal
	rt.onClose("journal", func(context.Context) error { return journal.Close() })

	if err := rt.openEventBus(ctx, cfg); err != nil {
		return nil, err
	}

	jobs := bus.NewMemoryBus(bus.WithSubscriberBuffer(cfg.Workflow.QueueSize), bus.WithBlockingPublish())
	rt.Queue = worker.NewQueue(jobs)
	rt.Health.RegisterChecker(health.CheckFunc("worker", func(context.Context) error {
		if !rt.Queue.Ready() {
			return errWorkerNotListening
		}
		return nil
	}))

	imageCache, err := rt.openImageCache(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var images imagesearch.Searcher
	if cfg.Images.AccessKey != "" {
		images = imagesearch.NewUnsplash(imagesearch.Config{
			BaseURL:   cfg.Images.BaseURL,
			AccessKey: cfg.Images.AccessKey,
			Timeout:   cfg.Images.Timeout,
			CacheTTL:  cfg.Images.CacheTTL,
		}, imageCache)
	}

	client := llm.NewClient(llm.Options{
		BaseURL:          cfg.Provider.BaseURL,
		APIKey:           cfg.Provider.APIKey,
		Model:            cfg.Provider.Model,
		Timeout:          cfg.Provider.Timeout,
		RateLimit:        rate.Limit(cfg.Provider.RateLimit),
		RateLimitBurst:   cfg.Provider.Burst,
		BreakerThreshold: cfg.Provider.BreakerThreshold,
		BreakerReset:     cfg.Provider.BreakerReset,
	})

	if policy == nil {
		fixed := PolicyFromConfig(cfg.Workflow)
		policy = func() workflow.RetryPolicy { return fixed }
	}
	deps := generation.Deps{
		Store:    rt.Store,
		Bus:      rt.Events,
		Engine:   workflow.NewEngine(journal, workflow.WithPolicySource(policy)),
		Planner:  llm.NewPlanner(client),
		Renderer: llm.NewRenderer(client, images),
	}
	rt.Worker = &worker.Worker{
		Bus:         jobs,
		Journal:     journal,
		Generator:   generation.NewOrchestrator(deps),
		Regenerator: generation.NewRegenerator(deps),
		Concurrency: cfg.Workflow.Concurrency,
	}

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = cfg.Telemetry.ServiceName
	}
	rt.API = api.New(api.Config{
		UserHeader:         cfg.Server.UserHeader,
		RateLimitPerMinute: cfg.Server.RateLimit,
		TracingService:     tracing,
	}, api.Deps{
		Store:  rt.Store,
		Events: rt.Events,
		Jobs:   rt.Queue,
		Namer:  llm.NewNamer(client),
		Health: rt.Health,
	})

	rt.logger.Info().
		Str("store", cfg.Store.Backend).
		Str("journal", cfg.Journal.Backend).
		Str("bus", cfg.Bus.Backend).
		Str("image_cache", cfg.Images.Cache).
		Bool("images", images != nil).
		Str(log.FieldModel, client.Model()).
		Int("concurrency", cfg.Workflow.Concurrency).
		Msg("runtime assembled")
	return rt, nil
}

func (rt *Runtime) onClose(name string, fn ShutdownHook) {
	rt.closers = append(rt.closers, namedHook{name: name, hook: fn})
}

// RegisterHooks hands the runtime's resources to m for ordered release.
func (rt *Runtime) RegisterHooks(m Manager) {
	for _, c := range rt.closers {
		m.RegisterShutdownHook(c.name, c.hook)
	}
	rt.closers = nil
}

// Close releases every resource still owned by the runtime, newest first.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].hook(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rt.closers[i].name, err))
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func (rt *Runtime) initTelemetry(ctx context.Context, cfg config.AppConfig) error {
	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry init failed: %w", err)
	}
	rt.onClose("telemetry", provider.Shutdown)
	if cfg.Telemetry.Enabled {
		rt.logger.Info().
			Str("service", cfg.Telemetry.ServiceName).
			Str("endpoint", cfg.Telemetry.Endpoint).
			Float64("sampling_rate", cfg.Telemetry.SamplingRate).
			Msg("telemetry initialized")
	}
	return nil
}

func (rt *Runtime) openStore(cfg config.AppConfig) error {
	backend := cfg.Store.Backend
	if (backend == "" || backend == "sqlite") && cfg.Store.Verify != "" && cfg.DataDir != "" {
		path := filepath.Join(cfg.DataDir, store.DBFileName)
		problems, err := sqlite.VerifyIntegrity(path, cfg.Store.Verify)
		if err != nil {
			return fmt.Errorf("verify frame store: %w", err)
		}
		if len(problems) > 0 {
			return fmt.Errorf("frame store integrity check failed: %v", problems)
		}
		rt.logger.Info().Str("path", path).Str("mode", cfg.Store.Verify).Msg("frame store integrity verified")
	}

	s, err := store.NewStore(backend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open frame store: %w", err)
	}
	rt.Store = s
	rt.onClose("store", func(context.Context) error { return s.Close() })
	if p, ok := s.(interface{ Ping(context.Context) error }); ok {
		rt.Health.RegisterChecker(health.CheckFunc("store", p.Ping))
	}
	return nil
}

func (rt *Runtime) openEventBus(ctx context.Context, cfg config.AppConfig) error {
	switch cfg.Bus.Backend {
	case "", "memory":
		rt.Events = bus.NewMemoryBus(bus.WithSubscriberBuffer(cfg.Bus.SubscriberBuffer))
		return nil
	case "redis":
		rb, err := bus.NewRedisBus(ctx, bus.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return fmt.Errorf("open event bus: %w", err)
		}
		rt.Events = rb
		rt.onClose("event-bus", func(context.Context) error { return rb.Close() })
		rt.Health.RegisterChecker(health.CheckFunc("event-bus", rb.HealthCheck))
		return nil
	default:
		return fmt.Errorf("unknown bus backend: %s (supported: memory, redis)", cfg.Bus.Backend)
	}
}

func (rt *Runtime) openImageCache(ctx context.Context, cfg config.AppConfig) (cache.Cache, error) {
	switch cfg.Images.Cache {
	case "none":
		return cache.NewNoOpCache(), nil
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix + "img:",
		})
		if err != nil {
			return nil, fmt.Errorf("open image cache: %w", err)
		}
		rt.onClose("image-cache", func(context.Context) error { return rc.Close() })
		rt.Health.RegisterChecker(health.SoftCheckFunc("image-cache", rc.HealthCheck))
		return rc, nil
	default:
		mc := cache.NewMemoryCache(time.Minute)
		rt.onClose("image-cache", func(context.Context) error { return mc.Close() })
		return mc, nil
	}
}
