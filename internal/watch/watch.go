// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/xdesign/internal/bus"
	"github.com/ManuGH/xdesign/internal/canvas"
	"github.com/ManuGH/xdesign/internal/log"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultReconnect = 2 * time.Second
	streamBuffer     = 64
)

type Config struct {
	Server     string
	User       string
	UserHeader string
	Project    string
	// Watchdog fails a stalled in-progress run after this long without
	// events. Zero disables it.
	Watchdog time.Duration
	// Reconnect is the minimum interval between stream connection attempts.
	Reconnect time.Duration
	// OnState, when set, receives every snapshot after it is logged.
	OnState func(canvas.State)
}

// Run watches cfg.Project until ctx is done. It returns an error only when
// the project cannot be bootstrapped.
func Run(ctx context.Context, cfg Config) error {
	if cfg.User == "" || cfg.Project == "" {
		return errors.New("user and project are required")
	}
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = DefaultReconnect
	}
	client, err := NewClient(cfg.Server, cfg.User, cfg.UserHeader)
	if err != nil {
		return err
	}
	project, err := client.FetchProject(ctx, cfg.Project)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	logger := log.WithComponent("watch").With().
		Str(log.FieldProjectID, project.ID).
		Str(log.FieldUserID, cfg.User).
		Logger()
	logger.Info().Str("name", project.Name).Int("frames", len(project.Frames)).Msg("project loaded")

	w := &watcher{
		cfg:     cfg,
		client:  client,
		logger:  logger,
		resync:  make(chan struct{}, 1),
		reports: newReporter(logger, cfg.OnState),
	}
	w.consumer = canvas.NewConsumer(project, canvas.Options{
		WatchdogTimeout: cfg.Watchdog,
		OnChange:        w.onChange,
	})
	defer w.consumer.Close()
	w.reports.report(w.consumer.State())

	msgs := make(chan bus.Message, streamBuffer)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.stream(gctx, msgs) })
	g.Go(func() error { return w.consumer.Run(gctx, msgs) })
	g.Go(func() error { return w.resyncLoop(gctx) })

	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

type watcher struct {
	cfg      Config
	client   *Client
	logger   zerolog.Logger
	consumer *canvas.Consumer
	resync   chan struct{}
	reports  *reporter
}

func (w *watcher) onChange(st canvas.State) {
	if w.reports.report(st) {
		w.requestResync()
	}
}

func (w *watcher) requestResync() {
	select {
	case w.resync <- struct{}{}:
	default:
	}
}

// stream keeps the realtime connection open. Every reconnect schedules a
// resync since messages published while disconnected are lost.
func (w *watcher) stream(ctx context.Context, msgs chan<- bus.Message) error {
	limiter := rate.NewLimiter(rate.Every(w.cfg.Reconnect), 1)
	first := true
	for {
		if err := limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}
		err := w.client.Stream(ctx, msgs, func() {
			w.logger.Debug().Msg("realtime stream connected")
			if !first {
				w.requestResync()
			}
			first = false
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Warn().Err(err).Dur("retry_in", w.cfg.Reconnect).Msg("realtime stream lost")
	}
}

func (w *watcher) resyncLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.resync:
		}
		project, err := w.client.FetchProject(ctx, w.cfg.Project)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn().Err(err).Msg("resync failed")
			continue
		}
		w.logger.Debug().Int("frames", len(project.Frames)).Msg("resyncing from server")
		w.consumer.Resync(project)
	}
}

// reporter logs status and frame changes and decides when a snapshot calls
// for a resync.
type reporter struct {
	logger  zerolog.Logger
	onState func(canvas.State)

	mu      sync.Mutex
	started bool
	status  canvas.Status
	frames  map[string]frameMark
}

type frameMark struct {
	updated time.Time
	loading bool
	title   string
}

func newReporter(logger zerolog.Logger, onState func(canvas.State)) *reporter {
	return &reporter{logger: logger, onState: onState, frames: map[string]frameMark{}}
}

// report returns true when the status has just moved into a quiescent state.
func (r *reporter) report(st canvas.State) bool {
	r.mu.Lock()
	settled := false
	if !r.started || st.Status != r.status {
		if r.started {
			r.logger.Info().
				Str(log.FieldOldState, string(r.status)).
				Str(log.FieldNewState, string(st.Status)).
				Msg("status changed")
			settled = st.Status.Quiescent()
		}
		r.status = st.Status
		r.started = true
	}

	next := make(map[string]frameMark, len(st.Frames))
	for _, f := range st.Frames {
		mark := frameMark{updated: f.UpdatedAt, loading: f.IsLoading, title: f.Title}
		next[f.ID] = mark
		prev, ok := r.frames[f.ID]
		switch {
		case !ok:
			r.logger.Info().Str(log.FieldFrameID, f.ID).Str("title", f.Title).Bool("loading", f.IsLoading).Msg("frame added")
		case prev != mark:
			r.logger.Info().Str(log.FieldFrameID, f.ID).Str("title", f.Title).Bool("loading", f.IsLoading).Msg("frame updated")
		}
	}
	for id, prev := range r.frames {
		if _, ok := next[id]; !ok {
			r.logger.Info().Str(log.FieldFrameID, id).Str("title", prev.title).Msg("frame removed")
		}
	}
	r.frames = next
	r.mu.Unlock()

	if r.onState != nil {
		r.onState(st)
	}
	return settled
}
