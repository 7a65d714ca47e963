// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/xdesign/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingRunner struct {
	started chan struct{}
	stopped chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}), stopped: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context) error {
	close(r.started)
	<-ctx.Done()
	close(r.stopped)
	return ctx.Err()
}

type failingRunner struct{ err error }

func (r failingRunner) Run(context.Context) error { return r.err }

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		ListenAddr:      "127.0.0.1:0",
		ReadTimeout:     5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
}

func TestNewManagerValidatesDeps(t *testing.T) {
	_, err := NewManager(testServerConfig(), Deps{Logger: zerolog.Nop(), APIHandler: okHandler()})
	require.ErrorIs(t, err, ErrMissingLogger)

	_, err = NewManager(testServerConfig(), Deps{Logger: zerolog.New(io.Discard)})
	require.ErrorIs(t, err, ErrMissingAPIHandler)
}

func TestManagerServesAndShutsDownInOrder(t *testing.T) {
	runner := newBlockingRunner()
	m, err := NewManager(testServerConfig(), Deps{
		Logger:     zerolog.New(io.Discard),
		APIHandler: okHandler(),
		Worker:     runner,
	})
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []string
	)
	hook := func(name string) ShutdownHook {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}
	m.RegisterShutdownHook("store", hook("store"))
	m.RegisterShutdownHook("bus", hook("bus"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	require.Eventually(t, func() bool { return m.Addr() != "" }, 5*time.Second, 10*time.Millisecond)
	<-runner.started

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("manager did not stop")
	}

	<-runner.stopped
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"bus", "store"}, order)

	assert.NoError(t, m.Shutdown(context.Background()), "second shutdown is a no-op")
}

func TestManagerStopsWhenWorkerFails(t *testing.T) {
	boom := errors.New("journal unavailable")
	m, err := NewManager(testServerConfig(), Deps{
		Logger:     zerolog.New(io.Discard),
		APIHandler: okHandler(),
		Worker:     failingRunner{err: boom},
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- m.Start(context.Background()) }()

	select {
	case err := <-done:
		require.ErrorIs(t, err, boom)
	case <-time.After(10 * time.Second):
		t.Fatal("manager did not stop after worker failure")
	}
}

func TestManagerShutdownBeforeStart(t *testing.T) {
	m, err := NewManager(testServerConfig(), Deps{Logger: zerolog.New(io.Discard), APIHandler: okHandler()})
	require.NoError(t, err)
	require.ErrorIs(t, m.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestAppRequiresManager(t *testing.T) {
	app := NewApp(zerolog.New(io.Discard), nil, nil)
	require.ErrorIs(t, app.Run(context.Background()), ErrMissingManager)
}
