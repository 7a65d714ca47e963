// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/xdesign/internal/config"
	"github.com/ManuGH/xdesign/internal/model"
	"github.com/ManuGH/xdesign/internal/workflow"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAppConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.Version = "test"
	cfg.DataDir = t.TempDir()
	cfg.Store.Backend = "memory"
	cfg.Journal.Backend = "memory"
	cfg.Bus.Backend = "memory"
	cfg.Images.Cache = "none"
	cfg.Telemetry.Enabled = false
	cfg.Server.RateLimit = 0
	cfg.Provider.RateLimit = 0
	cfg.Workflow.InitialBackoff = 10 * time.Millisecond
	cfg.Workflow.MaxBackoff = 20 * time.Millisecond
	return cfg
}

func TestPolicyFromConfig(t *testing.T) {
	def := workflow.DefaultRetryPolicy()

	p := PolicyFromConfig(config.WorkflowConfig{})
	assert.Equal(t, def, p)

	p = PolicyFromConfig(config.WorkflowConfig{MaxAttempts: 7, InitialBackoff: time.Second, MaxBackoff: time.Minute, Multiplier: 3})
	assert.Equal(t, 7, p.MaxAttempts)
	assert.Equal(t, time.Second, p.InitialBackoff)
	assert.Equal(t, time.Minute, p.MaxBackoff)
	assert.Equal(t, 3.0, p.Multiplier)
}

// runWorker starts rt's worker until the test ends and waits until it consumes jobs.
func runWorker(t *testing.T, rt *Runtime) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rt.Worker.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, rt.Queue.Ready, 5*time.Second, 10*time.Millisecond)
}

func probe(t *testing.T, rt *Runtime, path string) int {
	t.Helper()
	rec := httptest.NewRecorder()
	rt.API.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec.Code
}

func TestBuildWithMemoryBackends(t *testing.T) {
	rt, err := Build(context.Background(), testAppConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	require.NotNil(t, rt.Store)
	require.NotNil(t, rt.Journal)
	require.NotNil(t, rt.Events)
	require.NotNil(t, rt.Worker)

	assert.Equal(t, http.StatusOK, probe(t, rt, "/healthz"))
	assert.Equal(t, http.StatusServiceUnavailable, probe(t, rt, "/readyz"), "no worker consuming jobs yet")

	runWorker(t, rt)
	assert.Equal(t, http.StatusOK, probe(t, rt, "/readyz"))
}

func TestBuildWithSqliteAndBadger(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Store.Backend = "sqlite"
	cfg.Store.Verify = "quick"
	cfg.Journal.Backend = "badger"

	rt, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, probe(t, rt, "/healthz?verbose=true"))
	require.NoError(t, rt.Close(context.Background()))

	// A second open verifies the file written by the first.
	rt, err = Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NoError(t, rt.Close(context.Background()))
}

func TestBuildWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testAppConfig(t)
	cfg.Bus.Backend = "redis"
	cfg.Images.Cache = "redis"
	cfg.Redis.Addr = mr.Addr()

	rt, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	runWorker(t, rt)

	assert.Equal(t, http.StatusOK, probe(t, rt, "/readyz"))

	mr.Close()
	assert.Equal(t, http.StatusServiceUnavailable, probe(t, rt, "/readyz"))
}

func TestBuildRejectsUnknownBackends(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Bus.Backend = "kafka"
	_, err := Build(context.Background(), cfg, nil)
	require.Error(t, err)

	cfg = testAppConfig(t)
	cfg.Store.Backend = "postgres"
	_, err = Build(context.Background(), cfg, nil)
	require.Error(t, err)
}

// designProvider answers plan, naming and render calls of the chat API.
func designProvider(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			ResponseFormat *struct {
				Type string `json:"type"`
			} `json:"response_format"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		content := `<div class="p-4">screen</div>`
		switch {
		case req.ResponseFormat != nil:
			content = `{"theme":"midnight","screens":[` +
				`{"id":"home","name":"Home","purpose":"landing","visualDescription":"hero"},` +
				`{"id":"stats","name":"Stats","purpose":"metrics","visualDescription":"charts"}]}`
		case len(req.Messages) > 0 && strings.Contains(req.Messages[0].Content, "project names"):
			content = "fitness pulse!"
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRuntimeGeneratesProjectEndToEnd(t *testing.T) {
	cfg := testAppConfig(t)
	cfg.Provider.BaseURL = designProvider(t).URL
	cfg.Provider.APIKey = "test"
	cfg.Provider.RateLimit = 1000
	cfg.Provider.Burst = 1000

	rt, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	runWorker(t, rt)

	srv := httptest.NewServer(rt.API.Handler())
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/projects", strings.NewReader(`{"prompt":"a fitness tracker"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "alice")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var created struct {
		Project model.Project `json:"project"`
		RunID   string        `json:"runId"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Fitness Pulse", created.Project.Name)
	require.NotEmpty(t, created.RunID)

	require.Eventually(t, func() bool {
		frames, err := rt.Store.FindFramesByProject(context.Background(), created.Project.ID)
		return err == nil && len(frames) == 2
	}, 10*time.Second, 20*time.Millisecond)
}
