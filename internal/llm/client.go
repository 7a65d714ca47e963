// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package llm talks to an OpenAI-compatible chat-completions endpoint and
// implements the screen planner and the screen renderer on top of it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/xdesign/internal/log"
	"github.com/ManuGH/xdesign/internal/metrics"
	"github.com/ManuGH/xdesign/internal/resilience"
	"github.com/ManuGH/xdesign/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Options configures the provider client.
type Options struct {
	BaseURL        string
	APIKey         string
	Model          string
	Timeout        time.Duration
	RateLimit      rate.Limit
	RateLimitBurst int
	// BreakerThreshold is the number of consecutive failures that open the breaker.
	BreakerThreshold int
	BreakerReset     time.Duration
}

const (
	defaultBaseURL          = "https://openrouter.ai/api/v1"
	defaultModel            = "google/gemini-3-pro-preview"
	defaultTimeout          = 3 * time.Minute
	defaultRateLimit        = 2
	defaultRateLimitBurst   = 4
	defaultBreakerThreshold = 5
	defaultBreakerReset     = 30 * time.Second
	maxErrorBody            = 4 << 10
)

func normalizeOptions(opts Options) Options {
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = defaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = defaultRateLimitBurst
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = defaultBreakerThreshold
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = defaultBreakerReset
	}
	return opts
}

// ErrProvider wraps non-2xx provider responses.
var ErrProvider = errors.New("llm: provider error")

// Client is a chat-completions client with rate limiting and circuit breaking.
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	tracer  trace.Tracer
}

func NewClient(opts Options) *Client {
	n := normalizeOptions(opts)
	return &Client{
		opts: n,
		http: &http.Client{
			Timeout:   n.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(n.RateLimit, n.RateLimitBurst),
		breaker: resilience.NewCircuitBreaker("llm", n.BreakerThreshold, n.BreakerReset),
		tracer:  telemetry.Tracer("xdesign/llm"),
	}
}

// Model returns the configured model id.
func (c *Client) Model() string { return c.opts.Model }

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Tools          []toolSpec      `json:"tools,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// complete performs one chat-completions call and returns the first choice.
func (c *Client) complete(ctx context.Context, op string, req chatRequest) (chatMessage, error) {
	req.Model = c.opts.Model

	ctx, span := c.tracer.Start(ctx, "llm."+op, trace.WithAttributes(telemetry.ProviderAttributes(c.opts.Model, op)...))
	defer span.End()

	start := time.Now()
	var msg chatMessage
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		msg, err = c.do(ctx, req)
		return err
	})
	metrics.IncProviderRequest(op, err)

	logger := log.FromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn().Err(err).Str(log.FieldModel, c.opts.Model).Str("op", op).
			Int64(log.FieldDuration, time.Since(start).Milliseconds()).Msg("provider call failed")
		return chatMessage{}, err
	}
	logger.Debug().Str(log.FieldModel, c.opts.Model).Str("op", op).
		Int64(log.FieldDuration, time.Since(start).Milliseconds()).Msg("provider call finished")
	return msg, nil
}

func (c *Client) do(ctx context.Context, body chatRequest) (chatMessage, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return chatMessage{}, fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/chat/completions", bytes.NewReader(buf))
	if err != nil {
		return chatMessage{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return chatMessage{}, fmt.Errorf("chat completions request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return chatMessage{}, fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return chatMessage{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return chatMessage{}, fmt.Errorf("%w: response has no choices", ErrProvider)
	}
	return out.Choices[0].Message, nil
}
