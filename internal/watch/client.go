// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package watch follows one project from a running daemon: it bootstraps from
// the project endpoint, feeds the realtime stream into a canvas consumer and
// resynchronizes whenever the consumer settles.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ManuGH/xdesign/internal/api/problem"
	"github.com/ManuGH/xdesign/internal/api/sse"
	"github.com/ManuGH/xdesign/internal/bus"
	"github.com/ManuGH/xdesign/internal/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrNotFound is returned when the project does not exist for the user.
var ErrNotFound = errors.New("project not found")

// Client talks to the daemon's HTTP API as one user.
type Client struct {
	base       string
	user       string
	userHeader string
	http       *http.Client
}

func NewClient(server, user, userHeader string) (*Client, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", server)
	}
	if userHeader == "" {
		userHeader = "X-User-ID"
	}
	return &Client{
		base:       strings.TrimRight(u.String(), "/"),
		user:       user,
		userHeader: userHeader,
		// No client timeout: the realtime response stays open.
		http: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}, nil
}

func (c *Client) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(c.userHeader, c.user)
	return req, nil
}

// FetchProject returns the authoritative project with its frames.
func (c *Client) FetchProject(ctx context.Context, id string) (model.Project, error) {
	req, err := c.newRequest(ctx, "/api/projects/"+url.PathEscape(id))
	if err != nil {
		return model.Project{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return model.Project{}, fmt.Errorf("fetch project: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return model.Project{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Project{}, responseError("fetch project", resp)
	}
	var p model.Project
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return model.Project{}, fmt.Errorf("decode project: %w", err)
	}
	return p, nil
}

// Stream forwards realtime messages to out until the stream ends or ctx is
// done. connected is called once the server has subscribed.
func (c *Client) Stream(ctx context.Context, out chan<- bus.Message, connected func()) error {
	req, err := c.newRequest(ctx, "/api/realtime")
	if err != nil {
		return err
	}
	req.Header.Set("Accept", sse.ContentType)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("open realtime stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return responseError("open realtime stream", resp)
	}

	r := sse.NewReader(resp.Body)
	for {
		ev, err := r.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return fmt.Errorf("read realtime stream: %w", err)
		}
		if ev.Comment == "connected" && connected != nil {
			connected()
			continue
		}
		if ev.Name == "" {
			continue
		}
		select {
		case out <- ev.Message():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func responseError(op string, resp *http.Response) error {
	var d problem.Details
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if json.Unmarshal(body, &d) == nil && d.Title != "" {
		if d.Detail != "" {
			return fmt.Errorf("%s: %d %s: %s", op, resp.StatusCode, d.Title, d.Detail)
		}
		return fmt.Errorf("%s: %d %s", op, resp.StatusCode, d.Title)
	}
	return fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
}
