// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package imagesearch resolves a free-text query to a single photo URL.
package imagesearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuGH/xdesign/internal/cache"
	"github.com/ManuGH/xdesign/internal/log"
	"github.com/ManuGH/xdesign/internal/metrics"
	"github.com/ManuGH/xdesign/internal/resilience"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultBaseURL = "https://api.unsplash.com"
	DefaultTTL     = 24 * time.Hour

	OrientationLandscape = "landscape"
	OrientationPortrait  = "portrait"
	OrientationSquarish  = "squarish"
)

// Searcher is the image lookup tool exposed to the renderer.
type Searcher interface {
	// Search returns a photo URL, or "" when nothing usable was found.
	Search(ctx context.Context, query, orientation string) string
}

// Config configures the Unsplash client.
type Config struct {
	BaseURL   string
	AccessKey string
	Timeout   time.Duration
	CacheTTL  time.Duration
}

// Unsplash searches the Unsplash photo API. Every failure collapses to "".
type Unsplash struct {
	cfg     Config
	client  *http.Client
	cache   cache.Cache
	breaker *resilience.CircuitBreaker
}

// NewUnsplash builds a client. A nil cache disables caching.
func NewUnsplash(cfg Config, c cache.Cache) *Unsplash {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultTTL
	}
	if c == nil {
		c = cache.NewNoOpCache()
	}
	return &Unsplash{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		cache:   c,
		breaker: resilience.NewCircuitBreaker("unsplash", 5, time.Minute),
	}
}

// NormalizeOrientation maps anything outside the allowed set to landscape.
func NormalizeOrientation(o string) string {
	switch strings.ToLower(strings.TrimSpace(o)) {
	case OrientationPortrait:
		return OrientationPortrait
	case OrientationSquarish:
		return OrientationSquarish
	default:
		return OrientationLandscape
	}
}

type searchResponse struct {
	Results []struct {
		URLs struct {
			Regular string `json:"regular"`
		} `json:"urls"`
	} `json:"results"`
}

func (u *Unsplash) Search(ctx context.Context, query, orientation string) string {
	query = strings.TrimSpace(query)
	if query == "" || u.cfg.AccessKey == "" {
		metrics.IncImageLookup("empty")
		return ""
	}
	orientation = NormalizeOrientation(orientation)
	key := orientation + "|" + strings.ToLower(query)

	if hit, ok := u.cache.Get(ctx, key); ok {
		metrics.IncImageLookup("hit")
		return hit
	}

	var found string
	err := u.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		found, err = u.fetch(ctx, query, orientation)
		return err
	})
	if err != nil {
		metrics.IncImageLookup("error")
		log.FromContext(ctx).Debug().Err(err).Str("query", query).Msg("image search failed")
		return ""
	}
	if found == "" {
		metrics.IncImageLookup("empty")
		return ""
	}
	metrics.IncImageLookup("miss")
	u.cache.Set(ctx, key, found, u.cfg.CacheTTL)
	return found
}

func (u *Unsplash) fetch(ctx context.Context, query, orientation string) (string, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("orientation", orientation)
	q.Set("per_page", "1")
	q.Set("client_id", u.cfg.AccessKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.cfg.BaseURL+"/search/photos?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept-Version", "v1")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unsplash: unexpected status %d", resp.StatusCode)
	}
	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("unsplash: decode response: %w", err)
	}
	if len(body.Results) == 0 {
		return "", nil
	}
	return body.Results[0].URLs.Regular, nil
}

var _ Searcher = (*Unsplash)(nil)
