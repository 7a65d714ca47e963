// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ManuGH/xdesign/internal/api/problem"
	"github.com/go-chi/httprate"
)

// RateLimitConfig configures the sliding-window limiter.
type RateLimitConfig struct {
	RequestLimit int
	WindowSize   time.Duration
	// KeyHeader, when set and present on the request, keys the limit by that
	// header instead of the client IP.
	KeyHeader string
}

// RateLimit rejects requests over the limit with a 429 problem response.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	keyFunc := httprate.KeyByIP
	if cfg.KeyHeader != "" {
		header := cfg.KeyHeader
		keyFunc = func(r *http.Request) (string, error) {
			if v := r.Header.Get(header); v != "" {
				return "h:" + v, nil
			}
			return httprate.KeyByIP(r)
		}
	}

	return httprate.Limit(
		cfg.RequestLimit,
		cfg.WindowSize,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(cfg.WindowSize.Seconds())))
			problem.Write(w, r, http.StatusTooManyRequests, "system/rate_limited", "Too Many Requests", "RATE_LIMITED", "Too many requests. Please try again later.")
		}),
	)
}

// APIRateLimit limits each caller to perMinute requests per minute.
func APIRateLimit(perMinute int, keyHeader string) func(http.Handler) http.Handler {
	return RateLimit(RateLimitConfig{
		RequestLimit: perMinute,
		WindowSize:   time.Minute,
		KeyHeader:    keyHeader,
	})
}
