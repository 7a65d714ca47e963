// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "xdesign_http_request_duration_seconds",
	Help:    "HTTP request latency by route pattern and status",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route", "status"})

// ObserveHTTPRequest records a completed HTTP request.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

var httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "xdesign_http_requests_in_flight",
	Help: "HTTP requests currently being served, realtime streams included",
})

var realtimeStreams = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "xdesign_realtime_streams",
	Help: "Open realtime event streams",
})

func IncHTTPInFlight() { httpRequestsInFlight.Inc() }
func DecHTTPInFlight() { httpRequestsInFlight.Dec() }

// TrackRealtimeStream counts an open stream until the returned func is called.
func TrackRealtimeStream() func() {
	realtimeStreams.Inc()
	return realtimeStreams.Dec
}
