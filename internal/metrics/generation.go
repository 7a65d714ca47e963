// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesPersistedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xdesign_frames_persisted_total",
		Help: "Frames written by the orchestrators by operation",
	}, []string{"op"}) // op=create|update

	PlannedScreens = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "xdesign_plan_screens",
		Help:    "Number of screens per generation plan",
		Buckets: []float64{1, 2, 3, 4},
	})

	markupFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xdesign_markup_fallback_total",
		Help: "Renderer outputs without a root <div> that were kept as raw text",
	})

	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xdesign_provider_requests_total",
		Help: "Model provider requests by operation and outcome",
	}, []string{"op", "outcome"})

	ImageLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xdesign_image_lookups_total",
		Help: "Image lookups by result (hit|miss|empty|error)",
	}, []string{"result"})
)

// IncFramePersisted records a frame create or update.
func IncFramePersisted(op string) {
	FramesPersistedTotal.WithLabelValues(op).Inc()
}

// ObservePlan records the size of a plan.
func ObservePlan(screens int) {
	PlannedScreens.Observe(float64(screens))
}

// IncMarkupFallback records renderer output kept verbatim.
func IncMarkupFallback() {
	markupFallbackTotal.Inc()
}

// IncProviderRequest records one provider call.
func IncProviderRequest(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	ProviderRequestsTotal.WithLabelValues(op, outcome).Inc()
}

// IncImageLookup records an image lookup outcome.
func IncImageLookup(result string) {
	ImageLookupsTotal.WithLabelValues(result).Inc()
}
