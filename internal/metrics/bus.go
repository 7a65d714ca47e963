// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BusPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xdesign_bus_published_total",
		Help: "Total number of event channel messages handed to subscribers by topic",
	}, []string{"topic"})

	BusDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xdesign_bus_dropped_total",
		Help: "Total number of event channel message drops by topic and reason",
	}, []string{"topic", "reason"})

	BusSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xdesign_bus_subscribers",
		Help: "Number of live event channel subscriptions",
	})
)

// IncBusDropReason records a dropped bus message with a concrete reason.
func IncBusDropReason(topic, reason string) {
	if topic == "" {
		topic = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	BusDroppedTotal.WithLabelValues(topic, reason).Inc()
}

// IncBusPublished records a message delivered to one subscriber buffer.
func IncBusPublished(topic string) {
	if topic == "" {
		topic = "unknown"
	}
	BusPublishedTotal.WithLabelValues(topic).Inc()
}
