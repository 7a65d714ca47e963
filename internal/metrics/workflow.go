// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xdesign_workflow_step_duration_seconds",
		Help:    "Wall time of a single workflow step attempt",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"kind", "step", "outcome"}) // outcome=success|failure

	StepAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xdesign_workflow_step_attempts_total",
		Help: "Workflow step attempts by outcome",
	}, []string{"kind", "outcome"}) // outcome=success|failure|replayed

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xdesign_workflow_runs_total",
		Help: "Finished workflow runs by kind and outcome",
	}, []string{"kind", "outcome"}) // outcome=completed|failed

	RunsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "xdesign_workflow_runs_active",
		Help: "Workflow runs currently executing",
	}, []string{"kind"})

	RunsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xdesign_workflow_runs_recovered_total",
		Help: "Unfinished runs re-enqueued from the journal at startup",
	})
)

// ObserveStep records one step attempt. Step names with an index suffix are
// collapsed by the caller to keep cardinality bounded.
func ObserveStep(kind, step string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	stepDuration.WithLabelValues(kind, step, outcome).Observe(d.Seconds())
	StepAttemptsTotal.WithLabelValues(kind, outcome).Inc()
}

// IncStepReplayed records a step served from the journal instead of executed.
func IncStepReplayed(kind string) {
	StepAttemptsTotal.WithLabelValues(kind, "replayed").Inc()
}

// RecordRun records a finished run.
func RecordRun(kind string, err error) {
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	RunsTotal.WithLabelValues(kind, outcome).Inc()
}

var jobsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "xdesign_worker_jobs_dispatched_total",
	Help: "Jobs handed to an orchestrator by kind and source",
}, []string{"kind", "source"}) // source=queue|recovery

// IncJobDispatched records a job started by the worker.
func IncJobDispatched(kind, source string) {
	jobsDispatchedTotal.WithLabelValues(kind, source).Inc()
}
