// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

// Package metrics exposes Prometheus instrumentation for the daily batch
// pipeline, the upstream sync, and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics

	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uawatch_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"outcome"}, // "success", "error", "inconsistent"
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "uawatch_pipeline_duration_seconds",
			Help:    "Duration of a full pipeline run in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FactsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uawatch_facts_accepted_total",
			Help: "Total number of fact rows accepted by normalization",
		},
	)

	FactsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uawatch_facts_rejected_total",
			Help: "Total number of fact rows rejected by normalization",
		},
		[]string{"reason"}, // "precision", "validation"
	)

	RollupsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uawatch_rollups_written_total",
			Help: "Total number of rollup rows written",
		},
		[]string{"granularity"},
	)

	AnomaliesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uawatch_anomalies_detected_total",
			Help: "Total number of anomaly findings by severity",
		},
		[]string{"severity"},
	)

	// Upstream sync metrics

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "uawatch_sync_duration_seconds",
			Help:    "Duration of upstream fact sync in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	SyncErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uawatch_sync_errors_total",
			Help: "Total number of upstream sync failures",
		},
	)

	SyncRowsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uawatch_sync_rows_fetched_total",
			Help: "Total number of rows fetched from the upstream source",
		},
	)

	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "uawatch_upstream_circuit_breaker_state",
			Help: "Upstream circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// HTTP metrics

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "uawatch_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// RecordPipelineRun records a completed pipeline run.
func RecordPipelineRun(outcome string, duration time.Duration) {
	PipelineRuns.WithLabelValues(outcome).Inc()
	PipelineDuration.Observe(duration.Seconds())
}

// RecordBatch records a normalization batch outcome.
func RecordBatch(accepted, precisionRejects, validationRejects int) {
	FactsAccepted.Add(float64(accepted))
	FactsRejected.WithLabelValues("precision").Add(float64(precisionRejects))
	FactsRejected.WithLabelValues("validation").Add(float64(validationRejects))
}

// RecordSync records an upstream sync attempt.
func RecordSync(duration time.Duration, rowsFetched int, err error) {
	SyncDuration.Observe(duration.Seconds())
	if err != nil {
		SyncErrors.Inc()
		return
	}
	SyncRowsFetched.Add(float64(rowsFetched))
}
