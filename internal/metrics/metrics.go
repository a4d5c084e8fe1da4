// Package metrics holds the Prometheus collectors the pipeline reports to.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "alertenricher"

var (
	// TicksTotal counts scheduler ticks by outcome.
	// Labels: outcome (completed, skipped, failed)
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "ticks_total",
		Help:      "Pipeline ticks by outcome",
	}, []string{"outcome"})

	// TickDuration measures a full tick from checkpoint read to checkpoint write.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "tick_duration_seconds",
		Help:      "Wall time of one pipeline tick",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 180, 600},
	})

	// AlertsTotal counts selected alerts by what happened to them.
	// Labels: result (inserted, already_exists, enqueue_failed, enrich_failed, store_failed)
	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "alerts_total",
		Help:      "Selected alerts by processing result",
	}, []string{"result"})

	// ParseErrorsTotal counts log lines that could not be decoded.
	ParseErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "source",
		Name:      "parse_errors_total",
		Help:      "Alert log lines skipped as malformed",
	})

	// Checkpoint is the last committed alert id.
	Checkpoint = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "checkpoint",
		Help:      "Highest alert id committed to the checkpoint",
	})

	// EnrichmentLatency measures generate calls.
	// Labels: status (success, error)
	EnrichmentLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "enrichment",
		Name:      "latency_seconds",
		Help:      "Latency of text-generation calls",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"status"})

	// BreakerState is 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "enrichment",
		Name:      "breaker_state",
		Help:      "Circuit breaker state around the text-generation service",
	})
)
