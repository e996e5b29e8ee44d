// Package telemetry exposes Prometheus metrics for the completion
// pipeline.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Completion outcomes recorded on CompletionsTotal.
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

var (
	// CompletionsTotal counts completion attempts by terminal outcome.
	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_completions_total",
			Help: "Total completion attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// CompletionDuration observes end-to-end completion latency.
	CompletionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assistant_completion_duration_seconds",
			Help:    "End-to-end completion attempt latency.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// StreamChunksTotal counts text deltas received over streaming
	// generation responses.
	StreamChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assistant_stream_chunks_total",
			Help: "Total streamed generation chunks received.",
		},
	)
)

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
