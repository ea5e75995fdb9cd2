// Package retrieval — metrics.go registers the Prometheus metrics for the
// retrieval engine and exposes the helpers used by the orchestrator.
package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// engineMetrics holds all Prometheus metrics owned by the retrieval engine.
// A single instance is created in NewEngine and stored on Engine so that
// tests can inject a fresh prometheus.Registry without polluting the default
// one.
type engineMetrics struct {
	// retrievalsTotal counts completed Retrieve calls, partitioned by mode
	// and outcome: "ok", "empty", or "invalid".
	retrievalsTotal *prometheus.CounterVec

	// retrievalDurationSeconds records the wall-clock duration of each
	// Retrieve call, partitioned by mode.
	retrievalDurationSeconds *prometheus.HistogramVec

	// groupFailuresTotal counts embedding groups excluded from a merge,
	// partitioned by failure kind: "embed", "query", or "dimension".
	groupFailuresTotal *prometheus.CounterVec

	// contextChars records the length of the assembled context text.
	contextChars prometheus.Histogram
}

// newEngineMetrics registers all engine metrics against reg and returns the
// populated engineMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	factory := promauto.With(reg)

	return &engineMetrics{
		retrievalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total number of Retrieve calls completed, partitioned by mode and outcome.",
		}, []string{"mode", "outcome"}),

		retrievalDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docchat",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of Retrieve calls.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"mode"}),

		groupFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Subsystem: "retrieval",
			Name:      "group_failures_total",
			Help:      "Total number of embedding groups excluded from a merge, partitioned by failure kind.",
		}, []string{"kind"}),

		contextChars: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docchat",
			Subsystem: "retrieval",
			Name:      "context_chars",
			Help:      "Length of the assembled context text in characters.",
			Buckets:   []float64{0, 500, 1000, 2500, 5000, 8000, 12000, 16000},
		}),
	}
}
