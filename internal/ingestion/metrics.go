package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// workerMetrics holds the Prometheus instruments for the ingestion worker.
type workerMetrics struct {
	// filesIngestedTotal counts processed files by terminal status
	// (completed, failed).
	filesIngestedTotal *prometheus.CounterVec

	// chunksIngestedTotal counts chunks written to the vector store.
	chunksIngestedTotal prometheus.Counter

	// ingestDurationSeconds observes per-file processing time.
	ingestDurationSeconds prometheus.Histogram
}

// newWorkerMetrics registers the worker's metrics on the given registerer.
func newWorkerMetrics(reg prometheus.Registerer) *workerMetrics {
	factory := promauto.With(reg)
	return &workerMetrics{
		filesIngestedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docchat",
			Subsystem: "ingestion",
			Name:      "files_total",
			Help:      "Files processed by the ingestion worker, by terminal status.",
		}, []string{"status"}),
		chunksIngestedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "docchat",
			Subsystem: "ingestion",
			Name:      "chunks_total",
			Help:      "Chunks embedded and written to the vector store.",
		}),
		ingestDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "docchat",
			Subsystem: "ingestion",
			Name:      "duration_seconds",
			Help:      "Per-file ingestion duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
