// Package embeddings exposes Prometheus metrics for embedding generation.
package embeddings

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenerationDuration tracks embedding call latency.
	// Labels: model, operation (embed_documents, embed_query)
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "learning_agent",
			Subsystem: "embeddings",
			Name:      "generation_duration_seconds",
			Help:      "Duration of embedding generation in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"model", "operation"},
	)

	// BatchSize tracks texts per embedding request.
	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "learning_agent",
			Subsystem: "embeddings",
			Name:      "batch_size",
			Help:      "Number of texts per embedding request",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		},
		[]string{"model", "operation"},
	)

	// GenerationErrors counts failed embedding calls.
	// Labels: model, operation
	GenerationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "learning_agent",
			Subsystem: "embeddings",
			Name:      "errors_total",
			Help:      "Total embedding generation errors",
		},
		[]string{"model", "operation"},
	)
)

// recordGeneration records one embedding call's metrics.
func recordGeneration(model, operation string, duration time.Duration, batchSize int, err error) {
	GenerationDuration.WithLabelValues(model, operation).Observe(duration.Seconds())
	if batchSize > 0 {
		BatchSize.WithLabelValues(model, operation).Observe(float64(batchSize))
	}
	if err != nil {
		GenerationErrors.WithLabelValues(model, operation).Inc()
	}
}
