package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreOperations counts store operations.
	// Labels: operation (store, search_task, search_content, update_outcome), result (success, error)
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "learning_agent",
			Subsystem: "memory",
			Name:      "store_operations_total",
			Help:      "Total memory store operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	// SearchDuration tracks similarity search latency.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "learning_agent",
			Subsystem: "memory",
			Name:      "search_duration_seconds",
			Help:      "Duration of similarity searches in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"axis"},
	)

	// MemoriesByState reports the current row count per lifecycle state.
	MemoriesByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "learning_agent",
			Subsystem: "memory",
			Name:      "memories_by_state",
			Help:      "Number of stored memories per lifecycle state",
		},
		[]string{"state"},
	)
)

func recordOperation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	StoreOperations.WithLabelValues(operation, result).Inc()
}
