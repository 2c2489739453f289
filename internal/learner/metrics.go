package learner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Submissions counts learning submissions received.
	Submissions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "learning_agent",
			Subsystem: "learner",
			Name:      "submissions_total",
			Help:      "Total learning submissions received",
		},
	)

	// Debounced counts submissions collapsed into an already-pending run.
	Debounced = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "learning_agent",
			Subsystem: "learner",
			Name:      "debounced_total",
			Help:      "Submissions collapsed by the per-thread debounce window",
		},
	)

	// Cycles counts finished pipeline runs by outcome.
	// Labels: outcome (stored, skipped_no_signals, skipped_should_not_save,
	// extraction_failed, store_failed)
	Cycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "learning_agent",
			Subsystem: "learner",
			Name:      "cycles_total",
			Help:      "Completed learning cycles by outcome",
		},
		[]string{"outcome"},
	)
)

func recordSubmission() { Submissions.Inc() }

func recordDebounced() { Debounced.Inc() }

func recordOutcome(outcome string) { Cycles.WithLabelValues(outcome).Inc() }
