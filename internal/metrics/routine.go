package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Store and routine lifecycle Prometheus metrics.
var (
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Vector store operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"op", "status"},
	)

	StateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Routine state transitions by target state and outcome",
		},
		[]string{"to", "result"}, // result: "changed" / "unchanged" / "error"
	)

	RoutinesLoadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loaded_total",
			Help:      "Routines written by database builds",
		},
	)
)

var routineOnce sync.Once

// RegisterRoutineMetrics registers store and lifecycle metrics.
func RegisterRoutineMetrics() {
	mustRegisterOnce(&routineOnce, StoreOperationDuration, StateTransitionsTotal, RoutinesLoadedTotal)
}
