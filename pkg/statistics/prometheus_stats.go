package statistics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{
	0.0001, // 100µs
	0.0005, // 500µs
	0.001,  // 1ms
	0.005,  // 5ms
	0.01,   // 10ms
	0.05,   // 50ms
	0.1,    // 100ms
	0.5,    // 500ms
	1.0,    // 1s
	5.0,    // 5s
	10.0,   // 10s
}

var (
	qdbDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reshard_qdb_operation_duration_seconds",
		Help:    "QDB operation duration in seconds",
		Buckets: latencyBuckets,
	}, []string{"operation"})

	barrierWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reshard_donor_barrier_write_duration_seconds",
		Help:    "Duration of writing the final oplog barrier entries of one operation",
		Buckets: latencyBuckets,
	})

	stateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reshard_donor_state_transitions_total",
		Help: "Number of persisted donor state transitions by target state",
	}, []string{"state"})

	coordinatorUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reshard_donor_coordinator_updates_total",
		Help: "Number of donor progress pushes to the coordinator by outcome",
	}, []string{"result"})

	activeOperations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reshard_donor_active_operations",
		Help: "Number of resharding operations running on this donor",
	})
)

func RecordQDBOperation(op string, d time.Duration) {
	qdbDuration.WithLabelValues(op).Observe(d.Seconds())
}

func RecordBarrierWrite(d time.Duration) {
	barrierWriteDuration.Observe(d.Seconds())
}

func RecordStateTransition(state string) {
	stateTransitions.WithLabelValues(state).Inc()
}

func RecordCoordinatorUpdate(matched bool) {
	if matched {
		coordinatorUpdates.WithLabelValues("matched").Inc()
	} else {
		coordinatorUpdates.WithLabelValues("unmatched").Inc()
	}
}

func OperationStarted() {
	activeOperations.Inc()
}

func OperationFinished() {
	activeOperations.Dec()
}
