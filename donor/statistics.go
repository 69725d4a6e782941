package donor

import (
	"sync"
	"time"

	"github.com/caio/go-tdigest"
	"go.uber.org/atomic"

	"github.com/pg-sharding/reshard/pkg/statistics"
)

type QuantileValue struct {
	Quantile float64 `json:"quantile"`
	Millis   float64 `json:"ms"`
}

// Statistics collects per-operation counters of a donor.
type Statistics struct {
	mu             sync.Mutex
	barrierLatency *tdigest.TDigest
	quantiles      []float64

	barrierEntries     atomic.Int64
	coordinatorUpdates atomic.Int64
	unmatchedUpdates   atomic.Int64
	stateTransitions   atomic.Int64
}

func NewStatistics(quantiles []float64) *Statistics {
	td, _ := tdigest.New()
	return &Statistics{
		barrierLatency: td,
		quantiles:      quantiles,
	}
}

func (s *Statistics) RecordBarrierWrite(d time.Duration) {
	s.mu.Lock()
	_ = s.barrierLatency.Add(float64(d.Microseconds()) / 1000)
	s.mu.Unlock()

	s.barrierEntries.Inc()
	statistics.RecordBarrierWrite(d)
}

func (s *Statistics) RecordCoordinatorUpdate(matched bool) {
	s.coordinatorUpdates.Inc()
	if !matched {
		s.unmatchedUpdates.Inc()
	}
	statistics.RecordCoordinatorUpdate(matched)
}

func (s *Statistics) RecordStateTransition(state string) {
	s.stateTransitions.Inc()
	statistics.RecordStateTransition(state)
}

// BarrierLatencyQuantiles returns nil until a barrier entry was written.
func (s *Statistics) BarrierLatencyQuantiles() []QuantileValue {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.barrierLatency.Count() == 0 {
		return nil
	}
	res := make([]QuantileValue, 0, len(s.quantiles))
	for _, q := range s.quantiles {
		res = append(res, QuantileValue{Quantile: q, Millis: s.barrierLatency.Quantile(q)})
	}
	return res
}

func (s *Statistics) BarrierEntries() int64 {
	return s.barrierEntries.Load()
}

func (s *Statistics) CoordinatorUpdates() int64 {
	return s.coordinatorUpdates.Load()
}

func (s *Statistics) UnmatchedCoordinatorUpdates() int64 {
	return s.unmatchedUpdates.Load()
}

func (s *Statistics) StateTransitions() int64 {
	return s.stateTransitions.Load()
}
