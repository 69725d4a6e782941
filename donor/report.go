package donor

import (
	"fmt"

	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
)

const (
	reportType = "op"
	reportRole = "Donor"
)

// CurrentOpReport is the progress of a donor as shown to operators.
type CurrentOpReport struct {
	Type              string                 `json:"type"`
	Desc              string                 `json:"desc"`
	Role              string                 `json:"role"`
	ReshardingUUID    string                 `json:"resharding_uuid"`
	Namespace         string                 `json:"ns"`
	ShardKey          string                 `json:"shard_key"`
	Unique            bool                   `json:"unique"`
	DonorState        string                 `json:"donor_state"`
	MinFetchTimestamp string                 `json:"min_fetch_timestamp,omitempty"`
	BytesToClone      *int64                 `json:"bytes_to_clone,omitempty"`
	DocumentsToClone  *int64                 `json:"documents_to_clone,omitempty"`
	AbortReason       *spqrerror.AbortReason `json:"abort_reason,omitempty"`

	BarrierEntries     int64           `json:"barrier_entries"`
	BarrierLatency     []QuantileValue `json:"barrier_latency,omitempty"`
	CoordinatorUpdates int64           `json:"coordinator_updates"`
	UnmatchedUpdates   int64           `json:"unmatched_coordinator_updates"`
}

func (m *DonorStateMachine) ReportForCurrentOp() *CurrentOpReport {
	donorCtx := m.DonorContext()

	r := &CurrentOpReport{
		Type:             reportType,
		Desc:             fmt.Sprintf("ReshardingDonorService %s", m.metadata.ReshardingUUID),
		Role:             reportRole,
		ReshardingUUID:   m.metadata.ReshardingUUID.String(),
		Namespace:        m.metadata.SourceNss.String(),
		ShardKey:         m.metadata.ReshardingKey.String(),
		DonorState:       donorCtx.State.String(),
		BytesToClone:     donorCtx.BytesToClone,
		DocumentsToClone: donorCtx.DocumentsToClone,
		AbortReason:      donorCtx.AbortReason,

		BarrierEntries:     m.stats.BarrierEntries(),
		BarrierLatency:     m.stats.BarrierLatencyQuantiles(),
		CoordinatorUpdates: m.stats.CoordinatorUpdates(),
		UnmatchedUpdates:   m.stats.UnmatchedCoordinatorUpdates(),
	}
	if donorCtx.MinFetchTimestamp != nil {
		r.MinFetchTimestamp = donorCtx.MinFetchTimestamp.String()
	}
	return r
}
