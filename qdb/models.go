package qdb

import (
	"slices"

	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
)

type DonorState string

const (
	DonorUnused                 = DonorState("unused")
	DonorPreparingToDonate      = DonorState("preparing-to-donate")
	DonorDonatingInitialData    = DonorState("donating-initial-data")
	DonorDonatingOplogEntries   = DonorState("donating-oplog-entries")
	DonorPreparingToBlockWrites = DonorState("preparing-to-block-writes")
	DonorError                  = DonorState("error")
	DonorBlockingWrites         = DonorState("blocking-writes")
	DonorDone                   = DonorState("done")
)

type CoordinatorState string

const (
	CoordinatorUnused            = CoordinatorState("unused")
	CoordinatorInitializing      = CoordinatorState("initializing")
	CoordinatorPreparingToDonate = CoordinatorState("preparing-to-donate")
	CoordinatorCloning           = CoordinatorState("cloning")
	CoordinatorApplying          = CoordinatorState("applying")
	CoordinatorBlockingWrites    = CoordinatorState("blocking-writes")
	CoordinatorDecisionPersisted = CoordinatorState("decision-persisted")
	CoordinatorDone              = CoordinatorState("done")
)

type ShardKeyColumn struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	HashFunction string `json:"hash,omitempty"`
}

// DonorMutableState is the progress sub-document shared by donor records
// and the donor entries of coordinator documents.
type DonorMutableState struct {
	State             DonorState             `json:"state"`
	MinFetchTimestamp *uint64                `json:"min_fetch_timestamp,omitempty"`
	BytesToClone      *int64                 `json:"bytes_to_clone,omitempty"`
	DocumentsToClone  *int64                 `json:"documents_to_clone,omitempty"`
	AbortReason       *spqrerror.AbortReason `json:"abort_reason,omitempty"`
}

type DonorDocument struct {
	ReshardingUUID    string            `json:"resharding_uuid"`
	SourceNss         string            `json:"source_nss"`
	SourceUUID        string            `json:"source_uuid"`
	TempReshardingNss string            `json:"temp_resharding_nss"`
	ReshardingKey     []ShardKeyColumn  `json:"resharding_key"`
	RecipientShards   []string          `json:"recipient_shards"`
	MutableState      DonorMutableState `json:"mutable_state"`
}

type CoordinatorDonorEntry struct {
	ShardID      string            `json:"id"`
	MutableState DonorMutableState `json:"mutable_state"`
}

type CoordinatorDocument struct {
	ReshardingUUID    string                  `json:"resharding_uuid"`
	SourceNss         string                  `json:"source_nss"`
	SourceUUID        string                  `json:"source_uuid"`
	TempReshardingNss string                  `json:"temp_resharding_nss"`
	ReshardingKey     []ShardKeyColumn        `json:"resharding_key"`
	State             CoordinatorState        `json:"state"`
	AbortReason       *spqrerror.AbortReason  `json:"abort_reason,omitempty"`
	DonorShards       []CoordinatorDonorEntry `json:"donor_shards"`
	RecipientShards   []string                `json:"recipient_shards"`
}

// CoordinatorFilter selects a coordinator document whose entry for DonorShardID
// is in one of PrevStates.
type CoordinatorFilter struct {
	ReshardingUUID string       `json:"resharding_uuid"`
	DonorShardID   string       `json:"donor_shard_id"`
	PrevStates     []DonorState `json:"prev_states"`
}

func (f *CoordinatorFilter) donorEntry(doc *CoordinatorDocument) int {
	if doc == nil || doc.ReshardingUUID != f.ReshardingUUID {
		return -1
	}
	for i, d := range doc.DonorShards {
		if d.ShardID != f.DonorShardID {
			continue
		}
		if slices.Contains(f.PrevStates, d.MutableState.State) {
			return i
		}
		return -1
	}
	return -1
}

// Apply replaces the selected donor entry's mutable state. It reports false
// and leaves doc untouched when the filter does not match.
func (f *CoordinatorFilter) Apply(doc *CoordinatorDocument, state *DonorMutableState) bool {
	i := f.donorEntry(doc)
	if i < 0 {
		return false
	}
	doc.DonorShards[i].MutableState = *state
	return true
}

type ChunkRange struct {
	LowerBound uint64 `json:"from"`
	ShardID    string `json:"shard_id"`
}

// RoutingInfo is the routing metadata of a namespace: shard key layout and
// chunk ranges over the hashed key space, ordered by lower bound.
type RoutingInfo struct {
	Nss      string           `json:"nss"`
	Version  int64            `json:"version"`
	ShardKey []ShardKeyColumn `json:"shard_key"`
	Chunks   []ChunkRange     `json:"chunks"`
}
