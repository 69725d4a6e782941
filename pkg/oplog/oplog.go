package oplog

import (
	"fmt"
	"time"
)

// Timestamp is the position of an entry in the replicated log. The zero
// value is the null timestamp.
type Timestamp uint64

const NullTimestamp = Timestamp(0)

func (t Timestamp) IsNull() bool {
	return t == NullTimestamp
}

// String formats t the way PostgreSQL prints an LSN.
func (t Timestamp) String() string {
	return fmt.Sprintf("%X/%X", uint64(t)>>32, uint32(t))
}

// ParseTimestamp parses the "hi/lo" LSN notation.
func ParseTimestamp(s string) (Timestamp, error) {
	var hi, lo uint32
	if _, err := fmt.Sscanf(s, "%X/%X", &hi, &lo); err != nil {
		return NullTimestamp, fmt.Errorf("invalid log timestamp %q: %w", s, err)
	}
	return Timestamp(uint64(hi)<<32 | uint64(lo)), nil
}

type OpType string

const (
	OpInsert = OpType("i")
	OpUpdate = OpType("u")
	OpDelete = OpType("d")
	OpNoop   = OpType("n")
)

// Entry is a single replicated log record.
type Entry struct {
	Timestamp         Timestamp      `json:"ts"`
	OpType            OpType         `json:"op"`
	Nss               string         `json:"ns"`
	UUID              string         `json:"ui,omitempty"`
	DestinedRecipient string         `json:"destinedRecipient,omitempty"`
	Object            map[string]any `json:"o"`
	Object2           map[string]any `json:"o2,omitempty"`
	WallClock         time.Time      `json:"wall"`
}

const (
	// ForceBatchBoundaryNss receives the no-op entry that fixes the fetch
	// timestamp of a resharding operation.
	ForceBatchBoundaryNss = "spqr_resharding.force_oplog_batch_boundary"

	ReshardFinalOpType = "reshardFinalOp"
)

func ForceBatchBoundaryMessage(sourceNss string) string {
	return fmt.Sprintf("All future oplog entries on the namespace %s must include a 'destinedRecipient' field", sourceNss)
}

func BlockingWritesMessage(sourceNss string) string {
	return fmt.Sprintf("Writes to %s are temporarily blocked for resharding.", sourceNss)
}

// NewForceBatchBoundaryEntry builds the no-op written when a donor fixes its fetch timestamp.
func NewForceBatchBoundaryEntry(sourceNss string, now time.Time) *Entry {
	return &Entry{
		OpType:    OpNoop,
		Nss:       ForceBatchBoundaryNss,
		Object:    map[string]any{"msg": ForceBatchBoundaryMessage(sourceNss)},
		WallClock: now,
	}
}

// NewFinalOpEntry builds the barrier no-op that tells recipient that no more
// writes on sourceNss are destined for it.
func NewFinalOpEntry(sourceNss, sourceUUID, reshardingUUID, recipient string, now time.Time) *Entry {
	return &Entry{
		OpType:            OpNoop,
		Nss:               sourceNss,
		UUID:              sourceUUID,
		DestinedRecipient: recipient,
		Object:            map[string]any{"msg": BlockingWritesMessage(sourceNss)},
		Object2: map[string]any{
			"type":           ReshardFinalOpType,
			"reshardingUUID": reshardingUUID,
		},
		WallClock: now,
	}
}

// IsFinalOp reports whether e is a resharding barrier entry.
func (e *Entry) IsFinalOp() bool {
	if e.OpType != OpNoop || e.Object2 == nil {
		return false
	}
	tp, _ := e.Object2["type"].(string)
	return tp == ReshardFinalOpType
}
