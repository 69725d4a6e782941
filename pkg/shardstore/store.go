package shardstore

import (
	"context"

	"github.com/pg-sharding/reshard/pkg/models/resharding"
	"github.com/pg-sharding/reshard/pkg/oplog"
)

type CollectionStats struct {
	Exists               bool
	Bytes                int64
	Documents            int64
	IndexBuildInProgress bool
}

// Store is the local storage of a donor shard.
type Store interface {
	// CollectionStats returns a size snapshot of nss. A missing collection
	// yields zero stats with Exists unset.
	CollectionStats(ctx context.Context, nss resharding.Namespace) (*CollectionStats, error)
	// WriteNoop appends entry to the replicated log in its own local
	// transaction and returns the assigned timestamp. A non-empty lockNss
	// is held in shared mode for the duration of the write.
	WriteNoop(ctx context.Context, entry *oplog.Entry, lockNss resharding.Namespace) (oplog.Timestamp, error)
	// FinalOpTimestamp returns the timestamp of the barrier entry already
	// written for recipient of operation reshardingUUID, or a null
	// timestamp when there is none.
	FinalOpTimestamp(ctx context.Context, reshardingUUID string, recipient string) (oplog.Timestamp, error)
	// LastOpTime is the timestamp of the latest local write.
	LastOpTime(ctx context.Context) (oplog.Timestamp, error)
	// WaitForMajority blocks until ts is durable on a majority of replicas.
	WaitForMajority(ctx context.Context, ts oplog.Timestamp) error
	// DropCollection drops nss. Dropping a missing collection succeeds.
	DropCollection(ctx context.Context, nss resharding.Namespace) error
	// AcquireCriticalSection blocks writes to nss while allowing reads.
	// Acquiring an already held critical section is a no-op.
	AcquireCriticalSection(ctx context.Context, nss resharding.Namespace, reason string) error
	// ReleaseCriticalSection is a no-op for a critical section not held.
	ReleaseCriticalSection(ctx context.Context, nss resharding.Namespace) error
}

// Annotator computes the destined recipient of a document written to a
// collection being resharded.
type Annotator func(doc map[string]any) (string, error)

// WriteAnnotator is implemented by stores that annotate user writes with
// their destined recipient.
type WriteAnnotator interface {
	SetDestinedRecipientAnnotator(nss resharding.Namespace, annotate Annotator)
	ClearDestinedRecipientAnnotator(nss resharding.Namespace)
}

// RoutingCacheStore persists refreshed routing metadata locally so that
// recipients can read it at a snapshot.
type RoutingCacheStore interface {
	PersistRoutingInfo(ctx context.Context, nss string, version int64, data []byte) error
}
