package shardstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pg-sharding/reshard/pkg/models/resharding"
	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/pkg/oplog"
	"github.com/pg-sharding/reshard/pkg/spqrlog"
)

type memCollection struct {
	uuid       uuid.UUID
	docs       []map[string]any
	bytes      int64
	indexBuild bool
}

// MemStore is an in-memory Store backed by a MemLog. Writes become
// majority-durable immediately unless majority advancement is held.
type MemStore struct {
	mu sync.Mutex

	log         *oplog.MemLog
	collections map[string]*memCollection
	critSecs    map[string]string
	annotators  map[string]Annotator
	routing     map[string][]byte

	majority     oplog.Timestamp
	holdMajority bool
	majorityCh   chan struct{}

	failures []error
}

var _ Store = &MemStore{}
var _ WriteAnnotator = &MemStore{}
var _ RoutingCacheStore = &MemStore{}

func NewMemStore() *MemStore {
	return &MemStore{
		log:         oplog.NewMemLog(),
		collections: map[string]*memCollection{},
		critSecs:    map[string]string{},
		annotators:  map[string]Annotator{},
		routing:     map[string][]byte{},
		majorityCh:  make(chan struct{}),
	}
}

func (s *MemStore) Log() *oplog.MemLog {
	return s.log
}

// CreateCollection registers an empty collection nss.
func (s *MemStore) CreateCollection(nss resharding.Namespace, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[nss.String()] = &memCollection{uuid: id}
}

func (s *MemStore) HasCollection(nss resharding.Namespace) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[nss.String()]
	return ok
}

func (s *MemStore) SetIndexBuildInProgress(nss resharding.Namespace, inProgress bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[nss.String()]; ok {
		c.indexBuild = inProgress
	}
}

// FailNextWrites makes the next log writes fail with errs, one error per write.
func (s *MemStore) FailNextWrites(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// HoldMajority stops majority advancement until ReleaseMajority.
func (s *MemStore) HoldMajority() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdMajority = true
}

func (s *MemStore) ReleaseMajority() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdMajority = false
	s.advanceMajorityLocked()
}

func (s *MemStore) advanceMajorityLocked() {
	if s.holdMajority {
		return
	}
	s.majority = s.log.LastTimestamp()
	close(s.majorityCh)
	s.majorityCh = make(chan struct{})
}

func (s *MemStore) InCriticalSection(nss resharding.Namespace) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.critSecs[nss.String()]
	return ok
}

func (s *MemStore) appendLocked(e *oplog.Entry) (oplog.Timestamp, error) {
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return oplog.NullTimestamp, err
	}
	ts := s.log.Append(e)
	s.advanceMajorityLocked()
	return ts, nil
}

// Insert is a user write. It is rejected inside a critical section and
// annotated with its destined recipient when an annotator is registered.
func (s *MemStore) Insert(_ context.Context, nss resharding.Namespace, doc map[string]any) (oplog.Timestamp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reason, ok := s.critSecs[nss.String()]; ok {
		return oplog.NullTimestamp, spqrerror.Newf(spqrerror.SPQR_STALE_ROUTING,
			"writes to %s are blocked: %s", nss, reason)
	}
	c, ok := s.collections[nss.String()]
	if !ok {
		c = &memCollection{uuid: uuid.New()}
		s.collections[nss.String()] = c
	}

	e := &oplog.Entry{
		OpType:    oplog.OpInsert,
		Nss:       nss.String(),
		UUID:      c.uuid.String(),
		Object:    doc,
		WallClock: time.Now(),
	}
	if annotate, ok := s.annotators[nss.String()]; ok {
		recipient, err := annotate(doc)
		if err != nil {
			return oplog.NullTimestamp, err
		}
		e.DestinedRecipient = recipient
	}

	ts, err := s.appendLocked(e)
	if err != nil {
		return oplog.NullTimestamp, err
	}
	c.docs = append(c.docs, doc)
	c.bytes += int64(len(doc)) * 16
	return ts, nil
}

func (s *MemStore) SetDestinedRecipientAnnotator(nss resharding.Namespace, annotate Annotator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.annotators[nss.String()] = annotate
}

func (s *MemStore) ClearDestinedRecipientAnnotator(nss resharding.Namespace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.annotators, nss.String())
}

func (s *MemStore) CollectionStats(_ context.Context, nss resharding.Namespace) (*CollectionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[nss.String()]
	if !ok {
		return &CollectionStats{}, nil
	}
	return &CollectionStats{
		Exists:               true,
		Bytes:                c.bytes,
		Documents:            int64(len(c.docs)),
		IndexBuildInProgress: c.indexBuild,
	}, nil
}

func (s *MemStore) WriteNoop(_ context.Context, entry *oplog.Entry, _ resharding.Namespace) (oplog.Timestamp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *entry
	ts, err := s.appendLocked(&cp)
	if err != nil {
		return oplog.NullTimestamp, err
	}
	spqrlog.Zero.Debug().
		Str("namespace", entry.Nss).
		Str("ts", ts.String()).
		Msg("memstore: wrote no-op entry")
	return ts, nil
}

func (s *MemStore) FinalOpTimestamp(_ context.Context, reshardingUUID string, recipient string) (oplog.Timestamp, error) {
	found := s.log.Find(func(e *oplog.Entry) bool {
		return e.IsFinalOp() && e.DestinedRecipient == recipient && e.Object2["reshardingUUID"] == reshardingUUID
	})
	if len(found) == 0 {
		return oplog.NullTimestamp, nil
	}
	return found[0].Timestamp, nil
}

func (s *MemStore) LastOpTime(_ context.Context) (oplog.Timestamp, error) {
	return s.log.LastTimestamp(), nil
}

func (s *MemStore) WaitForMajority(ctx context.Context, ts oplog.Timestamp) error {
	for {
		s.mu.Lock()
		if s.majority >= ts {
			s.mu.Unlock()
			return nil
		}
		ch := s.majorityCh
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
}

func (s *MemStore) DropCollection(_ context.Context, nss resharding.Namespace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, nss.String())
	spqrlog.Zero.Debug().Str("namespace", nss.String()).Msg("memstore: dropped collection")
	return nil
}

func (s *MemStore) AcquireCriticalSection(_ context.Context, nss resharding.Namespace, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.critSecs[nss.String()]; !ok {
		s.critSecs[nss.String()] = reason
	}
	return nil
}

func (s *MemStore) ReleaseCriticalSection(_ context.Context, nss resharding.Namespace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.critSecs, nss.String())
	return nil
}

func (s *MemStore) PersistRoutingInfo(_ context.Context, nss string, _ int64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routing[nss] = data
	return nil
}

// PersistedRoutingInfo returns the routing metadata last persisted for nss.
func (s *MemStore) PersistedRoutingInfo(nss string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.routing[nss]
	return data, ok
}
