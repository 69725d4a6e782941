package donor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pg-sharding/reshard/donor"
	"github.com/pg-sharding/reshard/pkg/catalog"
	"github.com/pg-sharding/reshard/pkg/models/hashfunction"
	"github.com/pg-sharding/reshard/pkg/models/resharding"
	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/pkg/oplog"
	"github.com/pg-sharding/reshard/pkg/shardstore"
	"github.com/pg-sharding/reshard/qdb"
)

const (
	shardID     = "sh1"
	waitTimeout = 5 * time.Second
)

var (
	sourceNss  = resharding.Namespace{Schema: "public", Relation: "orders"}
	tempNss    = resharding.Namespace{Schema: "public", Relation: "orders_reshard"}
	recipients = []string{"sh2", "sh3"}
)

// recordingDB remembers every persisted donor state.
type recordingDB struct {
	*qdb.MemQDB

	mu     sync.Mutex
	states []qdb.DonorMutableState
}

func (r *recordingDB) UpdateDonorMutableState(ctx context.Context, reshardingUUID string, state *qdb.DonorMutableState) error {
	if err := r.MemQDB.UpdateDonorMutableState(ctx, reshardingUUID, state); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, *state)
	return nil
}

func (r *recordingDB) history() []qdb.DonorMutableState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]qdb.DonorMutableState(nil), r.states...)
}

type harness struct {
	t     *testing.T
	db    *recordingDB
	store *shardstore.MemStore
	cache *catalog.Cache
	doc   *resharding.DonorDocument
	fatal chan error
}

// newHarness prepares a source collection, routing metadata of the
// temporary namespace and a coordinator document listing this shard as a
// donor. The donor record itself is inserted when insert is set.
func newHarness(t *testing.T, insert bool) *harness {
	ctx := context.Background()

	mem, err := qdb.NewMemQDB("")
	require.NoError(t, err)
	db := &recordingDB{MemQDB: mem}

	require.NoError(t, db.WriteRoutingInfo(ctx, &qdb.RoutingInfo{
		Nss:     tempNss.String(),
		Version: 1,
		ShardKey: []qdb.ShardKeyColumn{
			{Name: "id", Type: hashfunction.ColumnTypeInteger, HashFunction: "identity"},
		},
		Chunks: []qdb.ChunkRange{
			{LowerBound: 0, ShardID: "sh2"},
			{LowerBound: 1000, ShardID: "sh3"},
		},
	}))

	store := shardstore.NewMemStore()
	sourceUUID := uuid.New()
	store.CreateCollection(sourceNss, sourceUUID)

	doc := &resharding.DonorDocument{
		CommonMetadata: resharding.CommonMetadata{
			ReshardingUUID:    uuid.New(),
			SourceNss:         sourceNss,
			SourceUUID:        sourceUUID,
			TempReshardingNss: tempNss,
			ReshardingKey: resharding.ShardKeyPattern{
				Columns: []resharding.ShardKeyColumn{
					{Name: "id", Type: hashfunction.ColumnTypeInteger, HashFunction: hashfunction.HashFunctionIdent},
				},
			},
		},
		RecipientShards: recipients,
		MutableState:    resharding.DonorShardContext{State: resharding.DonorUnused},
	}
	if insert {
		require.NoError(t, db.InsertDonorDocument(ctx, resharding.DonorDocumentToDB(doc)))
	}

	dbDoc := resharding.DonorDocumentToDB(doc)
	require.NoError(t, db.WriteCoordinatorDocument(ctx, &qdb.CoordinatorDocument{
		ReshardingUUID:    dbDoc.ReshardingUUID,
		SourceNss:         dbDoc.SourceNss,
		SourceUUID:        dbDoc.SourceUUID,
		TempReshardingNss: dbDoc.TempReshardingNss,
		ReshardingKey:     dbDoc.ReshardingKey,
		State:             qdb.CoordinatorPreparingToDonate,
		DonorShards: []qdb.CoordinatorDonorEntry{
			{ShardID: shardID, MutableState: qdb.DonorMutableState{State: qdb.DonorUnused}},
		},
		RecipientShards: recipients,
	}))

	return &harness{
		t:     t,
		db:    db,
		store: store,
		cache: catalog.NewCache(db, store),
		doc:   doc,
		fatal: make(chan error, 8),
	}
}

func (h *harness) id() string {
	return h.doc.ReshardingUUID.String()
}

func (h *harness) deps() donor.Deps {
	return donor.Deps{
		DB:       h.db,
		Store:    h.store,
		External: donor.NewExternalState(shardID, h.cache, h.db),
		Cache:    h.cache,
		Retry:    donor.RetryPolicy{Base: time.Millisecond, Cap: 10 * time.Millisecond},
		Fatal: func(err error) {
			h.fatal <- err
		},
	}
}

func (h *harness) newMachine(doc *resharding.DonorDocument) *donor.DonorStateMachine {
	m, err := donor.NewDonorStateMachine(doc, h.deps())
	require.NoError(h.t, err)
	return m
}

func (h *harness) persisted() *resharding.DonorDocument {
	dbDoc, err := h.db.GetDonorDocument(context.Background(), h.id())
	require.NoError(h.t, err)
	doc, err := resharding.DonorDocumentFromDB(dbDoc)
	require.NoError(h.t, err)
	return doc
}

func (h *harness) fields(state resharding.CoordinatorState) *resharding.CoordinatorFields {
	return &resharding.CoordinatorFields{
		ReshardingUUID: h.doc.ReshardingUUID,
		State:          state,
	}
}

func (h *harness) abortFields() *resharding.CoordinatorFields {
	return &resharding.CoordinatorFields{
		ReshardingUUID: h.doc.ReshardingUUID,
		State:          resharding.CoordinatorApplying,
		AbortReason: &spqrerror.AbortReason{
			Code:    spqrerror.SPQR_RESHARDING_ABORTED,
			Message: "aborted by user",
		},
	}
}

// setCoordinatorState rewrites the coordinator document, keeping the donor entries.
func (h *harness) setCoordinatorState(state qdb.CoordinatorState, abort *spqrerror.AbortReason) {
	ctx := context.Background()
	doc, err := h.db.GetCoordinatorDocument(ctx, h.id())
	require.NoError(h.t, err)
	doc.State = state
	doc.AbortReason = abort
	require.NoError(h.t, h.db.WriteCoordinatorDocument(ctx, doc))
}

func (h *harness) coordinatorEntryState() qdb.DonorState {
	doc, err := h.db.GetCoordinatorDocument(context.Background(), h.id())
	require.NoError(h.t, err)
	return doc.DonorShards[0].MutableState.State
}

func (h *harness) waitCoordinatorEntry(state qdb.DonorState) {
	require.Eventually(h.t, func() bool {
		return h.coordinatorEntryState() == state
	}, waitTimeout, time.Millisecond, "coordinator never saw donor state %s", state)
}

func (h *harness) waitState(m *donor.DonorStateMachine, state resharding.DonorState) {
	require.Eventually(h.t, func() bool {
		return m.DonorContext().State == state
	}, waitTimeout, time.Millisecond, "donor never reached state %s", state)
}

func (h *harness) run(ctx context.Context, m *donor.DonorStateMachine) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- m.Run(ctx)
	}()
	return ch
}

func (h *harness) result(ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(waitTimeout):
		h.t.Fatal("donor run did not finish")
		return nil
	}
}

func (h *harness) assertNoFatal() {
	select {
	case err := <-h.fatal:
		h.t.Fatalf("unexpected fatal error: %v", err)
	default:
	}
}

func (h *harness) donorRecordRemoved() bool {
	_, err := h.db.GetDonorDocument(context.Background(), h.id())
	return spqrerror.Code(err) == spqrerror.SPQR_NO_SUCH_OPERATION
}

func (h *harness) barrierEntries() []*oplog.Entry {
	return h.store.Log().Find(func(e *oplog.Entry) bool {
		return e.IsFinalOp()
	})
}

// assertHistory checks the persisted states: transitions are legal and the
// fetch snapshot is all-or-nothing and never changes once set.
func (h *harness) assertHistory(from resharding.DonorState) {
	assert := assert.New(h.t)

	prev := from
	var snapshot *qdb.DonorMutableState
	for _, s := range h.db.history() {
		state, err := resharding.DonorStateFromDB(s.State)
		require.NoError(h.t, err)
		assert.NoError(resharding.CheckDonorTransition(prev, state))

		set := s.MinFetchTimestamp != nil
		assert.Equal(set, s.BytesToClone != nil)
		assert.Equal(set, s.DocumentsToClone != nil)
		if snapshot != nil {
			assert.True(set, "fetch snapshot unset in state %s", s.State)
			if set {
				assert.Equal(*snapshot.MinFetchTimestamp, *s.MinFetchTimestamp)
				assert.Equal(*snapshot.BytesToClone, *s.BytesToClone)
				assert.Equal(*snapshot.DocumentsToClone, *s.DocumentsToClone)
			}
		} else if set {
			cp := s
			snapshot = &cp
		}
		prev = state
	}
}
