package donor_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/pg-sharding/reshard/donor"
	"github.com/pg-sharding/reshard/donor/mock"
	"github.com/pg-sharding/reshard/pkg/icp"
	"github.com/pg-sharding/reshard/pkg/models/resharding"
	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/pkg/oplog"
	"github.com/pg-sharding/reshard/pkg/shardstore"
	"github.com/pg-sharding/reshard/qdb"
)

func TestDonorCommit(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := newHarness(t, true)

	m := h.newMachine(h.doc)
	done := h.run(ctx, m)

	h.waitState(m, resharding.DonorDonatingInitialData)
	h.waitCoordinatorEntry(qdb.DonorDonatingInitialData)

	donorCtx := m.DonorContext()
	require.NotNil(t, donorCtx.MinFetchTimestamp)
	assert.False(donorCtx.MinFetchTimestamp.IsNull())

	/* the fetch timestamp is the no-op on the batch boundary namespace */
	noops := h.store.Log().Find(func(e *oplog.Entry) bool {
		return e.Nss == oplog.ForceBatchBoundaryNss
	})
	require.Len(t, noops, 1)
	assert.Equal(*donorCtx.MinFetchTimestamp, noops[0].Timestamp)

	/* writes after the fetch timestamp carry their destined recipient */
	_, err := h.store.Insert(ctx, sourceNss, map[string]any{"id": int64(5)})
	require.NoError(t, err)
	_, err = h.store.Insert(ctx, sourceNss, map[string]any{"id": int64(2000)})
	require.NoError(t, err)
	inserts := h.store.Log().Find(func(e *oplog.Entry) bool {
		return e.OpType == oplog.OpInsert
	})
	require.Len(t, inserts, 2)
	assert.Equal("sh2", inserts[0].DestinedRecipient)
	assert.Equal("sh3", inserts[1].DestinedRecipient)

	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorApplying)))
	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorApplying)))
	h.waitState(m, resharding.DonorDonatingOplogEntries)

	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorBlockingWrites)))
	assert.True(h.store.InCriticalSection(sourceNss))
	_, err = h.store.Insert(ctx, sourceNss, map[string]any{"id": int64(7)})
	assert.Error(err)

	h.waitState(m, resharding.DonorBlockingWrites)
	h.waitCoordinatorEntry(qdb.DonorBlockingWrites)
	_, err = m.FinalOplogEntriesWritten().Wait(ctx)
	assert.NoError(err)

	barriers := h.barrierEntries()
	require.Len(t, barriers, len(recipients))
	for i, e := range barriers {
		assert.Equal(recipients[i], e.DestinedRecipient)
		assert.Equal(sourceNss.String(), e.Nss)
		assert.Equal(h.doc.SourceUUID.String(), e.UUID)
		assert.Equal(h.id(), e.Object2["reshardingUUID"])
	}

	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorDecisionPersisted)))
	assert.NoError(h.result(done))
	h.assertNoFatal()

	assert.Equal(resharding.DonorDone, m.DonorContext().State)
	assert.False(h.store.HasCollection(sourceNss))
	assert.True(h.donorRecordRemoved())
	assert.Equal(qdb.DonorDone, h.coordinatorEntryState())
	_, err = m.Completion().Wait(ctx)
	assert.NoError(err)

	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorDone)))
	assert.False(h.store.InCriticalSection(sourceNss))

	h.assertHistory(resharding.DonorUnused)
}

func TestDonorAbortWhileDonatingOplogEntries(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := newHarness(t, true)

	m := h.newMachine(h.doc)
	done := h.run(ctx, m)

	h.waitState(m, resharding.DonorDonatingInitialData)
	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorApplying)))
	h.waitState(m, resharding.DonorDonatingOplogEntries)

	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.abortFields()))
	assert.NoError(h.result(done))
	h.assertNoFatal()

	assert.Equal(resharding.DonorDone, m.DonorContext().State)
	assert.True(h.store.HasCollection(sourceNss))
	assert.True(h.donorRecordRemoved())
	assert.Empty(h.barrierEntries())
	assert.Equal(qdb.DonorDone, h.coordinatorEntryState())

	_, err := m.Completion().Wait(ctx)
	assert.Equal(spqrerror.SPQR_RESHARDING_ABORTED, spqrerror.Code(err))

	h.assertHistory(resharding.DonorUnused)
}

func TestDonorUnrecoverableErrorBeforeFetchTimestamp(t *testing.T) {
	for _, tt := range []struct {
		name   string
		inject func(h *harness)
		code   string
	}{
		{
			name: "no-op write fails",
			inject: func(h *harness) {
				h.store.FailNextWrites(spqrerror.New(spqrerror.SPQR_UNEXPECTED, "disk is full"))
			},
			code: spqrerror.SPQR_UNEXPECTED,
		},
		{
			name: "index build in progress",
			inject: func(h *harness) {
				h.store.SetIndexBuildInProgress(sourceNss, true)
			},
			code: spqrerror.SPQR_INDEX_BUILD_IN_PROGRESS,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			ctx := context.Background()
			h := newHarness(t, true)
			tt.inject(h)

			m := h.newMachine(h.doc)
			done := h.run(ctx, m)

			h.waitState(m, resharding.DonorError)
			h.waitCoordinatorEntry(qdb.DonorError)

			donorCtx := m.DonorContext()
			require.NotNil(t, donorCtx.AbortReason)
			assert.Equal(tt.code, donorCtx.AbortReason.Code)
			assert.Nil(donorCtx.MinFetchTimestamp)

			require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.abortFields()))
			assert.NoError(h.result(done))
			h.assertNoFatal()

			assert.Equal(resharding.DonorDone, m.DonorContext().State)
			assert.True(h.store.HasCollection(sourceNss))
			assert.True(h.donorRecordRemoved())

			h.assertHistory(resharding.DonorUnused)
		})
	}
}

func TestDonorStepdownAndResume(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := newHarness(t, true)

	stepdownCtx, stepdown := context.WithCancelCause(ctx)
	m := h.newMachine(h.doc)
	done := h.run(stepdownCtx, m)

	h.waitState(m, resharding.DonorDonatingInitialData)
	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorApplying)))
	h.waitState(m, resharding.DonorDonatingOplogEntries)

	stepdown(donor.ErrSteppedDown)
	err := h.result(done)
	assert.ErrorIs(err, donor.ErrSteppedDown)
	m.Interrupt(err)
	h.assertNoFatal()

	_, err = m.Completion().Wait(ctx)
	assert.ErrorIs(err, donor.ErrSteppedDown)
	assert.True(h.store.HasCollection(sourceNss))

	persisted := h.persisted()
	assert.Equal(resharding.DonorDonatingOplogEntries, persisted.MutableState.State)
	assert.Equal(*m.DonorContext().MinFetchTimestamp, *persisted.MutableState.MinFetchTimestamp)

	resumed := h.newMachine(persisted)
	done = h.run(ctx, resumed)

	require.NoError(t, resumed.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorBlockingWrites)))
	h.waitState(resumed, resharding.DonorBlockingWrites)
	require.NoError(t, resumed.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorDecisionPersisted)))
	assert.NoError(h.result(done))
	h.assertNoFatal()

	assert.Equal(resharding.DonorDone, resumed.DonorContext().State)
	assert.False(h.store.HasCollection(sourceNss))
	assert.True(h.donorRecordRemoved())
	assert.Len(h.barrierEntries(), len(recipients))
	assert.Len(h.store.Log().Find(func(e *oplog.Entry) bool {
		return e.Nss == oplog.ForceBatchBoundaryNss
	}), 1)

	h.assertHistory(resharding.DonorUnused)
}

func TestDonorAbortBeforeRun(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := newHarness(t, true)

	m := h.newMachine(h.doc)
	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.abortFields()))
	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.abortFields()))

	assert.NoError(h.result(h.run(ctx, m)))
	h.assertNoFatal()

	assert.Equal(resharding.DonorDone, m.DonorContext().State)
	assert.Nil(m.DonorContext().MinFetchTimestamp)
	assert.True(h.store.HasCollection(sourceNss))
	assert.True(h.donorRecordRemoved())
	assert.Equal(qdb.DonorDone, h.coordinatorEntryState())

	h.assertHistory(resharding.DonorUnused)
}

func TestDonorIgnoresAbortAfterCommitDecision(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := newHarness(t, true)

	require.NoError(t, icp.DefineICP(icp.RemoveDonorDocCP, icp.ActionPause))
	defer icp.ResetICP(icp.RemoveDonorDocCP)
	reached := icp.Reached(icp.RemoveDonorDocCP)

	m := h.newMachine(h.doc)
	done := h.run(ctx, m)

	h.waitState(m, resharding.DonorDonatingInitialData)
	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorDecisionPersisted)))

	select {
	case <-reached:
	case <-time.After(waitTimeout):
		t.Fatal("donor never reached record removal")
	}
	assert.Equal(resharding.DonorDone, m.DonorContext().State)
	assert.False(h.donorRecordRemoved())

	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.abortFields()))
	icp.ResetICP(icp.RemoveDonorDocCP)

	assert.NoError(h.result(done))
	h.assertNoFatal()
	assert.False(h.store.HasCollection(sourceNss))
	assert.True(h.donorRecordRemoved())
	_, err := m.Completion().Wait(ctx)
	assert.NoError(err)
}

func TestDonorFailsBeforePreparingToMirror(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := newHarness(t, true)

	require.NoError(t, icp.DefineICP(icp.DonorFailsBeforePreparingToMirrorCP, icp.ActionFail))
	defer icp.ResetICP(icp.DonorFailsBeforePreparingToMirrorCP)

	m := h.newMachine(h.doc)
	done := h.run(ctx, m)

	h.waitState(m, resharding.DonorDonatingInitialData)
	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorApplying)))
	h.waitState(m, resharding.DonorError)
	require.NotNil(t, m.DonorContext().AbortReason)
	assert.Equal(spqrerror.SPQR_UNEXPECTED, m.DonorContext().AbortReason.Code)

	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.abortFields()))
	assert.NoError(h.result(done))
	h.assertNoFatal()
	assert.True(h.store.HasCollection(sourceNss))

	h.assertHistory(resharding.DonorUnused)
}

// flakyStore fails the barrier write of one recipient once with a
// transient error.
type flakyStore struct {
	*shardstore.MemStore

	recipient string
	failed    bool
}

func (s *flakyStore) WriteNoop(ctx context.Context, entry *oplog.Entry, lockNss resharding.Namespace) (oplog.Timestamp, error) {
	if entry.IsFinalOp() && entry.DestinedRecipient == s.recipient && !s.failed {
		s.failed = true
		return oplog.NullTimestamp, spqrerror.New(spqrerror.SPQR_NETWORK_ERROR, "connection reset by peer")
	}
	return s.MemStore.WriteNoop(ctx, entry, lockNss)
}

func TestDonorBarrierRetryWritesEachRecipientOnce(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := newHarness(t, true)

	deps := h.deps()
	deps.Store = &flakyStore{MemStore: h.store, recipient: "sh3"}
	m, err := donor.NewDonorStateMachine(h.doc, deps)
	require.NoError(t, err)
	done := h.run(ctx, m)

	h.waitState(m, resharding.DonorDonatingInitialData)
	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorBlockingWrites)))
	h.waitState(m, resharding.DonorBlockingWrites)
	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorDecisionPersisted)))
	assert.NoError(h.result(done))
	h.assertNoFatal()

	barriers := h.barrierEntries()
	require.Len(t, barriers, len(recipients))
	assert.Equal("sh2", barriers[0].DestinedRecipient)
	assert.Equal("sh3", barriers[1].DestinedRecipient)
	assert.Equal(int64(len(recipients)), m.Statistics().BarrierEntries())

	h.assertHistory(resharding.DonorUnused)
}

func TestDonorPointOfNoReturn(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := newHarness(t, false)

	ctrl := gomock.NewController(t)
	ext := mock.NewMockExternalState(ctrl)
	ext.EXPECT().MyShardID().Return(shardID).AnyTimes()
	ext.EXPECT().UpdateCoordinatorDocument(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(false, spqrerror.New(spqrerror.SPQR_UNEXPECTED, "coordinator document is corrupted")).
		Times(1)

	ts := oplog.Timestamp(42)
	size := int64(0)
	doc := *h.doc
	doc.MutableState = resharding.DonorShardContext{
		State:             resharding.DonorBlockingWrites,
		MinFetchTimestamp: &ts,
		BytesToClone:      &size,
		DocumentsToClone:  &size,
	}
	require.NoError(t, h.db.InsertDonorDocument(ctx, resharding.DonorDocumentToDB(&doc)))

	deps := h.deps()
	deps.External = ext
	m, err := donor.NewDonorStateMachine(&doc, deps)
	require.NoError(t, err)

	assert.Error(h.result(h.run(ctx, m)))

	select {
	case err := <-h.fatal:
		assert.Equal(spqrerror.SPQR_UNEXPECTED, spqrerror.Code(err))
	default:
		t.Fatal("fatal handler was not called")
	}
	assert.Equal(resharding.DonorBlockingWrites, m.DonorContext().State)
	assert.Equal(resharding.DonorBlockingWrites, h.persisted().MutableState.State)
	assert.Empty(h.db.history())
}

func TestDonorRetriesTransientRefreshFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	inner := donor.NewExternalState(shardID, h.cache, h.db)

	ctrl := gomock.NewController(t)
	ext := mock.NewMockExternalState(ctrl)
	ext.EXPECT().MyShardID().Return(shardID).AnyTimes()
	gomock.InOrder(
		ext.EXPECT().RefreshCatalogCache(gomock.Any(), tempNss).
			Return(spqrerror.New(spqrerror.SPQR_NETWORK_ERROR, "connection reset by peer")),
		ext.EXPECT().RefreshCatalogCache(gomock.Any(), tempNss).
			DoAndReturn(inner.RefreshCatalogCache),
	)
	ext.EXPECT().WaitForCollectionFlush(gomock.Any(), tempNss).
		DoAndReturn(inner.WaitForCollectionFlush)
	ext.EXPECT().UpdateCoordinatorDocument(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(inner.UpdateCoordinatorDocument).
		AnyTimes()

	deps := h.deps()
	deps.External = ext
	m, err := donor.NewDonorStateMachine(h.doc, deps)
	require.NoError(t, err)

	stepdownCtx, stepdown := context.WithCancelCause(ctx)
	done := h.run(stepdownCtx, m)
	h.waitState(m, resharding.DonorDonatingInitialData)
	h.waitCoordinatorEntry(qdb.DonorDonatingInitialData)

	stepdown(donor.ErrSteppedDown)
	assert.ErrorIs(t, h.result(done), donor.ErrSteppedDown)
	h.assertNoFatal()
}

func TestNewDonorStateMachineValidates(t *testing.T) {
	h := newHarness(t, false)

	doc := *h.doc
	ts := oplog.Timestamp(1)
	doc.MutableState = resharding.DonorShardContext{
		State:             resharding.DonorDonatingInitialData,
		MinFetchTimestamp: &ts,
	}
	_, err := donor.NewDonorStateMachine(&doc, h.deps())
	assert.Equal(t, spqrerror.SPQR_INVARIANT_VIOLATION, spqrerror.Code(err))

	doc = *h.doc
	doc.RecipientShards = nil
	_, err = donor.NewDonorStateMachine(&doc, h.deps())
	assert.Equal(t, spqrerror.SPQR_INVALID_REQUEST, spqrerror.Code(err))
}

func TestReportForCurrentOp(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := newHarness(t, true)

	m := h.newMachine(h.doc)
	r := m.ReportForCurrentOp()
	assert.Equal("ReshardingDonorService "+h.id(), r.Desc)
	assert.Equal("Donor", r.Role)
	assert.Equal(sourceNss.String(), r.Namespace)
	assert.Equal("{id: identity}", r.ShardKey)
	assert.Equal("unused", r.DonorState)
	assert.Empty(r.MinFetchTimestamp)
	assert.Nil(r.BarrierLatency)

	done := h.run(ctx, m)
	h.waitState(m, resharding.DonorDonatingInitialData)
	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorBlockingWrites)))
	h.waitState(m, resharding.DonorBlockingWrites)

	r = m.ReportForCurrentOp()
	assert.Equal("blocking-writes", r.DonorState)
	assert.NotEmpty(r.MinFetchTimestamp)
	assert.Equal(int64(len(recipients)), r.BarrierEntries)
	assert.Len(r.BarrierLatency, 3)
	assert.GreaterOrEqual(r.CoordinatorUpdates, int64(1))

	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorDecisionPersisted)))
	assert.NoError(h.result(done))
}

func TestDonorWaitsForMajorityBeforeReportingToCoordinator(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := newHarness(t, true)

	h.store.HoldMajority()
	m := h.newMachine(h.doc)
	done := h.run(ctx, m)

	h.waitState(m, resharding.DonorDonatingInitialData)
	assert.Never(func() bool {
		return h.coordinatorEntryState() != qdb.DonorUnused
	}, 100*time.Millisecond, time.Millisecond)

	h.store.ReleaseMajority()
	h.waitCoordinatorEntry(qdb.DonorDonatingInitialData)

	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.abortFields()))
	assert.NoError(h.result(done))
	h.assertNoFatal()
	assert.Equal(qdb.DonorDone, h.coordinatorEntryState())
}

func TestDonorResumeDoesNotRewriteBarriers(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := newHarness(t, false)

	/* sh2 got its barrier before the restart */
	ts, err := h.store.WriteNoop(ctx, oplog.NewFinalOpEntry(
		sourceNss.String(), h.doc.SourceUUID.String(), h.id(), "sh2", time.Now()), resharding.Namespace{})
	require.NoError(t, err)

	fetch := oplog.Timestamp(1)
	size := int64(0)
	doc := *h.doc
	doc.MutableState = resharding.DonorShardContext{
		State:             resharding.DonorPreparingToBlockWrites,
		MinFetchTimestamp: &fetch,
		BytesToClone:      &size,
		DocumentsToClone:  &size,
	}
	require.NoError(t, h.db.InsertDonorDocument(ctx, resharding.DonorDocumentToDB(&doc)))

	m := h.newMachine(&doc)
	done := h.run(ctx, m)
	h.waitState(m, resharding.DonorBlockingWrites)

	barriers := h.barrierEntries()
	require.Len(t, barriers, len(recipients))
	assert.Equal("sh2", barriers[0].DestinedRecipient)
	assert.Equal(ts, barriers[0].Timestamp)
	assert.Equal("sh3", barriers[1].DestinedRecipient)
	assert.Equal(int64(1), m.Statistics().BarrierEntries())

	require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorDecisionPersisted)))
	assert.NoError(h.result(done))
	h.assertNoFatal()
	assert.Len(h.barrierEntries(), len(recipients))

	h.assertHistory(resharding.DonorPreparingToBlockWrites)
}

func TestDonorResumeFromPersistedState(t *testing.T) {
	for _, tt := range []struct {
		name     string
		state    resharding.DonorState
		snapshot bool
		fields   func(h *harness) *resharding.CoordinatorFields
		dropped  bool
		barriers int
	}{
		{
			name:  "error",
			state: resharding.DonorError,
			fields: func(h *harness) *resharding.CoordinatorFields {
				return h.abortFields()
			},
		},
		{
			name:  "done",
			state: resharding.DonorDone,
		},
		{
			name:     "blocking writes",
			state:    resharding.DonorBlockingWrites,
			snapshot: true,
			fields: func(h *harness) *resharding.CoordinatorFields {
				return h.fields(resharding.CoordinatorDecisionPersisted)
			},
			dropped: true,
		},
		{
			name:     "preparing to block writes",
			state:    resharding.DonorPreparingToBlockWrites,
			snapshot: true,
			fields: func(h *harness) *resharding.CoordinatorFields {
				return h.fields(resharding.CoordinatorDecisionPersisted)
			},
			dropped:  true,
			barriers: len(recipients),
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			ctx := context.Background()
			h := newHarness(t, false)

			doc := *h.doc
			doc.MutableState = resharding.DonorShardContext{State: tt.state}
			if tt.snapshot {
				ts := oplog.Timestamp(1)
				size := int64(0)
				doc.MutableState.MinFetchTimestamp = &ts
				doc.MutableState.BytesToClone = &size
				doc.MutableState.DocumentsToClone = &size
			}
			if tt.state == resharding.DonorError {
				doc.MutableState.AbortReason = &spqrerror.AbortReason{
					Code:    spqrerror.SPQR_UNEXPECTED,
					Message: "failed before restart",
				}
			}
			require.NoError(t, h.db.InsertDonorDocument(ctx, resharding.DonorDocumentToDB(&doc)))

			m := h.newMachine(&doc)
			done := h.run(ctx, m)
			if tt.fields != nil {
				require.NoError(t, m.OnCoordinatorFieldsChanged(ctx, tt.fields(h)))
			}
			assert.NoError(h.result(done))
			h.assertNoFatal()

			assert.Equal(resharding.DonorDone, m.DonorContext().State)
			assert.Equal(!tt.dropped, h.store.HasCollection(sourceNss))
			assert.True(h.donorRecordRemoved())
			assert.Equal(qdb.DonorDone, h.coordinatorEntryState())
			assert.Len(h.barrierEntries(), tt.barriers)

			h.assertHistory(tt.state)
		})
	}
}
