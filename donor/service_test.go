package donor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pg-sharding/reshard/donor"
	"github.com/pg-sharding/reshard/pkg/models/resharding"
	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/qdb"
)

// watchedDB signals once the coordinator watch is registered.
type watchedDB struct {
	*recordingDB

	once     sync.Once
	watching chan struct{}
}

func (w *watchedDB) WatchCoordinatorDocuments(ctx context.Context) (<-chan *qdb.CoordinatorDocument, error) {
	ch, err := w.recordingDB.WatchCoordinatorDocuments(ctx)
	w.once.Do(func() {
		close(w.watching)
	})
	return ch, err
}

func (h *harness) serve(svc *donor.Service, db *watchedDB) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() {
		ch <- svc.Serve(ctx)
	}()

	select {
	case <-db.watching:
	case <-time.After(waitTimeout):
		h.t.Fatal("coordinator watch was not started")
	}
	return cancel, ch
}

func (h *harness) waitReleased(svc *donor.Service) {
	require.Eventually(h.t, func() bool {
		_, ok := svc.Lookup(h.id())
		return !ok
	}, waitTimeout, time.Millisecond, "donor was never released")
}

func TestServiceFollowsCoordinator(t *testing.T) {
	assert := assert.New(t)
	h := newHarness(t, false)
	db := &watchedDB{recordingDB: h.db, watching: make(chan struct{})}

	svc := donor.NewService(h.deps(), db)
	cancel, served := h.serve(svc, db)
	assert.True(svc.IsRunning())

	/* the coordinator broadcast creates the donor record */
	h.setCoordinatorState(qdb.CoordinatorPreparingToDonate, nil)
	h.waitCoordinatorEntry(qdb.DonorDonatingInitialData)
	m, ok := svc.Lookup(h.id())
	require.True(t, ok)
	assert.Equal(resharding.DonorDonatingInitialData, h.persisted().MutableState.State)

	h.setCoordinatorState(qdb.CoordinatorApplying, nil)
	h.waitState(m, resharding.DonorDonatingOplogEntries)

	h.setCoordinatorState(qdb.CoordinatorBlockingWrites, nil)
	h.waitCoordinatorEntry(qdb.DonorBlockingWrites)
	assert.True(h.store.InCriticalSection(sourceNss))

	h.setCoordinatorState(qdb.CoordinatorDecisionPersisted, nil)
	h.waitCoordinatorEntry(qdb.DonorDone)
	h.waitReleased(svc)

	assert.False(h.store.HasCollection(sourceNss))
	assert.True(h.donorRecordRemoved())
	assert.True(h.store.InCriticalSection(sourceNss))

	h.setCoordinatorState(qdb.CoordinatorDone, nil)
	require.Eventually(t, func() bool {
		return !h.store.InCriticalSection(sourceNss)
	}, waitTimeout, time.Millisecond)

	cancel()
	select {
	case err := <-served:
		assert.NoError(err)
	case <-time.After(waitTimeout):
		t.Fatal("service did not stop")
	}
	assert.False(svc.IsRunning())

	h.assertNoFatal()
	h.assertHistory(resharding.DonorUnused)
}

func TestServiceIgnoresOtherShards(t *testing.T) {
	h := newHarness(t, false)
	db := &watchedDB{recordingDB: h.db, watching: make(chan struct{})}

	deps := h.deps()
	deps.External = donor.NewExternalState("sh9", h.cache, h.db)
	svc := donor.NewService(deps, db)
	cancel, served := h.serve(svc, db)
	defer func() {
		cancel()
		<-served
	}()

	h.setCoordinatorState(qdb.CoordinatorPreparingToDonate, nil)
	h.setCoordinatorState(qdb.CoordinatorCloning, nil)

	assert.Never(t, func() bool {
		return len(svc.ReportForCurrentOp()) > 0
	}, 100*time.Millisecond, time.Millisecond)
	assert.True(t, h.donorRecordRemoved())
}

func TestServiceStepDownAndStepUp(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := newHarness(t, true)

	svc := donor.NewService(h.deps(), h.db)
	require.NoError(t, svc.StepUp(ctx))
	assert.Error(svc.StepUp(ctx))

	m, ok := svc.Lookup(h.id())
	require.True(t, ok)
	h.waitState(m, resharding.DonorDonatingInitialData)
	h.waitCoordinatorEntry(qdb.DonorDonatingInitialData)

	require.NoError(t, svc.OnCoordinatorFieldsChanged(ctx, h.fields(resharding.CoordinatorApplying)))
	h.waitState(m, resharding.DonorDonatingOplogEntries)

	svc.StepDown(nil)
	assert.False(svc.IsRunning())
	_, ok = svc.Lookup(h.id())
	assert.False(ok)
	_, err := m.Completion().Wait(ctx)
	assert.ErrorIs(err, donor.ErrSteppedDown)
	assert.Equal(resharding.DonorDonatingOplogEntries, h.persisted().MutableState.State)

	_, err = svc.StartOperation(ctx, h.doc)
	assert.ErrorIs(err, donor.ErrSteppedDown)

	/* the new primary learns the coordinator state missed while it was down */
	h.setCoordinatorState(qdb.CoordinatorApplying, nil)
	successor := donor.NewService(h.deps(), h.db)
	require.NoError(t, successor.StepUp(ctx))

	resumed, ok := successor.Lookup(h.id())
	require.True(t, ok)
	assert.Equal(resharding.DonorDonatingOplogEntries, resumed.DonorContext().State)
	assert.Equal(*m.DonorContext().MinFetchTimestamp, *resumed.DonorContext().MinFetchTimestamp)

	require.NoError(t, successor.OnCoordinatorFieldsChanged(ctx, h.abortFields()))
	_, err = resumed.Completion().Wait(ctx)
	assert.Equal(spqrerror.SPQR_RESHARDING_ABORTED, spqrerror.Code(err))

	h.waitReleased(successor)
	assert.Equal(spqrerror.SPQR_NO_SUCH_OPERATION, spqrerror.Code(successor.Wait(ctx, h.id())))
	assert.True(h.store.HasCollection(sourceNss))
	assert.True(h.donorRecordRemoved())
	assert.Equal(qdb.DonorDone, h.coordinatorEntryState())

	successor.StepDown(nil)
	h.assertNoFatal()
	h.assertHistory(resharding.DonorUnused)
}

func TestServiceStartOperation(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	h := newHarness(t, false)

	svc := donor.NewService(h.deps(), h.db)
	_, err := svc.StartOperation(ctx, h.doc)
	assert.ErrorIs(err, donor.ErrSteppedDown)

	require.NoError(t, svc.StepUp(ctx))
	defer svc.StepDown(nil)

	m, err := svc.StartOperation(ctx, h.doc)
	require.NoError(t, err)
	_, err = svc.StartOperation(ctx, h.doc)
	assert.Equal(spqrerror.SPQR_OPERATION_EXISTS, spqrerror.Code(err))

	reports := svc.ReportForCurrentOp()
	require.Len(t, reports, 1)
	assert.Equal(h.id(), reports[0].ReshardingUUID)
	assert.Equal("Donor", reports[0].Role)

	h.waitState(m, resharding.DonorDonatingInitialData)

	waited := make(chan error, 1)
	go func() {
		waited <- svc.Wait(ctx, h.id())
	}()
	/* Wait must observe the instance before it is released */
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, svc.OnCoordinatorFieldsChanged(ctx, h.abortFields()))
	select {
	case err := <-waited:
		assert.Equal(spqrerror.SPQR_RESHARDING_ABORTED, spqrerror.Code(err))
	case <-time.After(waitTimeout):
		t.Fatal("wait did not return")
	}

	h.waitReleased(svc)
	assert.Empty(svc.ReportForCurrentOp())
	h.assertNoFatal()
}
