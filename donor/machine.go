package donor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pg-sharding/reshard/pkg/catalog"
	"github.com/pg-sharding/reshard/pkg/config"
	"github.com/pg-sharding/reshard/pkg/icp"
	"github.com/pg-sharding/reshard/pkg/models/resharding"
	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/pkg/oplog"
	"github.com/pg-sharding/reshard/pkg/promise"
	"github.com/pg-sharding/reshard/pkg/shardstore"
	"github.com/pg-sharding/reshard/pkg/spqrlog"
	"github.com/pg-sharding/reshard/pkg/statistics"
	"github.com/pg-sharding/reshard/qdb"
)

// Deps are the collaborators of a donor state machine.
type Deps struct {
	DB       qdb.DonorQDB
	Store    shardstore.Store
	External ExternalState
	// Cache, when set together with a Store implementing
	// shardstore.WriteAnnotator, is used to annotate user writes with
	// their destined recipient.
	Cache *catalog.Cache

	Retry                   RetryPolicy
	WriteConflictMaxRetries uint64
	LatencyQuantiles        []float64

	// Fatal handles errors that leave the operation with broken invariants.
	// The default terminates the process.
	Fatal func(err error)
}

func defaultFatal(err error) {
	spqrlog.Zero.Fatal().
		Err(err).
		Msg("unrecoverable error occurred past the point donor was prepared to complete the resharding operation")
}

func (d *Deps) applyDefaults() {
	if d.Retry.Base <= 0 {
		d.Retry = DefaultRetryPolicy()
	}
	if d.WriteConflictMaxRetries == 0 {
		d.WriteConflictMaxRetries = config.DefaultWriteConflictMaxRetries
	}
	if len(d.LatencyQuantiles) == 0 {
		d.LatencyQuantiles = []float64{0.5, 0.9, 0.99}
	}
	if d.Fatal == nil {
		d.Fatal = defaultFatal
	}
}

// DonorStateMachine drives one resharding operation on a donor shard from
// its persisted state to Done.
type DonorStateMachine struct {
	deps       Deps
	metadata   resharding.CommonMetadata
	recipients []string
	stats      *Statistics

	// donorCtx is only written by the goroutine executing Run.
	ctxMu    sync.RWMutex
	donorCtx resharding.DonorShardContext

	// barriers holds recipients that already got their final log entry
	// during this run.
	barriers map[string]oplog.Timestamp

	mu          sync.Mutex
	abortReason error
	abortCancel context.CancelCauseFunc

	allRecipientsDoneCloning        *promise.Promise[struct{}]
	allRecipientsDoneApplying       *promise.Promise[struct{}]
	coordinatorHasDecisionPersisted *promise.Promise[struct{}]
	finalOplogEntriesWritten        *promise.Promise[struct{}]
	completion                      *promise.Promise[struct{}]
}

func NewDonorStateMachine(doc *resharding.DonorDocument, deps Deps) (*DonorStateMachine, error) {
	if err := doc.MutableState.Validate(); err != nil {
		return nil, err
	}
	if len(doc.RecipientShards) == 0 {
		return nil, spqrerror.Newf(spqrerror.SPQR_INVALID_REQUEST,
			"resharding operation %s has no recipient shards", doc.ReshardingUUID)
	}
	deps.applyDefaults()

	return &DonorStateMachine{
		deps:       deps,
		metadata:   doc.CommonMetadata,
		recipients: append([]string(nil), doc.RecipientShards...),
		stats:      NewStatistics(deps.LatencyQuantiles),
		donorCtx:   doc.MutableState,
		barriers:   map[string]oplog.Timestamp{},

		allRecipientsDoneCloning:        promise.New[struct{}](),
		allRecipientsDoneApplying:       promise.New[struct{}](),
		coordinatorHasDecisionPersisted: promise.New[struct{}](),
		finalOplogEntriesWritten:        promise.New[struct{}](),
		completion:                      promise.New[struct{}](),
	}, nil
}

func (m *DonorStateMachine) ID() string {
	return m.metadata.ReshardingUUID.String()
}

func (m *DonorStateMachine) Metadata() resharding.CommonMetadata {
	return m.metadata
}

func (m *DonorStateMachine) Statistics() *Statistics {
	return m.stats
}

// DonorContext returns a snapshot of the in-memory donor progress.
func (m *DonorStateMachine) DonorContext() resharding.DonorShardContext {
	m.ctxMu.RLock()
	defer m.ctxMu.RUnlock()
	return m.donorCtx
}

func (m *DonorStateMachine) state() resharding.DonorState {
	return m.DonorContext().State
}

func (m *DonorStateMachine) with(e *zerolog.Event) *zerolog.Event {
	return e.
		Str("resharding-uuid", m.metadata.ReshardingUUID.String()).
		Str("namespace", m.metadata.SourceNss.String())
}

// Run executes the operation until it is finished or stepdownCtx is done.
// After a stepdown the cause of stepdownCtx is returned and the persisted
// state is left for a successor to resume from.
func (m *DonorStateMachine) Run(stepdownCtx context.Context) error {
	statistics.OperationStarted()
	defer statistics.OperationFinished()

	abortCtx, cancel := m.initAbortSource(stepdownCtx)
	defer cancel(context.Canceled)

	err := m.runUntilBlockingWritesOrErrored(abortCtx)
	if err == nil {
		err = m.notifyCoordinatorAndAwaitDecision(abortCtx)
	}

	if stepdownCtx.Err() != nil {
		m.with(spqrlog.Zero.Info()).
			Err(context.Cause(stepdownCtx)).
			Msg("resharding donor interrupted by stepdown")
		return context.Cause(stepdownCtx)
	}
	if err != nil && abortCtx.Err() == nil {
		m.deps.Fatal(err)
		return err
	}

	aborted := abortCtx.Err() != nil
	if err := m.finishReshardingOperation(stepdownCtx, aborted); err != nil {
		if stepdownCtx.Err() != nil {
			return context.Cause(stepdownCtx)
		}
		m.deps.Fatal(err)
		return err
	}
	return nil
}

// initAbortSource derives the abort context. An abort received before
// Run cancels it at once.
func (m *DonorStateMachine) initAbortSource(stepdownCtx context.Context) (context.Context, context.CancelCauseFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	abortCtx, cancel := context.WithCancelCause(stepdownCtx)
	m.abortCancel = cancel

	if _, ok, err := m.coordinatorHasDecisionPersisted.Get(); ok && err != nil {
		cancel(err)
	}
	return abortCtx, cancel
}

func (m *DonorStateMachine) runUntilBlockingWritesOrErrored(abortCtx context.Context) error {
	err := WithAutomaticRetry(abortCtx, m.deps.Retry, func(ctx context.Context) error {
		if err := m.onPreparingToDonateCalculateTimestampThenTransitionToDonatingInitialData(ctx); err != nil {
			return err
		}
		if err := m.awaitAllRecipientsDoneCloningThenTransitionToDonatingOplogEntries(ctx); err != nil {
			return err
		}
		if err := m.awaitAllRecipientsDoneApplyingThenTransitionToPreparingToBlockWrites(ctx); err != nil {
			return err
		}
		return m.writeTransactionOplogEntryThenTransitionToBlockingWrites(ctx)
	})
	if err == nil || abortCtx.Err() != nil {
		return err
	}

	m.with(spqrlog.Zero.Error()).
		Err(err).
		Msg("resharding operation donor state machine failed")

	/* Entering Error recovers from the failure: the coordinator will abort. */
	return WithAutomaticRetry(abortCtx, m.deps.Retry, func(ctx context.Context) error {
		if state := m.state(); state >= resharding.DonorBlockingWrites {
			return spqrerror.Newf(spqrerror.SPQR_INVARIANT_VIOLATION,
				"donor in state %s cannot fail: %s", state, err)
		}
		return m.transitionToError(ctx, err)
	})
}

func inPotentialAbortScenario(state resharding.DonorState) bool {
	return state == resharding.DonorError || state == resharding.DonorDone
}

func (m *DonorStateMachine) onPreparingToDonateCalculateTimestampThenTransitionToDonatingInitialData(ctx context.Context) error {
	donorCtx := m.DonorContext()
	if donorCtx.State > resharding.DonorPreparingToDonate {
		if inPotentialAbortScenario(donorCtx.State) {
			return nil
		}
		if donorCtx.MinFetchTimestamp == nil || donorCtx.BytesToClone == nil || donorCtx.DocumentsToClone == nil {
			return spqrerror.Newf(spqrerror.SPQR_INVARIANT_VIOLATION,
				"donor in state %s has no fetch snapshot", donorCtx.State)
		}
		if donorCtx.State < resharding.DonorBlockingWrites {
			return m.installDestinedRecipientAnnotator(ctx)
		}
		return nil
	}

	var bytesToClone, documentsToClone int64
	stats, err := m.deps.Store.CollectionStats(ctx, m.metadata.SourceNss)
	if err != nil {
		return err
	}
	if stats.Exists {
		if stats.IndexBuildInProgress {
			return spqrerror.Newf(spqrerror.SPQR_INDEX_BUILD_IN_PROGRESS,
				"cannot reshard %s while an index build is in progress", m.metadata.SourceNss)
		}
		bytesToClone = stats.Bytes
		documentsToClone = stats.Documents
	}

	/* Recipients read routing metadata of the temporary namespace at the fetch timestamp. */
	if err := m.deps.External.RefreshCatalogCache(ctx, m.metadata.TempReshardingNss); err != nil {
		return err
	}
	if err := m.deps.External.WaitForCollectionFlush(ctx, m.metadata.TempReshardingNss); err != nil {
		return err
	}
	if err := m.installDestinedRecipientAnnotator(ctx); err != nil {
		return err
	}

	minFetchTimestamp, err := m.generateMinFetchTimestamp(ctx)
	if err != nil {
		return err
	}

	m.with(spqrlog.Zero.Debug()).
		Str("min-fetch-timestamp", minFetchTimestamp.String()).
		Int64("bytes-to-clone", bytesToClone).
		Int64("documents-to-clone", documentsToClone).
		Msg("collection being resharded now ready for recipients to begin cloning")

	return m.transitionToDonatingInitialData(ctx, minFetchTimestamp, bytesToClone, documentsToClone)
}

// generateMinFetchTimestamp writes a no-op entry while holding the source
// collection in shared mode. Every later entry on the source carries its
// destined recipient.
func (m *DonorStateMachine) generateMinFetchTimestamp(ctx context.Context) (oplog.Timestamp, error) {
	var ts oplog.Timestamp
	err := shardstore.WriteConflictRetry(ctx, "resharding donor minFetchTimestamp",
		m.deps.WriteConflictMaxRetries, m.deps.Retry.Base, func(ctx context.Context) error {
			var err error
			entry := oplog.NewForceBatchBoundaryEntry(m.metadata.SourceNss.String(), time.Now())
			ts, err = m.deps.Store.WriteNoop(ctx, entry, m.metadata.SourceNss)
			return err
		})
	if err != nil {
		return oplog.NullTimestamp, err
	}
	if ts.IsNull() {
		return oplog.NullTimestamp, spqrerror.New(spqrerror.SPQR_OPLOG_ERROR,
			"no-op write for the minimum fetch timestamp got a null timestamp")
	}
	return ts, nil
}

func (m *DonorStateMachine) installDestinedRecipientAnnotator(ctx context.Context) error {
	annotator, ok := m.deps.Store.(shardstore.WriteAnnotator)
	if !ok || m.deps.Cache == nil {
		return nil
	}
	if _, ok := m.deps.Cache.Get(m.metadata.TempReshardingNss); !ok {
		if err := m.deps.External.RefreshCatalogCache(ctx, m.metadata.TempReshardingNss); err != nil {
			return err
		}
	}

	cache, tempNss := m.deps.Cache, m.metadata.TempReshardingNss
	annotator.SetDestinedRecipientAnnotator(m.metadata.SourceNss, func(doc map[string]any) (string, error) {
		return catalog.DestinedRecipient(cache, tempNss, doc)
	})
	return nil
}

func (m *DonorStateMachine) clearDestinedRecipientAnnotator() {
	if annotator, ok := m.deps.Store.(shardstore.WriteAnnotator); ok {
		annotator.ClearDestinedRecipientAnnotator(m.metadata.SourceNss)
	}
	if m.deps.Cache != nil {
		m.deps.Cache.Invalidate(m.metadata.TempReshardingNss)
	}
}

func (m *DonorStateMachine) awaitAllRecipientsDoneCloningThenTransitionToDonatingOplogEntries(ctx context.Context) (err error) {
	if m.state() > resharding.DonorDonatingInitialData {
		return nil
	}
	defer func() {
		if err == nil {
			err = icp.CheckControlPoint(ctx, icp.DonorFailsBeforePreparingToMirrorCP)
		}
	}()

	if err := m.updateCoordinator(ctx); err != nil {
		return err
	}
	if _, err := m.allRecipientsDoneCloning.Wait(ctx); err != nil {
		return err
	}
	return m.transitionState(ctx, resharding.DonorDonatingOplogEntries)
}

func (m *DonorStateMachine) awaitAllRecipientsDoneApplyingThenTransitionToPreparingToBlockWrites(ctx context.Context) error {
	if m.state() > resharding.DonorDonatingOplogEntries {
		return nil
	}
	if _, err := m.allRecipientsDoneApplying.Wait(ctx); err != nil {
		return err
	}
	return m.transitionState(ctx, resharding.DonorPreparingToBlockWrites)
}

func (m *DonorStateMachine) writeTransactionOplogEntryThenTransitionToBlockingWrites(ctx context.Context) error {
	if m.state() > resharding.DonorPreparingToBlockWrites {
		return nil
	}

	start := time.Now()
	if err := m.writeFinalOplogEntries(ctx); err != nil {
		m.with(spqrlog.Zero.Error()).
			Err(err).
			Msg("error while writing resharding final oplog entries")
		m.finalOplogEntriesWritten.SetError(err)
		return err
	}

	m.with(spqrlog.Zero.Info()).
		Int("num-recipients", len(m.recipients)).
		Dur("duration", time.Since(start)).
		Msg("committed oplog entries to temporarily block writes for resharding")
	m.finalOplogEntriesWritten.Set(struct{}{})

	return m.transitionState(ctx, resharding.DonorBlockingWrites)
}

// writeFinalOplogEntries writes one barrier entry per recipient, each in
// its own local transaction.
func (m *DonorStateMachine) writeFinalOplogEntries(ctx context.Context) error {
	for _, recipient := range m.recipients {
		if _, ok := m.barriers[recipient]; ok {
			continue
		}
		/* a barrier written before a restart is not written again */
		written, err := m.deps.Store.FinalOpTimestamp(ctx, m.metadata.ReshardingUUID.String(), recipient)
		if err != nil {
			return err
		}
		if !written.IsNull() {
			m.barriers[recipient] = written
			continue
		}
		t := time.Now()
		var ts oplog.Timestamp
		err = shardstore.WriteConflictRetry(ctx, "ReshardingBlockWritesOplog",
			m.deps.WriteConflictMaxRetries, m.deps.Retry.Base, func(ctx context.Context) error {
				entry := oplog.NewFinalOpEntry(
					m.metadata.SourceNss.String(),
					m.metadata.SourceUUID.String(),
					m.metadata.ReshardingUUID.String(),
					recipient,
					time.Now(),
				)
				var err error
				ts, err = m.deps.Store.WriteNoop(ctx, entry, resharding.Namespace{})
				if err != nil {
					return err
				}
				if ts.IsNull() {
					return spqrerror.Newf(spqrerror.SPQR_OPLOG_ERROR,
						"failed to create final oplog entry for recipient %s", recipient)
				}
				return nil
			})
		if err != nil {
			return err
		}
		m.barriers[recipient] = ts
		m.stats.RecordBarrierWrite(time.Since(t))
	}
	return nil
}

func (m *DonorStateMachine) notifyCoordinatorAndAwaitDecision(abortCtx context.Context) error {
	if m.state() == resharding.DonorDone {
		return nil
	}
	if err := WithAutomaticRetry(abortCtx, m.deps.Retry, m.updateCoordinator); err != nil {
		return err
	}
	_, err := m.coordinatorHasDecisionPersisted.Wait(abortCtx)
	return err
}

func (m *DonorStateMachine) finishReshardingOperation(stepdownCtx context.Context, aborted bool) error {
	return WithAutomaticRetry(stepdownCtx, m.deps.Retry, func(ctx context.Context) error {
		if !aborted {
			/* After a failover the donor may already be Done without having told the coordinator. */
			if state := m.state(); state != resharding.DonorBlockingWrites && state != resharding.DonorDone {
				return spqrerror.Newf(spqrerror.SPQR_INVARIANT_VIOLATION,
					"donor cannot commit from state %s", state)
			}
			if err := m.dropOriginalCollectionThenTransitionToDone(ctx); err != nil {
				return err
			}
		} else if m.state() != resharding.DonorDone {
			if err := m.transitionState(ctx, resharding.DonorDone); err != nil {
				return err
			}
		}
		m.clearDestinedRecipientAnnotator()

		if err := m.updateCoordinator(ctx); err != nil {
			return err
		}
		if err := icp.CheckControlPoint(ctx, icp.RemoveDonorDocCP); err != nil {
			return err
		}
		return m.removeDonorDocument(ctx)
	})
}

func (m *DonorStateMachine) dropOriginalCollectionThenTransitionToDone(ctx context.Context) error {
	if m.state() > resharding.DonorBlockingWrites {
		return nil
	}
	err := shardstore.WriteConflictRetry(ctx, "resharding donor drop original collection",
		m.deps.WriteConflictMaxRetries, m.deps.Retry.Base, func(ctx context.Context) error {
			return m.deps.Store.DropCollection(ctx, m.metadata.SourceNss)
		})
	if err != nil {
		return err
	}
	return m.transitionState(ctx, resharding.DonorDone)
}

func (m *DonorStateMachine) removeDonorDocument(ctx context.Context) error {
	return shardstore.WriteConflictRetry(ctx, "resharding donor remove document",
		m.deps.WriteConflictMaxRetries, m.deps.Retry.Base, func(ctx context.Context) error {
			return m.deps.DB.RemoveDonorDocument(ctx, m.ID(), func() {
				m.mu.Lock()
				reason := m.abortReason
				m.mu.Unlock()

				if reason != nil {
					m.completion.SetError(reason)
				} else {
					m.completion.Set(struct{}{})
				}
			})
		})
}

// transitionState moves to a state that carries no new fields.
func (m *DonorStateMachine) transitionState(ctx context.Context, state resharding.DonorState) error {
	if state == resharding.DonorDonatingInitialData || state == resharding.DonorError {
		return spqrerror.Newf(spqrerror.SPQR_INVARIANT_VIOLATION,
			"donor state %s must be entered with its fields", state)
	}
	newCtx := m.DonorContext()
	newCtx.State = state
	return m.transitionTo(ctx, newCtx)
}

func (m *DonorStateMachine) transitionToDonatingInitialData(ctx context.Context, minFetchTimestamp oplog.Timestamp, bytesToClone, documentsToClone int64) error {
	newCtx := m.DonorContext()
	if newCtx.MinFetchTimestamp != nil {
		return spqrerror.Newf(spqrerror.SPQR_INVARIANT_VIOLATION,
			"minimum fetch timestamp is already set to %s", newCtx.MinFetchTimestamp)
	}
	newCtx.State = resharding.DonorDonatingInitialData
	newCtx.MinFetchTimestamp = &minFetchTimestamp
	newCtx.BytesToClone = &bytesToClone
	newCtx.DocumentsToClone = &documentsToClone
	return m.transitionTo(ctx, newCtx)
}

func (m *DonorStateMachine) transitionToError(ctx context.Context, reason error) error {
	newCtx := m.DonorContext()
	newCtx.State = resharding.DonorError
	newCtx.AbortReason = spqrerror.ToAbortReason(reason)
	return m.transitionTo(ctx, newCtx)
}

func (m *DonorStateMachine) transitionTo(ctx context.Context, newCtx resharding.DonorShardContext) error {
	oldState := m.state()
	if err := resharding.CheckDonorTransition(oldState, newCtx.State); err != nil {
		return err
	}
	if err := newCtx.Validate(); err != nil {
		return err
	}
	if err := m.updateDonorDocument(ctx, newCtx); err != nil {
		return err
	}

	m.stats.RecordStateTransition(newCtx.State.String())
	m.with(spqrlog.Zero.Info()).
		Str("new-state", newCtx.State.String()).
		Str("old-state", oldState.String()).
		Str("collection-uuid", m.metadata.SourceUUID.String()).
		Msg("transitioned resharding donor state")
	return nil
}

func (m *DonorStateMachine) updateDonorDocument(ctx context.Context, newCtx resharding.DonorShardContext) error {
	err := shardstore.WriteConflictRetry(ctx, "resharding donor update state",
		m.deps.WriteConflictMaxRetries, m.deps.Retry.Base, func(ctx context.Context) error {
			return m.deps.DB.UpdateDonorMutableState(ctx, m.ID(), resharding.DonorShardContextToDB(&newCtx))
		})
	if err != nil {
		return err
	}

	m.ctxMu.Lock()
	m.donorCtx = newCtx
	m.ctxMu.Unlock()
	return nil
}

var coordinatorPrevStates = map[resharding.DonorState][]resharding.DonorState{
	resharding.DonorDonatingInitialData: {resharding.DonorUnused},
	resharding.DonorError:               {resharding.DonorUnused, resharding.DonorDonatingInitialData},
	resharding.DonorBlockingWrites:      {resharding.DonorDonatingInitialData},
	resharding.DonorDone: {
		resharding.DonorUnused,
		resharding.DonorDonatingInitialData,
		resharding.DonorError,
		resharding.DonorBlockingWrites,
	},
}

// coordinatorUpdateFilter selects this donor's entry only if the
// coordinator saw it in a state that may precede state.
func (m *DonorStateMachine) coordinatorUpdateFilter(state resharding.DonorState) (*qdb.CoordinatorFilter, error) {
	prev, ok := coordinatorPrevStates[state]
	if !ok {
		return nil, spqrerror.Newf(spqrerror.SPQR_INVARIANT_VIOLATION,
			"donor state %s is never reported to the coordinator", state)
	}
	filter := &qdb.CoordinatorFilter{
		ReshardingUUID: m.ID(),
		DonorShardID:   m.deps.External.MyShardID(),
		PrevStates:     make([]qdb.DonorState, len(prev)),
	}
	for i, s := range prev {
		filter.PrevStates[i] = resharding.DonorStateToDB(s)
	}
	return filter, nil
}

// updateCoordinator reports the current donor progress once every local
// write is majority-durable.
func (m *DonorStateMachine) updateCoordinator(ctx context.Context) error {
	lastOp, err := m.deps.Store.LastOpTime(ctx)
	if err != nil {
		return err
	}
	if err := m.deps.Store.WaitForMajority(ctx, lastOp); err != nil {
		return err
	}

	donorCtx := m.DonorContext()
	filter, err := m.coordinatorUpdateFilter(donorCtx.State)
	if err != nil {
		return err
	}
	matched, err := m.deps.External.UpdateCoordinatorDocument(ctx, filter, resharding.DonorShardContextToDB(&donorCtx))
	if err != nil {
		return err
	}
	m.stats.RecordCoordinatorUpdate(matched)
	if !matched {
		m.with(spqrlog.Zero.Debug()).
			Str("state", donorCtx.State.String()).
			Msg("coordinator document did not match donor update")
	}
	return nil
}

// OnCoordinatorFieldsChanged feeds a coordinator broadcast into the state
// machine. Writes to the source are blocked before the donor is told that
// recipients are done applying.
func (m *DonorStateMachine) OnCoordinatorFieldsChanged(ctx context.Context, fields *resharding.CoordinatorFields) error {
	if fields.AbortReason != nil {
		m.onAbortEncountered(ctx, spqrerror.FromAbortReason(fields.AbortReason))
		return nil
	}

	state := fields.State
	if state >= resharding.CoordinatorBlockingWrites && state < resharding.CoordinatorDone {
		err := WithAutomaticRetry(ctx, m.deps.Retry, func(ctx context.Context) error {
			return m.deps.Store.AcquireCriticalSection(ctx, m.metadata.SourceNss,
				oplog.BlockingWritesMessage(m.metadata.SourceNss.String()))
		})
		if err != nil {
			return err
		}
	}

	m.mu.Lock()
	if state >= resharding.CoordinatorApplying {
		m.allRecipientsDoneCloning.Set(struct{}{})
	}
	if state >= resharding.CoordinatorBlockingWrites {
		m.allRecipientsDoneApplying.Set(struct{}{})
	}
	if state >= resharding.CoordinatorDecisionPersisted {
		m.coordinatorHasDecisionPersisted.Set(struct{}{})
	}
	m.mu.Unlock()

	if state >= resharding.CoordinatorDone {
		m.releaseCriticalSection(ctx)
	}
	return nil
}

func (m *DonorStateMachine) onAbortEncountered(ctx context.Context, reason error) {
	m.mu.Lock()
	if _, ok, err := m.coordinatorHasDecisionPersisted.Get(); ok && err == nil {
		m.mu.Unlock()
		m.with(spqrlog.Zero.Error()).
			Err(reason).
			Msg("ignoring abort received after the coordinator persisted its decision to commit")
		return
	}

	m.abortReason = reason
	cancel := m.abortCancel
	if cancel == nil {
		/* Run has not started yet, it will observe the failed decision. */
		m.coordinatorHasDecisionPersisted.SetError(reason)
	}
	m.mu.Unlock()

	if cancel != nil {
		cancel(reason)
	}
	m.releaseCriticalSection(ctx)
}

func (m *DonorStateMachine) releaseCriticalSection(ctx context.Context) {
	if err := m.deps.Store.ReleaseCriticalSection(ctx, m.metadata.SourceNss); err != nil {
		m.with(spqrlog.Zero.Error()).
			Err(err).
			Msg("failed to release critical section")
	}
}

// Interrupt fails any wait on the completion of this operation with err.
func (m *DonorStateMachine) Interrupt(err error) {
	m.completion.SetError(err)
}

// Completion is fulfilled once the donor record is removed, with the abort
// reason if the operation was aborted, or by Interrupt.
func (m *DonorStateMachine) Completion() *promise.Promise[struct{}] {
	return m.completion
}

// FinalOplogEntriesWritten is fulfilled once every recipient got its
// barrier entry, or with the error that prevented it.
func (m *DonorStateMachine) FinalOplogEntriesWritten() *promise.Promise[struct{}] {
	return m.finalOplogEntriesWritten
}
