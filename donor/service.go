package donor

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/pg-sharding/reshard/pkg/models/resharding"
	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/pkg/spqrlog"
	"github.com/pg-sharding/reshard/qdb"
)

var ErrSteppedDown = spqrerror.New(spqrerror.SPQR_NOT_PRIMARY, "donor service stepped down")

type instance struct {
	m    *DonorStateMachine
	done chan struct{}
	err  error
}

// Service owns the donor state machines of this shard. An instance is
// released only once its run returned and its completion is fulfilled.
type Service struct {
	deps    Deps
	coordDB qdb.CoordinatorQDB

	running atomic.Bool

	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelCauseFunc
	instances map[string]*instance
	wg        sync.WaitGroup
}

func NewService(deps Deps, coordDB qdb.CoordinatorQDB) *Service {
	deps.applyDefaults()
	return &Service{
		deps:      deps,
		coordDB:   coordDB,
		instances: map[string]*instance{},
	}
}

func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// StepUp resumes every operation persisted on this shard. ctx bounds the
// lifetime of the resumed state machines.
func (s *Service) StepUp(ctx context.Context) error {
	s.mu.Lock()
	if s.running.Load() {
		s.mu.Unlock()
		return spqrerror.New(spqrerror.SPQR_INVALID_REQUEST, "donor service is already running")
	}
	s.ctx, s.cancel = context.WithCancelCause(ctx)
	s.running.Store(true)
	s.mu.Unlock()

	docs, err := s.deps.DB.ListDonorDocuments(ctx)
	if err != nil {
		return err
	}
	spqrlog.Zero.Info().Int("operations", len(docs)).Msg("donor service stepping up")

	resumed := make([]*DonorStateMachine, 0, len(docs))
	for _, doc := range docs {
		d, err := resharding.DonorDocumentFromDB(doc)
		if err != nil {
			return err
		}
		m, err := s.launch(d)
		if err != nil {
			return err
		}
		resumed = append(resumed, m)
	}

	/* Coordinator broadcasts missed while no instance existed. */
	g, gctx := errgroup.WithContext(ctx)
	for _, m := range resumed {
		g.Go(func() error {
			doc, err := s.coordDB.GetCoordinatorDocument(gctx, m.ID())
			if err != nil {
				if spqrerror.Code(err) == spqrerror.SPQR_NO_SUCH_OPERATION {
					return nil
				}
				return err
			}
			fields, err := resharding.CoordinatorFieldsFromDB(doc)
			if err != nil {
				return err
			}
			return m.OnCoordinatorFieldsChanged(gctx, fields)
		})
	}
	return g.Wait()
}

// StartOperation persists a new donor record and runs its state machine.
func (s *Service) StartOperation(ctx context.Context, doc *resharding.DonorDocument) (*DonorStateMachine, error) {
	if !s.running.Load() {
		return nil, ErrSteppedDown
	}
	if err := s.deps.DB.InsertDonorDocument(ctx, resharding.DonorDocumentToDB(doc)); err != nil {
		return nil, err
	}
	spqrlog.Zero.Info().
		Str("resharding-uuid", doc.ReshardingUUID.String()).
		Str("namespace", doc.SourceNss.String()).
		Strs("recipients", doc.RecipientShards).
		Msg("starting resharding donor")
	return s.launch(doc)
}

func (s *Service) launch(doc *resharding.DonorDocument) (*DonorStateMachine, error) {
	m, err := NewDonorStateMachine(doc, s.deps)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return nil, ErrSteppedDown
	}
	if _, ok := s.instances[m.ID()]; ok {
		return nil, spqrerror.Newf(spqrerror.SPQR_OPERATION_EXISTS,
			"resharding donor %s is already running", m.ID())
	}
	inst := &instance{m: m, done: make(chan struct{})}
	s.instances[m.ID()] = inst

	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(inst.done)

		err := m.Run(ctx)
		if err != nil {
			m.Interrupt(err)
		}
		<-m.Completion().Done()
		_, _, inst.err = m.Completion().Get()
		if err != nil {
			inst.err = err
		}

		s.mu.Lock()
		if cur, ok := s.instances[m.ID()]; ok && cur == inst {
			delete(s.instances, m.ID())
		}
		s.mu.Unlock()

		spqrlog.Zero.Debug().
			Err(inst.err).
			Str("resharding-uuid", m.ID()).
			Msg("released resharding donor")
	}()
	return m, nil
}

// StepDown cancels every running state machine and waits for them to exit.
// Persisted records stay in place for the next StepUp.
func (s *Service) StepDown(reason error) {
	if reason == nil {
		reason = ErrSteppedDown
	}

	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		return
	}
	s.running.Store(false)
	s.cancel(reason)
	for _, inst := range s.instances {
		inst.m.Interrupt(reason)
	}
	s.mu.Unlock()

	s.wg.Wait()
	spqrlog.Zero.Info().Err(reason).Msg("donor service stepped down")
}

func (s *Service) Lookup(id string) (*DonorStateMachine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, false
	}
	return inst.m, true
}

// Wait blocks until the operation id is released and returns the result
// of its completion.
func (s *Service) Wait(ctx context.Context, id string) error {
	s.mu.Lock()
	inst, ok := s.instances[id]
	s.mu.Unlock()
	if !ok {
		return spqrerror.Newf(spqrerror.SPQR_NO_SUCH_OPERATION, "no resharding donor %s", id)
	}

	select {
	case <-inst.done:
		return inst.err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// OnCoordinatorFieldsChanged routes a coordinator broadcast to its state machine.
func (s *Service) OnCoordinatorFieldsChanged(ctx context.Context, fields *resharding.CoordinatorFields) error {
	m, ok := s.Lookup(fields.ReshardingUUID.String())
	if !ok {
		spqrlog.Zero.Debug().
			Str("resharding-uuid", fields.ReshardingUUID.String()).
			Str("state", fields.State.String()).
			Msg("no resharding donor for coordinator update")
		return nil
	}
	return m.OnCoordinatorFieldsChanged(ctx, fields)
}

// maybeStartFromCoordinator creates the donor record of an operation the
// coordinator is preparing, if this shard is one of its donors.
func (s *Service) maybeStartFromCoordinator(ctx context.Context, doc *qdb.CoordinatorDocument) error {
	if doc.State != qdb.CoordinatorPreparingToDonate || doc.AbortReason != nil {
		return nil
	}
	shardID := s.deps.External.MyShardID()
	isDonor := false
	for _, d := range doc.DonorShards {
		if d.ShardID == shardID && d.MutableState.State == qdb.DonorUnused {
			isDonor = true
		}
	}
	if !isDonor {
		return nil
	}
	if _, ok := s.Lookup(doc.ReshardingUUID); ok {
		return nil
	}

	d, err := resharding.DonorDocumentFromDB(&qdb.DonorDocument{
		ReshardingUUID:    doc.ReshardingUUID,
		SourceNss:         doc.SourceNss,
		SourceUUID:        doc.SourceUUID,
		TempReshardingNss: doc.TempReshardingNss,
		ReshardingKey:     doc.ReshardingKey,
		RecipientShards:   doc.RecipientShards,
		MutableState:      qdb.DonorMutableState{State: qdb.DonorUnused},
	})
	if err != nil {
		return err
	}
	_, err = s.StartOperation(ctx, d)
	if spqrerror.Code(err) == spqrerror.SPQR_OPERATION_EXISTS {
		return nil
	}
	return err
}

// maybeReleaseCriticalSection releases the critical section of a finished
// operation. The section outlives the state machine, which is released once
// its record is removed.
func (s *Service) maybeReleaseCriticalSection(ctx context.Context, doc *qdb.CoordinatorDocument) {
	if doc.State != qdb.CoordinatorDone && doc.AbortReason == nil {
		return
	}
	if _, ok := s.Lookup(doc.ReshardingUUID); ok {
		return
	}
	shardID := s.deps.External.MyShardID()
	isDonor := false
	for _, d := range doc.DonorShards {
		if d.ShardID == shardID {
			isDonor = true
		}
	}
	if !isDonor {
		return
	}

	nss, err := resharding.ParseNamespace(doc.SourceNss)
	if err != nil {
		spqrlog.Zero.Error().Err(err).Str("resharding-uuid", doc.ReshardingUUID).Msg("")
		return
	}
	if err := s.deps.Store.ReleaseCriticalSection(ctx, nss); err != nil {
		spqrlog.Zero.Error().
			Err(err).
			Str("resharding-uuid", doc.ReshardingUUID).
			Str("namespace", nss.String()).
			Msg("failed to release critical section")
	}
}

// WatchCoordinator feeds coordinator document changes to the state
// machines until ctx is done.
func (s *Service) WatchCoordinator(ctx context.Context) error {
	ch, err := s.coordDB.WatchCoordinatorDocuments(ctx)
	if err != nil {
		return err
	}
	for doc := range ch {
		if err := s.maybeStartFromCoordinator(ctx, doc); err != nil {
			spqrlog.Zero.Error().
				Err(err).
				Str("resharding-uuid", doc.ReshardingUUID).
				Msg("failed to start resharding donor")
			continue
		}
		fields, err := resharding.CoordinatorFieldsFromDB(doc)
		if err != nil {
			spqrlog.Zero.Error().Err(err).Str("resharding-uuid", doc.ReshardingUUID).Msg("")
			continue
		}
		if err := s.OnCoordinatorFieldsChanged(ctx, fields); err != nil {
			spqrlog.Zero.Error().
				Err(err).
				Str("resharding-uuid", doc.ReshardingUUID).
				Msg("failed to apply coordinator update")
		}
		s.maybeReleaseCriticalSection(ctx, doc)
	}
	if ctx.Err() == nil {
		return spqrerror.New(spqrerror.SPQR_NETWORK_ERROR, "coordinator watch closed")
	}
	return context.Cause(ctx)
}

// Serve steps up, follows the coordinator until ctx is done, then steps down.
func (s *Service) Serve(ctx context.Context) error {
	if err := s.StepUp(ctx); err != nil {
		s.StepDown(err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.WatchCoordinator(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.StepDown(context.Cause(gctx))
		return nil
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Service) ReportForCurrentOp() []*CurrentOpReport {
	s.mu.Lock()
	ms := make([]*DonorStateMachine, 0, len(s.instances))
	for _, inst := range s.instances {
		ms = append(ms, inst.m)
	}
	s.mu.Unlock()

	sort.Slice(ms, func(i, j int) bool {
		return ms[i].ID() < ms[j].ID()
	})
	res := make([]*CurrentOpReport, len(ms))
	for i, m := range ms {
		res[i] = m.ReportForCurrentOp()
	}
	return res
}
