package qdb

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/pkg/spqrlog"
)

const watchBufferSize = 64

type MemQDB struct {
	mu sync.RWMutex

	Donors       map[string]*DonorDocument       `json:"donors"`
	Coordinators map[string]*CoordinatorDocument `json:"coordinators"`
	Routing      map[string]*RoutingInfo         `json:"routing"`

	backupPath string

	watchMu  sync.Mutex
	watchers map[chan *CoordinatorDocument]context.Context
}

var _ QDB = &MemQDB{}

func NewMemQDB(backupPath string) (*MemQDB, error) {
	return &MemQDB{
		Donors:       map[string]*DonorDocument{},
		Coordinators: map[string]*CoordinatorDocument{},
		Routing:      map[string]*RoutingInfo{},

		backupPath: backupPath,
		watchers:   map[chan *CoordinatorDocument]context.Context{},
	}, nil
}

func RestoreQDB(backupPath string) (*MemQDB, error) {
	qdb, err := NewMemQDB(backupPath)
	if err != nil {
		return nil, err
	}
	if backupPath == "" {
		return qdb, nil
	}
	if _, err := os.Stat(backupPath); err != nil {
		spqrlog.Zero.Info().Err(err).Msg("memqdb backup file not exists. Creating new one.")
		f, err := os.Create(backupPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return qdb, nil
	}
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return qdb, nil
	}
	if err := json.Unmarshal(data, qdb); err != nil {
		return nil, err
	}
	return qdb, nil
}

func (q *MemQDB) DumpState() error {
	if q.backupPath == "" {
		return nil
	}
	tmpPath := q.backupPath + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	state, err := json.MarshalIndent(q, "", "	")
	if err != nil {
		return err
	}

	if _, err = f.Write(state); err != nil {
		return err
	}
	f.Close()

	return os.Rename(tmpPath, q.backupPath)
}

// clone deep-copies a document through its JSON form so callers never share
// memory with the stored value.
func clone[T any](v *T) *T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	var res T
	if err := json.Unmarshal(data, &res); err != nil {
		panic(err)
	}
	return &res
}

// ==============================================================================
//                               DONOR DOCUMENTS
// ==============================================================================

func (q *MemQDB) InsertDonorDocument(_ context.Context, doc *DonorDocument) error {
	spqrlog.Zero.Debug().Str("resharding-uuid", doc.ReshardingUUID).Msg("memqdb: insert donor document")
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.Donors[doc.ReshardingUUID]; ok {
		return spqrerror.Newf(spqrerror.SPQR_OPERATION_EXISTS, "donor document for resharding operation %s already exists", doc.ReshardingUUID)
	}
	return ExecuteCommands(q.DumpState, NewUpdateCommand(q.Donors, doc.ReshardingUUID, clone(doc)))
}

func (q *MemQDB) GetDonorDocument(_ context.Context, reshardingUUID string) (*DonorDocument, error) {
	spqrlog.Zero.Debug().Str("resharding-uuid", reshardingUUID).Msg("memqdb: get donor document")
	q.mu.RLock()
	defer q.mu.RUnlock()

	doc, ok := q.Donors[reshardingUUID]
	if !ok {
		return nil, spqrerror.Newf(spqrerror.SPQR_NO_SUCH_OPERATION, "no donor document for resharding operation %s", reshardingUUID)
	}
	return clone(doc), nil
}

func (q *MemQDB) ListDonorDocuments(_ context.Context) ([]*DonorDocument, error) {
	spqrlog.Zero.Debug().Msg("memqdb: list donor documents")
	q.mu.RLock()
	defer q.mu.RUnlock()

	res := make([]*DonorDocument, 0, len(q.Donors))
	for _, doc := range q.Donors {
		res = append(res, clone(doc))
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ReshardingUUID < res[j].ReshardingUUID
	})
	return res, nil
}

func (q *MemQDB) UpdateDonorMutableState(_ context.Context, reshardingUUID string, state *DonorMutableState) error {
	spqrlog.Zero.Debug().
		Str("resharding-uuid", reshardingUUID).
		Str("state", string(state.State)).
		Msg("memqdb: update donor mutable state")
	q.mu.Lock()
	defer q.mu.Unlock()

	doc, ok := q.Donors[reshardingUUID]
	if !ok {
		return spqrerror.Newf(spqrerror.SPQR_NO_SUCH_OPERATION, "no donor document for resharding operation %s", reshardingUUID)
	}
	updated := clone(doc)
	updated.MutableState = *clone(state)
	return ExecuteCommands(q.DumpState, NewUpdateCommand(q.Donors, reshardingUUID, updated))
}

func (q *MemQDB) RemoveDonorDocument(_ context.Context, reshardingUUID string, onCommit func()) error {
	spqrlog.Zero.Debug().Str("resharding-uuid", reshardingUUID).Msg("memqdb: remove donor document")
	q.mu.Lock()
	err := ExecuteCommands(q.DumpState, NewDeleteCommand(q.Donors, reshardingUUID))
	q.mu.Unlock()

	if err != nil {
		return err
	}
	if onCommit != nil {
		onCommit()
	}
	return nil
}

// ==============================================================================
//                             COORDINATOR DOCUMENTS
// ==============================================================================

func (q *MemQDB) WriteCoordinatorDocument(_ context.Context, doc *CoordinatorDocument) error {
	spqrlog.Zero.Debug().
		Str("resharding-uuid", doc.ReshardingUUID).
		Str("state", string(doc.State)).
		Msg("memqdb: write coordinator document")
	q.mu.Lock()
	stored := clone(doc)
	err := ExecuteCommands(q.DumpState, NewUpdateCommand(q.Coordinators, doc.ReshardingUUID, stored))
	q.mu.Unlock()

	if err != nil {
		return err
	}
	q.notify(stored)
	return nil
}

func (q *MemQDB) GetCoordinatorDocument(_ context.Context, reshardingUUID string) (*CoordinatorDocument, error) {
	spqrlog.Zero.Debug().Str("resharding-uuid", reshardingUUID).Msg("memqdb: get coordinator document")
	q.mu.RLock()
	defer q.mu.RUnlock()

	doc, ok := q.Coordinators[reshardingUUID]
	if !ok {
		return nil, spqrerror.Newf(spqrerror.SPQR_NO_SUCH_OPERATION, "no coordinator document for resharding operation %s", reshardingUUID)
	}
	return clone(doc), nil
}

func (q *MemQDB) ListCoordinatorDocuments(_ context.Context) ([]*CoordinatorDocument, error) {
	spqrlog.Zero.Debug().Msg("memqdb: list coordinator documents")
	q.mu.RLock()
	defer q.mu.RUnlock()

	res := make([]*CoordinatorDocument, 0, len(q.Coordinators))
	for _, doc := range q.Coordinators {
		res = append(res, clone(doc))
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ReshardingUUID < res[j].ReshardingUUID
	})
	return res, nil
}

func (q *MemQDB) UpdateCoordinatorDocument(_ context.Context, filter *CoordinatorFilter, state *DonorMutableState) (bool, error) {
	spqrlog.Zero.Debug().
		Str("resharding-uuid", filter.ReshardingUUID).
		Str("donor", filter.DonorShardID).
		Str("state", string(state.State)).
		Msg("memqdb: update coordinator document")
	q.mu.Lock()
	doc, ok := q.Coordinators[filter.ReshardingUUID]
	if !ok {
		q.mu.Unlock()
		return false, nil
	}
	updated := clone(doc)
	if !filter.Apply(updated, clone(state)) {
		q.mu.Unlock()
		return false, nil
	}
	err := ExecuteCommands(q.DumpState, NewUpdateCommand(q.Coordinators, filter.ReshardingUUID, updated))
	q.mu.Unlock()

	if err != nil {
		return false, err
	}
	q.notify(updated)
	return true, nil
}

func (q *MemQDB) WatchCoordinatorDocuments(ctx context.Context) (<-chan *CoordinatorDocument, error) {
	ch := make(chan *CoordinatorDocument, watchBufferSize)

	q.watchMu.Lock()
	q.watchers[ch] = ctx
	q.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		q.watchMu.Lock()
		delete(q.watchers, ch)
		close(ch)
		q.watchMu.Unlock()
	}()
	return ch, nil
}

func (q *MemQDB) notify(doc *CoordinatorDocument) {
	q.watchMu.Lock()
	defer q.watchMu.Unlock()

	for ch, ctx := range q.watchers {
		select {
		case ch <- clone(doc):
		case <-ctx.Done():
		}
	}
}

// ==============================================================================
//                               ROUTING METADATA
// ==============================================================================

func (q *MemQDB) WriteRoutingInfo(_ context.Context, info *RoutingInfo) error {
	spqrlog.Zero.Debug().Str("namespace", info.Nss).Int64("version", info.Version).Msg("memqdb: write routing info")
	q.mu.Lock()
	defer q.mu.Unlock()

	return ExecuteCommands(q.DumpState, NewUpdateCommand(q.Routing, info.Nss, clone(info)))
}

func (q *MemQDB) GetRoutingInfo(_ context.Context, nss string) (*RoutingInfo, error) {
	spqrlog.Zero.Debug().Str("namespace", nss).Msg("memqdb: get routing info")
	q.mu.RLock()
	defer q.mu.RUnlock()

	info, ok := q.Routing[nss]
	if !ok {
		return nil, spqrerror.Newf(spqrerror.SPQR_STALE_ROUTING, "no routing metadata for namespace %s", nss)
	}
	return clone(info), nil
}
