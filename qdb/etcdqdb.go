package qdb

import (
	"context"
	"encoding/json"
	"path"
	"sort"
	"time"

	"github.com/pkg/errors"
	retry "github.com/sethvargo/go-retry"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/clientv3util"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/pkg/spqrlog"
	"github.com/pg-sharding/reshard/pkg/statistics"
)

type EtcdQDB struct {
	cli *clientv3.Client
}

var _ QDB = &EtcdQDB{}

func NewEtcdQDB(addr string) (*EtcdQDB, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{addr},
		DialTimeout: 5 * time.Second,
		DialOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		},
	})
	if err != nil {
		return nil, spqrerror.Wrap(spqrerror.SPQR_NETWORK_ERROR, err)
	}

	spqrlog.Zero.Debug().
		Str("address", addr).
		Uint("client", spqrlog.GetPointer(cli)).
		Msg("etcdqdb: NewEtcdQDB")

	return &EtcdQDB{
		cli: cli,
	}, nil
}

func (q *EtcdQDB) Close() error {
	return q.cli.Close()
}

const (
	donorsNamespace       = "/resharding_donors/"
	coordinatorsNamespace = "/resharding_operations/"
	routingNamespace      = "/resharding_routing/"

	casBackoffBase = 50 * time.Millisecond
	casMaxRetries  = 16
)

func donorNodePath(key string) string {
	return path.Join(donorsNamespace, key)
}

func coordinatorNodePath(key string) string {
	return path.Join(coordinatorsNamespace, key)
}

func routingNodePath(key string) string {
	return path.Join(routingNamespace, key)
}

var errCASConflict = spqrerror.New(spqrerror.SPQR_WRITE_CONFLICT, "concurrent modification of qdb document")

// casUpdate reads the document at key, lets mutate change it and writes it back
// only if the key was not modified meanwhile. mutate returning false skips the write.
func casUpdate[T any](ctx context.Context, cli *clientv3.Client, key string, mutate func(doc *T) (bool, error)) (bool, error) {
	applied := false
	err := retry.Do(ctx, retry.WithMaxRetries(casMaxRetries, retry.NewFibonacci(casBackoffBase)), func(ctx context.Context) error {
		resp, err := cli.Get(ctx, key)
		if err != nil {
			return retry.RetryableError(err)
		}
		if len(resp.Kvs) == 0 {
			applied = false
			return nil
		}
		kv := resp.Kvs[0]

		var doc T
		if err := json.Unmarshal(kv.Value, &doc); err != nil {
			return errors.Wrapf(err, "failed to unmarshal qdb document %s", key)
		}
		ok, err := mutate(&doc)
		if err != nil {
			return err
		}
		if !ok {
			applied = false
			return nil
		}
		data, err := json.Marshal(&doc)
		if err != nil {
			return errors.Wrapf(err, "failed to marshal qdb document %s", key)
		}

		txResp, err := cli.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(key), "=", kv.ModRevision)).
			Then(clientv3.OpPut(key, string(data))).
			Commit()
		if err != nil {
			return retry.RetryableError(err)
		}
		if !txResp.Succeeded {
			return retry.RetryableError(errCASConflict)
		}
		applied = true
		return nil
	})
	return applied, err
}

func getDocument[T any](ctx context.Context, cli *clientv3.Client, key string) (*T, bool, error) {
	resp, err := cli.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	var doc T
	if err := json.Unmarshal(resp.Kvs[0].Value, &doc); err != nil {
		return nil, false, errors.Wrapf(err, "failed to unmarshal qdb document %s", key)
	}
	return &doc, true, nil
}

func listDocuments[T any](ctx context.Context, cli *clientv3.Client, prefix string) ([]*T, error) {
	resp, err := cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	res := make([]*T, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var doc T
		if err := json.Unmarshal(kv.Value, &doc); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal qdb document %s", string(kv.Key))
		}
		res = append(res, &doc)
	}
	return res, nil
}

// ==============================================================================
//                               DONOR DOCUMENTS
// ==============================================================================

func (q *EtcdQDB) InsertDonorDocument(ctx context.Context, doc *DonorDocument) error {
	spqrlog.Zero.Debug().
		Str("resharding-uuid", doc.ReshardingUUID).
		Msg("etcdqdb: insert donor document")

	t := time.Now()
	defer func() { statistics.RecordQDBOperation("InsertDonorDocument", time.Since(t)) }()

	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal donor document")
	}
	key := donorNodePath(doc.ReshardingUUID)
	resp, err := q.cli.Txn(ctx).
		If(clientv3util.KeyMissing(key)).
		Then(clientv3.OpPut(key, string(data))).
		Commit()
	if err != nil {
		return err
	}
	if !resp.Succeeded {
		return spqrerror.Newf(spqrerror.SPQR_OPERATION_EXISTS, "donor document for resharding operation %s already exists", doc.ReshardingUUID)
	}
	return nil
}

func (q *EtcdQDB) GetDonorDocument(ctx context.Context, reshardingUUID string) (*DonorDocument, error) {
	spqrlog.Zero.Debug().
		Str("resharding-uuid", reshardingUUID).
		Msg("etcdqdb: get donor document")

	t := time.Now()
	defer func() { statistics.RecordQDBOperation("GetDonorDocument", time.Since(t)) }()

	doc, ok, err := getDocument[DonorDocument](ctx, q.cli, donorNodePath(reshardingUUID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, spqrerror.Newf(spqrerror.SPQR_NO_SUCH_OPERATION, "no donor document for resharding operation %s", reshardingUUID)
	}
	return doc, nil
}

func (q *EtcdQDB) ListDonorDocuments(ctx context.Context) ([]*DonorDocument, error) {
	spqrlog.Zero.Debug().Msg("etcdqdb: list donor documents")

	t := time.Now()
	defer func() { statistics.RecordQDBOperation("ListDonorDocuments", time.Since(t)) }()

	res, err := listDocuments[DonorDocument](ctx, q.cli, donorsNamespace)
	if err != nil {
		return nil, err
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ReshardingUUID < res[j].ReshardingUUID
	})
	return res, nil
}

func (q *EtcdQDB) UpdateDonorMutableState(ctx context.Context, reshardingUUID string, state *DonorMutableState) error {
	spqrlog.Zero.Debug().
		Str("resharding-uuid", reshardingUUID).
		Str("state", string(state.State)).
		Msg("etcdqdb: update donor mutable state")

	t := time.Now()
	defer func() { statistics.RecordQDBOperation("UpdateDonorMutableState", time.Since(t)) }()

	applied, err := casUpdate(ctx, q.cli, donorNodePath(reshardingUUID), func(doc *DonorDocument) (bool, error) {
		doc.MutableState = *state
		return true, nil
	})
	if err != nil {
		return err
	}
	if !applied {
		return spqrerror.Newf(spqrerror.SPQR_NO_SUCH_OPERATION, "no donor document for resharding operation %s", reshardingUUID)
	}
	return nil
}

func (q *EtcdQDB) RemoveDonorDocument(ctx context.Context, reshardingUUID string, onCommit func()) error {
	spqrlog.Zero.Debug().
		Str("resharding-uuid", reshardingUUID).
		Msg("etcdqdb: remove donor document")

	t := time.Now()
	defer func() { statistics.RecordQDBOperation("RemoveDonorDocument", time.Since(t)) }()

	resp, err := q.cli.Delete(ctx, donorNodePath(reshardingUUID))
	if err != nil {
		return err
	}
	spqrlog.Zero.Debug().
		Int64("deleted", resp.Deleted).
		Msg("etcdqdb: remove donor document")

	if onCommit != nil {
		onCommit()
	}
	return nil
}

// ==============================================================================
//                             COORDINATOR DOCUMENTS
// ==============================================================================

func (q *EtcdQDB) WriteCoordinatorDocument(ctx context.Context, doc *CoordinatorDocument) error {
	spqrlog.Zero.Debug().
		Str("resharding-uuid", doc.ReshardingUUID).
		Str("state", string(doc.State)).
		Msg("etcdqdb: write coordinator document")

	t := time.Now()
	defer func() { statistics.RecordQDBOperation("WriteCoordinatorDocument", time.Since(t)) }()

	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal coordinator document")
	}
	_, err = q.cli.Put(ctx, coordinatorNodePath(doc.ReshardingUUID), string(data))
	return err
}

func (q *EtcdQDB) GetCoordinatorDocument(ctx context.Context, reshardingUUID string) (*CoordinatorDocument, error) {
	spqrlog.Zero.Debug().
		Str("resharding-uuid", reshardingUUID).
		Msg("etcdqdb: get coordinator document")

	t := time.Now()
	defer func() { statistics.RecordQDBOperation("GetCoordinatorDocument", time.Since(t)) }()

	doc, ok, err := getDocument[CoordinatorDocument](ctx, q.cli, coordinatorNodePath(reshardingUUID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, spqrerror.Newf(spqrerror.SPQR_NO_SUCH_OPERATION, "no coordinator document for resharding operation %s", reshardingUUID)
	}
	return doc, nil
}

func (q *EtcdQDB) ListCoordinatorDocuments(ctx context.Context) ([]*CoordinatorDocument, error) {
	spqrlog.Zero.Debug().Msg("etcdqdb: list coordinator documents")

	t := time.Now()
	defer func() { statistics.RecordQDBOperation("ListCoordinatorDocuments", time.Since(t)) }()

	res, err := listDocuments[CoordinatorDocument](ctx, q.cli, coordinatorsNamespace)
	if err != nil {
		return nil, err
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ReshardingUUID < res[j].ReshardingUUID
	})
	return res, nil
}

func (q *EtcdQDB) UpdateCoordinatorDocument(ctx context.Context, filter *CoordinatorFilter, state *DonorMutableState) (bool, error) {
	spqrlog.Zero.Debug().
		Str("resharding-uuid", filter.ReshardingUUID).
		Str("donor", filter.DonorShardID).
		Str("state", string(state.State)).
		Msg("etcdqdb: update coordinator document")

	t := time.Now()
	defer func() { statistics.RecordQDBOperation("UpdateCoordinatorDocument", time.Since(t)) }()

	return casUpdate(ctx, q.cli, coordinatorNodePath(filter.ReshardingUUID), func(doc *CoordinatorDocument) (bool, error) {
		return filter.Apply(doc, state), nil
	})
}

func (q *EtcdQDB) WatchCoordinatorDocuments(ctx context.Context) (<-chan *CoordinatorDocument, error) {
	spqrlog.Zero.Debug().Msg("etcdqdb: watch coordinator documents")

	wch := q.cli.Watch(clientv3.WithRequireLeader(ctx), coordinatorsNamespace, clientv3.WithPrefix())
	ch := make(chan *CoordinatorDocument, watchBufferSize)

	go func() {
		defer close(ch)
		for resp := range wch {
			if err := resp.Err(); err != nil {
				spqrlog.Zero.Error().Err(err).Msg("etcdqdb: coordinator documents watch failed")
				return
			}
			for _, ev := range resp.Events {
				if ev.Type != clientv3.EventTypePut {
					continue
				}
				var doc CoordinatorDocument
				if err := json.Unmarshal(ev.Kv.Value, &doc); err != nil {
					spqrlog.Zero.Error().
						Err(err).
						Str("key", string(ev.Kv.Key)).
						Msg("etcdqdb: skip malformed coordinator document")
					continue
				}
				select {
				case ch <- &doc:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// ==============================================================================
//                               ROUTING METADATA
// ==============================================================================

func (q *EtcdQDB) WriteRoutingInfo(ctx context.Context, info *RoutingInfo) error {
	spqrlog.Zero.Debug().
		Str("namespace", info.Nss).
		Int64("version", info.Version).
		Msg("etcdqdb: write routing info")

	t := time.Now()
	defer func() { statistics.RecordQDBOperation("WriteRoutingInfo", time.Since(t)) }()

	data, err := json.Marshal(info)
	if err != nil {
		return errors.Wrap(err, "failed to marshal routing info")
	}
	_, err = q.cli.Put(ctx, routingNodePath(info.Nss), string(data))
	return err
}

func (q *EtcdQDB) GetRoutingInfo(ctx context.Context, nss string) (*RoutingInfo, error) {
	spqrlog.Zero.Debug().
		Str("namespace", nss).
		Msg("etcdqdb: get routing info")

	t := time.Now()
	defer func() { statistics.RecordQDBOperation("GetRoutingInfo", time.Since(t)) }()

	info, ok, err := getDocument[RoutingInfo](ctx, q.cli, routingNodePath(nss))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, spqrerror.Newf(spqrerror.SPQR_STALE_ROUTING, "no routing metadata for namespace %s", nss)
	}
	return info, nil
}
