package donor

import (
	"context"

	"github.com/pg-sharding/reshard/pkg/catalog"
	"github.com/pg-sharding/reshard/pkg/models/resharding"
	"github.com/pg-sharding/reshard/qdb"
)

// ExternalState is what a donor needs from the rest of the cluster.
type ExternalState interface {
	MyShardID() string
	// RefreshCatalogCache reloads the routing metadata of nss.
	RefreshCatalogCache(ctx context.Context, nss resharding.Namespace) error
	// WaitForCollectionFlush waits until the last refresh of nss is
	// persisted locally.
	WaitForCollectionFlush(ctx context.Context, nss resharding.Namespace) error
	// UpdateCoordinatorDocument applies a conditional update to the
	// coordinator's operation document and reports whether it matched.
	UpdateCoordinatorDocument(ctx context.Context, filter *qdb.CoordinatorFilter, state *qdb.DonorMutableState) (bool, error)
}

type externalState struct {
	shardID string
	cache   *catalog.Cache
	db      qdb.CoordinatorQDB
}

var _ ExternalState = &externalState{}

func NewExternalState(shardID string, cache *catalog.Cache, db qdb.CoordinatorQDB) ExternalState {
	return &externalState{
		shardID: shardID,
		cache:   cache,
		db:      db,
	}
}

func (e *externalState) MyShardID() string {
	return e.shardID
}

func (e *externalState) RefreshCatalogCache(ctx context.Context, nss resharding.Namespace) error {
	_, err := e.cache.Refresh(ctx, nss)
	return err
}

func (e *externalState) WaitForCollectionFlush(ctx context.Context, nss resharding.Namespace) error {
	return e.cache.WaitForFlush(ctx, nss)
}

func (e *externalState) UpdateCoordinatorDocument(ctx context.Context, filter *qdb.CoordinatorFilter, state *qdb.DonorMutableState) (bool, error) {
	return e.db.UpdateCoordinatorDocument(ctx, filter, state)
}
