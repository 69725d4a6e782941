package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pg-sharding/reshard/pkg/catalog"
	"github.com/pg-sharding/reshard/pkg/models/hashfunction"
	"github.com/pg-sharding/reshard/pkg/models/resharding"
	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/pkg/shardstore"
	"github.com/pg-sharding/reshard/qdb"
	"github.com/pg-sharding/reshard/qdb/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var tempNss = resharding.Namespace{Schema: "public", Relation: "orders_reshard"}

func routingInfo(version int64) *qdb.RoutingInfo {
	return &qdb.RoutingInfo{
		Nss:     tempNss.String(),
		Version: version,
		ShardKey: []qdb.ShardKeyColumn{
			{Name: "id", Type: hashfunction.ColumnTypeInteger, HashFunction: "identity"},
		},
		Chunks: []qdb.ChunkRange{
			{LowerBound: 100, ShardID: "sh2"},
			{LowerBound: 0, ShardID: "sh1"},
		},
	}
}

func TestCacheRefreshAndFlush(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	db, err := qdb.NewMemQDB("")
	require.NoError(t, err)
	require.NoError(t, db.WriteRoutingInfo(ctx, routingInfo(1)))

	store := shardstore.NewMemStore()
	cache := catalog.NewCache(db, store)

	assert.Equal(spqrerror.SPQR_STALE_ROUTING, spqrerror.Code(cache.WaitForFlush(ctx, tempNss)))

	info, err := cache.Refresh(ctx, tempNss)
	assert.NoError(err)
	assert.Equal(int64(1), info.Version)
	assert.Equal("sh1", info.Chunks[0].ShardID)

	assert.NoError(cache.WaitForFlush(ctx, tempNss))
	_, ok := store.PersistedRoutingInfo(tempNss.String())
	assert.True(ok)

	/* an older version does not replace the cached one */
	require.NoError(t, db.WriteRoutingInfo(ctx, routingInfo(0)))
	info, err = cache.Refresh(ctx, tempNss)
	assert.NoError(err)
	assert.Equal(int64(1), info.Version)

	require.NoError(t, db.WriteRoutingInfo(ctx, routingInfo(2)))
	info, err = cache.Refresh(ctx, tempNss)
	assert.NoError(err)
	assert.Equal(int64(2), info.Version)
	assert.NoError(cache.WaitForFlush(ctx, tempNss))

	cache.Invalidate(tempNss)
	_, ok = cache.Get(tempNss)
	assert.False(ok)
}

func TestCacheRefreshMissing(t *testing.T) {
	ctrl := gomock.NewController(t)
	db := mock.NewMockQDB(ctrl)

	missing := spqrerror.New(spqrerror.SPQR_STALE_ROUTING, "no routing metadata")
	db.EXPECT().GetRoutingInfo(gomock.Any(), tempNss.String()).Return(nil, missing)

	cache := catalog.NewCache(db, shardstore.NewMemStore())
	_, err := cache.Refresh(context.Background(), tempNss)
	assert.ErrorIs(t, err, missing)
}

type failingRoutingStore struct {
	err error
}

func (f *failingRoutingStore) PersistRoutingInfo(context.Context, string, int64, []byte) error {
	return f.err
}

func TestCacheFlushFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	db, err := qdb.NewMemQDB("")
	require.NoError(t, err)
	require.NoError(t, db.WriteRoutingInfo(ctx, routingInfo(1)))

	injected := errors.New("no space left on device")
	cache := catalog.NewCache(db, &failingRoutingStore{err: injected})

	_, err = cache.Refresh(ctx, tempNss)
	assert.NoError(err)
	assert.ErrorIs(cache.WaitForFlush(ctx, tempNss), injected)
}

func TestDestinedRecipient(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	db, err := qdb.NewMemQDB("")
	require.NoError(t, err)
	cache := catalog.NewCache(db, shardstore.NewMemStore())

	_, err = catalog.DestinedRecipient(cache, tempNss, map[string]any{"id": int64(5)})
	assert.Equal(spqrerror.SPQR_STALE_ROUTING, spqrerror.Code(err))

	require.NoError(t, db.WriteRoutingInfo(ctx, routingInfo(1)))
	_, err = cache.Refresh(ctx, tempNss)
	require.NoError(t, err)

	for _, tt := range []struct {
		doc      map[string]any
		expected string
	}{
		{doc: map[string]any{"id": int64(0)}, expected: "sh1"},
		{doc: map[string]any{"id": int64(99)}, expected: "sh1"},
		{doc: map[string]any{"id": int64(100)}, expected: "sh2"},
		{doc: map[string]any{"id": 1000}, expected: "sh2"},
	} {
		got, err := catalog.DestinedRecipient(cache, tempNss, tt.doc)
		assert.NoError(err)
		assert.Equal(tt.expected, got, tt.doc)
	}

	_, err = catalog.DestinedRecipient(cache, tempNss, map[string]any{"name": "x"})
	assert.Equal(spqrerror.SPQR_INVALID_REQUEST, spqrerror.Code(err))
}

func TestShardForKeyUncovered(t *testing.T) {
	info := &catalog.RoutingInfo{
		Nss:    tempNss,
		Chunks: []qdb.ChunkRange{{LowerBound: 10, ShardID: "sh1"}},
	}
	_, err := info.ShardForKey(5)
	assert.Equal(t, spqrerror.SPQR_METADATA_CORRUPTION, spqrerror.Code(err))
}

type flakyRoutingStore struct {
	fails int
	calls int
}

func (f *flakyRoutingStore) PersistRoutingInfo(context.Context, string, int64, []byte) error {
	f.calls++
	if f.calls <= f.fails {
		return spqrerror.New(spqrerror.SPQR_NETWORK_ERROR, "connection reset")
	}
	return nil
}

func TestCacheRefreshRetriesFailedFlush(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	db, err := qdb.NewMemQDB("")
	require.NoError(t, err)
	require.NoError(t, db.WriteRoutingInfo(ctx, routingInfo(1)))

	local := &flakyRoutingStore{fails: 1}
	cache := catalog.NewCache(db, local)

	_, err = cache.Refresh(ctx, tempNss)
	require.NoError(t, err)
	assert.Equal(spqrerror.SPQR_NETWORK_ERROR, spqrerror.Code(cache.WaitForFlush(ctx, tempNss)))

	/* same version, but the failed flush must be redone */
	info, err := cache.Refresh(ctx, tempNss)
	require.NoError(t, err)
	assert.Equal(int64(1), info.Version)
	assert.NoError(cache.WaitForFlush(ctx, tempNss))
	assert.Equal(2, local.calls)

	/* a successful flush is not repeated */
	_, err = cache.Refresh(ctx, tempNss)
	require.NoError(t, err)
	assert.NoError(cache.WaitForFlush(ctx, tempNss))
	assert.Equal(2, local.calls)
}
