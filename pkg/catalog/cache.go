package catalog

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/zhangyunhao116/skipmap"

	"github.com/pg-sharding/reshard/pkg/models/resharding"
	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/pkg/promise"
	"github.com/pg-sharding/reshard/pkg/shardstore"
	"github.com/pg-sharding/reshard/pkg/spqrlog"
	"github.com/pg-sharding/reshard/qdb"
)

type RoutingInfo struct {
	Nss      resharding.Namespace
	Version  int64
	ShardKey resharding.ShardKeyPattern
	Chunks   []qdb.ChunkRange
}

type cacheEntry struct {
	info    *RoutingInfo
	raw     *qdb.RoutingInfo
	flushed *promise.Promise[struct{}]
}

// Cache holds the routing metadata this shard has refreshed. Each refresh
// that observes a newer version is flushed to the local store in the
// background.
type Cache struct {
	db    qdb.RoutingQDB
	local shardstore.RoutingCacheStore

	mu      sync.Mutex
	entries *skipmap.FuncMap[string, *cacheEntry]
}

func NewCache(db qdb.RoutingQDB, local shardstore.RoutingCacheStore) *Cache {
	return &Cache{
		db:    db,
		local: local,
		entries: skipmap.NewFunc[string, *cacheEntry](func(a, b string) bool {
			return a < b
		}),
	}
}

func routingInfoFromDB(info *qdb.RoutingInfo) (*RoutingInfo, error) {
	nss, err := resharding.ParseNamespace(info.Nss)
	if err != nil {
		return nil, err
	}
	key, err := resharding.ShardKeyFromDB(info.ShardKey)
	if err != nil {
		return nil, err
	}
	chunks := append([]qdb.ChunkRange(nil), info.Chunks...)
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].LowerBound < chunks[j].LowerBound
	})
	return &RoutingInfo{
		Nss:      nss,
		Version:  info.Version,
		ShardKey: key,
		Chunks:   chunks,
	}, nil
}

// Refresh reloads the routing metadata of nss from the QDB.
func (c *Cache) Refresh(ctx context.Context, nss resharding.Namespace) (*RoutingInfo, error) {
	dbInfo, err := c.db.GetRoutingInfo(ctx, nss.String())
	if err != nil {
		return nil, err
	}
	info, err := routingInfoFromDB(dbInfo)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	prev, ok := c.entries.Load(nss.String())
	if ok && prev.info.Version >= info.Version {
		/* a failed flush is redone on the next refresh */
		if _, ready, ferr := prev.flushed.Get(); !ready || ferr == nil {
			c.mu.Unlock()
			return prev.info, nil
		}
		info, dbInfo = prev.info, prev.raw
	}
	entry := &cacheEntry{info: info, raw: dbInfo, flushed: promise.New[struct{}]()}
	c.entries.Store(nss.String(), entry)
	c.mu.Unlock()

	spqrlog.Zero.Debug().
		Str("namespace", nss.String()).
		Int64("version", info.Version).
		Msg("catalog cache: refreshed routing metadata")

	data, err := json.Marshal(dbInfo)
	if err != nil {
		entry.flushed.SetError(err)
		return info, nil
	}
	go func() {
		/* the flush outlives the refreshing call */
		err := c.local.PersistRoutingInfo(context.WithoutCancel(ctx), nss.String(), info.Version, data)
		if err != nil {
			spqrlog.Zero.Error().
				Err(err).
				Str("namespace", nss.String()).
				Msg("catalog cache: failed to flush routing metadata")
			entry.flushed.SetError(err)
			return
		}
		entry.flushed.Set(struct{}{})
	}()
	return info, nil
}

// WaitForFlush waits until the latest refreshed routing metadata of nss is
// persisted locally.
func (c *Cache) WaitForFlush(ctx context.Context, nss resharding.Namespace) error {
	entry, ok := c.entries.Load(nss.String())
	if !ok {
		return spqrerror.Newf(spqrerror.SPQR_STALE_ROUTING, "routing metadata of %s was never refreshed", nss)
	}
	_, err := entry.flushed.Wait(ctx)
	return err
}

// Get returns the cached routing metadata of nss without refreshing it.
func (c *Cache) Get(nss resharding.Namespace) (*RoutingInfo, bool) {
	entry, ok := c.entries.Load(nss.String())
	if !ok {
		return nil, false
	}
	return entry.info, true
}

func (c *Cache) Invalidate(nss resharding.Namespace) {
	c.entries.Delete(nss.String())
}
