package catalog

import (
	"sort"

	"github.com/pg-sharding/reshard/pkg/models/hashfunction"
	"github.com/pg-sharding/reshard/pkg/models/resharding"
	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
)

// ShardForKey returns the shard owning the hashed key value h.
func (info *RoutingInfo) ShardForKey(h uint64) (string, error) {
	i := sort.Search(len(info.Chunks), func(i int) bool {
		return info.Chunks[i].LowerBound > h
	})
	if i == 0 {
		return "", spqrerror.Newf(spqrerror.SPQR_METADATA_CORRUPTION,
			"no chunk of %s covers key %d", info.Nss, h)
	}
	return info.Chunks[i-1].ShardID, nil
}

// DestinedRecipient returns the shard that owns doc under the new shard
// key of tempNss. Chunks partition the hashed leading shard key column.
func DestinedRecipient(cache *Cache, tempNss resharding.Namespace, doc map[string]any) (string, error) {
	info, ok := cache.Get(tempNss)
	if !ok {
		return "", spqrerror.Newf(spqrerror.SPQR_STALE_ROUTING,
			"routing metadata of %s is not loaded", tempNss)
	}
	if len(info.ShardKey.Columns) == 0 {
		return "", spqrerror.Newf(spqrerror.SPQR_METADATA_CORRUPTION, "%s has an empty shard key", tempNss)
	}

	col := info.ShardKey.Columns[0]
	value, ok := doc[col.Name]
	if !ok {
		return "", spqrerror.Newf(spqrerror.SPQR_INVALID_REQUEST,
			"document has no shard key field \"%s\"", col.Name)
	}
	h, err := hashfunction.ApplyHashFunction(value, col.Type, col.HashFunction)
	if err != nil {
		return "", spqrerror.Wrap(spqrerror.SPQR_INVALID_REQUEST, err)
	}
	return info.ShardForKey(h)
}
