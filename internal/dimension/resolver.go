package dimension

import (
	"context"
	"fmt"

	"snowload/internal/metrics"
	"snowload/internal/storage"
)

// ResolveStats counts how leaf keys of one table were answered.
type ResolveStats struct {
	CacheHits     int
	StoreResolves int
}

// Resolver implements get-or-insert for leaf dimensions.
//
// A key is looked up in the per-table cache first. On a miss the store runs
// the table's resolve statement, which inserts the key if absent and returns
// its id in one round-trip; a unique constraint on the key column guarantees
// at most one row per distinct value even across concurrent loaders.
type Resolver struct {
	gw     storage.Gateway
	caches map[storage.Table]*Cache[string]
	stats  map[storage.Table]*ResolveStats
}

func NewResolver(gw storage.Gateway) *Resolver {
	r := &Resolver{
		gw:     gw,
		caches: make(map[storage.Table]*Cache[string]),
		stats:  make(map[storage.Table]*ResolveStats),
	}
	for _, t := range storage.LeafTables() {
		r.caches[t] = NewCache[string](t.String())
		r.stats[t] = &ResolveStats{}
	}
	return r
}

// Resolve returns the surrogate id of value in leaf table t, inserting the
// row when the value is new.
func (r *Resolver) Resolve(ctx context.Context, t storage.Table, value string) (int64, error) {
	cache, ok := r.caches[t]
	if !ok {
		return 0, fmt.Errorf("dimension: %s is not a leaf dimension", t)
	}
	key := NormalizeKey(value)
	if key == "" {
		return 0, fmt.Errorf("%w: %s", ErrEmptyKey, t)
	}

	if id, ok := cache.Get(key); ok {
		r.stats[t].CacheHits++
		metrics.RecordResolve(t.String(), "cache")
		return id, nil
	}

	id, err := r.gw.Execute(ctx, storage.Statement{Op: storage.OpResolve, Table: t}, key)
	if err != nil {
		return 0, fmt.Errorf("dimension: resolve %s=%q: %w", t, key, err)
	}
	cache.Put(key, id)
	r.stats[t].StoreResolves++
	metrics.RecordResolve(t.String(), "store")
	return id, nil
}

// Stats returns per-table resolution counts keyed by table name.
func (r *Resolver) Stats() map[string]ResolveStats {
	out := make(map[string]ResolveStats, len(r.stats))
	for t, s := range r.stats {
		out[t.String()] = *s
	}
	return out
}
