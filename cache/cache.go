package cache

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/boundedcache/boundedcache/internal/singleflight"
	"github.com/boundedcache/boundedcache/internal/util"
	"github.com/boundedcache/boundedcache/policy/lru"
)

// cacheImpl is a sharded implementation of Cache. All methods are safe for
// concurrent use by multiple goroutines; per-shard state (cache/shard.go)
// is where the actual hash index, buffers, and eviction lists live.
type cacheImpl[K comparable, V any] struct {
	shards []*shard[K, V]
	closed atomic.Bool
	stats  statsCounter

	// bulkSF coalesces concurrent BulkLoader.LoadAll calls that request
	// the same key set; this is the one call site that uses
	// internal/singleflight rather than the entry-level placeholder
	// mechanism GetWithLoader uses, since a bulk request has no single key
	// to place a placeholder entry under.
	bulkSF singleflight.Group[string, map[K]V]

	bulkLoader BulkLoader[K, V]
	loader     Loader[K, V]
}

// New constructs a Cache from opt, panicking on an invalid configuration:
// mutually exclusive options, a Weigher without MaximumWeight, and so on —
// see Options.validate.
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	opt.validate()

	if opt.Policy == nil {
		opt.Policy = lru.New[K, V]()
	}
	// Normalize the pluggable collaborators once so every shard shares the
	// same instance (this matters for Executor: it holds a semaphore that
	// bounds total in-flight async work, which only bounds anything if it
	// is shared, not recreated per shard).
	opt.Ticker = opt.ticker()
	opt.Executor = opt.executor()
	opt.Logger = opt.logger()

	shardCount := opt.Shards
	if shardCount <= 0 {
		shardCount = util.ReasonableShardCount()
	} else {
		shardCount = int(util.NextPow2(uint64(shardCount)))
	}

	var stats statsCounter
	if opt.RecordStats {
		stats = &enabledStatsCounter{}
	} else {
		stats = noopStatsCounter{}
	}

	maxWeight := opt.MaximumWeight
	if opt.MaximumSize > 0 {
		maxWeight = opt.MaximumSize
	}
	// Halve the shard count until every shard's share is at least 1, so the
	// per-shard bounds never sum past maxWeight.
	for shardCount > 1 && int64(shardCount) > maxWeight {
		shardCount /= 2
	}
	perShardWeight := maxWeight / int64(shardCount)
	if perShardWeight < 1 {
		perShardWeight = 1
	}

	shards := make([]*shard[K, V], shardCount)
	for i := range shards {
		shards[i] = newShard[K, V](opt.Policy, &opt, perShardWeight, stats)
	}

	return &cacheImpl[K, V]{
		shards:     shards,
		stats:      stats,
		bulkLoader: opt.BulkLoader,
		loader:     opt.Loader,
	}
}

func (c *cacheImpl[K, V]) shardFor(k K) *shard[K, V] {
	h := util.Hash64(k)
	idx := util.ShardIndex(h, len(c.shards))
	return c.shards[idx]
}

func (c *cacheImpl[K, V]) Get(k K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.shardFor(k).get(k)
}

func (c *cacheImpl[K, V]) GetWithLoader(ctx context.Context, k K, load func(context.Context, K) (V, error)) (V, error) {
	if c.closed.Load() {
		var zero V
		return zero, ErrClosed
	}
	if load == nil {
		load = c.loader
	}
	if load == nil {
		var zero V
		return zero, ErrNoLoader
	}
	return c.shardFor(k).getWithLoader(ctx, k, load)
}

func (c *cacheImpl[K, V]) GetAllPresent(ks []K) map[K]V {
	out := make(map[K]V, len(ks))
	if c.closed.Load() {
		return out
	}
	for _, k := range ks {
		if _, seen := out[k]; seen {
			continue
		}
		if v, ok := c.shardFor(k).get(k); ok {
			out[k] = v
		}
	}
	return out
}

func (c *cacheImpl[K, V]) GetAll(ctx context.Context, ks []K) (map[K]V, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	out := make(map[K]V, len(ks))
	missing := make([]K, 0, len(ks))
	seen := make(map[K]struct{}, len(ks))
	for _, k := range ks {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if v, ok := c.shardFor(k).get(k); ok {
			out[k] = v
		} else {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	if c.bulkLoader == nil {
		for _, k := range missing {
			v, err := c.GetWithLoader(ctx, k, c.loader)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	}

	loaded, err := c.loadBulk(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, k := range missing {
		v, ok := loaded[k]
		if !ok {
			return nil, &LoadFailure{Key: k, Err: ErrInvalidLoadResult}
		}
		out[k] = v
		c.shardFor(k).put(k, v, false)
	}
	return out, nil
}

// loadBulk coalesces identical concurrent LoadAll requests keyed by an
// order-independent hash of their key set (bulkKeyOf), so that two callers
// asking for the same missing batch trigger one BulkLoader call rather than
// two. A BulkLoader error comes back wrapped in *LoadFailure.
func (c *cacheImpl[K, V]) loadBulk(ctx context.Context, keys []K) (map[K]V, error) {
	return c.bulkSF.Do(ctx, bulkKeyOf(keys), func() (map[K]V, error) {
		m, err := c.bulkLoader(ctx, keys)
		if err != nil {
			return nil, &LoadFailure{Key: keys, Err: err}
		}
		return m, nil
	})
}

func (c *cacheImpl[K, V]) Put(k K, v V) {
	if c.closed.Load() {
		return
	}
	c.shardFor(k).put(k, v, false)
}

func (c *cacheImpl[K, V]) PutIfAbsent(k K, v V) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.shardFor(k).put(k, v, true)
}

func (c *cacheImpl[K, V]) Replace(k K, v V) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.shardFor(k).replace(k, v, nil)
}

func (c *cacheImpl[K, V]) ReplaceExact(k K, old, newVal V) bool {
	if c.closed.Load() {
		return false
	}
	_, ok := c.shardFor(k).replace(k, newVal, &old)
	return ok
}

func (c *cacheImpl[K, V]) Invalidate(k K) bool {
	if c.closed.Load() {
		return false
	}
	return c.shardFor(k).invalidate(k)
}

func (c *cacheImpl[K, V]) InvalidateAll(ks []K) {
	if c.closed.Load() {
		return
	}
	for _, k := range ks {
		c.shardFor(k).invalidate(k)
	}
}

func (c *cacheImpl[K, V]) InvalidateAllEntries() {
	if c.closed.Load() {
		return
	}
	for _, s := range c.shards {
		s.invalidateAllLocked()
	}
}

func (c *cacheImpl[K, V]) EstimatedSize() int64 {
	var n int64
	for _, s := range c.shards {
		n += int64(s.estimatedSize())
	}
	return n
}

func (c *cacheImpl[K, V]) CleanUp() {
	for _, s := range c.shards {
		s.cleanUp()
	}
}

func (c *cacheImpl[K, V]) Stats() Stats { return c.stats.snapshot() }

func (c *cacheImpl[K, V]) AsMap() MapView[K, V] { return &mapView[K, V]{shards: c.shards} }

func (c *cacheImpl[K, V]) Close() error {
	c.closed.Store(true)
	return nil
}

// bulkKeyOf derives a coalescing key for a batch of requested keys, order
// independent so the same key set coalesces regardless of request order. A
// hash collision merely coalesces two unrelated bulk loads into one call,
// which is still correct — just a missed coalescing opportunity — so this
// does not need to be collision-free, only cheap and stable.
func bulkKeyOf[K comparable](keys []K) string {
	var h uint64 = uint64(len(keys))
	for _, k := range keys {
		h ^= util.Hash64(k)
	}
	return strconv.FormatUint(h, 16)
}
