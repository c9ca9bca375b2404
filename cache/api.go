package cache

import "context"

// Cache is a bounded, in-process, sharded key/value cache. All methods are
// safe for concurrent use by multiple goroutines. Every Get/Put/Invalidate
// call is expected O(1): one shard's RLock/Lock plus a map access and a
// constant-time buffer append; the eviction-lock-protected list work is
// amortized across calls by the maintenance coordinator (cache/maintenance.go)
// rather than paid by every caller.
type Cache[K comparable, V any] interface {
	// Get returns the value for k and whether it was present. A present but
	// expired entry reports ok == false and is lazily retired.
	Get(k K) (v V, ok bool)

	// GetWithLoader returns the value for k, loading it via load on a miss.
	// Concurrent callers requesting the same missing key are coalesced: load
	// runs at most once per key per miss. load's own errors come back
	// wrapped in *LoadFailure.
	GetWithLoader(ctx context.Context, k K, load func(context.Context, K) (V, error)) (V, error)

	// GetAllPresent returns whichever of ks are currently resident, without
	// triggering any load. Missing keys are simply absent from the result.
	GetAllPresent(ks []K) map[K]V

	// GetAll returns a value for every key in ks, loading whichever are
	// missing. If a BulkLoader was configured it backs the fill; otherwise
	// each missing key is loaded individually through GetWithLoader.
	// Duplicate keys in ks are deduplicated. The first load failure any key
	// encounters aborts the call and is returned, wrapped in *LoadFailure.
	GetAll(ctx context.Context, ks []K) (map[K]V, error)

	// Put inserts or overwrites k -> v.
	Put(k K, v V)

	// PutIfAbsent inserts k -> v only if k is not currently present. prior
	// and replaced report the value and presence found instead.
	PutIfAbsent(k K, v V) (prior V, replaced bool)

	// Replace overwrites k's value only if k is currently present.
	Replace(k K, v V) (prior V, replaced bool)

	// ReplaceExact overwrites k's value only if its current value equals
	// old (compared via reflect.DeepEqual, since V need not be comparable).
	ReplaceExact(k K, old, new V) bool

	// Invalidate removes k if present, reporting whether it was removed.
	Invalidate(k K) bool

	// InvalidateAll removes every key in ks that is present.
	InvalidateAll(ks []K)

	// InvalidateAllEntries removes every entry currently in the cache.
	InvalidateAllEntries()

	// EstimatedSize returns the approximate number of resident entries. It
	// is "estimated" because the read/write buffers may hold not-yet-drained
	// adds and removals.
	EstimatedSize() int64

	// CleanUp forces an immediate, synchronous maintenance pass on every
	// shard: drains buffers, applies pending policy decisions, and
	// re-evaluates expiration. Unlike the opportunistic drains triggered by
	// ordinary operations, CleanUp blocks until its own pass completes.
	CleanUp()

	// Stats returns a snapshot of the cache's counters. If RecordStats was
	// not set in Options, the snapshot is always zero.
	Stats() Stats

	// AsMap returns a weakly-consistent live view over the cache's current
	// contents (cache/mapview.go).
	AsMap() MapView[K, V]

	// Close marks the cache closed; subsequent reads, writes, loads and
	// invalidations return ErrClosed (or its zero-value equivalent for
	// methods with no error return). EstimatedSize, CleanUp, Stats and AsMap
	// keep working on whatever the cache still holds.
	Close() error
}

// MapView is a weakly-consistent snapshot-free view over a Cache's entries,
// usable for bulk iteration without holding any single lock for the
// traversal's whole duration.
type MapView[K comparable, V any] interface {
	// Range calls fn for each resident key/value pair, stopping early if fn
	// returns false. Entries added, removed, or updated concurrently with
	// the traversal may or may not be observed, and never more than once
	// per still-resident span.
	Range(fn func(K, V) bool)

	// Len returns the same estimate as Cache.EstimatedSize.
	Len() int64
}
