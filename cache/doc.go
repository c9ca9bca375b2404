// Package cache provides a bounded, in-process, concurrent key/value cache
// with pluggable eviction policies (weighted-LRU by default), independent
// access- and write-time expiration, optional single-flight loading and
// refresh-on-stale-read, and optional weak/soft value reclamation.
//
// Design
//
//   - Concurrency: the cache is split into shards, each with two locks — an
//     RWMutex guarding its hash index (cache/shard.go) and a plain Mutex
//     guarding its eviction-policy lists (access order, write order, weight
//     totals). Reads look up the index under its RLock and never wait on the
//     eviction lock; all list bookkeeping is pushed through a read buffer
//     and a write buffer and applied later by an opportunistic maintenance
//     drain (cache/maintenance.go), which any operation, a Get included,
//     runs itself only if it wins a TryLock. So a Get never blocks behind
//     another goroutine's eviction work.
//
//   - Storage: each shard keeps a map[K]*entry for lookups and two intrusive
//     doubly linked lists over the same entries: one in access order (for
//     LRU-style eviction and ExpireAfterAccess), one in write order (for
//     ExpireAfterWrite), the second only linked when write-time expiry is
//     configured.
//
//   - Policies: eviction ordering is pluggable via the policy package.
//     Weighted-LRU is the default; a 2Q policy is provided (resists scan
//     pollution). Additional policies can be added without changing shard.
//
//   - Expiration: ExpireAfterAccess and ExpireAfterWrite are independent
//     schedules, both enforced lazily on read and actively during
//     maintenance drains.
//
//   - Weight: besides entry count (MaximumSize), a Weigher may assign a
//     per-entry weight and MaximumWeight bounds the shard-summed total.
//     MaximumSize and MaximumWeight are mutually exclusive.
//
//   - Loading: GetWithLoader coalesces concurrent loads for the same missing
//     key via an entry-level placeholder installed directly in the hash
//     index (cache/shard.go's getWithLoader), rather than a side map. GetAll
//     additionally coalesces concurrent bulk loads of the same key set via
//     internal/singleflight when a BulkLoader is configured.
//
//   - Refresh: RefreshAfterWrite triggers an asynchronous reload on stale
//     read, returning the still-resident stale value immediately to the
//     caller that triggered it (cache/refresh.go).
//
//   - Reference strength: WeakValues/SoftValues let the Go runtime reclaim
//     values once the cache's weak reference is all that is left of them
//     (cache/weakref.go, using the standard library's weak package and
//     runtime.AddCleanup); SoftValues behaves the same as WeakValues.
//     WeakKeys has no effect: the index always holds keys strongly and
//     compares them with ==.
//
//   - Removal notifications: every entry that leaves the cache — explicit
//     invalidation, replacement, expiration, size eviction, or GC
//     reclamation — fires exactly one RemovalNotification on the configured
//     Executor, labeled with the RemovalCause that caused it.
//
// Basic usage
//
//	c := cache.New[string, []byte](cache.Options[string, []byte]{MaximumSize: 10_000})
//	c.Put("a", []byte("1"))
//	if v, ok := c.Get("a"); ok {
//	    _ = v
//	}
//	c.Invalidate("a")
//
// With expiration
//
//	opt := cache.Options[string, string]{MaximumSize: 1024}
//	opt.SetExpireAfterWrite(200 * time.Millisecond)
//	c := cache.New[string, string](opt)
//	c.Put("tmp", "v")
//	time.Sleep(300 * time.Millisecond)
//	_, ok := c.Get("tmp") // ok == false
//
// With GetWithLoader (single-flight)
//
//	c := cache.New[string, string](cache.Options[string, string]{MaximumSize: 1024})
//	v, err := c.GetWithLoader(context.Background(), "key", func(ctx context.Context, k string) (string, error) {
//	    return "v:" + k, nil
//	})
//
// Using an alternative policy (2Q)
//
//	c := cache.New[string, string](cache.Options[string, string]{
//	    MaximumSize: 50_000,
//	    Policy:      twoq.New[string, string](12_500, 25_000),
//	})
//
// Exporting metrics (Prometheus adapter)
//
//	c := cache.New[string, []byte](cache.Options[string, []byte]{MaximumSize: 10_000, RecordStats: true})
//	m := prom.New[string, []byte](nil, "cachex", "demo", c.Stats, c.EstimatedSize)
//	// configure Options.RemovalListener = m.Listener() before New to also label evictions.
//
// Thread-safety & complexity
//
// All methods on Cache are safe for concurrent use. Reads are amortized
// O(1) and never wait on the eviction lock; writes are O(1) to enqueue, with
// the O(1)-per-entry list work amortized across calls by the maintenance
// coordinator rather than paid synchronously by every caller.
//
// See cache/options.go for the full Options surface and package policy for
// the Policy/Hooks interfaces used to implement custom eviction strategies.
package cache
