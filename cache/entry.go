package cache

import (
	"sync/atomic"

	"github.com/boundedcache/boundedcache/internal/util"
)

// status values for entry.status. Only the drain may move a record from
// retired to dead; any goroutine may move alive to retired via CAS.
const (
	statusAlive   int32 = iota // visible to readers, linked into policy lists
	statusRetired              // logically removed, still linked pending drain
	statusDead                 // fully unlinked, eligible for GC
	statusLoading              // placeholder: a load is in flight for this key
)

// entry is the per-key record described by the data model: key, value,
// weight, timestamps, status, and the intrusive links the eviction policy
// uses to maintain the access-order and (optionally) write-order lists.
//
// Fields touched by both the fast read path and the drain are atomics; the
// list links are mutated only by the drain, under the shard's eviction lock.
// The padding field separates the two groups onto different cache lines.
type entry[K comparable, V any] struct {
	key K

	// val holds the value for strong-value caches. When WeakValues/SoftValues
	// is configured, ref holds the weak wrapper instead and val is unused.
	val atomic.Pointer[V]
	ref *valueRef[V]

	weight atomic.Int32

	writeTimeNanos  atomic.Int64
	accessTimeNanos atomic.Int64

	status     atomic.Int32
	refreshing atomic.Bool

	// loadDone, when status == statusLoading, is closed once the winning
	// caller has installed a value (or removed the placeholder on failure).
	// loadVal/loadErr are published before the close, so readers observing
	// a closed channel may read them without additional synchronization
	// (happens-before is established by the channel close/receive).
	loadDone chan struct{}
	loadVal  V
	loadErr  error

	_ util.CacheLinePad

	// access-order list links (shard.accessHead = MRU, shard.accessTail =
	// LRU). Mutated only under the eviction lock.
	prev, next *entry[K, V]

	// write-order list links, only linked when write-time expiry is enabled.
	wprev, wnext *entry[K, V]
}

func newEntry[K comparable, V any](k K, weight int32) *entry[K, V] {
	e := &entry[K, V]{key: k}
	e.weight.Store(weight)
	return e
}

func (e *entry[K, V]) Key() K { return e.key }

// Value satisfies policy.Node. Neither shipped policy inspects it (both
// operate purely on list position), so a freshly loaded copy is enough;
// it does not alias the live storage, and writes through it are not seen
// by the cache.
func (e *entry[K, V]) Value() *V {
	v, _ := e.loadValue()
	return &v
}

func (e *entry[K, V]) loadValue() (V, bool) {
	if e.ref != nil {
		return e.ref.strong()
	}
	if p := e.val.Load(); p != nil {
		return *p, true
	}
	var zero V
	return zero, false
}

func (e *entry[K, V]) storeValue(v V) {
	if e.ref != nil {
		e.ref.reset(v)
		return
	}
	e.val.Store(&v)
}

func (e *entry[K, V]) aliveStatus() bool { return e.status.Load() == statusAlive }

// tryRetire transitions alive -> retired exactly once. Returns true for the
// caller that performed the transition; that caller is the one responsible
// for eventually firing the removal notification.
func (e *entry[K, V]) tryRetire() bool {
	return e.status.CompareAndSwap(statusAlive, statusRetired)
}

// markDead finishes the retired -> dead transition. Only the drain calls
// this, after unlinking the record from every policy list.
func (e *entry[K, V]) markDead() {
	e.status.Store(statusDead)
}
