package cache

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/boundedcache/boundedcache/policy"
)

// shard is an independent partition of the cache. It owns its own hash
// index, read/write buffers, eviction-policy lists, and maintenance state.
// The index lock is kept separate from the eviction lock so the read path
// stays effectively lock-free under concurrent reads: readers look up the
// index under indexMu.RLock, which doesn't block other readers, and never
// wait on evictionMu; they only TryLock it to run a pending drain when no
// other goroutine holds it.
type shard[K comparable, V any] struct {
	indexMu sync.RWMutex
	index   map[K]*entry[K, V]

	readBuf  readBuffer[K, V]
	writeBuf writeBuffer[K, V]

	// evictionMu is the single exclusive lock serializing all mutation of
	// the policy lists, weight totals, and expiration scans.
	evictionMu sync.Mutex
	accessHead *entry[K, V] // MRU
	accessTail *entry[K, V] // LRU
	writeHead  *entry[K, V] // oldest write, only linked when write-expiry enabled
	writeTail  *entry[K, V] // newest write
	totalWeight int64
	count      int

	drainStatus drainState

	pol policy.ShardPolicy[K, V]

	maxWeight         int64
	weigher           func(k K, v V) int
	zeroCapacity      bool
	expireAfterAccess int64 // nanos, 0 = disabled
	expireAfterWrite  int64
	refreshAfterWrite int64

	weakValues bool
	softValues bool
	reclaim    *reclaimQueue

	ticker          Ticker
	executor        Executor
	logger          Logger
	stats           statsCounter
	removalListener RemovalListener[K, V]
	loader          Loader[K, V]
}

func newShard[K comparable, V any](pol policy.Policy[K, V], opt *Options[K, V], maxWeight int64, stats statsCounter) *shard[K, V] {
	s := &shard[K, V]{
		index:             make(map[K]*entry[K, V], opt.InitialCapacity),
		maxWeight:         maxWeight,
		zeroCapacity:      opt.zeroCapacity,
		expireAfterAccess: int64(opt.ExpireAfterAccess),
		expireAfterWrite:  int64(opt.ExpireAfterWrite),
		refreshAfterWrite: int64(opt.RefreshAfterWrite),
		weakValues:        opt.WeakValues,
		softValues:        opt.SoftValues,
		ticker:            opt.ticker(),
		executor:          opt.executor(),
		logger:            opt.logger(),
		stats:             stats,
		removalListener:   opt.RemovalListener,
		loader:            opt.Loader,
	}
	if opt.Weigher != nil {
		s.weigher = opt.Weigher
	}
	if opt.WeakValues || opt.SoftValues {
		s.reclaim = newReclaimQueue()
	}
	s.pol = pol.New(shardHooks[K, V]{s: s})
	return s
}

func (s *shard[K, V]) now() int64 { return s.ticker.NowNanos() }

func (s *shard[K, V]) weightOf(k K, v V) int32 {
	if s.weigher == nil {
		return 1
	}
	w := s.weigher(k, v)
	if w < 0 {
		w = 0
	}
	return int32(w)
}

func (s *shard[K, V]) isExpired(e *entry[K, V], now int64) bool {
	if s.zeroCapacity {
		return true
	}
	if s.expireAfterAccess > 0 && now-e.accessTimeNanos.Load() >= s.expireAfterAccess {
		return true
	}
	if s.expireAfterWrite > 0 && now-e.writeTimeNanos.Load() >= s.expireAfterWrite {
		return true
	}
	return false
}

// ---- fast read path ----

// get returns the value for k, or a miss. It never waits on evictionMu; it
// only TryLocks it, through scheduleDrain, to run a drain opportunistically.
func (s *shard[K, V]) get(k K) (V, bool) {
	s.indexMu.RLock()
	e, ok := s.index[k]
	s.indexMu.RUnlock()

	if !ok {
		s.stats.recordMiss()
		var zero V
		return zero, false
	}

	st := e.status.Load()
	if st == statusLoading {
		// A load is in flight for this key. Get must never block on another
		// call site's loader, so this is treated as a plain miss rather than
		// waiting for loadDone to close.
		s.stats.recordMiss()
		var zero V
		return zero, false
	}
	if st != statusAlive {
		s.stats.recordMiss()
		var zero V
		return zero, false
	}

	now := s.now()
	if s.isExpired(e, now) {
		s.retireAndEnqueue(e, writeExpire, CauseExpired)
		s.stats.recordMiss()
		var zero V
		return zero, false
	}

	v, ok := e.loadValue()
	if !ok {
		// referent collected between the status check and the value load.
		s.retireAndEnqueue(e, writeExpire, CauseCollected)
		s.stats.recordMiss()
		var zero V
		return zero, false
	}

	e.accessTimeNanos.Store(now)
	s.readBuf.record(e)
	s.maybeRefresh(e, now)
	s.scheduleDrain()
	s.stats.recordHit()
	return v, true
}

// retireAndEnqueue performs the alive->retired CAS and, if this caller won
// that race, submits the matching write task so the drain finalizes
// retired->dead and fires exactly one removal notification.
func (s *shard[K, V]) retireAndEnqueue(e *entry[K, V], kind writeTaskKind, cause RemovalCause) {
	if e.tryRetire() {
		s.writeBuf.submit(writeTask[K, V]{kind: kind, entry: e, cause: cause})
		s.scheduleDrain()
	}
}

// ---- fast write path ----

func (s *shard[K, V]) put(k K, v V, onlyIfAbsent bool) (prior V, existed bool) {
	now := s.now()
	weight := s.weightOf(k, v)

	s.indexMu.Lock()
	cur, ok := s.index[k]
	if ok && cur.status.Load() == statusAlive {
		if onlyIfAbsent {
			s.indexMu.Unlock()
			p, _ := cur.loadValue()
			return p, true
		}
		prior, _ = cur.loadValue()
		s.indexMu.Unlock()

		s.installValue(cur, v, weight, now)
		s.writeBuf.submit(writeTask[K, V]{kind: writeUpdate, entry: cur, newVal: v})
		s.scheduleDrain()
		s.dispatchRemoval(k, prior, CauseReplaced)
		return prior, true
	}

	e := newEntry[K, V](k, weight)
	s.installValue(e, v, weight, now)
	e.status.Store(statusAlive)
	s.index[k] = e
	s.indexMu.Unlock()

	s.writeBuf.submit(writeTask[K, V]{kind: writeAdd, entry: e})
	s.scheduleDrain()

	var zero V
	return zero, false
}

func (s *shard[K, V]) installValue(e *entry[K, V], v V, weight int32, now int64) {
	if s.weakValues || s.softValues {
		if e.ref == nil {
			e.ref = newValueRef[V](v, s.softValues, s.reclaim, e.key)
		} else {
			e.ref.reset(v)
		}
	} else {
		e.storeValue(v)
	}
	e.weight.Store(weight)
	e.writeTimeNanos.Store(now)
	e.accessTimeNanos.Store(now)
}

// replace implements atomic Replace(k, v) and ReplaceExact(k, old, new).
// If expectOld is non-nil, the swap only succeeds when the current value
// equals *expectOld (using reflect.DeepEqual, since V is not constrained to
// comparable).
func (s *shard[K, V]) replace(k K, newVal V, expectOld *V) (prior V, replaced bool) {
	now := s.now()
	weight := s.weightOf(k, newVal)

	s.indexMu.Lock()
	e, ok := s.index[k]
	if !ok || e.status.Load() != statusAlive {
		s.indexMu.Unlock()
		var zero V
		return zero, false
	}
	cur, _ := e.loadValue()
	if expectOld != nil && !reflect.DeepEqual(cur, *expectOld) {
		s.indexMu.Unlock()
		var zero V
		return zero, false
	}
	s.indexMu.Unlock()

	s.installValue(e, newVal, weight, now)
	s.writeBuf.submit(writeTask[K, V]{kind: writeUpdate, entry: e, newVal: newVal})
	s.scheduleDrain()
	s.dispatchRemoval(k, cur, CauseReplaced)
	return cur, true
}

func (s *shard[K, V]) invalidate(k K) bool {
	s.indexMu.RLock()
	e, ok := s.index[k]
	s.indexMu.RUnlock()
	if !ok {
		return false
	}
	if !e.tryRetire() {
		return false // someone else already retired/removed it
	}
	s.writeBuf.submit(writeTask[K, V]{kind: writeRemove, entry: e, cause: CauseExplicit})
	s.scheduleDrain()
	return true
}

// invalidateAllLocked removes every currently-present key. It snapshots the
// key set under a read lock, then invalidates each one individually rather
// than clearing the map directly, so every removal still goes through the
// normal retire -> drain -> notify path (one removal notification per key,
// same as calling Invalidate in a loop).
func (s *shard[K, V]) invalidateAllLocked() {
	s.indexMu.RLock()
	keys := make([]K, 0, len(s.index))
	for k := range s.index {
		keys = append(keys, k)
	}
	s.indexMu.RUnlock()

	for _, k := range keys {
		s.invalidate(k)
	}
}

func (s *shard[K, V]) estimatedSize() int {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	return len(s.index)
}

// ---- single-flight load ----

func (s *shard[K, V]) getWithLoader(ctx context.Context, k K, load Loader[K, V]) (V, error) {
	for {
		if v, ok := s.get(k); ok {
			return v, nil
		}

		placeholder := &entry[K, V]{key: k, loadDone: make(chan struct{})}
		placeholder.status.Store(statusLoading)

		s.indexMu.Lock()
		cur, exists := s.index[k]
		if exists {
			st := cur.status.Load()
			if st == statusLoading {
				s.indexMu.Unlock()
				select {
				case <-cur.loadDone:
					// The winning caller already invoked load; every waiter
					// gets that same result instead of retrying the loader
					// itself.
					if cur.loadErr != nil {
						var zero V
						return zero, &LoadFailure{Key: k, Err: cur.loadErr}
					}
					return cur.loadVal, nil
				case <-ctx.Done():
					var zero V
					return zero, ctx.Err()
				}
			}
			if st == statusAlive && !s.isExpired(cur, s.now()) {
				s.indexMu.Unlock()
				continue
			}
		}
		s.index[k] = placeholder
		s.indexMu.Unlock()

		start := s.now()
		v, err := load(ctx, k)
		elapsed := time.Duration(s.now() - start)

		if err != nil {
			s.indexMu.Lock()
			if s.index[k] == placeholder {
				delete(s.index, k)
			}
			s.indexMu.Unlock()
			placeholder.loadErr = err
			close(placeholder.loadDone)
			s.stats.recordLoadFailure(elapsed)
			var zero V
			return zero, &LoadFailure{Key: k, Err: err}
		}

		if isNilLike(v) {
			s.indexMu.Lock()
			if s.index[k] == placeholder {
				delete(s.index, k)
			}
			s.indexMu.Unlock()
			close(placeholder.loadDone)
			s.stats.recordLoadSuccess(elapsed)
			var zero V
			return zero, nil
		}

		now := s.now()
		weight := s.weightOf(k, v)
		real := newEntry[K, V](k, weight)
		s.installValue(real, v, weight, now)
		real.status.Store(statusAlive)

		s.indexMu.Lock()
		s.index[k] = real
		s.indexMu.Unlock()

		s.writeBuf.submit(writeTask[K, V]{kind: writeAdd, entry: real})
		s.scheduleDrain()

		placeholder.loadVal = v
		close(placeholder.loadDone)
		s.stats.recordLoadSuccess(elapsed)
		return v, nil
	}
}

// isNilLike reports whether v is a pointer/interface/map/slice/chan/func
// holding nil, treated as "the loader found no value" for types that have a
// nil representation. Other types have no nil representation in Go, so a
// zero value they return is treated as a real value, not as "no value".
func isNilLike[V any](v V) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}

// ---- policy hooks: list manipulation under evictionMu ----

func (s *shard[K, V]) insertFront(e *entry[K, V]) {
	e.prev = nil
	e.next = s.accessHead
	if s.accessHead != nil {
		s.accessHead.prev = e
	}
	s.accessHead = e
	if s.accessTail == nil {
		s.accessTail = e
	}
	s.count++
	s.totalWeight += int64(e.weight.Load())
	s.linkWrite(e)
}

func (s *shard[K, V]) moveToFront(e *entry[K, V]) {
	if e == s.accessHead {
		return
	}
	s.unlinkAccess(e)
	e.prev = nil
	e.next = s.accessHead
	if s.accessHead != nil {
		s.accessHead.prev = e
	}
	s.accessHead = e
	if s.accessTail == nil {
		s.accessTail = e
	}
}

func (s *shard[K, V]) unlinkAccess(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if s.accessHead == e {
		s.accessHead = e.next
	}
	if s.accessTail == e {
		s.accessTail = e.prev
	}
	e.prev, e.next = nil, nil
}

func (s *shard[K, V]) removeFromLists(e *entry[K, V]) {
	s.unlinkAccess(e)
	s.unlinkWrite(e)
	s.count--
	s.totalWeight -= int64(e.weight.Load())
	if s.totalWeight < 0 {
		s.totalWeight = 0
	}
}

// linkWrite appends e at the newest end of the write-order list, used only
// when write-time expiry is configured, an independent schedule from
// access-time expiry.
func (s *shard[K, V]) linkWrite(e *entry[K, V]) {
	if s.expireAfterWrite <= 0 {
		return
	}
	s.unlinkWrite(e)
	e.wprev = s.writeTail
	e.wnext = nil
	if s.writeTail != nil {
		s.writeTail.wnext = e
	}
	s.writeTail = e
	if s.writeHead == nil {
		s.writeHead = e
	}
}

func (s *shard[K, V]) unlinkWrite(e *entry[K, V]) {
	if e.wprev == nil && e.wnext == nil && s.writeHead != e && s.writeTail != e {
		return
	}
	if e.wprev != nil {
		e.wprev.wnext = e.wnext
	}
	if e.wnext != nil {
		e.wnext.wprev = e.wprev
	}
	if s.writeHead == e {
		s.writeHead = e.wnext
	}
	if s.writeTail == e {
		s.writeTail = e.wprev
	}
	e.wprev, e.wnext = nil, nil
}

func (s *shard[K, V]) back() *entry[K, V] { return s.accessTail }

type shardHooks[K comparable, V any] struct{ s *shard[K, V] }

func (h shardHooks[K, V]) MoveToFront(n policy.Node[K, V]) { h.s.moveToFront(n.(*entry[K, V])) }
func (h shardHooks[K, V]) PushFront(n policy.Node[K, V])   { h.s.insertFront(n.(*entry[K, V])) }
func (h shardHooks[K, V]) Remove(n policy.Node[K, V])      { h.s.removeFromLists(n.(*entry[K, V])) }
func (h shardHooks[K, V]) Back() policy.Node[K, V] {
	if b := h.s.back(); b != nil {
		return b
	}
	return nil
}
func (h shardHooks[K, V]) Len() int { return h.s.count }
