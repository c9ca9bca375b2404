package cache

import "sync/atomic"

// drainState is the maintenance coordinator's three-state machine: IDLE
// (nothing pending), REQUIRED (work queued, no drain running), PROCESSING (a
// drain is in flight on some goroutine). Any caller that enqueues work may
// end up running the drain itself — there is no dedicated maintenance
// goroutine; the eviction lock is taken opportunistically, via TryLock,
// except by cleanUp, which waits for it.
type drainState struct{ v atomic.Int32 }

const (
	drainIdle int32 = iota
	drainRequired
	drainProcessing
)

func (d *drainState) cas(old, new int32) bool { return d.v.CompareAndSwap(old, new) }
func (d *drainState) store(x int32)            { d.v.Store(x) }

// scheduleDrain is called after every operation that enqueues work into the
// read or write buffer. It marks a drain as required and tries to run one.
// At most one goroutine at a time performs a drain; a drain already in
// flight sees the mark and picks up this call's newly enqueued work on its
// own next pass.
func (s *shard[K, V]) scheduleDrain() {
	s.drainStatus.store(drainRequired)
	s.tryDrain()
}

// tryDrain attempts the opportunistic, non-blocking drain path: if the
// eviction lock is already held (by another drain, or by CleanUp), this
// goroutine simply returns and trusts that holder, or the next caller, to
// pick up the work. A drain that finds new work marked during its pass runs
// one more pass before releasing the lock.
func (s *shard[K, V]) tryDrain() {
	if !s.evictionMu.TryLock() {
		return
	}
	defer s.evictionMu.Unlock()
	s.drainStatus.store(drainProcessing)
	s.runDrainLocked()
	if !s.drainStatus.cas(drainProcessing, drainIdle) {
		s.drainStatus.store(drainProcessing)
		s.runDrainLocked()
		s.drainStatus.cas(drainProcessing, drainIdle)
	}
}

// cleanUp is the explicit, blocking counterpart used by Cache.CleanUp: unlike
// tryDrain it always waits for the lock rather than deferring to whoever
// currently holds it.
func (s *shard[K, V]) cleanUp() {
	s.evictionMu.Lock()
	s.drainStatus.store(drainProcessing)
	s.runDrainLocked()
	s.drainStatus.store(drainIdle)
	s.evictionMu.Unlock()
}

// runDrainLocked performs one full maintenance pass: replay the read buffer
// (promote accessed entries), replay the write buffer (apply adds/updates/
// removals to the policy lists), sweep values the GC already reclaimed,
// enforce the weight/size bound, and run the two independent expiration
// scans. Must be called with evictionMu held.
func (s *shard[K, V]) runDrainLocked() {
	s.drainReadBuffer()
	s.drainWriteBuffer()
	s.drainReclaimQueue()
	s.enforceWeightLocked()
	now := s.now()
	s.expireByAccessLocked(now)
	s.expireByWriteLocked(now)
}

func (s *shard[K, V]) drainReadBuffer() {
	s.readBuf.drain(func(e *entry[K, V]) {
		if e.status.Load() != statusAlive {
			return
		}
		s.pol.OnGet(e)
	})
}

func (s *shard[K, V]) drainWriteBuffer() {
	s.writeBuf.drain(func(t writeTask[K, V]) {
		switch t.kind {
		case writeAdd:
			if evict := s.pol.OnAdd(t.entry); evict != nil {
				if victim, ok := evict.(*entry[K, V]); ok && victim.tryRetire() {
					s.finalizeRemoval(victim, CauseSize)
				}
			}
		case writeUpdate, writeRefreshEnd:
			s.pol.OnUpdate(t.entry)
		case writeRemove, writeExpire:
			s.finalizeRemoval(t.entry, t.cause)
		case writeRefreshStart:
			// no list mutation: refreshing is tracked on the entry itself.
		}
	})
}

// drainReclaimQueue treats every key the runtime has reported as collected
// (cache/weakref.go) as an expiration with cause COLLECTED.
func (s *shard[K, V]) drainReclaimQueue() {
	if s.reclaim == nil {
		return
	}
	for _, k := range s.reclaim.drain() {
		key, ok := k.(K)
		if !ok {
			continue
		}
		s.indexMu.RLock()
		e, found := s.index[key]
		s.indexMu.RUnlock()
		if !found {
			continue
		}
		if e.tryRetire() {
			s.finalizeRemoval(e, CauseCollected)
		}
	}
}

// enforceWeightLocked evicts from the LRU end of the access-order list until
// the shard is back within its configured weight bound, and handles the
// zeroCapacity collapse: every resident entry is evicted immediately
// regardless of any other bound.
func (s *shard[K, V]) enforceWeightLocked() {
	if s.zeroCapacity {
		for {
			victim := s.back()
			if victim == nil {
				return
			}
			if !victim.tryRetire() {
				return
			}
			s.finalizeRemoval(victim, CauseSize)
		}
	}
	if s.maxWeight <= 0 {
		return
	}
	for s.totalWeight > s.maxWeight {
		victim := s.back()
		if victim == nil {
			return
		}
		if !victim.tryRetire() {
			// lost the race to a concurrent invalidate/expire; the list
			// entry for it will be unlinked when that task drains.
			return
		}
		s.finalizeRemoval(victim, CauseSize)
	}
}

// expireByAccessLocked sweeps the access-order list from its LRU end: since
// entries closer to the tail were accessed longer ago, the first live
// (non-expired) entry found ends the scan.
func (s *shard[K, V]) expireByAccessLocked(now int64) {
	if s.expireAfterAccess <= 0 {
		return
	}
	for {
		victim := s.back()
		if victim == nil || !s.isExpired(victim, now) {
			return
		}
		if !victim.tryRetire() {
			return
		}
		s.finalizeRemoval(victim, CauseExpired)
	}
}

// expireByWriteLocked sweeps the write-order list from its oldest end, the
// second expiration schedule, independent of access-time expiry.
func (s *shard[K, V]) expireByWriteLocked(now int64) {
	if s.expireAfterWrite <= 0 {
		return
	}
	for {
		victim := s.writeHead
		if victim == nil || now-victim.writeTimeNanos.Load() < s.expireAfterWrite {
			return
		}
		if !victim.tryRetire() {
			return
		}
		s.finalizeRemoval(victim, CauseExpired)
	}
}

// finalizeRemoval completes a retired -> dead transition: it notifies the
// policy, unlinks the entry from both lists, deletes it from the hash
// index, marks it dead, and dispatches exactly one removal notification.
// The caller must already hold evictionMu and must have won the entry's
// alive -> retired CAS (or be processing a task submitted by whoever did).
func (s *shard[K, V]) finalizeRemoval(e *entry[K, V], cause RemovalCause) {
	v, _ := e.loadValue()

	s.pol.OnRemove(e)
	s.removeFromLists(e)

	s.indexMu.Lock()
	if cur, ok := s.index[e.key]; ok && cur == e {
		delete(s.index, e.key)
	}
	s.indexMu.Unlock()

	e.markDead()

	if cause != CauseExplicit {
		s.stats.recordEviction(1)
	}
	s.dispatchRemoval(e.key, v, cause)
}

// dispatchRemoval runs the configured RemovalListener on the Executor, never
// synchronously under evictionMu, and swallows any panic the listener
// raises so a misbehaving listener can never take down the caller that
// triggered the removal.
func (s *shard[K, V]) dispatchRemoval(k K, v V, cause RemovalCause) {
	if s.removalListener == nil {
		return
	}
	listener := s.removalListener
	logger := s.logger
	s.executor.Execute(func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Printf("cache: removal listener panicked: %v", r)
			}
		}()
		listener(RemovalNotification[K, V]{Key: k, Value: v, Cause: cause})
	})
}
