package cache

import (
	"context"
	"time"
)

// maybeRefresh triggers an asynchronous reload when e is older than
// RefreshAfterWrite: the stale value is still returned to the current
// caller, and at most one refresh runs per entry at a time (the CAS on
// e.refreshing is the single-flight for refreshes).
func (s *shard[K, V]) maybeRefresh(e *entry[K, V], now int64) {
	if s.refreshAfterWrite <= 0 || s.loader == nil {
		return
	}
	if now-e.writeTimeNanos.Load() < s.refreshAfterWrite {
		return
	}
	if !e.refreshing.CompareAndSwap(false, true) {
		return // a refresh for this entry is already in flight
	}
	s.executor.Execute(func() { s.doRefresh(e) })
}

// doRefresh runs the loader for e's key and, on success, installs the new
// value in place. Errors are logged and swallowed rather than surfaced to
// any caller, and a null result removes the entry instead of leaving it
// stale forever.
func (s *shard[K, V]) doRefresh(e *entry[K, V]) {
	defer e.refreshing.Store(false)

	if e.status.Load() != statusAlive {
		return
	}

	start := s.now()
	v, err := s.loader(context.Background(), e.key)
	elapsed := time.Duration(s.now() - start)

	if err != nil {
		s.stats.recordLoadFailure(elapsed)
		s.logger.Printf("cache: refresh failed for key %v: %v", e.key, err)
		return
	}
	if isNilLike(v) {
		s.stats.recordLoadSuccess(elapsed)
		s.retireAndEnqueue(e, writeRemove, CauseExplicit)
		return
	}
	if e.status.Load() != statusAlive {
		s.stats.recordLoadSuccess(elapsed)
		return // entry was invalidated/expired while the loader was running
	}

	now := s.now()
	weight := s.weightOf(e.key, v)
	s.installValue(e, v, weight, now)
	s.writeBuf.submit(writeTask[K, V]{kind: writeRefreshEnd, entry: e, newVal: v})
	s.scheduleDrain()
	s.stats.recordLoadSuccess(elapsed)
}
