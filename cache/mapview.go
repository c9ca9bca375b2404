package cache

// mapView implements MapView by walking each shard's index in turn, holding
// that shard's indexMu.RLock only for the duration of copying its current
// key set — never more than one shard lock at a time, and never a lock
// spanning the whole traversal. That is what makes it weakly consistent
// rather than a point-in-time snapshot.
type mapView[K comparable, V any] struct {
	shards []*shard[K, V]
}

func (m *mapView[K, V]) Range(fn func(K, V) bool) {
	for _, s := range m.shards {
		if !s.rangeShard(fn) {
			return
		}
	}
}

func (m *mapView[K, V]) Len() int64 {
	var n int64
	for _, s := range m.shards {
		n += int64(s.estimatedSize())
	}
	return n
}

// rangeShard copies the shard's currently alive key/value pairs, releases
// the lock, then invokes fn for each. Copying first keeps fn (arbitrary user
// code) from running under indexMu. Returns false if fn asked to stop.
func (s *shard[K, V]) rangeShard(fn func(K, V) bool) bool {
	type kv struct {
		k K
		v V
	}
	s.indexMu.RLock()
	pairs := make([]kv, 0, len(s.index))
	for k, e := range s.index {
		if e.status.Load() != statusAlive {
			continue
		}
		if v, ok := e.loadValue(); ok {
			pairs = append(pairs, kv{k, v})
		}
	}
	s.indexMu.RUnlock()

	for _, p := range pairs {
		if !fn(p.k, p.v) {
			return false
		}
	}
	return true
}
