package cache

import (
	"sync/atomic"
)

// readBufferStripeMask picks a power-of-two stripe count: enough to keep
// contention low on typical hardware without wasting memory on machines
// with few cores.
const readBufferStripeMask = 15 // 16 stripes

const readBufferRingSize = 64 // per-stripe ring capacity; tuned small, drains are frequent

// readBuffer is the per-shard collection of lossy ring buffers that record
// access events off the hot path. record() never blocks and never allocates
// past start-up; on a full ring it silently drops the event, which is
// acceptable because the policy the buffer feeds is already an LRU
// *approximation*.
type readBuffer[K comparable, V any] struct {
	stripes [readBufferStripeMask + 1]readStripe[K, V]
}

type readStripe[K comparable, V any] struct {
	// writeIdx is advanced (mod ring size) by producers via CAS; readIdx is
	// only touched by the single drain goroutine.
	writeIdx atomic.Uint64
	readIdx  uint64
	ring     [readBufferRingSize]atomic.Pointer[entry[K, V]]
}

// stripeCounter spreads callers across stripes without hashing a per-thread
// identity: Go exposes no stable goroutine/thread identity, so a shared,
// striped atomic counter stands in instead. It is coarser than a true
// per-thread hash but costs one atomic add and no allocation, and
// concurrent callers still land on different stripes often enough for the
// buffer to stay an effective approximation of recency.
var stripeCounter atomic.Uint64

func stripeFor() int {
	return int(stripeCounter.Add(1)) & readBufferStripeMask
}

// record appends a read event for e to a stripe chosen pseudo-randomly per
// call. Lossy: if the stripe's ring is full (writer has lapped the drain),
// the event is dropped.
func (b *readBuffer[K, V]) record(e *entry[K, V]) {
	s := &b.stripes[stripeFor()]
	idx := s.writeIdx.Load()
	slot := &s.ring[idx%readBufferRingSize]
	if !slot.CompareAndSwap(nil, e) {
		// Ring is full for this slot, or another producer claimed it first;
		// drop rather than block.
		return
	}
	if !s.writeIdx.CompareAndSwap(idx, idx+1) {
		// idx went stale: give the slot back so it cannot block the ring.
		slot.CompareAndSwap(e, nil)
	}
}

// drain applies fn to every buffered read event across all stripes, in the
// order each stripe observed them, then clears the slots it consumed. Must
// be called only by the maintenance drain, which already holds the eviction
// lock, so no stripe is concurrently drained twice.
func (b *readBuffer[K, V]) drain(fn func(*entry[K, V])) {
	for i := range b.stripes {
		s := &b.stripes[i]
		write := s.writeIdx.Load()
		for s.readIdx != write {
			slot := &s.ring[s.readIdx%readBufferRingSize]
			if e := slot.Load(); e != nil {
				fn(e)
				slot.Store(nil)
			}
			s.readIdx++
		}
	}
}
