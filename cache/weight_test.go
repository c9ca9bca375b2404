package cache

import "testing"

// With a Weigher and a single shard, the cache evicts down to the weight
// bound rather than to an entry count, and evicts the LRU entry first.
func TestCache_WeightedEviction(t *testing.T) {
	t.Parallel()

	c := New[string, int](Options[string, int]{
		MaximumWeight: 10,
		Shards:        1,
		Weigher:       func(_ string, v int) int { return v },
	})
	t.Cleanup(func() { _ = c.Close() })

	c.Put("a", 4) // total weight 4
	c.Put("b", 4) // total weight 8
	c.CleanUp()
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should still be resident")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("b should still be resident")
	}

	c.Put("c", 4) // total would be 12 > 10, must evict LRU
	c.CleanUp()

	if _, ok := c.Get("a"); ok {
		t.Fatal("a (LRU) should have been evicted to stay within MaximumWeight")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("b should still be resident")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("c should be resident")
	}
}

// MaximumSize is sugar for MaximumWeight with a constant-1 weigher: it
// bounds entry count directly.
func TestCache_MaximumSize_BoundsEntryCount(t *testing.T) {
	t.Parallel()

	c := New[int, int](Options[int, int]{MaximumSize: 3, Shards: 1})
	t.Cleanup(func() { _ = c.Close() })

	for i := 0; i < 10; i++ {
		c.Put(i, i)
	}
	c.CleanUp()

	if got := c.EstimatedSize(); got > 3 {
		t.Fatalf("expected at most 3 resident entries, got %d", got)
	}
}
