package cache

import (
	"context"
	"math/rand"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// A mixed workload of concurrent Put/Replace/Get/Invalidate on random keys.
// Should pass under -race without detector reports.
func TestRace_Basic(t *testing.T) {
	opt := Options[string, []byte]{
		MaximumSize: 8_192,
		Shards:      32,
	}
	c := New[string, []byte](opt)
	t.Cleanup(func() { _ = c.Close() })

	workers := 4 * runtime.GOMAXPROCS(0)
	keyspace := 50_000
	deadline := time.Now().Add(2 * time.Second)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)*9973))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(keyspace))
				switch r.Intn(100) {
				case 0, 1, 2, 3, 4: // ~5% — Invalidate
					c.Invalidate(k)
				case 5, 6, 7, 8, 9: // ~5% — Replace
					c.Replace(k, []byte("x"))
				case 10, 11, 12, 13, 14, 15, 16, 17, 18, 19: // ~10% — Put
					c.Put(k, []byte("x"))
				default: // ~80% — Get
					c.Get(k)
				}
			}
		}(w)
	}
	wg.Wait()
}

// One hundred goroutines call GetWithLoader on the same key concurrently.
// The loader should run at most once (single-flight coalescing).
func TestRace_GetWithLoader(t *testing.T) {
	var calls int64

	c := New[string, string](Options[string, string]{MaximumSize: 1024})
	t.Cleanup(func() { _ = c.Close() })

	load := func(_ context.Context, k string) (string, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(2 * time.Millisecond) // simulate I/O
		return "v:" + k, nil
	}

	const goroutines = 100
	key := "same-key"

	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := c.GetWithLoader(context.Background(), key, load)
			if err != nil {
				t.Errorf("GetWithLoader error: %v", err)
				return
			}
			if v != "v:"+key {
				t.Errorf("unexpected value: %q", v)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got > 1 {
		t.Fatalf("loader should run at most once, got %d", got)
	}

	// Subsequent call should be a pure cache hit.
	if v, err := c.GetWithLoader(context.Background(), key, load); err != nil || v != "v:"+key {
		t.Fatalf("second GetWithLoader failed: v=%q err=%v", v, err)
	}
}

// Concurrent CleanUp calls racing with ordinary operations must not panic or
// deadlock; CleanUp on one shard must not block operations on another.
func TestRace_CleanUpConcurrentWithOps(t *testing.T) {
	opt := Options[int, int]{MaximumSize: 4096, Shards: 16}
	opt.SetExpireAfterWrite(5 * time.Millisecond)
	c := New[int, int](opt)
	t.Cleanup(func() { _ = c.Close() })

	stop := make(chan struct{})
	var cleanerDone sync.WaitGroup
	cleanerDone.Add(1)
	go func() {
		defer cleanerDone.Done()
		for {
			select {
			case <-stop:
				return
			default:
				c.CleanUp()
			}
		}
	}()

	var opsDone sync.WaitGroup
	opsDone.Add(1)
	go func() {
		defer opsDone.Done()
		for i := 0; i < 200_000; i++ {
			c.Put(i%2048, i)
			c.Get(i % 2048)
		}
	}()

	opsDone.Wait()
	close(stop)
	cleanerDone.Wait()
}
