package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// A stale read triggers exactly one asynchronous refresh and returns the
// old value immediately; the refreshed value becomes visible afterward.
func TestCache_RefreshAfterWrite(t *testing.T) {
	t.Parallel()

	var loads int64
	tk := &fakeTicker{}

	opt := Options[string, int]{
		MaximumSize:       8,
		Ticker:            tk,
		RefreshAfterWrite: 50 * time.Millisecond,
		Loader: func(_ context.Context, k string) (int, error) {
			n := atomic.AddInt64(&loads, 1)
			return int(n) + 100, nil
		},
	}
	c := New[string, int](opt)
	t.Cleanup(func() { _ = c.Close() })

	c.Put("k", 1)

	tk.add(100 * time.Millisecond) // older than RefreshAfterWrite

	v, ok := c.Get("k")
	if !ok || v != 1 {
		t.Fatalf("stale read should still return the prior value immediately, got %v ok=%v", v, ok)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt64(&loads) >= 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if got := atomic.LoadInt64(&loads); got < 1 {
		t.Fatalf("expected refresh to trigger the loader at least once, got %d calls", got)
	}

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if v, _ := c.Get("k"); v != 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("refreshed value never became visible")
}

// A refresh loader returning a nil-like (pointer) zero value removes the
// entry instead of leaving it stale forever.
func TestCache_RefreshNullResultRemovesEntry(t *testing.T) {
	t.Parallel()

	tk := &fakeTicker{}
	val := 42
	opt := Options[string, *int]{
		MaximumSize:       8,
		Ticker:            tk,
		RefreshAfterWrite: 10 * time.Millisecond,
		Loader: func(context.Context, string) (*int, error) {
			return nil, nil
		},
	}
	c := New[string, *int](opt)
	t.Cleanup(func() { _ = c.Close() })

	c.Put("k", &val)
	tk.add(100 * time.Millisecond)
	c.Get("k") // triggers the async refresh

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.Get("k"); !ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("entry should have been removed after a null refresh result")
}
