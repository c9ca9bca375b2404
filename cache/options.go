package cache

import (
	"context"
	"log"
	"time"

	"github.com/boundedcache/boundedcache/policy"
)

// Ticker is the cache's time source. Default: monotonic system time, as
// nanoseconds elapsed since the package was initialized.
type Ticker interface{ NowNanos() int64 }

type systemTicker struct{}

// tickerBase anchors systemTicker; time.Since reads the monotonic clock.
var tickerBase = time.Now()

func (systemTicker) NowNanos() int64 { return int64(time.Since(tickerBase)) }

// Executor dispatches removal notifications and async reloads off the
// eviction lock, so the core never blocks on user code while holding it.
// Default: boundedExecutor (cache/executor.go), bounded so a refresh or
// removal-notification storm cannot spawn an unbounded number of goroutines.
type Executor interface{ Execute(func()) }

// Logger receives refresh- and listener-failure diagnostics; both kinds are
// logged and swallowed, never surfaced to callers. Defaults to the standard
// library's log package (see DESIGN.md for why no third-party logging
// library is used here).
type Logger interface{ Printf(format string, args ...any) }

type stdLogger struct{}

func (stdLogger) Printf(format string, args ...any) { log.Printf(format, args...) }

// Loader fetches a value on a single-key miss, invoked at most once per
// concurrent cohort of callers for a given key. A nil error with a nil
// pointer, map, slice, interface, channel or func is treated as "no value";
// the zero value of any other type is stored as a real value.
type Loader[K comparable, V any] func(ctx context.Context, key K) (V, error)

// BulkLoader optionally backs GetAll-driven bulk fills. A result map missing
// a requested key causes that key to be treated as a load failure;
// extraneous keys in the result are accepted but only requested keys are
// installed.
type BulkLoader[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// RemovalListener observes every retired -> dead transition. Panics raised
// from within it are caught, logged via Logger, and discarded.
type RemovalListener[K comparable, V any] func(RemovalNotification[K, V])

// Options configures a Cache. There is no implicit default capacity: either
// MaximumSize or MaximumWeight must be set. MaximumWeight without a Weigher
// weighs every entry as 1.
//
// This struct plus New[K, V] is the constructor surface: Go has no
// constructor overloading, so a struct of options and one validating
// function constructor stands in for a builder type.
type Options[K comparable, V any] struct {
	// InitialCapacity sizes the hash index up front; a hint, not a bound.
	InitialCapacity int

	// Shards controls the number of independent cache partitions. 0 selects
	// an automatic value. The count is rounded up to a power of two, then
	// halved while it exceeds MaximumSize/MaximumWeight, so every shard's
	// share of the bound is at least 1.
	Shards int

	// Policy is the pluggable eviction-ordering strategy. Nil selects the
	// built-in weighted-LRU policy (policy/lru).
	Policy policy.Policy[K, V]

	// MaximumSize and MaximumWeight+Weigher are mutually exclusive.
	// MaximumSize is sugar for MaximumWeight with a constant-1 weigher.
	MaximumSize   int64
	MaximumWeight int64
	Weigher       func(key K, value V) int

	// ExpireAfterAccess/ExpireAfterWrite enable two independent expiry
	// schedules. Use the SetExpireAfter* setters (not a bare struct literal)
	// when you mean to set the duration to exactly 0, which has a meaning
	// distinct from "left unset": it collapses to immediate eviction of
	// every entry, dominating any other bound.
	ExpireAfterAccess   time.Duration
	ExpireAfterWrite    time.Duration
	expireAfterAccessSet bool
	expireAfterWriteSet  bool

	// RefreshAfterWrite enables refresh-on-stale-read. Requires Loader.
	// Must be > 0 if set.
	RefreshAfterWrite time.Duration

	// WeakKeys is accepted but currently inert: Go's map-key constraint
	// means the index always retains keys strongly, and nothing in this
	// package reads this field yet. Reserved for a future identity-equality
	// key wrapper; setting it today changes no observable behavior.
	WeakKeys bool
	// WeakValues/SoftValues enable value reclamation via weak.Pointer and
	// runtime.AddCleanup (cache/weakref.go). Mutually exclusive.
	WeakValues bool
	SoftValues bool

	// RemovalListener, if set, is invoked on Executor for every removal.
	RemovalListener RemovalListener[K, V]

	// RecordStats enables the Stats() counters; otherwise they stay zero.
	RecordStats bool

	// Ticker overrides the time source (tests use a fake one).
	Ticker Ticker
	// Executor overrides the async dispatcher.
	Executor Executor
	// Logger overrides the destination for swallowed refresh/listener errors.
	Logger Logger

	// Loader backs GetWithLoader and the single-key fallback path of
	// GetAll's bulk fill.
	Loader Loader[K, V]
	// BulkLoader, if set, backs GetAll's bulk fill directly.
	BulkLoader BulkLoader[K, V]

	// zeroCapacity is set by validate when ExpireAfterAccess/Write was
	// explicitly set to 0: this dominates every other bound, collapsing to
	// "every insertion evicts immediately". It is distinct from an unset
	// MaximumSize/MaximumWeight, which validate rejects outright, so it
	// cannot be folded into those fields.
	zeroCapacity bool
}

// SetExpireAfterAccess and SetExpireAfterWrite record that a duration,
// including zero, was explicitly requested. See the ExpireAfter* field
// docs for why a plain struct literal can't express "set to zero".
func (o *Options[K, V]) SetExpireAfterAccess(d time.Duration) {
	o.ExpireAfterAccess = d
	o.expireAfterAccessSet = true
}

func (o *Options[K, V]) SetExpireAfterWrite(d time.Duration) {
	o.ExpireAfterWrite = d
	o.expireAfterWriteSet = true
}

func (o *Options[K, V]) validate() {
	if o.MaximumSize > 0 && o.MaximumWeight > 0 {
		panic("cache: MaximumSize and MaximumWeight are mutually exclusive")
	}
	if o.Weigher != nil && o.MaximumWeight <= 0 {
		panic("cache: Weigher requires MaximumWeight")
	}
	if o.MaximumSize <= 0 && o.MaximumWeight <= 0 {
		panic("cache: one of MaximumSize or MaximumWeight must be set")
	}
	if o.WeakValues && o.SoftValues {
		panic("cache: WeakValues and SoftValues are mutually exclusive")
	}
	if (o.WeakValues || o.SoftValues) && o.Loader != nil && o.RefreshAfterWrite > 0 {
		// Refresh dispatches the reload asynchronously, which races the GC's
		// reclamation of a weak/soft value in a way synchronous loads don't.
		panic("cache: RefreshAfterWrite is incompatible with WeakValues/SoftValues")
	}
	if o.RefreshAfterWrite < 0 {
		panic("cache: RefreshAfterWrite must be >= 0")
	}
	if o.RefreshAfterWrite > 0 && o.Loader == nil {
		panic("cache: RefreshAfterWrite requires a Loader")
	}
	if (o.expireAfterAccessSet && o.ExpireAfterAccess == 0) ||
		(o.expireAfterWriteSet && o.ExpireAfterWrite == 0) {
		// An explicit zero duration dominates, collapsing to immediate
		// eviction regardless of any size/weight bound.
		o.zeroCapacity = true
	}
}

func (o *Options[K, V]) ticker() Ticker {
	if o.Ticker != nil {
		return o.Ticker
	}
	return systemTicker{}
}

func (o *Options[K, V]) executor() Executor {
	if o.Executor != nil {
		return o.Executor
	}
	return newBoundedExecutor()
}

func (o *Options[K, V]) logger() Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return stdLogger{}
}
