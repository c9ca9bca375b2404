package cache

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// boundedExecutor is the default Executor: it dispatches onto goroutines but
// caps how many of its own goroutines may run at once using
// golang.org/x/sync/semaphore. Without a bound, a refresh storm (many
// entries crossing RefreshAfterWrite at once) or a removal-notification
// burst (InvalidateAllEntries on a large cache) could spin up unbounded
// goroutines; semaphore.Weighted turns that into bounded queuing instead.
type boundedExecutor struct {
	sem *semaphore.Weighted
}

const defaultExecutorConcurrency = 256

func newBoundedExecutor() *boundedExecutor {
	return &boundedExecutor{sem: semaphore.NewWeighted(defaultExecutorConcurrency)}
}

func (e *boundedExecutor) Execute(fn func()) {
	if err := e.sem.Acquire(context.Background(), 1); err != nil {
		// context.Background() never cancels; Acquire only errors here if
		// the requested weight exceeds the semaphore's total, which it
		// never does (both are 1 and defaultExecutorConcurrency).
		go fn()
		return
	}
	go func() {
		defer e.sem.Release(1)
		fn()
	}()
}
