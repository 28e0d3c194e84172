// Package periodic provides the worker shape shared by every tick-driven
// component (Flusher, Reaper, StatsCollector, the aggregation pipeline's
// own ticker): sleep for a period, invoke a callback, repeat until told to
// stop. Grounded on the teacher aggregator's own run() loop
// (_examples/nozomi1773-carbon-relay-ng/aggregator/aggregator.go), which
// selects over a tick channel and a close-only shutdown channel, tracked by
// a sync.WaitGroup. This package generalizes that shape with
// context.Context cancellation in place of a bare close-only channel, per
// SPEC_FULL.md §5's concurrency model.
package periodic

import (
	"context"
	"sync"
	"time"

	"github.com/graphite-tools/graphite-proxy/clock"
)

// Task runs tick() once per period until Stop is called. tick() never runs
// concurrently with itself; Stop interrupts the current sleep and blocks
// until the worker has fully exited.
type Task struct {
	period time.Duration
	tick   func(now time.Time)

	mu      sync.Mutex
	started bool

	tickMu sync.Mutex // serializes scheduled ticks with TickNow

	cancel context.CancelFunc
	wg     sync.WaitGroup

	newTicker func(time.Duration) clock.Ticker
	now       clock.Now
}

// New creates a Task with the given period and callback, using the real
// wall clock.
func New(period time.Duration, tick func(now time.Time)) *Task {
	return NewMocked(period, tick, clock.NewTicker, clock.Real)
}

// NewMocked creates a Task with injectable ticker/clock constructors, for
// deterministic tests.
func NewMocked(period time.Duration, tick func(now time.Time), newTicker func(time.Duration) clock.Ticker, now clock.Now) *Task {
	return &Task{
		period:    period,
		tick:      tick,
		newTicker: newTicker,
		now:       now,
	}
}

// Start launches the worker goroutine. A second call returns false without
// starting another worker.
func (t *Task) Start(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return false
	}
	t.started = true

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.run(runCtx)
	return true
}

func (t *Task) run(ctx context.Context) {
	defer t.wg.Done()

	ticker := t.newTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			t.tickMu.Lock()
			t.tick(now)
			t.tickMu.Unlock()
		}
	}
}

// Stop cancels the worker's context and waits for it to exit. Safe to call
// even if Start was never called.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	started := t.started
	t.mu.Unlock()

	if !started {
		return
	}
	cancel()
	t.wg.Wait()
}

// TickNow invokes the callback immediately, outside the periodic schedule
// and without disturbing the ticker. It waits for a scheduled tick that is
// already running to finish first.
func (t *Task) TickNow() {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()
	t.tick(t.now())
}
