// Package clock provides the injectable time sources used throughout the
// proxy so that windowed aggregation and periodic tasks can be driven
// deterministically in tests, the same way the teacher repository's
// aggregator wires a `now func() time.Time` and a `tick <-chan time.Time`
// into its constructor instead of calling time.Now/time.NewTicker directly.
package clock

import "time"

// Now returns the current time. Production code passes time.Now; tests pass
// a function closing over a mutable instant.
type Now func() time.Time

// Real is the Now implementation used outside of tests.
func Real() time.Time { return time.Now() }

// Seconds returns the current wall-clock time in epoch seconds.
func Seconds(now Now) uint64 {
	return uint64(now().Unix())
}

// Ticker abstracts time.Ticker so periodic tasks can be driven by a fake
// channel in tests.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// NewTicker wraps time.NewTicker behind the Ticker interface.
func NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}
