// Package stats is the proxy's internal counters/gauges registry. It wraps
// github.com/Dieterbe/go-metrics the same way the teacher repository's
// aggregator package does (see _examples/nozomi1773-carbon-relay-ng's
// `stats.Counter("unit=...")` calls): a process-wide registry of named
// metrics.Counter/metrics.Gauge values, looked up (and lazily created) by
// name rather than passed around as constructor arguments.
package stats

import (
	"sync"

	metrics "github.com/Dieterbe/go-metrics"
)

// Registry is a process-scoped collection of counters and gauges. Unlike a
// package-level global, it is constructed explicitly by main and threaded
// through every component that needs to record activity (see DESIGN.md on
// the ProcessContext pattern replacing the original's global singletons).
type Registry struct {
	mu       sync.Mutex
	counters map[string]metrics.Counter
	gauges   map[string]metrics.Gauge
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		counters: make(map[string]metrics.Counter),
		gauges:   make(map[string]metrics.Gauge),
	}
}

// Counter returns the named counter, creating it on first use.
func (r *Registry) Counter(name string) metrics.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.counters[name]; ok {
		return c
	}
	c := metrics.NewCounter()
	r.counters[name] = c
	return c
}

// Gauge returns the named gauge, creating it on first use.
func (r *Registry) Gauge(name string) metrics.Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := metrics.NewGauge()
	r.gauges[name] = g
	return g
}

// Snapshot returns the current value of every counter registered so far and
// resets each one to zero, mirroring StatsCollector's "raise then clear"
// contract (SPEC_FULL.md §4.8).
func (r *Registry) Snapshot() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int64, len(r.counters)+len(r.gauges))
	for name, c := range r.counters {
		out[name] = c.Count()
		c.Clear()
	}
	for name, g := range r.gauges {
		out[name] = g.Value()
	}
	return out
}

// Peek returns the current value of every counter and gauge without
// clearing anything, for read-only display (e.g. the admin status
// endpoint) that must not interfere with StatsCollector's raise-then-clear
// cycle.
func (r *Registry) Peek() map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]int64, len(r.counters)+len(r.gauges))
	for name, c := range r.counters {
		out[name] = c.Count()
	}
	for name, g := range r.gauges {
		out[name] = g.Value()
	}
	return out
}

// Names used by the router/flusher/reaper/pipeline. Centralized here so a
// typo can't silently create a second counter.
const (
	MessagesCreated  = "messages.created"
	RequestsDropped  = "requests.dropped"
	RequestsSent     = "requests.send"
	RequestsSentSize = "requests.send.content"
	ClientConnFailed = "client.connection_failed"
	MathsMessages    = "maths.messages"
	MathsSum         = "maths.sum"
	MathsAverage     = "maths.average"
	MathsMin         = "maths.min"
	MathsMax         = "maths.max"
	MathsMedian      = "maths.median"
	MathsVariance    = "maths.variance"
	MathsDeviation   = "maths.deviation"
	MathsTiles       = "maths.tiles"
	BuffersReaped    = "buffers.reaped"
	RequestsIncoming = "requests.incoming"
	RequestsAccepted = "requests.accepted"
)
