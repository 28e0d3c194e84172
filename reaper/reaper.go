// Package reaper periodically removes long-idle per-metric buffers from
// the GlobalBuffer and, optionally, the aggregation pipeline's operation
// buffers. Grounded on
// original_source/src/library/graphite_proxy/models/buffers/cleaner.cpp's
// Cleaner::clean: a buffer observed empty on MaxEmptyStreak consecutive
// sweeps is removed; any non-empty observation resets its streak.
package reaper

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/graphite-tools/graphite-proxy/aggregator"
	"github.com/graphite-tools/graphite-proxy/stats"
)

// GlobalBuffer is the capability the Reaper needs from the pass-through
// buffer layer.
type GlobalBuffer interface {
	BufferSizes() map[string]uint64
	Remove(name string)
}

// Pipeline is the capability the Reaper needs from the aggregation layer.
type Pipeline interface {
	TrackableBuffers() []aggregator.BufferHandle
	Remove(name string)
}

// Reaper tracks consecutive-empty streaks per buffer, namespaced "gb_" for
// GlobalBuffer entries and "math_" for Pipeline entries (matching the
// original's naming), and removes a buffer once its streak reaches
// MaxEmptyStreak.
type Reaper struct {
	mu sync.Mutex

	global         GlobalBuffer
	pipeline       Pipeline // nil or CleanMaths=false disables the maths sweep
	cleanMaths     bool
	maxEmptyStreak int
	registry       *stats.Registry

	streaks map[string]int
}

// minMaxEmptyStreak mirrors Cleaner's hard floor on max_empty_time.
const minMaxEmptyStreak = 2

// New creates a Reaper. maxEmptyStreak below minMaxEmptyStreak is clamped
// up to it, matching the original's "security on minimum value".
func New(global GlobalBuffer, pipeline Pipeline, cleanMaths bool, maxEmptyStreak int, registry *stats.Registry) *Reaper {
	if maxEmptyStreak < minMaxEmptyStreak {
		maxEmptyStreak = minMaxEmptyStreak
	}
	return &Reaper{
		global:         global,
		pipeline:       pipeline,
		cleanMaths:     cleanMaths,
		maxEmptyStreak: maxEmptyStreak,
		registry:       registry,
		streaks:        make(map[string]int),
	}
}

// Sweep runs one cleaning pass: every GlobalBuffer entry, then (if
// enabled) every Pipeline operation buffer.
func (r *Reaper) Sweep() {
	for name, size := range r.global.BufferSizes() {
		r.observe("gb_"+name, size, func() { r.global.Remove(name) })
	}

	if r.cleanMaths && r.pipeline != nil {
		for _, h := range r.pipeline.TrackableBuffers() {
			r.observe("math_"+h.Name, h.Size, func() { r.pipeline.Remove(h.Name) })
		}
	}
}

func (r *Reaper) observe(key string, size uint64, remove func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if size != 0 {
		delete(r.streaks, key)
		return
	}

	streak, tracked := r.streaks[key]
	if !tracked {
		r.streaks[key] = 1
		return
	}

	if streak+1 == r.maxEmptyStreak {
		delete(r.streaks, key)
		remove()
		log.WithField("buffer", key).Debug("reaper: removed idle buffer")
		if r.registry != nil {
			r.registry.Counter(stats.BuffersReaped).Inc(1)
		}
		return
	}

	r.streaks[key] = streak + 1
}
