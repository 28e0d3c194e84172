// Package aggregator implements the windowed-computation pipeline: metric
// names matching a configured Category are routed into per-(metric,
// computation) buffers and periodically reduced (sum, average, min, max,
// median, variance, deviation, tiles) into result messages fed back to a
// downstream sink. Grounded on the teacher's channel-driven worker shape in
// aggregator.go (injectable clock/ticker, shutdown-via-close-plus-waitgroup,
// prefix pre-match, regex-match caching) generalized to the semantics of
// original_source/.../maths/pipeline.{hpp,cpp}.
package aggregator

import (
	"io"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	log "github.com/sirupsen/logrus"

	"github.com/graphite-tools/graphite-proxy/clock"
	"github.com/graphite-tools/graphite-proxy/message"
	"github.com/graphite-tools/graphite-proxy/stats"
)

// Sink is the downstream capability the pipeline needs to deliver computed
// results to -- satisfied by buffer.GlobalBuffer. A local interface avoids
// an aggregator<->buffer import cycle, matching the approach buffer package
// takes for its own Sender dependency.
type Sink interface {
	Add(msg message.Message) bool
}

// BufferHandle names one operation buffer and its current size, for the
// Reaper's optional aggregation-buffer sweep (SPEC_FULL.md §4.4, §4.7).
type BufferHandle struct {
	Name string
	Size uint64
}

type matchCacheEntry struct {
	category *Category
	ok       bool
}

// Pipeline is the AggregationPipeline: an ordered list of Categories plus a
// lazily-populated metric -> []Operation map, all guarded by a single
// mutex. Per SPEC_FULL.md §5's lock discipline, Pipeline may call into its
// Sink while holding its own lock; Sink must never call back into Pipeline.
type Pipeline struct {
	mu sync.Mutex

	valid      bool
	categories []*Category
	operations map[string][]*Operation
	matchCache map[uint64]matchCacheEntry

	sink       Sink
	bufferSize uint64
	now        clock.Now
	registry   *stats.Registry
}

// New constructs a Pipeline from an aggregation-rules XML document, reading
// it from r. bufferSize bounds every operation's MessageBuffer capacity.
// sink receives every computed result message.
func New(r io.Reader, bufferSize uint64, sink Sink, registry *stats.Registry) (*Pipeline, error) {
	return newPipeline(r, bufferSize, sink, registry, clock.Real)
}

func newPipeline(r io.Reader, bufferSize uint64, sink Sink, registry *stats.Registry, now clock.Now) (*Pipeline, error) {
	p := &Pipeline{
		operations: make(map[string][]*Operation),
		sink:       sink,
		bufferSize: bufferSize,
		now:        now,
		registry:   registry,
	}

	if err := p.reloadLocked(r); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload discards the current category list and match cache (but keeps the
// live operations map -- existing buffers keep draining even if their
// metric no longer matches any category; the Reaper reclaims them once
// they empty) and installs a freshly parsed configuration. If the new
// document yields no usable category, the current configuration stays in
// place and the error is returned.
func (p *Pipeline) Reload(r io.Reader) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloadLocked(r)
}

func (p *Pipeline) reloadLocked(r io.Reader) error {
	categories, err := LoadCategories(r, uint64(p.now().Unix()))
	if err != nil {
		return err
	}
	p.categories = categories
	p.matchCache = make(map[uint64]matchCacheEntry)
	p.valid = true
	return nil
}

// Valid reports whether the pipeline has at least one usable category.
func (p *Pipeline) Valid() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.valid
}

func nameHash(name string) uint64 {
	return xxhash.Sum64String(name)
}

// isWanted returns the first category (in configuration order) whose
// pattern matches name, consulting and populating the hash-keyed match
// cache. Must be called with p.mu held.
func (p *Pipeline) isWanted(name string) *Category {
	h := nameHash(name)
	if entry, ok := p.matchCache[h]; ok {
		if entry.ok {
			return entry.category
		}
		return nil
	}

	nameBytes := []byte(name)
	for _, cat := range p.categories {
		if cat.Matches(nameBytes) {
			p.matchCache[h] = matchCacheEntry{category: cat, ok: true}
			return cat
		}
	}
	p.matchCache[h] = matchCacheEntry{ok: false}
	return nil
}

// IsWanted is the exported, locked form of isWanted, used by the Router to
// decide whether a message should go to the pipeline or straight to the
// GlobalBuffer.
func (p *Pipeline) IsWanted(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isWanted(name) != nil
}

// Add routes msg into every matching operation's buffer (computationFilter
// == ""), or into exactly the operation whose kind-string equals
// computationFilter (used when restoring persisted aggregation messages,
// each of which names the single operation it came from).
func (p *Pipeline) Add(msg message.Message, computationFilter string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.valid || !msg.IsValid() {
		return false
	}

	cat := p.isWanted(msg.Name())
	if cat == nil {
		return false
	}

	ops, ok := p.operations[msg.Name()]
	if !ok {
		ops = make([]*Operation, 0, len(cat.Computations))
		for _, comp := range cat.Computations {
			ops = append(ops, NewOperation(msg.Name(), comp, p.bufferSize))
		}
		p.operations[msg.Name()] = ops
	}

	if computationFilter == "" {
		for _, op := range ops {
			if !op.Buffer.Add(msg) {
				log.WithField("buffer", op.Buffer.Name()).Warn("aggregator: message dropped, operation buffer full")
			}
		}
		return true
	}

	for _, op := range ops {
		if op.Computation.Kind().String() == computationFilter {
			if !op.Buffer.Add(msg) {
				log.WithField("buffer", op.Buffer.Name()).Warn("aggregator: message dropped, operation buffer full")
			}
			return true
		}
	}
	return false
}

// Tick evaluates every operation's trigger against now and emits any
// windows that have become due, per SPEC_FULL.md §4.4's tick(now) rules.
func (p *Pipeline) Tick(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	nowSecs := uint64(now.Unix())

	for metric, ops := range p.operations {
		for _, op := range ops {
			switch {
			case op.Computation.IsOnCount():
				p.tickOnCount(metric, op)
			case op.Computation.IsOnTime():
				p.tickOnTime(metric, op, nowSecs)
			}
		}
	}
}

func (p *Pipeline) tickOnCount(metric string, op *Operation) {
	threshold := op.Computation.Count()
	if op.Buffer.Size() < threshold {
		return
	}
	window := op.Buffer.Take(threshold)
	p.emit(metric, op, window)
}

func (p *Pipeline) tickOnTime(metric string, op *Operation, now uint64) {
	for {
		next := op.Computation.NextFireTime()
		if now < next {
			return
		}

		window := op.Buffer.TakeOlderThan(next)
		if len(window) == 0 {
			op.Computation.SetLastFired(now)
			return
		}

		p.emit(metric, op, window)
		op.Computation.AdvanceLastFired()
	}
}

func (p *Pipeline) emit(metric string, op *Operation, window []message.Message) {
	if len(window) == 0 {
		return
	}

	result, ok := compute(op.Computation.Kind(), window, optionsOf(op.Computation))
	if !ok {
		log.WithField("computation", op.Computation.String()).Error("aggregator: computation failed")
		return
	}

	out := message.New(metric, result, window[len(window)-1].Timestamp(), window[len(window)-1].ReceivedAt())
	p.countComputed(op.Computation.Kind())
	p.sink.Add(out)
}

func (p *Pipeline) countComputed(kind Kind) {
	if p.registry == nil {
		return
	}
	p.registry.Counter(stats.MathsMessages).Inc(1)

	var name string
	switch kind {
	case Sum:
		name = stats.MathsSum
	case Average:
		name = stats.MathsAverage
	case Min:
		name = stats.MathsMin
	case Max:
		name = stats.MathsMax
	case Median:
		name = stats.MathsMedian
	case Variance:
		name = stats.MathsVariance
	case Deviation:
		name = stats.MathsDeviation
	case Tiles:
		name = stats.MathsTiles
	default:
		return
	}
	p.registry.Counter(name).Inc(1)
}

func optionsOf(c *Computation) map[string]string {
	opts := map[string]string{}
	for _, name := range []string{"value", "below", "multiplicator"} {
		if v := c.Option(name); v != "" {
			opts[name] = v
		}
	}
	return opts
}

// TrackableBuffers enumerates every operation's buffer name and live size,
// for the Reaper's optional aggregation-buffer sweep.
func (p *Pipeline) TrackableBuffers() []BufferHandle {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []BufferHandle
	for _, ops := range p.operations {
		for _, op := range ops {
			out = append(out, BufferHandle{Name: op.Buffer.Name(), Size: op.Buffer.Size()})
		}
	}
	return out
}

// HighWaterMark returns the maximum high-water mark across every
// operation buffer, for the stats collector's math_buffer gauge.
func (p *Pipeline) HighWaterMark() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	var max uint64
	for _, ops := range p.operations {
		for _, op := range ops {
			if hwm := op.Buffer.HighWaterMark(); hwm > max {
				max = hwm
			}
		}
	}
	return max
}

// Remove deletes the named operation buffer's metric entry entirely if any
// of its operation buffer names equal name; the next accepted Add for that
// metric rebuilds one operation per computation of its category. Called
// only by the Reaper.
func (p *Pipeline) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for metric, ops := range p.operations {
		for _, op := range ops {
			if op.Buffer.Name() == name {
				delete(p.operations, metric)
				return
			}
		}
	}
}

// DrainAll drains every operation buffer across every metric, tagging each
// message with the operation's kind so callers (persistence) can restore
// it to the correct operation later. Used by Router.SerializePending.
func (p *Pipeline) DrainAll() []PendingMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []PendingMessage
	for _, ops := range p.operations {
		for _, op := range ops {
			for _, msg := range op.Buffer.TakeAll() {
				out = append(out, PendingMessage{Message: msg, Kind: op.Computation.Kind().String()})
			}
		}
	}
	return out
}

// PendingMessage pairs a message with the operation kind it was drained
// from, matching the aggregation persistence file's fourth token.
type PendingMessage struct {
	Message message.Message
	Kind    string
}
