// Package router implements message dispatch and persistence orchestration.
// Grounded on original_source/src/library/graphite_proxy/models/router.{hpp,cpp}.
package router

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/graphite-tools/graphite-proxy/aggregator"
	"github.com/graphite-tools/graphite-proxy/badmetrics"
	"github.com/graphite-tools/graphite-proxy/buffer"
	"github.com/graphite-tools/graphite-proxy/message"
	"github.com/graphite-tools/graphite-proxy/persistence"
	"github.com/graphite-tools/graphite-proxy/stats"
)

// Router dispatches parsed messages to either the AggregationPipeline or
// the GlobalBuffer, and orchestrates save/load of pending state across
// both.
type Router struct {
	global   *buffer.GlobalBuffer
	pipeline *aggregator.Pipeline // nil disables aggregation entirely
	store    *persistence.Store
	tap      *badmetrics.Tap // nil disables bad-metrics broadcasting
	registry *stats.Registry
}

// New creates a Router. pipeline and tap may be nil.
func New(global *buffer.GlobalBuffer, pipeline *aggregator.Pipeline, store *persistence.Store, tap *badmetrics.Tap, registry *stats.Registry) *Router {
	return &Router{
		global:   global,
		pipeline: pipeline,
		store:    store,
		tap:      tap,
		registry: registry,
	}
}

// RouteLine parses raw as a single wire-format line and routes the result.
// On parse failure it counts requests.dropped, logs, and broadcasts the
// raw line to the bad-metrics tap.
func (r *Router) RouteLine(raw string, receivedAt uint64) bool {
	msg, ok := message.ParseLine(raw, receivedAt)
	if !ok {
		r.badSyntax(raw)
		return false
	}
	return r.Route(msg)
}

func (r *Router) badSyntax(raw string) {
	log.WithField("line", raw).Warn("router: bad message syntax, dropped")
	if r.registry != nil {
		r.registry.Counter(stats.RequestsDropped).Inc(1)
	}
	if r.tap != nil {
		r.tap.Publish(raw, time.Now())
	}
}

// Route dispatches an already-parsed message to the pipeline (if it wants
// it) or the global buffer.
func (r *Router) Route(msg message.Message) bool {
	if r.registry != nil {
		r.registry.Counter(stats.MessagesCreated).Inc(1)
	}

	if r.pipeline != nil && r.pipeline.IsWanted(msg.Name()) {
		return r.pipeline.Add(msg, "")
	}
	return r.global.Add(msg)
}

// SerializePending drains the GlobalBuffer into ptPath and, if a pipeline
// is configured, every aggregation operation buffer into mathPath (each
// line suffixed with its operation kind). Returns the total messages
// saved, or -1 when the pass-through file cannot be written (the
// aggregation buffers are then not drained). If only the aggregation file
// cannot be written, the error is logged and the pass-through count is
// returned.
func (r *Router) SerializePending(ptPath, mathPath string) int {
	passThrough := r.global.TakeAll()
	ptLines := make([]string, len(passThrough))
	for i, m := range passThrough {
		ptLines[i] = m.Serialize()
	}

	saved := r.store.SaveLines(ptPath, ptLines)
	if saved == -1 {
		return -1
	}

	if r.pipeline == nil {
		return saved
	}

	pending := r.pipeline.DrainAll()
	persistPending := make([]persistence.PendingMessage, len(pending))
	for i, p := range pending {
		persistPending[i] = persistence.PendingMessage{Message: p.Message, Kind: p.Kind}
	}
	mathLines := persistence.SerializeAggregation(persistPending)

	mathSaved := r.store.SaveLines(mathPath, mathLines)
	if mathSaved == -1 {
		log.WithField("path", mathPath).Error("router: can't save aggregation messages")
		return saved
	}

	return saved + mathSaved
}

// LoadPending reads ptPath and routes every line through RouteLine, then
// reads mathPath (if a pipeline is configured) and restores each saved
// aggregation message to the exact operation it came from. Returns the
// total number of messages reloaded.
func (r *Router) LoadPending(ptPath, mathPath string, now uint64) int {
	loaded := 0

	ptLines, err := r.store.LoadLines(ptPath)
	if err != nil {
		log.WithField("path", ptPath).WithError(err).Error("router: can't load pass-through messages")
	}
	for _, line := range ptLines {
		if r.RouteLine(line, now) {
			loaded++
		}
	}

	if r.pipeline == nil {
		return loaded
	}

	mathLines, err := r.store.LoadLines(mathPath)
	if err != nil {
		log.WithField("path", mathPath).WithError(err).Error("router: can't load aggregation messages")
		return loaded
	}

	for _, line := range mathLines {
		msg, kind, ok := persistence.ParseAggregationLine(line, now)
		if !ok {
			log.WithField("line", line).Warn("router: bad saved aggregation message syntax")
			continue
		}
		if r.pipeline.Add(msg, kind) {
			loaded++
		}
	}

	return loaded
}
