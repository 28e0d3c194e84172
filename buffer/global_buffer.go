package buffer

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/graphite-tools/graphite-proxy/message"
)

// Sender is the downstream egress capability GlobalBuffer needs: hand it a
// batch, get back whether it was accepted. The concrete implementation
// lives in package destination; GlobalBuffer only depends on this small
// interface to avoid a buffer<->destination import cycle.
type Sender interface {
	Send(messages []message.Message) bool
}

// GlobalBuffer maps metric name to its MessageBuffer and is the ingress
// point for both pass-through and aggregated traffic (SPEC_FULL.md §4.3).
// A single mutex serializes lookup and creation of child buffers; each
// child buffer then serializes its own access independently.
type GlobalBuffer struct {
	mu sync.Mutex

	buffers    map[string]*MessageBuffer
	capacity   uint64
	dropOldest bool
	client     Sender
}

// New creates a GlobalBuffer. Every child buffer it creates inherits
// capacity and dropOldest; client is the downstream sender invoked when a
// child buffer fills.
func New(capacity uint64, dropOldest bool, client Sender) *GlobalBuffer {
	return &GlobalBuffer{
		buffers:    make(map[string]*MessageBuffer),
		capacity:   capacity,
		dropOldest: dropOldest,
		client:     client,
	}
}

// Add routes msg into its metric's child buffer, creating the buffer on
// first use. If the insertion fills the buffer to capacity, the buffer is
// immediately drained and handed to the downstream client; on send
// failure every drained message is re-added to the same child buffer
// (SPEC_FULL.md §4.3).
func (g *GlobalBuffer) Add(msg message.Message) bool {
	if !msg.IsValid() {
		return false
	}

	child := g.childFor(msg.Name())

	if !child.Add(msg) {
		log.WithField("buffer", msg.Name()).Warn("global buffer: message dropped, buffer full")
		return false
	}

	if child.Size() >= child.Capacity() {
		batch := child.TakeAll()
		if len(batch) > 0 && g.client != nil && !g.client.Send(batch) {
			for _, m := range batch {
				child.Add(m)
			}
		}
	}

	return true
}

func (g *GlobalBuffer) childFor(name string) *MessageBuffer {
	g.mu.Lock()
	defer g.mu.Unlock()

	child, ok := g.buffers[name]
	if !ok {
		child = New(name, g.capacity, g.dropOldest)
		g.buffers[name] = child
	}
	return child
}

// TakeAll drains every child buffer and returns the combined result.
func (g *GlobalBuffer) TakeAll() []message.Message {
	g.mu.Lock()
	children := make([]*MessageBuffer, 0, len(g.buffers))
	for _, c := range g.buffers {
		children = append(children, c)
	}
	g.mu.Unlock()

	var out []message.Message
	for _, c := range children {
		out = append(out, c.TakeAll()...)
	}
	return out
}

// TakeByName drains the single buffer for name, or returns nil if there is
// no such buffer.
func (g *GlobalBuffer) TakeByName(name string) []message.Message {
	g.mu.Lock()
	child, ok := g.buffers[name]
	g.mu.Unlock()

	if !ok {
		return nil
	}
	return child.TakeAll()
}

// BufferSizes returns a snapshot of every child buffer's current size.
func (g *GlobalBuffer) BufferSizes() map[string]uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]uint64, len(g.buffers))
	for name, c := range g.buffers {
		out[name] = c.Size()
	}
	return out
}

// HighWaterMark returns the maximum high-water mark across all child
// buffers.
func (g *GlobalBuffer) HighWaterMark() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	var max uint64
	for _, c := range g.buffers {
		if hwm := c.HighWaterMark(); hwm > max {
			max = hwm
		}
	}
	return max
}

// Remove deletes the named buffer entirely. Called only by the Reaper.
func (g *GlobalBuffer) Remove(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.buffers, name)
}
