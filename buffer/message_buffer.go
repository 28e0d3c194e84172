// Package buffer implements the proxy's two buffering layers: the
// per-metric MessageBuffer FIFO and the GlobalBuffer that owns one
// MessageBuffer per metric name. Grounded on
// original_source/src/library/graphite_proxy/models/buffers/{message_buffer,global_buffer}.cpp.
package buffer

import (
	"sync"

	"github.com/graphite-tools/graphite-proxy/message"
)

// defaultMaxCapacity is the implementation ceiling a configured capacity is
// clamped to, mirroring message_buffer.cpp's check against
// m_message_list.max_size().
const defaultMaxCapacity = 1 << 24

// MessageBuffer is a named, bounded FIFO queue of messages for a single
// metric. All operations are serialized by an internal mutex
// (SPEC_FULL.md §4.2).
type MessageBuffer struct {
	mu sync.Mutex

	name        string
	capacity    uint64
	dropOldest  bool
	queue       []message.Message
	highWater   uint64
}

// New creates a MessageBuffer. A capacity beyond the implementation ceiling
// is silently clamped, matching message_buffer.cpp's warning-and-shrink
// behavior (minus the warning, which callers may log themselves using the
// returned Capacity()).
func New(name string, capacity uint64, dropOldest bool) *MessageBuffer {
	if capacity > defaultMaxCapacity {
		capacity = defaultMaxCapacity
	}
	return &MessageBuffer{
		name:       name,
		capacity:   capacity,
		dropOldest: dropOldest,
		queue:      make([]message.Message, 0, min64(capacity, 64)),
	}
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// Name returns the buffer's metric name.
func (b *MessageBuffer) Name() string { return b.name }

// Capacity returns the (possibly clamped) configured capacity.
func (b *MessageBuffer) Capacity() uint64 { return b.capacity }

// DropOldest reports whether this buffer evicts the oldest entry (true) or
// rejects new entries (false) when full.
func (b *MessageBuffer) DropOldest() bool { return b.dropOldest }

// Size returns the number of messages currently queued.
func (b *MessageBuffer) Size() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint64(len(b.queue))
}

// Empty reports whether the buffer currently holds no messages.
func (b *MessageBuffer) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) == 0
}

// HighWaterMark returns the largest size ever observed by Add.
func (b *MessageBuffer) HighWaterMark() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.highWater
}

// Add enqueues msg. If the buffer is full and DropOldest is true, the
// oldest message is evicted to make room and Add succeeds; if DropOldest
// is false, Add fails and msg is dropped (SPEC_FULL.md §4.2).
func (b *MessageBuffer) Add(msg message.Message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if uint64(len(b.queue)) >= b.capacity {
		if b.dropOldest {
			b.queue = b.queue[1:]
		} else {
			return false
		}
	}

	b.queue = append(b.queue, msg)
	if size := uint64(len(b.queue)); size > b.highWater {
		b.highWater = size
	}
	return true
}

// Take dequeues up to n oldest messages in FIFO order. n == 0 means "take
// everything currently queued".
func (b *MessageBuffer) Take(n uint64) []message.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return nil
	}

	k := uint64(len(b.queue))
	if n > 0 && n < k {
		k = n
	}

	out := make([]message.Message, k)
	copy(out, b.queue[:k])
	b.queue = b.queue[k:]
	return out
}

// TakeAll dequeues every message currently queued.
func (b *MessageBuffer) TakeAll() []message.Message {
	return b.Take(0)
}

// TakeOlderThan makes one pass over the queue, pulling out every message
// whose timestamp is <= maxTimestamp (in FIFO order) and leaving the rest
// in their relative order (SPEC_FULL.md §4.2). The pass holds the buffer's
// lock, so no concurrent Add interleaves with it: it is a stable O(n)
// partition.
func (b *MessageBuffer) TakeOlderThan(maxTimestamp uint64) []message.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return nil
	}

	var out []message.Message
	kept := b.queue[:0:0]
	for _, m := range b.queue {
		if m.Timestamp() <= maxTimestamp {
			out = append(out, m)
		} else {
			kept = append(kept, m)
		}
	}
	b.queue = kept
	return out
}
