// Package badmetrics broadcasts malformed input lines to any number of
// observers (e.g. an admin endpoint, a debug log tail) without coupling the
// Router to a specific consumer. Grounded on the teacher's use of
// github.com/Dieterbe/topic elsewhere in its stack for broadcast-style fan
// out of rejected input; this module reuses the same library for the same
// purpose rather than hand-rolling a broadcast channel.
package badmetrics

import (
	"time"

	"github.com/Dieterbe/topic"
)

// Entry is one rejected input line, with the instant it was rejected.
type Entry struct {
	Line string
	At   time.Time
}

// Tap broadcasts bad-metric entries to any number of subscribers.
type Tap struct {
	topic *topic.Topic
}

// New creates a Tap.
func New() *Tap {
	return &Tap{topic: topic.New()}
}

// Publish broadcasts one rejected line to every current subscriber. Never
// blocks the caller (the Router's hot path): subscribers that fall behind
// simply miss entries rather than stall ingestion.
func (t *Tap) Publish(line string, at time.Time) {
	t.topic.Broadcast <- Entry{Line: line, At: at}
}

// Subscribe returns a channel that receives every subsequently published
// Entry. Callers should range over it in their own goroutine.
func (t *Tap) Subscribe() chan interface{} {
	return t.topic.Register()
}

// Unsubscribe stops delivery to a channel previously returned by
// Subscribe.
func (t *Tap) Unsubscribe(ch chan interface{}) {
	t.topic.Unregister(ch)
}
