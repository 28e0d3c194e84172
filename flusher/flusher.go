// Package flusher periodically drains the GlobalBuffer and hands the whole
// drained batch to the downstream destination client in one send,
// re-adding it to the buffer on send failure so nothing is lost until the
// next attempt. Grounded on the teacher aggregator's own tick-driven drain
// loop, generalized to the GlobalBuffer/destination.Client pairing per
// SPEC_FULL.md §4.6, plus an optional sampled Kafka audit publish per
// message actually sent.
package flusher

import (
	"time"

	"github.com/graphite-tools/graphite-proxy/message"
)

// GlobalBuffer is the capability the Flusher needs from the pass-through
// buffer layer.
type GlobalBuffer interface {
	TakeAll() []message.Message
	Add(msg message.Message) bool
}

// Sender is the capability the Flusher needs from package destination.
type Sender interface {
	Send(messages []message.Message) bool
}

// Auditor optionally observes every successfully sent message (e.g. a
// sampled Kafka audit trail). Nil disables auditing.
type Auditor interface {
	Publish(msg message.Message)
}

// Flusher drains every non-empty child buffer on each tick and forwards
// the batch downstream.
type Flusher struct {
	global  GlobalBuffer
	sender  Sender
	auditor Auditor
}

// New creates a Flusher. auditor may be nil.
func New(global GlobalBuffer, sender Sender, auditor Auditor) *Flusher {
	return &Flusher{global: global, sender: sender, auditor: auditor}
}

// Tick drains every child buffer in a single combined batch and hands it
// to the downstream client in one Send call, so one tick opens at most one
// connection and a downstream outage is detected/retried atomically for
// the whole batch, not per metric.
func (f *Flusher) Tick(now time.Time) {
	batch := f.global.TakeAll()
	if len(batch) == 0 {
		return
	}

	if !f.sender.Send(batch) {
		for _, m := range batch {
			f.global.Add(m)
		}
		return
	}

	if f.auditor != nil {
		for _, m := range batch {
			f.auditor.Publish(m)
		}
	}
}
