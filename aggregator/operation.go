package aggregator

import (
	"fmt"

	"github.com/graphite-tools/graphite-proxy/buffer"
)

// Operation is a runtime pairing of a Computation with the MessageBuffer
// that feeds it: one per (metric name, Computation) the first time a
// metric matching some Category is observed. Grounded on
// original_source/.../maths/pipeline.hpp's MathOperation struct.
type Operation struct {
	Computation *Computation
	Buffer      *buffer.MessageBuffer
}

// NewOperation creates an Operation whose buffer is named "<metric> <kind>"
// with the given capacity and drop_oldest=false (aggregation buffers never
// silently evict unprocessed samples; a full aggregation buffer is a
// configuration problem to be surfaced, not papered over).
func NewOperation(metric string, comp *Computation, capacity uint64) *Operation {
	name := fmt.Sprintf("%s %s", metric, comp.Kind())
	return &Operation{
		Computation: comp,
		Buffer:      buffer.New(name, capacity, false),
	}
}
