// Package message implements the proxy's single data type: a parsed
// Graphite plain-text sample. It is grounded on
// original_source/src/library/graphite_proxy/models/message.{hpp,cpp},
// ported to the teacher's idiom of a small immutable value type with
// result-returning (not panicking) parsers.
package message

import (
	"fmt"
	"strconv"
	"strings"
)

// Message is an immutable Graphite sample: a metric name, a value, the
// timestamp the producer attached, and the instant the proxy received it.
// Once constructed, a Message is safe to share by reference among any
// number of goroutines without synchronization (SPEC_FULL.md §5).
type Message struct {
	name       string
	value      float64
	timestamp  uint64
	receivedAt uint64
}

// New builds a Message directly, bypassing text parsing. Used by the
// aggregation pipeline to emit computed results.
func New(name string, value float64, timestamp, receivedAt uint64) Message {
	return Message{name: name, value: value, timestamp: timestamp, receivedAt: receivedAt}
}

// Name returns the metric name.
func (m Message) Name() string { return m.name }

// Value returns the sample value.
func (m Message) Value() float64 { return m.value }

// Timestamp returns the producer-supplied epoch-seconds timestamp.
func (m Message) Timestamp() uint64 { return m.timestamp }

// ReceivedAt returns the proxy-local epoch-seconds arrival instant.
func (m Message) ReceivedAt() uint64 { return m.receivedAt }

// IsValid reports whether the message has a non-empty name. This is the
// sole validity invariant (SPEC_FULL.md §3).
func (m Message) IsValid() bool { return m.name != "" }

// Serialize returns the canonical wire form "<name> <value> <timestamp>".
// Six fractional digits keeps the encoding round-trippable for the value
// ranges this proxy handles.
func (m Message) Serialize() string {
	return fmt.Sprintf("%s %.6f %d", m.name, m.value, m.timestamp)
}

// Length returns the byte length of Serialize().
func (m Message) Length() int {
	return len(m.Serialize())
}

// ParseLine parses one "<name> <value> <timestamp>" line. receivedAt is
// stamped onto the resulting Message as the proxy-local arrival instant.
// It requires exactly three non-empty, whitespace-free tokens; any other
// shape, or a field that fails to parse, reports ok=false rather than
// panicking (SPEC_FULL.md §4.1).
func ParseLine(line string, receivedAt uint64) (Message, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Message{}, false
	}

	fields := strings.Fields(line)
	if len(fields) != 3 {
		return Message{}, false
	}

	name, valueText, tsText := fields[0], fields[1], fields[2]

	value, err := strconv.ParseFloat(valueText, 64)
	if err != nil {
		return Message{}, false
	}

	ts, err := strconv.ParseUint(tsText, 10, 64)
	if err != nil {
		return Message{}, false
	}

	if name == "" {
		return Message{}, false
	}

	return Message{name: name, value: value, timestamp: ts, receivedAt: receivedAt}, true
}

// ParseLines splits s on newlines and parses every non-empty line,
// returning the ones that parsed successfully. ok is false when none did.
func ParseLines(s string, receivedAt uint64) ([]Message, bool) {
	lines := strings.Split(s, "\n")
	out := make([]Message, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if msg, ok := ParseLine(line, receivedAt); ok {
			out = append(out, msg)
		}
	}
	return out, len(out) > 0
}
