// Package destination implements the single downstream Graphite egress:
// one TCP connection, established fresh per send, used to write an entire
// flushed batch. Grounded on
// original_source/src/library/graphite_proxy/networking/client.{hpp,cpp}'s
// connect-write-report flow.
package destination

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	log "github.com/sirupsen/logrus"

	"github.com/graphite-tools/graphite-proxy/message"
	"github.com/graphite-tools/graphite-proxy/stats"
)

// Client sends batches of messages to a single downstream Graphite
// endpoint. It implements the buffer.Sender and aggregator.Sink-adjacent
// interfaces structurally (any type with `Send([]message.Message) bool`
// satisfies buffer.Sender).
type Client struct {
	address string
	dialer  net.Dialer
	timeout time.Duration

	backoff  *backoff.Backoff
	registry *stats.Registry
}

// New creates a Client targeting host:port. timeout bounds both dial and
// write; with a zero timeout the write has no deadline and the dial uses a
// 5-second timeout.
func New(host string, port int, timeout time.Duration, registry *stats.Registry) *Client {
	return &Client{
		address: fmt.Sprintf("%s:%d", host, port),
		timeout: timeout,
		backoff: &backoff.Backoff{
			Min:    100 * time.Millisecond,
			Max:    30 * time.Second,
			Factor: 2,
			Jitter: true,
		},
		registry: registry,
	}
}

// Send dials the downstream endpoint, writes every message (newline
// terminated) in a single write, and closes the connection. It returns
// false on any dial or write error, logging at error level and counting
// the failure; callers (GlobalBuffer, Flusher) are responsible for
// re-queuing the batch.
func (c *Client) Send(messages []message.Message) bool {
	if len(messages) == 0 {
		return true
	}

	conn, err := net.DialTimeout("tcp", c.address, c.dialTimeout())
	if err != nil {
		c.onFailure(err)
		return false
	}
	defer conn.Close()

	if c.timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.timeout))
	}

	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Serialize())
		sb.WriteByte('\n')
	}

	payload := sb.String()
	n, err := conn.Write([]byte(payload))
	if err != nil || n != len(payload) {
		c.onFailure(err)
		return false
	}

	c.backoff.Reset()
	if c.registry != nil {
		c.registry.Counter(stats.RequestsSent).Inc(int64(len(messages)))
		c.registry.Counter(stats.RequestsSentSize).Inc(int64(len(payload)))
	}
	return true
}

func (c *Client) dialTimeout() time.Duration {
	if c.timeout > 0 {
		return c.timeout
	}
	return 5 * time.Second
}

// onFailure records a failed send: advances the backoff, logs at error with
// the resulting delay as next_retry, and counts it. Send neither waits for
// nor consults that delay; the next call dials right away (Flusher retries
// on its own next tick).
func (c *Client) onFailure(err error) {
	delay := c.backoff.Duration()
	if c.registry != nil {
		c.registry.Counter(stats.ClientConnFailed).Inc(1)
	}
	log.WithFields(log.Fields{
		"address":    c.address,
		"next_retry": delay,
	}).WithError(err).Error("destination: send failed")
}
