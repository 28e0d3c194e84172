package sinks

import (
	"fmt"

	"github.com/streadway/amqp"
)

// AMQPAlert publishes threshold-alert notices (e.g. "buffer high-water
// mark exceeded") raised by the stats collector to a single AMQP
// exchange/routing-key pair. Grounded on the teacher's direct dependency
// on github.com/streadway/amqp.
type AMQPAlert struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

// NewAMQPAlert dials url and opens a channel for publishing.
func NewAMQPAlert(url, exchange, routingKey string) (*AMQPAlert, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("sinks: amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sinks: amqp channel: %w", err)
	}

	return &AMQPAlert{conn: conn, channel: ch, exchange: exchange, routingKey: routingKey}, nil
}

// PublishAlert sends body as a persistent text/plain message. Returns the
// publish error to the caller (alerts are already a best-effort path
// invoked from the stats collector, which decides whether to log and move
// on).
func (a *AMQPAlert) PublishAlert(body string) error {
	return a.channel.Publish(a.exchange, a.routingKey, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		Body:         []byte(body),
		DeliveryMode: amqp.Persistent,
	})
}

// Close releases the channel and connection.
func (a *AMQPAlert) Close() error {
	a.channel.Close()
	return a.conn.Close()
}
