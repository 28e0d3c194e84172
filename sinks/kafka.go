// Package sinks implements the proxy's optional audit/alert/mirror
// outputs -- a sampled Kafka audit trail of the messages the Flusher
// successfully sends downstream, an AMQP
// publisher for threshold alerts raised by the stats collector, and an S3
// mirror for persisted state files. None of these are on the ingest hot
// path's success criteria: every sink failure is logged and swallowed,
// never propagated back to the router or the persistence layer. Grounded
// on the teacher's go.mod carrying github.com/Shopify/sarama,
// github.com/streadway/amqp, and github.com/aws/aws-sdk-go as direct
// dependencies with no first-party use in the copied aggregator.go --
// this package is where SPEC_FULL.md gives each of them a home.
package sinks

import (
	"math/rand"

	"github.com/Shopify/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/graphite-tools/graphite-proxy/message"
)

// KafkaAudit publishes a sampled trail of flushed messages to a Kafka
// topic, grounded on _examples/other_examples's sarama consumer usage
// (same client library, producer side here).
type KafkaAudit struct {
	producer   sarama.SyncProducer
	topic      string
	sampleRate float64
	rand       *rand.Rand
}

// NewKafkaAudit dials brokers and returns a KafkaAudit publishing to
// topic. sampleRate is the fraction of messages (0..1) actually published;
// 0 disables publishing without needing a separate enabled flag.
func NewKafkaAudit(brokers []string, topic string, sampleRate float64) (*KafkaAudit, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &KafkaAudit{
		producer:   producer,
		topic:      topic,
		sampleRate: sampleRate,
		rand:       rand.New(rand.NewSource(1)),
	}, nil
}

// Publish samples msg according to the configured rate and, if selected,
// sends its serialized form to the audit topic. Failures are logged, not
// returned: an audit-trail gap is never a reason to drop live traffic.
func (k *KafkaAudit) Publish(msg message.Message) {
	if k.sampleRate <= 0 {
		return
	}
	if k.sampleRate < 1 && k.rand.Float64() >= k.sampleRate {
		return
	}

	_, _, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Value: sarama.StringEncoder(msg.Serialize()),
	})
	if err != nil {
		log.WithField("topic", k.topic).WithError(err).Warn("sinks: kafka audit publish failed")
	}
}

// Close releases the underlying producer's connections.
func (k *KafkaAudit) Close() error {
	return k.producer.Close()
}
