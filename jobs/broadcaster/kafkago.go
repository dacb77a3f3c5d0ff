package broadcaster

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaGoPublisher publishes with a segmentio/kafka-go Writer. Messages
// hash by key, so events for one view stay on one partition.
type KafkaGoPublisher struct {
	writer messageWriter
}

func NewKafkaGoPublisher(brokers []string, topic string) *KafkaGoPublisher {
	return newKafkaGoPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	})
}

func newKafkaGoPublisher(w messageWriter) *KafkaGoPublisher {
	return &KafkaGoPublisher{writer: w}
}

// Publish blocks until all in-sync replicas have the message or ctx ends.
func (p *KafkaGoPublisher) Publish(ctx context.Context, key, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
	return errors.Wrap(err, "kafka-go publish")
}

func (p *KafkaGoPublisher) Close() error {
	return p.writer.Close()
}
