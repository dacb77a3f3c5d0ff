package broadcaster

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
)

// SaramaPublisher publishes with a sarama SyncProducer.
type SaramaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewSaramaPublisher(brokers []string, topic string) (*SaramaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "sarama producer")
	}
	return newSaramaPublisher(producer, topic), nil
}

func newSaramaPublisher(p sarama.SyncProducer, topic string) *SaramaPublisher {
	return &SaramaPublisher{producer: p, topic: topic}
}

// Publish ignores ctx; the sync producer has its own timeouts.
func (p *SaramaPublisher) Publish(_ context.Context, key, value []byte) error {
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	return errors.Wrap(err, "sarama publish")
}

func (p *SaramaPublisher) Close() error {
	return p.producer.Close()
}
