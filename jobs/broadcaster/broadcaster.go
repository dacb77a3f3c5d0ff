// Package broadcaster publishes view finalization events from the outbox
// to Kafka.
package broadcaster

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"weakgate/infra/log"
	"weakgate/infra/metrics"
	"weakgate/infra/outbox"
)

type Driver string

const (
	DriverNone    Driver = "none"
	DriverSarama  Driver = "sarama"
	DriverKafkaGo Driver = "kafka-go"
)

type Config struct {
	Driver   Driver        `yaml:"driver"`
	Brokers  []string      `yaml:"brokers"`
	Topic    string        `yaml:"topic"`
	Interval time.Duration `yaml:"interval"`
}

// Publisher delivers one message to the broker, synchronously.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

// NewPublisher builds the publisher selected by cfg.Driver. It returns
// nil for DriverNone or an unset driver.
func NewPublisher(cfg Config) (Publisher, error) {
	switch cfg.Driver {
	case DriverNone, "":
		return nil, nil
	case DriverSarama:
		p, err := NewSaramaPublisher(cfg.Brokers, cfg.Topic)
		if err != nil {
			return nil, err
		}
		return p, nil
	case DriverKafkaGo:
		return NewKafkaGoPublisher(cfg.Brokers, cfg.Topic), nil
	default:
		return nil, errors.Errorf("unknown events driver %q", cfg.Driver)
	}
}

const EventVersion = 1

const EventFinalized = "view.finalized"

// Event is the JSON payload stored in the outbox and sent to Kafka.
type Event struct {
	V    int    `json:"v"`
	Type string `json:"type"`
	View uint64 `json:"view"`
	// Seq is the outbox finalization sequence. Consumers order by it;
	// view IDs follow creation order, not finalization order.
	Seq  uint64 `json:"seq"`
	At   int64  `json:"at"`
}

func NewFinalizedEvent(viewID, seq uint64) Event {
	return Event{
		V:    EventVersion,
		Type: EventFinalized,
		View: viewID,
		Seq:  seq,
		At:   time.Now().UnixNano(),
	}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

type Broadcaster struct {
	outbox   *outbox.Outbox
	pub      Publisher
	interval time.Duration
	log      *logrus.Entry
}

func New(ob *outbox.Outbox, pub Publisher, interval time.Duration) *Broadcaster {
	return &Broadcaster{
		outbox:   ob,
		pub:      pub,
		interval: interval,
		log:      log.Component("broadcaster"),
	}
}

// Run publishes pending events every interval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("started")
	defer b.log.Info("stopped")

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.PublishPending(ctx); err != nil {
				b.log.WithError(err).Warn("publish pending events")
			}
		}
	}
}

// PublishPending makes one pass over the outbox. Events that fail to
// publish stay pending for the next pass. It returns the number of
// events acknowledged by the broker.
func (b *Broadcaster) PublishPending(ctx context.Context) (int, error) {
	acked := 0
	err := b.outbox.ScanPending(func(viewID uint64, rec outbox.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.outbox.MarkSent(viewID); err != nil {
			return err
		}

		if err := b.pub.Publish(ctx, viewKey(viewID), rec.Payload); err != nil {
			metrics.Published.WithLabelValues("error").Inc()
			b.log.WithError(err).WithFields(logrus.Fields{
				log.KeyView: viewID,
				"retries":   rec.Retries + 1,
			}).Debug("publish failed, will retry")
			return nil
		}
		metrics.Published.WithLabelValues("ok").Inc()

		if err := b.outbox.MarkAcked(viewID); err != nil {
			return err
		}
		acked++
		return nil
	})
	return acked, err
}

func (b *Broadcaster) Close() error {
	return b.pub.Close()
}

func viewKey(id uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, id)
	return k
}
