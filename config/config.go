// Package config loads the server configuration from YAML.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"weakgate/infra/journal"
	"weakgate/infra/log"
	"weakgate/infra/store"
	"weakgate/jobs/broadcaster"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Store   store.Config       `yaml:"store"`
	Outbox  OutboxConfig       `yaml:"outbox"`
	Journal journal.Config     `yaml:"journal"`
	Events  broadcaster.Config `yaml:"events"`
	Reclaim ReclaimConfig      `yaml:"reclaim"`
	GRPC    ListenConfig       `yaml:"grpc"`
	Metrics ListenConfig       `yaml:"metrics"`
	Log     log.Config         `yaml:"log"`
}

type OutboxConfig struct {
	Dir string `yaml:"dir"`
}

type ReclaimConfig struct {
	// RingSize is the retire ring capacity; must be a power of two.
	RingSize uint64        `yaml:"ring_size"`
	Interval time.Duration `yaml:"interval"`
	// BufferSize is the initial capacity of pooled value buffers.
	BufferSize int `yaml:"buffer_size"`
}

type ListenConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration that runs a single local node.
func Default() Config {
	return Config{
		Store:   store.Config{Dir: "./data/store"},
		Outbox:  OutboxConfig{Dir: "./data/outbox"},
		Journal: journal.Config{Dir: "./data/journal", SegmentSize: 4 << 20},
		Events: broadcaster.Config{
			Driver:   broadcaster.DriverNone,
			Topic:    "weakgate.views",
			Interval: 250 * time.Millisecond,
		},
		Reclaim: ReclaimConfig{
			RingSize:   1 << 12,
			Interval:   time.Second,
			BufferSize: 256,
		},
		GRPC:    ListenConfig{Addr: ":50051"},
		Metrics: ListenConfig{Addr: ":9090"},
		Log:     log.Config{Level: "info", Format: "text"},
	}
}

// Load reads path on top of Default. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var problems []string

	if c.Store.Dir == "" {
		problems = append(problems, "store.dir is empty")
	}
	if c.Outbox.Dir == "" {
		problems = append(problems, "outbox.dir is empty")
	}
	if c.Journal.Dir == "" {
		problems = append(problems, "journal.dir is empty")
	}
	if c.Journal.SegmentSize <= 0 {
		problems = append(problems, "journal.segment_size must be positive")
	}
	if n := c.Reclaim.RingSize; n == 0 || n&(n-1) != 0 {
		problems = append(problems, "reclaim.ring_size must be a power of two")
	}
	if c.Reclaim.Interval <= 0 {
		problems = append(problems, "reclaim.interval must be positive")
	}
	switch c.Events.Driver {
	case broadcaster.DriverNone, "":
	case broadcaster.DriverSarama, broadcaster.DriverKafkaGo:
		if len(c.Events.Brokers) == 0 {
			problems = append(problems, "events.brokers is empty")
		}
		if c.Events.Topic == "" {
			problems = append(problems, "events.topic is empty")
		}
		if c.Events.Interval <= 0 {
			problems = append(problems, "events.interval must be positive")
		}
	default:
		problems = append(problems, "events.driver must be one of none, sarama, kafka-go")
	}
	if c.GRPC.Addr == "" {
		problems = append(problems, "grpc.addr is empty")
	}

	if len(problems) > 0 {
		return errors.Wrap(ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
