// Package config loads the typed process configuration: defaults, then a
// YAML file, then BLOCKRELAY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "BLOCKRELAY_"

// Transport names.
const (
	TransportSarama  = "sarama"
	TransportKafkaGo = "kafka-go"
)

// Checkpoint backends.
const (
	BackendPebble = "pebble"
	BackendFile   = "file"
)

type Config struct {
	Store      StoreConfig      `yaml:"store" envPrefix:"STORE_"`
	Broker     BrokerConfig     `yaml:"broker" envPrefix:"BROKER_"`
	Rate       RateConfig       `yaml:"rate" envPrefix:"RATE_"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" envPrefix:"CHECKPOINT_"`
	Relay      RelayConfig      `yaml:"relay" envPrefix:"RELAY_"`
	Writer     WriterConfig     `yaml:"writer" envPrefix:"WRITER_"`
	Ops        OpsConfig        `yaml:"ops" envPrefix:"OPS_"`
}

type StoreConfig struct {
	BlockDir string `yaml:"blockDir" env:"BLOCK_DIR"`
	// StartFile and StartByte are used only when no checkpoint exists.
	StartFile uint32 `yaml:"startFile" env:"START_FILE"`
	StartByte uint32 `yaml:"startByte" env:"START_BYTE"`
}

type BrokerConfig struct {
	// Transport is sarama or kafka-go. Empty picks sarama for the relay and
	// kafka-go for the writer.
	Transport   string   `yaml:"transport" env:"TRANSPORT"`
	Hosts       []string `yaml:"hosts" env:"HOSTS" envSeparator:","`
	User        string   `yaml:"user" env:"USER"`
	Password    string   `yaml:"password" env:"PASSWORD"`
	VirtualHost string   `yaml:"virtualHost" env:"VIRTUAL_HOST"`
	Exchange    string   `yaml:"exchange" env:"EXCHANGE"`
	Queue       string   `yaml:"queue" env:"QUEUE"`
	RoutingKey  string   `yaml:"routingKey" env:"ROUTING_KEY"`

	MaxMessageBytes int           `yaml:"maxMessageBytes" env:"MAX_MESSAGE_BYTES"`
	PollTimeout     time.Duration `yaml:"pollTimeout" env:"POLL_TIMEOUT"`
	ConnectDelay    time.Duration `yaml:"connectDelay" env:"CONNECT_DELAY"`
	ConnectMaxTries uint          `yaml:"connectMaxTries" env:"CONNECT_MAX_TRIES"`
}

// Topic is the broker-side name of the exchange, namespaced by the virtual
// host when one is set.
func (b BrokerConfig) Topic() string { return b.namespaced(b.Exchange) }

// Group is the broker-side name of the queue.
func (b BrokerConfig) Group() string { return b.namespaced(b.Queue) }

func (b BrokerConfig) namespaced(name string) string {
	if b.VirtualHost == "" || b.VirtualHost == "/" {
		return name
	}
	return b.VirtualHost + "." + name
}

type RateConfig struct {
	BytesPerSecond   float64       `yaml:"bytesPerSecond" env:"BYTES_PER_SECOND"`
	RecordsPerSecond float64       `yaml:"recordsPerSecond" env:"RECORDS_PER_SECOND"`
	Interval         time.Duration `yaml:"interval" env:"INTERVAL"`
}

type CheckpointConfig struct {
	Backend    string `yaml:"backend" env:"BACKEND"`
	Path       string `yaml:"path" env:"PATH"`
	Name       string `yaml:"name" env:"NAME"`
	FlushEvery int    `yaml:"flushEvery" env:"FLUSH_EVERY"`
}

type RelayConfig struct {
	RetryDelay time.Duration `yaml:"retryDelay" env:"RETRY_DELAY"`
}

type WriterConfig struct {
	PollDelay time.Duration `yaml:"pollDelay" env:"POLL_DELAY"`
	NoSync    bool          `yaml:"noSync" env:"NO_SYNC"`
}

type OpsConfig struct {
	LogLevel    string `yaml:"logLevel" env:"LOG_LEVEL"`
	MetricsAddr string `yaml:"metricsAddr" env:"METRICS_ADDR"`
	HealthAddr  string `yaml:"healthAddr" env:"HEALTH_ADDR"`
}

// Default returns the configuration before any file or environment is applied.
func Default() Config {
	return Config{
		Broker: BrokerConfig{
			MaxMessageBytes: 8 << 20,
			PollTimeout:     time.Second,
			ConnectDelay:    10 * time.Second,
		},
		Rate: RateConfig{Interval: time.Second},
		Checkpoint: CheckpointConfig{
			Backend:    BackendPebble,
			Path:       "./checkpoint",
			Name:       "default",
			FlushEvery: 1000,
		},
		Relay:  RelayConfig{RetryDelay: 10 * time.Second},
		Writer: WriterConfig{PollDelay: 5 * time.Second},
		Ops:    OpsConfig{LogLevel: "info"},
	}
}

// Load applies path (optional) and the environment on top of Default.
// Unknown YAML keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := decodeYAML(f, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
