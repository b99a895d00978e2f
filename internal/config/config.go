package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v2"

	"traffic-router/internal/topic"
)

type KafkaConfig struct {
	// Brokers is a comma separated host:port list.
	Brokers        string `yaml:"brokers"`
	GroupID        string `yaml:"group_id"`
	ClientID       string `yaml:"client_id"`
	PollTimeoutMS  int    `yaml:"poll_timeout_ms"`
	CloseTimeoutMS int    `yaml:"close_timeout_ms"`

	// BrokersDownTimeoutMS is how long every broker may stay unreachable
	// before the consumer gives up. Negative disables the limit.
	BrokersDownTimeoutMS int `yaml:"brokers_down_timeout_ms"`
}

// BrokerList splits Brokers on commas, dropping blanks.
func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func (k KafkaConfig) CloseTimeout() time.Duration {
	return time.Duration(k.CloseTimeoutMS) * time.Millisecond
}

// BrokersDownTimeout is zero when the limit is disabled.
func (k KafkaConfig) BrokersDownTimeout() time.Duration {
	if k.BrokersDownTimeoutMS < 0 {
		return 0
	}
	return time.Duration(k.BrokersDownTimeoutMS) * time.Millisecond
}

// SinkConfig chooses the sink kind per topic. Overrides are keyed by broker
// topic name.
type SinkConfig struct {
	Default   string            `yaml:"default"`
	Overrides map[string]string `yaml:"overrides"`
}

type ForwardConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

func (f ForwardConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutMS) * time.Millisecond
}

type MongoConfig struct {
	URI       string `yaml:"uri"`
	Database  string `yaml:"database"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

func (m MongoConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutMS) * time.Millisecond
}

// RetryConfig applies to connection establishment at startup only. Messages
// are always sent exactly once.
type RetryConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMS  int `yaml:"delay_ms"`
}

type JournalConfig struct {
	// Dir enables the failure journal when non-empty.
	Dir string `yaml:"dir"`
}

type APIConfig struct {
	// Addr enables the operations endpoint when non-empty, e.g. ":9102".
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

type SimulatorConfig struct {
	IntervalMS int `yaml:"interval_ms"`
	Sensors    int `yaml:"sensors"`
}

func (s SimulatorConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMS) * time.Millisecond
}

type Config struct {
	Kafka     KafkaConfig     `yaml:"kafka"`
	Sink      SinkConfig      `yaml:"sink"`
	Forward   ForwardConfig   `yaml:"forward"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Retry     RetryConfig     `yaml:"retry"`
	Journal   JournalConfig   `yaml:"journal"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// DefaultBackendURL matches the backend API the consumer historically
// forwarded to.
const DefaultBackendURL = "http://localhost:3001/api/receive"

// Load reads the optional YAML file at path, then applies environment
// overrides and defaults. An empty path means environment only.
// The result is not validated; call Validate or ValidateBroker.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", absPath, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", absPath, err)
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	setFromEnv(&cfg.Kafka.Brokers, "KAFKA_BROKER")
	setFromEnv(&cfg.Kafka.GroupID, "KAFKA_GROUP_ID")
	setFromEnv(&cfg.Forward.BaseURL, "BACKEND_API_URL")
	setFromEnv(&cfg.Mongo.URI, "MONGO_URI")
	setFromEnv(&cfg.Mongo.Database, "MONGO_DB")
	setFromEnv(&cfg.Sink.Default, "SINK_KIND")
	setFromEnv(&cfg.Log.Level, "LOG_LEVEL")
	setFromEnv(&cfg.Log.Format, "LOG_FORMAT")
	setFromEnv(&cfg.API.Addr, "API_ADDR")
	setFromEnv(&cfg.Journal.Dir, "JOURNAL_DIR")
}

func setFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "traffic-group"
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = "traffic-consumer"
	}
	if cfg.Kafka.PollTimeoutMS <= 0 {
		cfg.Kafka.PollTimeoutMS = 100
	}
	if cfg.Kafka.CloseTimeoutMS <= 0 {
		cfg.Kafka.CloseTimeoutMS = 10_000
	}
	if cfg.Kafka.BrokersDownTimeoutMS == 0 {
		cfg.Kafka.BrokersDownTimeoutMS = 60_000
	}
	if cfg.Sink.Default == "" {
		cfg.Sink.Default = string(topic.Forward)
	}
	if cfg.Forward.BaseURL == "" {
		cfg.Forward.BaseURL = DefaultBackendURL
	}
	if cfg.Forward.TimeoutMS <= 0 {
		cfg.Forward.TimeoutMS = 10_000
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "traffic_db"
	}
	if cfg.Mongo.TimeoutMS <= 0 {
		cfg.Mongo.TimeoutMS = 10_000
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry.Attempts = 3
	}
	if cfg.Retry.DelayMS == 0 {
		cfg.Retry.DelayMS = 1500
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Simulator.IntervalMS <= 0 {
		cfg.Simulator.IntervalMS = 5000
	}
	if cfg.Simulator.Sensors <= 0 {
		cfg.Simulator.Sensors = 4
	}
}

// ValidateBroker checks the settings every process needs.
func (c *Config) ValidateBroker() error {
	if len(c.Kafka.BrokerList()) == 0 {
		return fmt.Errorf("kafka.brokers is required (or set KAFKA_BROKER)")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format: %s", c.Log.Format)
	}
	return nil
}

// Validate checks everything the router needs to start. Connection
// parameters are only mandatory for sink kinds some route actually uses.
func (c *Config) Validate() error {
	if err := c.ValidateBroker(); err != nil {
		return err
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("kafka.group_id is required")
	}

	reg, err := c.Registry()
	if err != nil {
		return err
	}
	kinds := reg.Kinds()
	if kinds[topic.Forward] && c.Forward.BaseURL == "" {
		return fmt.Errorf("forward.base_url is required when a topic is forwarded (or set BACKEND_API_URL)")
	}
	if kinds[topic.Store] {
		if c.Mongo.URI == "" {
			return fmt.Errorf("mongo.uri is required when a topic is stored (or set MONGO_URI)")
		}
		if c.Mongo.Database == "" {
			return fmt.Errorf("mongo.database is required when a topic is stored")
		}
	}
	return nil
}

// Registry builds the topic registry described by the sink section.
func (c *Config) Registry() (*topic.Registry, error) {
	def, err := topic.ParseKind(c.Sink.Default)
	if err != nil {
		return nil, fmt.Errorf("sink.default: %w", err)
	}
	overrides := make(map[string]topic.Kind, len(c.Sink.Overrides))
	for name, k := range c.Sink.Overrides {
		overrides[name] = topic.Kind(k)
	}
	reg, err := topic.NewRegistry(def, overrides)
	if err != nil {
		return nil, fmt.Errorf("sink.overrides: %w", err)
	}
	return reg, nil
}
