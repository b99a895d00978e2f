package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traffic-router/internal/topic"
)

// clearEnv makes sure variables from the developer's shell don't leak in.
func clearEnv(t *testing.T) {
	for _, k := range []string{
		"KAFKA_BROKER", "KAFKA_GROUP_ID", "BACKEND_API_URL", "MONGO_URI", "MONGO_DB",
		"SINK_KIND", "LOG_LEVEL", "LOG_FORMAT", "API_ADDR", "JOURNAL_DIR",
	} {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("KAFKA_BROKER", "k1:9092, k2:9092,")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.BrokerList())
	assert.Equal(t, "traffic-group", cfg.Kafka.GroupID)
	assert.Equal(t, time.Minute, cfg.Kafka.BrokersDownTimeout())
	assert.Equal(t, "forward", cfg.Sink.Default)
	assert.Equal(t, DefaultBackendURL, cfg.Forward.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Forward.Timeout())
	assert.Equal(t, "traffic_db", cfg.Mongo.Database)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, 5*time.Second, cfg.Simulator.Interval())
}

func TestKafkaConfig_BrokersDownTimeoutDisabled(t *testing.T) {
	assert.Zero(t, KafkaConfig{BrokersDownTimeoutMS: -1}.BrokersDownTimeout())
	assert.Equal(t, 2*time.Second, KafkaConfig{BrokersDownTimeoutMS: 2000}.BrokersDownTimeout())
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	clearEnv(t)
	p := writeConfig(t, `
kafka:
  brokers: "file:9092"
  group_id: mongo-group
sink:
  default: store
  overrides:
    traffic-alerts: forward
mongo:
  uri: mongodb://file:27017
  database: traffic_db
log:
  format: json
`)
	t.Setenv("MONGO_URI", "mongodb://env:27017")

	cfg, err := Load(p)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "file:9092", cfg.Kafka.Brokers)
	assert.Equal(t, "mongo-group", cfg.Kafka.GroupID)
	assert.Equal(t, "mongodb://env:27017", cfg.Mongo.URI)
	assert.Equal(t, "json", cfg.Log.Format)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	d, _ := reg.Resolve("traffic-alerts")
	assert.Equal(t, topic.Forward, d.Kind)
	d, _ = reg.Resolve("sensor-health")
	assert.Equal(t, topic.Store, d.Kind)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "kafka: [unterminated"))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{Kafka: KafkaConfig{Brokers: "localhost:9092"}}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"valid forward", func(*Config) {}, false},
		{"missing brokers", func(c *Config) { c.Kafka.Brokers = " , " }, true},
		{"store without uri", func(c *Config) { c.Sink.Default = "store" }, true},
		{"store with uri", func(c *Config) {
			c.Sink.Default = "store"
			c.Mongo.URI = "mongodb://localhost:27017"
		}, false},
		{"override to store without uri", func(c *Config) {
			c.Sink.Overrides = map[string]string{"traffic-data": "store"}
		}, true},
		{"override unknown topic", func(c *Config) {
			c.Sink.Overrides = map[string]string{"weather": "forward"}
		}, true},
		{"bad sink kind", func(c *Config) { c.Sink.Default = "s3" }, true},
		{"forward without base url", func(c *Config) { c.Forward.BaseURL = "" }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
