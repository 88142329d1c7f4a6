package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 10, cfg.Queue.MaxConcurrent)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.BuildDelay)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.BackoffBase)
	assert.Equal(t, 2*time.Second, cfg.Router.QuoteLatencyMin)
	assert.Equal(t, 3*time.Second, cfg.Router.QuoteLatencyMax)
	assert.Equal(t, time.Second, cfg.Router.SwapLatencyMin)
	assert.Equal(t, 2*time.Second, cfg.Router.SwapLatencyMax)
	assert.InDelta(t, 0.05, cfg.Router.FailureRate, 1e-9)
	assert.Zero(t, cfg.Router.Seed)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 64, cfg.Events.WSBuffer)
	assert.Equal(t, 500, cfg.Events.JournalSize)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Redis.Addr)
	assert.False(t, cfg.Log.Debug)
	assert.Equal(t, 100, cfg.Log.MaxSize)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "router.yaml", `
server:
  addr: ":8080"
queue:
  max_concurrent: 4
pipeline:
  backoff_base: 250ms
router:
  failure_rate: 0
  seed: 42
store:
  backend: pebble
  path: /tmp/orders
kafka:
  brokers: ["k1:9092", "k2:9092"]
log:
  debug: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 4, cfg.Queue.MaxConcurrent)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.BackoffBase)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Zero(t, cfg.Router.FailureRate)
	assert.EqualValues(t, 42, cfg.Router.Seed)
	assert.Equal(t, BackendPebble, cfg.Store.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "order-updates", cfg.Kafka.Topic)
	assert.True(t, cfg.Log.Debug)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "router.yaml", "queue:\n  max_concurrent: 4\n")
	t.Setenv("DEX_ROUTER_QUEUE_MAX_CONCURRENT", "7")
	t.Setenv("DEX_ROUTER_PIPELINE_BUILD_DELAY", "0s")
	t.Setenv("DEX_ROUTER_KAFKA_BROKERS", "a:9092, b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Queue.MaxConcurrent)
	assert.Zero(t, cfg.Pipeline.BuildDelay)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoadDotEnv(t *testing.T) {
	const key = "DEX_ROUTER_REDIS_ADDR"
	require.Empty(t, os.Getenv(key))
	t.Cleanup(func() { os.Unsetenv(key) })

	dir := t.TempDir()
	writeFile(t, dir, ".env", key+"=localhost:6379\n")

	cfg, err := Load(filepath.Join(dir, "router.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "order-updates", cfg.Redis.Channel)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "router.yaml", "queue: [unclosed")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no addr", func(c *Config) { c.Server.Addr = "" }},
		{"no shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }},
		{"zero concurrency", func(c *Config) { c.Queue.MaxConcurrent = 0 }},
		{"zero attempts", func(c *Config) { c.Pipeline.MaxAttempts = 0 }},
		{"too many attempts", func(c *Config) { c.Pipeline.MaxAttempts = 11 }},
		{"negative build delay", func(c *Config) { c.Pipeline.BuildDelay = -time.Second }},
		{"zero backoff", func(c *Config) { c.Pipeline.BackoffBase = 0 }},
		{"huge backoff", func(c *Config) { c.Pipeline.BackoffBase = time.Hour }},
		{"inverted quote latency", func(c *Config) { c.Router.QuoteLatencyMax = time.Millisecond }},
		{"inverted swap latency", func(c *Config) { c.Router.SwapLatencyMin = 5 * time.Second }},
		{"failure rate above one", func(c *Config) { c.Router.FailureRate = 1.5 }},
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }},
		{"pebble without path", func(c *Config) { c.Store.Backend = BackendPebble; c.Store.Path = "" }},
		{"zero ws buffer", func(c *Config) { c.Events.WSBuffer = 0 }},
		{"kafka without topic", func(c *Config) { c.Kafka.Brokers = []string{"k:9092"}; c.Kafka.Topic = "" }},
		{"redis without channel", func(c *Config) { c.Redis.Addr = "r:6379"; c.Redis.Channel = "" }},
	}

	require.NoError(t, validateConfig(valid()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}
}
