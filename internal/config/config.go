// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/dex-router/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g.
// DEX_ROUTER_QUEUE_MAX_CONCURRENT.
const EnvPrefix = "DEX_ROUTER"

const (
	BackendMemory = "memory"
	BackendPebble = "pebble"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Router   RouterConfig   `mapstructure:"router"`
	Store    StoreConfig    `mapstructure:"store"`
	Events   EventsConfig   `mapstructure:"events"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      logger.Config  `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type QueueConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

type PipelineConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BuildDelay  time.Duration `mapstructure:"build_delay"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

type RouterConfig struct {
	QuoteLatencyMin time.Duration `mapstructure:"quote_latency_min"`
	QuoteLatencyMax time.Duration `mapstructure:"quote_latency_max"`
	SwapLatencyMin  time.Duration `mapstructure:"swap_latency_min"`
	SwapLatencyMax  time.Duration `mapstructure:"swap_latency_max"`
	FailureRate     float64       `mapstructure:"failure_rate"`
	Seed            uint64        `mapstructure:"seed"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type EventsConfig struct {
	WSBuffer    int `mapstructure:"ws_buffer"`
	JournalSize int `mapstructure:"journal_size"`
	SinkBuffer  int `mapstructure:"sink_buffer"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	Channel string `mapstructure:"channel"`
}

const (
	DefaultMaxConcurrent = 10
	DefaultMaxAttempts   = 3
	DefaultFailureRate   = 0.05

	maxAttemptsLimit = 10
	maxBackoffBase   = time.Minute
)

var defaults = map[string]interface{}{
	"server.addr":               ":5000",
	"server.shutdown_timeout":   30 * time.Second,
	"queue.max_concurrent":      DefaultMaxConcurrent,
	"pipeline.max_attempts":     DefaultMaxAttempts,
	"pipeline.build_delay":      500 * time.Millisecond,
	"pipeline.backoff_base":     2 * time.Second,
	"router.quote_latency_min":  2 * time.Second,
	"router.quote_latency_max":  3 * time.Second,
	"router.swap_latency_min":   time.Second,
	"router.swap_latency_max":   2 * time.Second,
	"router.failure_rate":       DefaultFailureRate,
	"router.seed":               0,
	"store.backend":             BackendMemory,
	"store.path":                "data/orders",
	"events.ws_buffer":          64,
	"events.journal_size":       500,
	"events.sink_buffer":        256,
	"kafka.brokers":             []string{},
	"kafka.topic":               "order-updates",
	"redis.addr":                "",
	"redis.channel":             "order-updates",
	"log.debug":                 false,
	"log.color":                 false,
	"log.file":                  "",
	"log.max_size":              100,
	"log.max_age":               7,
	"log.max_backups":           3,
	"log.compress":              true,
}

// Load reads configuration from defaults, an optional config file at path,
// a .env file next to it and DEX_ROUTER_* environment variables, in
// increasing order of precedence. A missing file is not an error.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = cleanList(cfg.Kafka.Brokers)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv exports variables from a .env file beside the config file.
// Variables already set in the environment win.
func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envPath, err)
	}
	return nil
}

func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if clean := strings.TrimSpace(part); clean != "" {
				out = append(out, clean)
			}
		}
	}
	return out
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		return errors.New("invalid server.shutdown_timeout")
	}
	if cfg.Queue.MaxConcurrent < 1 {
		return errors.New("queue.max_concurrent must be at least 1")
	}
	if err := validatePipeline(cfg.Pipeline); err != nil {
		return err
	}
	if err := validateRouter(cfg.Router); err != nil {
		return err
	}
	switch cfg.Store.Backend {
	case BackendMemory:
	case BackendPebble:
		if cfg.Store.Path == "" {
			return errors.New("store.path is required for the pebble backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", cfg.Store.Backend)
	}
	if cfg.Events.WSBuffer < 1 || cfg.Events.JournalSize < 1 || cfg.Events.SinkBuffer < 1 {
		return errors.New("event buffers must be positive")
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when brokers are set")
	}
	if cfg.Redis.Addr != "" && cfg.Redis.Channel == "" {
		return errors.New("redis.channel is required when addr is set")
	}
	return nil
}

func validatePipeline(p PipelineConfig) error {
	if p.MaxAttempts < 1 || p.MaxAttempts > maxAttemptsLimit {
		return fmt.Errorf("pipeline.max_attempts must be between 1 and %d", maxAttemptsLimit)
	}
	if p.BuildDelay < 0 {
		return errors.New("invalid pipeline.build_delay")
	}
	if p.BackoffBase <= 0 || p.BackoffBase > maxBackoffBase {
		return fmt.Errorf("pipeline.backoff_base must be in (0, %s]", maxBackoffBase)
	}
	return nil
}

func validateRouter(r RouterConfig) error {
	if r.QuoteLatencyMin < 0 || r.QuoteLatencyMax < r.QuoteLatencyMin {
		return errors.New("invalid router quote latency range")
	}
	if r.SwapLatencyMin < 0 || r.SwapLatencyMax < r.SwapLatencyMin {
		return errors.New("invalid router swap latency range")
	}
	if r.FailureRate < 0 || r.FailureRate > 1 {
		return errors.New("router.failure_rate must be between 0 and 1")
	}
	return nil
}
