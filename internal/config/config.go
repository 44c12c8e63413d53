// Package config loads layered configuration: struct defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nesting uses a double
// underscore: INDICATORS_DATABASE__PATH sets database.path.
const EnvPrefix = "INDICATORS_"

// ConfigPathEnvVar overrides the config file location
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
}

// Config is the application configuration
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Attachments AttachmentsConfig `koanf:"attachments"`
	Aggregation AggregationConfig `koanf:"aggregation"`
	Events      EventsConfig      `koanf:"events"`
	Logging     LoggingConfig     `koanf:"logging"`
	Sentry      SentryConfig      `koanf:"sentry"`
}

// ServerConfig configures the HTTP shell
type ServerConfig struct {
	Port            string        `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimit       float64       `koanf:"rate_limit"` // requests per second per client IP, 0 disables
	RateBurst       int           `koanf:"rate_burst"`
}

// DatabaseConfig configures the SQLite stores
type DatabaseConfig struct {
	Path         string        `koanf:"path"`
	MaxOpenConns int           `koanf:"max_open_conns"`
	BusyTimeout  time.Duration `koanf:"busy_timeout"`
}

// AttachmentsConfig selects and tunes the attachment backend
type AttachmentsConfig struct {
	Backend        string        `koanf:"backend"` // fs or gcs
	Dir            string        `koanf:"dir"`
	Bucket         string        `koanf:"bucket"`
	Prefix         string        `koanf:"prefix"`
	MaxBytes       int64         `koanf:"max_bytes"`
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`
}

// AggregationConfig tunes the producers
type AggregationConfig struct {
	DefaultTimeZone   string `koanf:"default_timezone"`
	RemergeDuplicates bool   `koanf:"remerge_duplicates"`
}

// EventsConfig configures the trigger consumer
type EventsConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Backend           string        `koanf:"backend"` // gochannel or nats
	NATSURL           string        `koanf:"nats_url"`
	Stream            string        `koanf:"stream"` // JetStream stream holding both topics
	QueueGroup        string        `koanf:"queue_group"`
	DurableName       string        `koanf:"durable_name"`
	SubscribersCount  int           `koanf:"subscribers_count"`
	SubmittedTopic    string        `koanf:"submitted_topic"`
	RunRequestedTopic string        `koanf:"run_requested_topic"`
	RetryCount        int           `koanf:"retry_count"`
	RetryInterval     time.Duration `koanf:"retry_interval"`
}

// LoggingConfig configures zerolog
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

// SentryConfig configures failure reporting. An empty DSN disables it.
type SentryConfig struct {
	DSN         string  `koanf:"dsn"`
	Environment string  `koanf:"environment"`
	Release     string  `koanf:"release"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default returns the built-in defaults without consulting files or the environment
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       10,
			RateBurst:       20,
		},
		Database: DatabaseConfig{
			Path:         "./data/indicators.db",
			MaxOpenConns: 1,
			BusyTimeout:  5 * time.Second,
		},
		Attachments: AttachmentsConfig{
			Backend:        "fs",
			Dir:            "./data/attachments",
			MaxBytes:       16 << 20,
			BreakerTimeout: 30 * time.Second,
		},
		Events: EventsConfig{
			Enabled:           false,
			Backend:           "gochannel",
			NATSURL:           "nats://127.0.0.1:4222",
			Stream:            "INDICATORS",
			QueueGroup:        "indicators",
			DurableName:       "indicators-engine",
			SubscribersCount:  1,
			SubmittedTopic:    "task-results.submitted",
			RunRequestedTopic: "indicator-runs.requested",
			RetryCount:        3,
			RetryInterval:     500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Sentry: SentryConfig{
			SampleRate: 1.0,
		},
	}
}

// Load reads configuration from CONFIG_PATH or the default paths
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile reads configuration with path as the YAML layer. An empty path
// skips the file layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Variables from the original deployment, lower priority than prefixed ones.
	if err := k.Load(env.Provider("", ".", legacyEnvTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load legacy environment variables: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envTransform maps INDICATORS_SERVER__RATE_LIMIT to server.rate_limit
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

func legacyEnvTransform(key string) string {
	switch key {
	case "PORT":
		return "server.port"
	case "DB_PATH":
		return "database.path"
	case "SENTRY_DSN":
		return "sentry.dsn"
	default:
		return ""
	}
}

// Validate checks enumerations and normalizes the listen address
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if !strings.Contains(c.Server.Port, ":") {
		c.Server.Port = ":" + c.Server.Port
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Attachments.Backend {
	case "fs":
		if c.Attachments.Dir == "" {
			return fmt.Errorf("attachments.dir is required for the fs backend")
		}
	case "gcs":
		if c.Attachments.Bucket == "" {
			return fmt.Errorf("attachments.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown attachments.backend %q (want fs or gcs)", c.Attachments.Backend)
	}
	if c.Attachments.MaxBytes <= 0 {
		return fmt.Errorf("attachments.max_bytes must be positive")
	}

	if tz := c.Aggregation.DefaultTimeZone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("aggregation.default_timezone: %w", err)
		}
	}

	switch c.Events.Backend {
	case "gochannel", "nats":
	default:
		return fmt.Errorf("unknown events.backend %q (want gochannel or nats)", c.Events.Backend)
	}
	if c.Events.Enabled && c.Events.Backend == "nats" {
		if c.Events.NATSURL == "" {
			return fmt.Errorf("events.nats_url is required for the nats backend")
		}
		if c.Events.Stream == "" || strings.ContainsAny(c.Events.Stream, ".*> ") {
			return fmt.Errorf("events.stream %q is not a valid stream name", c.Events.Stream)
		}
	}
	if c.Events.SubmittedTopic == "" || c.Events.RunRequestedTopic == "" {
		return fmt.Errorf("events topics must not be empty")
	}

	return nil
}
