package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"goa.design/agentdesk/runtime/batch"
	"goa.design/agentdesk/runtime/conversation"
	"goa.design/agentdesk/runtime/tracker"
)

// Backends supported by the command interface.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
)

type (
	// Config is the agentdesk configuration. Values come from an optional
	// YAML file, then AGENTDESK_* environment variables, which may be set
	// in a .env file.
	Config struct {
		Log         LogConfig     `yaml:"log"`
		Session     SessionConfig `yaml:"session"`
		Batch       BatchConfig   `yaml:"batch"`
		History     HistoryConfig `yaml:"history"`
		Backend     string        `yaml:"backend"`
		Mongo       MongoConfig   `yaml:"mongo"`
		Redis       RedisConfig   `yaml:"redis"`
		MetricsAddr string        `yaml:"metrics_addr"`
	}

	// LogConfig configures clue logging.
	LogConfig struct {
		// Format is "terminal" or "json".
		Format string `yaml:"format"`
		Debug  bool   `yaml:"debug"`
	}

	// SessionConfig configures conversational sessions.
	SessionConfig struct {
		Timeout time.Duration `yaml:"timeout"`
	}

	// BatchConfig configures the campaign batch processor.
	BatchConfig struct {
		Size          int           `yaml:"size"`
		Pacing        time.Duration `yaml:"pacing"`
		Concurrency   int           `yaml:"concurrency"`
		RatePerSecond float64       `yaml:"rate_per_second"`
	}

	// HistoryConfig configures execution history retention.
	HistoryConfig struct {
		Limit int `yaml:"limit"`
		// RedisKey enables the Redis history sink when set.
		RedisKey   string `yaml:"redis_key"`
		RedisLimit int    `yaml:"redis_limit"`
	}

	// MongoConfig configures the MongoDB backend.
	MongoConfig struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	}

	// RedisConfig configures the Redis connection used by the history
	// sink.
	RedisConfig struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	}
)

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Log:     LogConfig{Format: "terminal"},
		Session: SessionConfig{Timeout: conversation.DefaultTimeout},
		Batch: BatchConfig{
			Size:        batch.DefaultSize,
			Pacing:      batch.DefaultPacing,
			Concurrency: batch.DefaultConcurrency,
		},
		History: HistoryConfig{Limit: tracker.DefaultHistoryLimit},
		Backend: BackendMemory,
		Mongo:   MongoConfig{Database: "agentdesk"},
	}
}

// LoadConfig reads path (when not empty), applies environment overrides and
// validates the result. A .env file in the working directory is loaded
// first when present.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return errors.New("mongo backend requires mongo.uri and mongo.database")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Session.Timeout <= 0 {
		return errors.New("session timeout must be positive")
	}
	if c.History.RedisKey != "" && c.Redis.Addr == "" {
		return errors.New("redis history requires redis.addr")
	}
	if c.Log.Format != "terminal" && c.Log.Format != "json" {
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Log.Format = envOr("AGENTDESK_LOG_FORMAT", c.Log.Format)
	c.Log.Debug = envBoolOr("AGENTDESK_DEBUG", c.Log.Debug)
	c.Session.Timeout = envDurationOr("AGENTDESK_SESSION_TIMEOUT", c.Session.Timeout)
	c.Batch.Size = envIntOr("AGENTDESK_BATCH_SIZE", c.Batch.Size)
	c.Batch.Pacing = envDurationOr("AGENTDESK_BATCH_PACING", c.Batch.Pacing)
	c.Batch.Concurrency = envIntOr("AGENTDESK_BATCH_CONCURRENCY", c.Batch.Concurrency)
	c.History.Limit = envIntOr("AGENTDESK_HISTORY_LIMIT", c.History.Limit)
	c.History.RedisKey = envOr("AGENTDESK_HISTORY_REDIS_KEY", c.History.RedisKey)
	c.Backend = envOr("AGENTDESK_BACKEND", c.Backend)
	c.Mongo.URI = envOr("AGENTDESK_MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = envOr("AGENTDESK_MONGO_DATABASE", c.Mongo.Database)
	c.Redis.Addr = envOr("AGENTDESK_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envOr("AGENTDESK_REDIS_PASSWORD", c.Redis.Password)
	c.MetricsAddr = envOr("AGENTDESK_METRICS_ADDR", c.MetricsAddr)
}

// envOr returns the environment variable value or a default.
func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// envIntOr returns the environment variable as int or a default.
func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

// envBoolOr returns the environment variable as bool or a default.
func envBoolOr(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

// envDurationOr returns the environment variable as duration or a default.
func envDurationOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
