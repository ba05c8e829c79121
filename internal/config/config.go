// Package config loads server settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	MySQLDSN        string        `yaml:"mysql_dsn"`
	RedisAddr       string        `yaml:"redis_addr"`
	KafkaBrokers    []string      `yaml:"kafka_brokers"`
	KafkaTopic      string        `yaml:"kafka_topic"`
	OutboxPath      string        `yaml:"outbox_path"`
	Workers         int           `yaml:"workers"`
	QueueSize       int           `yaml:"queue_size"`
	ReplayInterval  time.Duration `yaml:"replay_interval"`
	CatalogCacheTTL time.Duration `yaml:"catalog_cache_ttl"`
	Retry           RetryConfig   `yaml:"retry"`
	LogLevel        string        `yaml:"log_level"`
}

func Default() *Config {
	return &Config{
		HTTPAddr:        ":8080",
		GRPCAddr:        ":50051",
		MySQLDSN:        "root:root@tcp(localhost:3306)/brickparty?parseTime=true",
		RedisAddr:       "localhost:6379",
		KafkaTopic:      "owned-changes",
		OutboxPath:      "brickparty-outbox.db",
		Workers:         5,
		QueueSize:       10000,
		ReplayInterval:  30 * time.Second,
		CatalogCacheTTL: time.Hour,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   100 * time.Millisecond,
			MaxDelay:    2 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.HTTPAddr = getEnv("BRICKPARTY_HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getEnv("BRICKPARTY_GRPC_ADDR", c.GRPCAddr)
	c.MySQLDSN = getEnv("BRICKPARTY_MYSQL_DSN", c.MySQLDSN)
	c.RedisAddr = getEnv("BRICKPARTY_REDIS_ADDR", c.RedisAddr)
	c.KafkaTopic = getEnv("BRICKPARTY_KAFKA_TOPIC", c.KafkaTopic)
	c.OutboxPath = getEnv("BRICKPARTY_OUTBOX_PATH", c.OutboxPath)
	c.LogLevel = getEnv("BRICKPARTY_LOG_LEVEL", c.LogLevel)

	if brokers := os.Getenv("BRICKPARTY_KAFKA_BROKERS"); brokers != "" {
		c.KafkaBrokers = parseKafkaBrokers(brokers)
	}
	if workers := os.Getenv("BRICKPARTY_WORKERS"); workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return fmt.Errorf("BRICKPARTY_WORKERS: %w", err)
		}
		c.Workers = n
	}
	return nil
}

func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("http_addr is required")
	}
	if c.MySQLDSN == "" {
		return fmt.Errorf("mysql_dsn is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("kafka_topic is required when kafka_brokers is set")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", c.QueueSize)
	}
	if c.ReplayInterval <= 0 {
		return fmt.Errorf("replay_interval must be positive, got %v", c.ReplayInterval)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps log_level onto slog.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseKafkaBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
