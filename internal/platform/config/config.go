// Package config loads server configuration from defaults, an optional YAML
// file, and environment overrides, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all settings for the server process.
type Config struct {
	Addr     string `koanf:"addr"`
	Env      string `koanf:"env"`
	LogLevel string `koanf:"log_level"`

	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	KafkaBrokers []string `koanf:"kafka_brokers"`
	AuditTopic   string   `koanf:"audit_topic"`

	JWTSigningKey string `koanf:"jwt_signing_key"`

	TxTimeout      time.Duration `koanf:"tx_timeout"`
	OutboxInterval time.Duration `koanf:"outbox_interval"`
	OutboxBatch    int           `koanf:"outbox_batch"`
}

const (
	DefaultAddr           = ":8080"
	DefaultAuditTopic     = "linetrace.audit"
	DefaultTxTimeout      = 5 * time.Second
	DefaultOutboxInterval = 2 * time.Second
	DefaultOutboxBatch    = 100
)

// Load builds configuration. path may be empty; a missing file is only an
// error when the path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Addr:           DefaultAddr,
		Env:            "development",
		LogLevel:       "info",
		AuditTopic:     DefaultAuditTopic,
		TxTimeout:      DefaultTxTimeout,
		OutboxInterval: DefaultOutboxInterval,
		OutboxBatch:    DefaultOutboxBatch,
	}

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets deployment environments override file values without
// templating the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("LINETRACE_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("LINETRACE_ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("LINETRACE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("AUDIT_TOPIC"); v != "" {
		cfg.AuditTopic = v
	}
	if v := os.Getenv("JWT_SIGNING_KEY"); v != "" {
		cfg.JWTSigningKey = v
	}
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTSigningKey == "" {
		if c.Env == "production" {
			return fmt.Errorf("JWT_SIGNING_KEY is required in production")
		}
		c.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	if c.OutboxBatch <= 0 {
		c.OutboxBatch = DefaultOutboxBatch
	}
	return nil
}
