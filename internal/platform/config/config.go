// Package config loads runtime configuration from the environment with an
// optional YAML file overlay, so main stays lean.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string `yaml:"addr"`
	JWTSigningKey string `yaml:"jwt_signing_key"`
}

// Database captures PostgreSQL connection settings. An empty DSN selects the
// in-memory stores (development and tests).
type Database struct {
	DSN string `yaml:"dsn"`
}

// Redis captures cache settings. An empty URL disables Redis.
type Redis struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Kafka captures audit outbox publishing settings. Empty brokers disable the
// outbox relay; audit rows still land in the store.
type Kafka struct {
	Brokers []string `yaml:"brokers"`
}

// Sweep configures the LGPD expiry sweep job.
type Sweep struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

// Config is the root configuration object.
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	Sweep    Sweep    `yaml:"sweep"`
}

// FromEnv builds a Config from environment variables, applying the file named
// by LASTMILE_CONFIG (if any) first so env vars win.
func FromEnv() (Config, error) {
	cfg := Config{
		Server: Server{Addr: ":8080"},
		Redis: Redis{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Sweep: Sweep{Interval: time.Hour, BatchSize: 100},
	}

	if path := os.Getenv("LASTMILE_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := os.Getenv("LASTMILE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("JWT_SIGNING_KEY"); v != "" {
		cfg.Server.JWTSigningKey = v
	}
	if cfg.Server.JWTSigningKey == "" {
		// Development default; override in production.
		cfg.Server.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitComma(v)
	}
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse SWEEP_INTERVAL: %w", err)
		}
		cfg.Sweep.Interval = d
	}
	if v := os.Getenv("SWEEP_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse SWEEP_BATCH_SIZE: %w", err)
		}
		cfg.Sweep.BatchSize = n
	}
	return cfg, nil
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
