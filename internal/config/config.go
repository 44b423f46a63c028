// Package config loads the bankes process configuration from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendNATS     Backend = "nats"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

type Config struct {
	Backend          Backend `env:"BANKES_BACKEND" envDefault:"sqlite"`
	SQLitePath       string  `env:"BANKES_SQLITE_PATH" envDefault:"bankes.db"`
	NatsURL          string  `env:"NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	NatsStream       string  `env:"BANKES_NATS_STREAM" envDefault:"BANKES_LOG"`
	DatabaseURL      string  `env:"DATABASE_URL"`
	RedisAddr        string  `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword    string  `env:"REDIS_PASSWORD"`
	SnapshotInterval int     `env:"BANKES_SNAPSHOT_INTERVAL" envDefault:"5"`
	LogLevel         string  `env:"BANKES_LOG_LEVEL" envDefault:"info"`
	HTTPAddr         string  `env:"BANKES_HTTP_ADDR" envDefault:":8080"`
	// MetricsFile, if set, receives the Prometheus metrics of the run in
	// text format when the command finishes.
	MetricsFile string `env:"BANKES_METRICS_FILE"`
}

// Load reads the given .env files (default ".env") if present and parses
// the environment into a Config. Variables already set win over the files.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendSQLite, BackendNATS, BackendRedis:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.SnapshotInterval < 0 {
		return fmt.Errorf("snapshot interval must not be negative, got %d", c.SnapshotInterval)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}
