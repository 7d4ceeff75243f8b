// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	// EikonAppKey is the Eikon Data API application key, read once at startup.
	EikonAppKey  string        `env:"EIKON_API"`
	EikonBaseURL string        `env:"EIKON_BASE_URL" envDefault:"http://127.0.0.1:9000"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"60s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"true"`
	Port      int    `env:"GO_PORT" envDefault:"8001"`
	DevMode   bool   `env:"DEV_MODE" envDefault:"false"`

	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" envDefault:"2h"`
	SessionSweep   string        `env:"SESSION_SWEEP" envDefault:"@every 10m"`

	Defaults Defaults
}

// Defaults are the initial widget values of a new dashboard session.
type Defaults struct {
	Benchmark string     `env:"DEFAULT_BENCHMARK" envDefault:"IVV"`
	Asset     string     `env:"DEFAULT_ASSET" envDefault:"AAPL.O"`
	Start     civil.Date `env:"DEFAULT_START" envDefault:"2017-01-01"`
	MinDate   civil.Date `env:"MIN_DATE" envDefault:"2015-01-01"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	// A missing key is tolerated in dev mode so the dashboard can run against a local stub proxy.
	if c.EikonAppKey == "" && !c.DevMode {
		return errors.New("EIKON_API is required")
	}
	if c.EikonBaseURL == "" {
		return errors.New("EIKON_BASE_URL is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("GO_PORT out of range: %d", c.Port)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout)
	}
	if c.SessionIdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must be positive, got %s", c.SessionIdleTTL)
	}
	if _, err := cron.ParseStandard(c.SessionSweep); err != nil {
		return fmt.Errorf("invalid SESSION_SWEEP schedule %q: %w", c.SessionSweep, err)
	}
	if c.Defaults.Benchmark == "" || c.Defaults.Asset == "" {
		return errors.New("DEFAULT_BENCHMARK and DEFAULT_ASSET must not be empty")
	}
	if c.Defaults.Start.Before(c.Defaults.MinDate) {
		return fmt.Errorf("DEFAULT_START %s is before MIN_DATE %s", c.Defaults.Start, c.Defaults.MinDate)
	}

	return nil
}
