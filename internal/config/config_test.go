package config

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EIKON_API", "app-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "app-key", cfg.EikonAppKey)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.EikonBaseURL)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 2*time.Hour, cfg.SessionIdleTTL)
	assert.Equal(t, "@every 10m", cfg.SessionSweep)
	assert.Equal(t, "IVV", cfg.Defaults.Benchmark)
	assert.Equal(t, "AAPL.O", cfg.Defaults.Asset)
	assert.Equal(t, civil.Date{Year: 2017, Month: time.January, Day: 1}, cfg.Defaults.Start)
	assert.Equal(t, civil.Date{Year: 2015, Month: time.January, Day: 1}, cfg.Defaults.MinDate)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("EIKON_API", "app-key")
	t.Setenv("GO_PORT", "9100")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("DEFAULT_BENCHMARK", "SPY")
	t.Setenv("DEFAULT_START", "2019-06-03")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "SPY", cfg.Defaults.Benchmark)
	assert.Equal(t, civil.Date{Year: 2019, Month: time.June, Day: 3}, cfg.Defaults.Start)
}

func TestLoad_MissingKey(t *testing.T) {
	t.Setenv("EIKON_API", "")
	t.Setenv("DEV_MODE", "false")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EIKON_API")
}

func TestLoad_DevModeWithoutKey(t *testing.T) {
	t.Setenv("EIKON_API", "")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.DevMode)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			EikonAppKey:    "k",
			EikonBaseURL:   "http://localhost:9000",
			FetchTimeout:   time.Minute,
			Port:           8001,
			SessionIdleTTL: time.Hour,
			SessionSweep:   "@every 10m",
			Defaults: Defaults{
				Benchmark: "IVV",
				Asset:     "AAPL.O",
				Start:     civil.Date{Year: 2017, Month: time.January, Day: 1},
				MinDate:   civil.Date{Year: 2015, Month: time.January, Day: 1},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Port = 70000 }, wantErr: "GO_PORT"},
		{name: "bad schedule", mutate: func(c *Config) { c.SessionSweep = "whenever" }, wantErr: "SESSION_SWEEP"},
		{name: "zero timeout", mutate: func(c *Config) { c.FetchTimeout = 0 }, wantErr: "FETCH_TIMEOUT"},
		{name: "empty asset", mutate: func(c *Config) { c.Defaults.Asset = "" }, wantErr: "DEFAULT_ASSET"},
		{
			name: "start before min date",
			mutate: func(c *Config) {
				c.Defaults.Start = civil.Date{Year: 2014, Month: time.December, Day: 31}
			},
			wantErr: "MIN_DATE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
