package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Bus, cfg.Bus)
	assert.Equal(t, 100.0, cfg.Detector.TotalStake)
}

func TestLoad_DecodesFile(t *testing.T) {
	path := writeConfig(t, `
mode = "executor"

[executor]
delay = "500ms"
drain_timeout = "3s"

[bus]
odds_channel = "odds"

[feed]
bookmakers = ["A", "B", "C", "D"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "executor", cfg.Mode)
	assert.Equal(t, 500*time.Millisecond, cfg.Executor.Delay.Duration)
	assert.Equal(t, 3*time.Second, cfg.Executor.DrainTimeout.Duration)
	assert.Equal(t, "odds", cfg.Bus.OddsChannel)
	assert.Equal(t, "arb_detections", cfg.Bus.DetectionChannel, "unset keys keep defaults")
	assert.Equal(t, []string{"A", "B", "C", "D"}, cfg.Feed.Bookmakers)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_BadTOML(t *testing.T) {
	_, err := Load(writeConfig(t, `mode = `))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ARBBOT_MODE", "detector")
	t.Setenv("ARBBOT_DETECTOR_TOTAL_STAKE", "250")
	t.Setenv("ARBBOT_EXECUTOR_DELAY", "4s")
	t.Setenv("ARBBOT_FEED_BOOKMAKERS", " Bet365 , Betfair ,, ")
	t.Setenv("ARBBOT_FEED_SEED", "42")
	t.Setenv("ARBBOT_SERVER_PORT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "detector", cfg.Mode)
	assert.Equal(t, 250.0, cfg.Detector.TotalStake)
	assert.Equal(t, 4*time.Second, cfg.Executor.Delay.Duration)
	assert.Equal(t, []string{"Bet365", "Betfair"}, cfg.Feed.Bookmakers)
	assert.Equal(t, int64(42), cfg.Feed.Seed)
	assert.Equal(t, 8000, cfg.Server.Port, "unparseable values are ignored")
}

func TestLoad_URLAliases(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://alias:6379/0")
	t.Setenv("DATABASE_URL", "postgres://alias/db")
	t.Setenv("ARBBOT_POSTGRES_DSN", "postgres://explicit/db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis://alias:6379/0", cfg.Redis.URL)
	assert.Equal(t, "postgres://explicit/db", cfg.Postgres.DSN, "prefixed variable wins")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "trader" }, "unknown mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "trace" }, "unknown log_level"},
		{"zero stake", func(c *Config) { c.Detector.TotalStake = 0 }, "total_stake"},
		{"negative delay", func(c *Config) { c.Executor.Delay.Duration = -time.Second }, "delay"},
		{"same channel twice", func(c *Config) { c.Bus.DetectionChannel = c.Bus.OddsChannel }, "must differ"},
		{"empty channel", func(c *Config) { c.Bus.ExecutionChannel = "" }, "execution_channel"},
		{"one bookmaker", func(c *Config) { c.Feed.Bookmakers = []string{"Bet365"} }, "two bookmakers"},
		{"probabilities over one", func(c *Config) { c.Feed.UpdateProb, c.Feed.CloseProb = 0.7, 0.7 }, "update_prob"},
		{"home odds range inverted", func(c *Config) { c.Feed.HomeOddsMin, c.Feed.HomeOddsMax = 3, 2 }, "home odds range"},
		{"archive without postgres", func(c *Config) { c.Archive.Enabled = true }, "postgres must be enabled"},
		{"rate limit without window", func(c *Config) {
			c.Server.RateLimit = 10
			c.Server.RateWindow.Duration = 0
		}, "rate_window"},
		{"bad server port", func(c *Config) { c.Server.Port = 70000 }, "server: port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_Validate_FeedChecksSkippedOutsideFeedModes(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "executor"
	cfg.Feed.Bookmakers = nil
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Redis.URL = "redis://:secret@host:6379"
	cfg.Postgres.Password = "pw"
	cfg.Server.APIKey = "key"
	cfg.Notify.TelegramToken = "tok"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Redis.URL)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Empty(t, out.S3.SecretKey, "empty secrets stay empty")
	assert.Equal(t, "redis://:secret@host:6379", cfg.Redis.URL, "original untouched")

	out.Feed.Bookmakers[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Feed.Bookmakers[0])
}
