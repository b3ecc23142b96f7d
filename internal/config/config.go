// Package config defines the top-level configuration for the arbitrage bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBBOT_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Bus      BusConfig      `toml:"bus"`
	Detector DetectorConfig `toml:"detector"`
	Executor ExecutorConfig `toml:"executor"`
	Feed     FeedConfig     `toml:"feed"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters. Postgres is optional:
// when Enabled is false the ledger keeps only the Redis audit stream and the
// feed skips odds history.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	URL        string `toml:"url"` // redis:// or rediss:// URL, overrides addr/password/db
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// BusConfig names the pub/sub channels and controls subscription behaviour.
type BusConfig struct {
	OddsChannel      string   `toml:"odds_channel"`
	DetectionChannel string   `toml:"detection_channel"`
	ExecutionChannel string   `toml:"execution_channel"`
	AuditStream      string   `toml:"audit_stream"`
	ReceiveTimeout   duration `toml:"receive_timeout"`
	RetryBackoff     duration `toml:"retry_backoff"`
}

// DetectorConfig holds opportunity detection parameters.
type DetectorConfig struct {
	TotalStake float64 `toml:"total_stake"`
}

// ExecutorConfig holds execution reconciliation parameters.
type ExecutorConfig struct {
	Delay        duration `toml:"delay"`
	DedupTTL     duration `toml:"dedup_ttl"`
	DrainTimeout duration `toml:"drain_timeout"`
}

// FeedConfig holds the simulated odds feed parameters.
type FeedConfig struct {
	Interval    duration `toml:"interval"`
	UpdateProb  float64  `toml:"update_prob"`
	CloseProb   float64  `toml:"close_prob"`
	Vig         float64  `toml:"vig"`
	HomeOddsMin float64  `toml:"home_odds_min"`
	HomeOddsMax float64  `toml:"home_odds_max"`
	Matches     []string `toml:"matches"`
	Bookmakers  []string `toml:"bookmakers"`
	Seed        int64    `toml:"seed"`
}

// ArchiveConfig controls export of old executions to object storage.
type ArchiveConfig struct {
	Enabled   bool     `toml:"enabled"`
	Interval  duration `toml:"interval"`
	Retention duration `toml:"retention"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"` // requests per client per window, 0 disables
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Bus: BusConfig{
			OddsChannel:      "odds_updates",
			DetectionChannel: "arb_detections",
			ExecutionChannel: "arb_executions",
			AuditStream:      "arb_audit",
			ReceiveTimeout:   duration{time.Second},
			RetryBackoff:     duration{5 * time.Second},
		},
		Detector: DetectorConfig{
			TotalStake: 100,
		},
		Executor: ExecutorConfig{
			Delay:        duration{2 * time.Second},
			DedupTTL:     duration{2 * time.Minute},
			DrainTimeout: duration{0},
		},
		Feed: FeedConfig{
			Interval:    duration{5 * time.Second},
			UpdateProb:  0.2,
			CloseProb:   0.2,
			Vig:         0.05,
			HomeOddsMin: 1.6,
			HomeOddsMax: 3.2,
			Matches:     []string{"Man Utd vs Chelsea", "Liverpool vs Arsenal", "Barcelona vs Real Madrid"},
			Bookmakers:  []string{"Bet365", "Smarkets", "Betfair"},
		},
		Archive: ArchiveConfig{
			Enabled:   false,
			Interval:  duration{24 * time.Hour},
			Retention: duration{90 * 24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"arb_cancelled", "arb_adjusted"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"detector": true,
	"executor": true,
	"feed":     true,
	"gateway":  true,
	"ledger":   true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: detector, executor, feed, gateway, ledger, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Bus
	channels := map[string]string{
		"odds_channel":      c.Bus.OddsChannel,
		"detection_channel": c.Bus.DetectionChannel,
		"execution_channel": c.Bus.ExecutionChannel,
	}
	seen := make(map[string]string, len(channels))
	for _, key := range []string{"odds_channel", "detection_channel", "execution_channel"} {
		name := channels[key]
		if name == "" {
			errs = append(errs, fmt.Sprintf("bus: %s must not be empty", key))
			continue
		}
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Sprintf("bus: %s and %s must differ (both %q)", prev, key, name))
		}
		seen[name] = key
	}
	if c.Bus.ReceiveTimeout.Duration <= 0 {
		errs = append(errs, "bus: receive_timeout must be > 0")
	}
	if c.Bus.RetryBackoff.Duration <= 0 {
		errs = append(errs, "bus: retry_backoff must be > 0")
	}

	// Detector
	if c.Detector.TotalStake <= 0 {
		errs = append(errs, "detector: total_stake must be > 0")
	}

	// Executor
	if c.Executor.Delay.Duration < 0 {
		errs = append(errs, "executor: delay must be >= 0")
	}
	if c.Executor.DedupTTL.Duration < 0 {
		errs = append(errs, "executor: dedup_ttl must be >= 0")
	}
	if c.Executor.DrainTimeout.Duration < 0 {
		errs = append(errs, "executor: drain_timeout must be >= 0")
	}

	// Feed
	if c.Mode == "feed" || c.Mode == "full" {
		if c.Feed.Interval.Duration <= 0 {
			errs = append(errs, "feed: interval must be > 0")
		}
		if c.Feed.UpdateProb < 0 || c.Feed.CloseProb < 0 || c.Feed.UpdateProb+c.Feed.CloseProb > 1 {
			errs = append(errs, "feed: update_prob and close_prob must be >= 0 and sum to at most 1")
		}
		if c.Feed.Vig < 0 {
			errs = append(errs, "feed: vig must be >= 0")
		}
		if c.Feed.HomeOddsMin <= 1 || c.Feed.HomeOddsMax < c.Feed.HomeOddsMin {
			errs = append(errs, "feed: home odds range must satisfy 1 < home_odds_min <= home_odds_max")
		}
		if len(c.Feed.Matches) == 0 {
			errs = append(errs, "feed: matches must not be empty")
		}
		if len(c.Feed.Bookmakers) < 2 {
			errs = append(errs, "feed: at least two bookmakers are required")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if !c.Postgres.Enabled {
			errs = append(errs, "archive: postgres must be enabled")
		}
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
		if c.Archive.Retention.Duration <= 0 {
			errs = append(errs, "archive: retention must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		} else if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
