package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBBOT_* environment variable overrides, and
// returns the final Config. A missing file is not an error; the defaults and
// environment are used instead. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.DSN, "ARBBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Redis.URL, "ARBBOT_REDIS_URL")
	setStr(&cfg.Redis.Addr, "ARBBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ARBBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBBOT_S3_FORCE_PATH_STYLE")

	// ── Bus ──
	setStr(&cfg.Bus.OddsChannel, "ARBBOT_BUS_ODDS_CHANNEL")
	setStr(&cfg.Bus.DetectionChannel, "ARBBOT_BUS_DETECTION_CHANNEL")
	setStr(&cfg.Bus.ExecutionChannel, "ARBBOT_BUS_EXECUTION_CHANNEL")
	setStr(&cfg.Bus.AuditStream, "ARBBOT_BUS_AUDIT_STREAM")
	setDuration(&cfg.Bus.ReceiveTimeout, "ARBBOT_BUS_RECEIVE_TIMEOUT")
	setDuration(&cfg.Bus.RetryBackoff, "ARBBOT_BUS_RETRY_BACKOFF")

	// ── Detector ──
	setFloat64(&cfg.Detector.TotalStake, "ARBBOT_DETECTOR_TOTAL_STAKE")

	// ── Executor ──
	setDuration(&cfg.Executor.Delay, "ARBBOT_EXECUTOR_DELAY")
	setDuration(&cfg.Executor.DedupTTL, "ARBBOT_EXECUTOR_DEDUP_TTL")
	setDuration(&cfg.Executor.DrainTimeout, "ARBBOT_EXECUTOR_DRAIN_TIMEOUT")

	// ── Feed ──
	setDuration(&cfg.Feed.Interval, "ARBBOT_FEED_INTERVAL")
	setFloat64(&cfg.Feed.UpdateProb, "ARBBOT_FEED_UPDATE_PROB")
	setFloat64(&cfg.Feed.CloseProb, "ARBBOT_FEED_CLOSE_PROB")
	setFloat64(&cfg.Feed.Vig, "ARBBOT_FEED_VIG")
	setFloat64(&cfg.Feed.HomeOddsMin, "ARBBOT_FEED_HOME_ODDS_MIN")
	setFloat64(&cfg.Feed.HomeOddsMax, "ARBBOT_FEED_HOME_ODDS_MAX")
	setStringSlice(&cfg.Feed.Matches, "ARBBOT_FEED_MATCHES")
	setStringSlice(&cfg.Feed.Bookmakers, "ARBBOT_FEED_BOOKMAKERS")
	setInt64(&cfg.Feed.Seed, "ARBBOT_FEED_SEED")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "ARBBOT_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "ARBBOT_ARCHIVE_INTERVAL")
	setDuration(&cfg.Archive.Retention, "ARBBOT_ARCHIVE_RETENTION")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ARBBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ARBBOT_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBBOT_MODE")
	setStr(&cfg.LogLevel, "ARBBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
