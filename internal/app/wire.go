package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/arbbot/internal/blob/s3"
	"github.com/alanyoungcy/arbbot/internal/cache/redis"
	"github.com/alanyoungcy/arbbot/internal/config"
	"github.com/alanyoungcy/arbbot/internal/domain"
	"github.com/alanyoungcy/arbbot/internal/notify"
	"github.com/alanyoungcy/arbbot/internal/store/postgres"
)

// Operating modes.
const (
	ModeDetector = "detector"
	ModeExecutor = "executor"
	ModeFeed     = "feed"
	ModeGateway  = "gateway"
	ModeLedger   = "ledger"
	ModeFull     = "full"
)

// Dependencies bundles the concrete backends a mode runs on. Optional
// backends are nil when their mode or configuration does not call for them.
type Dependencies struct {
	// Redis
	Quotes      domain.QuoteStore
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager

	// Postgres (optional)
	OddsHistory domain.OddsHistoryStore
	ArbStore    domain.ArbStore
	AuditStore  domain.AuditStore

	// Blob storage (optional)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	Notifier *notify.Notifier
}

// needsPostgres reports whether mode reads or writes the history tables.
func needsPostgres(cfg *config.Config) bool {
	if !cfg.Postgres.Enabled {
		return false
	}
	switch strings.ToLower(cfg.Mode) {
	case ModeFeed, ModeGateway, ModeLedger, ModeFull:
		return true
	default:
		return false
	}
}

// needsS3 reports whether mode archives executions or serves the archive.
func needsS3(cfg *config.Config) bool {
	if !cfg.Archive.Enabled {
		return false
	}
	switch strings.ToLower(cfg.Mode) {
	case ModeGateway, ModeLedger, ModeFull:
		return true
	default:
		return false
	}
}

// Wire builds the dependencies for cfg.Mode and returns a cleanup function
// that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	if needsPostgres(cfg) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.OddsHistory = postgres.NewOddsHistoryStore(pool)
		deps.ArbStore = postgres.NewArbStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		URL:        cfg.Redis.URL,
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Quotes = redis.NewQuoteStore(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Bus.ReceiveTimeout.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)

	// --- S3 ---
	if needsS3(cfg) {
		bucket, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := bucket.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket not reachable, archive requests will fail",
				slog.String("bucket", bucket.Name()),
				slog.String("error", err.Error()),
			)
		}

		deps.BlobWriter = bucket
		deps.BlobReader = bucket
		if deps.ArbStore != nil && deps.AuditStore != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.BlobReader, deps.ArbStore, deps.AuditStore)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
