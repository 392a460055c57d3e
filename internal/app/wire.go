package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/basisbot/internal/blob/s3"
	"github.com/alanyoungcy/basisbot/internal/cache/redis"
	"github.com/alanyoungcy/basisbot/internal/config"
	"github.com/alanyoungcy/basisbot/internal/domain"
	"github.com/alanyoungcy/basisbot/internal/metrics"
	"github.com/alanyoungcy/basisbot/internal/notify"
	"github.com/alanyoungcy/basisbot/internal/server/handler"
	"github.com/alanyoungcy/basisbot/internal/service"
	"github.com/alanyoungcy/basisbot/internal/store/postgres"
)

// Dependencies bundles every shared dependency the application modes need. It
// is constructed by Wire and torn down by the returned cleanup function.
// Fields are nil when the configured mode does not need them.
type Dependencies struct {
	// Stores
	TradeStore domain.TradeStore
	GapStore   domain.GapStore
	AuditStore domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	TradeBus    domain.TradeBus
	RateLimiter domain.RateLimiter

	// Blob storage
	BlobArchiver *s3blob.Archiver

	// Services
	TradeService *service.TradeService

	// Notifications and instrumentation
	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// Pingers feed the health endpoint.
	Pingers map[string]handler.Pinger
}

// needsPostgres returns true for modes that persist trades or gap history.
func needsPostgres(mode string) bool {
	switch mode {
	case "trade", "paper", "record":
		return true
	default:
		return false
	}
}

// needsS3 returns true when the archiver should run.
func needsS3(cfg *config.Config) bool {
	return needsPostgres(cfg.Mode) && cfg.Recorder.Enabled && cfg.S3.Bucket != ""
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Pingers: make(map[string]handler.Pinger),
	}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
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
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.GapStore = postgres.NewGapStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Pingers["postgres"] = pgClient
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
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

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.TradeBus = redis.NewTradeBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Pingers["redis"] = redisClient

	// --- S3 blob storage / archiver ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobArchiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.TradeStore,
			deps.GapStore,
			deps.AuditStore,
		)
		deps.Pingers["s3"] = s3Client
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	if deps.TradeStore != nil {
		deps.TradeService = service.NewTradeService(
			deps.TradeStore,
			deps.TradeBus,
			deps.AuditStore,
			deps.Notifier,
			logger,
		)
	}

	return deps, cleanup, nil
}
