package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BASISBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BASISBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "BASISBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "BASISBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "BASISBOT_WALLET_KEY_PASSWORD")

	// ── Hyperliquid ──
	setStr(&cfg.Hyperliquid.BaseURL, "BASISBOT_HYPERLIQUID_BASE_URL")
	setStr(&cfg.Hyperliquid.WsURL, "BASISBOT_HYPERLIQUID_WS_URL")
	setFloat64(&cfg.Hyperliquid.MakerBps, "BASISBOT_HYPERLIQUID_MAKER_BPS")
	setFloat64(&cfg.Hyperliquid.TakerBps, "BASISBOT_HYPERLIQUID_TAKER_BPS")

	// ── Bybit ──
	setStr(&cfg.Bybit.ApiKey, "BASISBOT_BYBIT_API_KEY")
	setStr(&cfg.Bybit.ApiSecret, "BASISBOT_BYBIT_API_SECRET")
	setStr(&cfg.Bybit.BaseURL, "BASISBOT_BYBIT_BASE_URL")
	setStr(&cfg.Bybit.WsURL, "BASISBOT_BYBIT_WS_URL")
	setInt(&cfg.Bybit.RecvWindow, "BASISBOT_BYBIT_RECV_WINDOW")
	setFloat64(&cfg.Bybit.MakerBps, "BASISBOT_BYBIT_MAKER_BPS")
	setFloat64(&cfg.Bybit.TakerBps, "BASISBOT_BYBIT_TAKER_BPS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "BASISBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BASISBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BASISBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BASISBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BASISBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BASISBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BASISBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BASISBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BASISBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BASISBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BASISBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BASISBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BASISBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BASISBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BASISBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BASISBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BASISBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BASISBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "BASISBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BASISBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BASISBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BASISBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BASISBOT_S3_FORCE_PATH_STYLE")

	// ── Strategy ──
	setStr(&cfg.Strategy.Symbol, "BASISBOT_STRATEGY_SYMBOL")
	setFloat64(&cfg.Strategy.Size, "BASISBOT_STRATEGY_SIZE")
	setFloat64(&cfg.Strategy.EntryGapUSD, "BASISBOT_STRATEGY_ENTRY_GAP_USD")
	setFloat64(&cfg.Strategy.ExitGapUSD, "BASISBOT_STRATEGY_EXIT_GAP_USD")
	setFloat64(&cfg.Strategy.MaxEntryGapUSD, "BASISBOT_STRATEGY_MAX_ENTRY_GAP_USD")
	setDuration(&cfg.Strategy.MinHold, "BASISBOT_STRATEGY_MIN_HOLD")
	setDuration(&cfg.Strategy.MaxHold, "BASISBOT_STRATEGY_MAX_HOLD")
	setDuration(&cfg.Strategy.SettleWindow, "BASISBOT_STRATEGY_SETTLE_WINDOW")
	setDuration(&cfg.Strategy.ErrorCooldown, "BASISBOT_STRATEGY_ERROR_COOLDOWN")
	setDuration(&cfg.Strategy.TickInterval, "BASISBOT_STRATEGY_TICK_INTERVAL")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxLeverage, "BASISBOT_RISK_MAX_LEVERAGE")
	setFloat64(&cfg.Risk.MarginBufferPct, "BASISBOT_RISK_MARGIN_BUFFER_PCT")
	setFloat64(&cfg.Risk.MaxSlippageBps, "BASISBOT_RISK_MAX_SLIPPAGE_BPS")
	setInt(&cfg.Risk.BookDepth, "BASISBOT_RISK_BOOK_DEPTH")

	// ── Executor ──
	setFloat64(&cfg.Executor.SizeTolerancePct, "BASISBOT_EXECUTOR_SIZE_TOLERANCE_PCT")
	setFloat64(&cfg.Executor.SizeToleranceAbs, "BASISBOT_EXECUTOR_SIZE_TOLERANCE_ABS")
	setFloat64(&cfg.Executor.MakerImprove, "BASISBOT_EXECUTOR_MAKER_IMPROVE")
	setDuration(&cfg.Executor.MakerWait, "BASISBOT_EXECUTOR_MAKER_WAIT")
	setBool(&cfg.Executor.TakerFallback, "BASISBOT_EXECUTOR_TAKER_FALLBACK")

	// ── Recorder ──
	setBool(&cfg.Recorder.Enabled, "BASISBOT_RECORDER_ENABLED")
	setDuration(&cfg.Recorder.SampleInterval, "BASISBOT_RECORDER_SAMPLE_INTERVAL")
	setInt(&cfg.Recorder.FlushSize, "BASISBOT_RECORDER_FLUSH_SIZE")
	setInt(&cfg.Recorder.ArchiveRetentionDays, "BASISBOT_RECORDER_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Recorder.ArchiveInterval, "BASISBOT_RECORDER_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BASISBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BASISBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BASISBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BASISBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMin, "BASISBOT_SERVER_RATE_LIMIT_PER_MIN")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BASISBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BASISBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BASISBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BASISBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "BASISBOT_MODE")
	setStr(&cfg.LogLevel, "BASISBOT_LOG_LEVEL")
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
