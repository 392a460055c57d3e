// Package config defines the top-level configuration for the basis bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BASISBOT_* environment variables.
type Config struct {
	Wallet      WalletConfig      `toml:"wallet"`
	Hyperliquid HyperliquidConfig `toml:"hyperliquid"`
	Bybit       BybitConfig       `toml:"bybit"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Strategy    StrategyConfig    `toml:"strategy"`
	Risk        RiskConfig        `toml:"risk"`
	Executor    ExecutorConfig    `toml:"executor"`
	Recorder    RecorderConfig    `toml:"recorder"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// WalletConfig holds the signing key used for Hyperliquid actions. Either a
// raw private key or an encrypted keystore path plus password.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// HyperliquidConfig holds Hyperliquid API endpoints and fee rates.
type HyperliquidConfig struct {
	BaseURL  string  `toml:"base_url"`
	WsURL    string  `toml:"ws_url"`
	MakerBps float64 `toml:"maker_bps"`
	TakerBps float64 `toml:"taker_bps"`
}

// BybitConfig holds Bybit API credentials, endpoints, and fee rates.
type BybitConfig struct {
	ApiKey     string  `toml:"api_key"`
	ApiSecret  string  `toml:"api_secret"`
	BaseURL    string  `toml:"base_url"`
	WsURL      string  `toml:"ws_url"`
	RecvWindow int     `toml:"recv_window"`
	MakerBps   float64 `toml:"maker_bps"`
	TakerBps   float64 `toml:"taker_bps"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// StrategyConfig holds basis strategy parameters.
type StrategyConfig struct {
	Symbol string `toml:"symbol"`
	// Size is the per-leg position size in base units.
	Size float64 `toml:"size"`
	// EntryGapUSD / ExitGapUSD bound the trade: enter when the cross-venue
	// mid gap exceeds the entry threshold, exit when it compresses to the
	// exit threshold.
	EntryGapUSD    float64  `toml:"entry_gap_usd"`
	ExitGapUSD     float64  `toml:"exit_gap_usd"`
	MaxEntryGapUSD float64  `toml:"max_entry_gap_usd"`
	MinHold        duration `toml:"min_hold"`
	MaxHold        duration `toml:"max_hold"`
	SettleWindow   duration `toml:"settle_window"`
	ErrorCooldown  duration `toml:"error_cooldown"`
	TickInterval   duration `toml:"tick_interval"`
}

// RiskConfig holds pre-trade risk gate parameters.
type RiskConfig struct {
	MaxLeverage     float64 `toml:"max_leverage"`
	MarginBufferPct float64 `toml:"margin_buffer_pct"`
	MaxSlippageBps  float64 `toml:"max_slippage_bps"`
	BookDepth       int     `toml:"book_depth"`
}

// ExecutorConfig holds order execution parameters.
type ExecutorConfig struct {
	SizeTolerancePct float64 `toml:"size_tolerance_pct"`
	SizeToleranceAbs float64 `toml:"size_tolerance_abs"`
	// MakerImprove is the price improvement in USD applied inside the
	// spread when quoting the maker leg.
	MakerImprove  float64  `toml:"maker_improve"`
	MakerWait     duration `toml:"maker_wait"`
	TakerFallback bool     `toml:"taker_fallback"`
}

// RecorderConfig holds gap-recorder and archival parameters.
type RecorderConfig struct {
	Enabled              bool     `toml:"enabled"`
	SampleInterval       duration `toml:"sample_interval"`
	FlushSize            int      `toml:"flush_size"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	ArchiveInterval      duration `toml:"archive_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
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
		Hyperliquid: HyperliquidConfig{
			BaseURL:  "https://api.hyperliquid.xyz",
			WsURL:    "wss://api.hyperliquid.xyz/ws",
			MakerBps: 1.5,
			TakerBps: 4.5,
		},
		Bybit: BybitConfig{
			BaseURL:    "https://api.bybit.com",
			WsURL:      "wss://stream.bybit.com/v5/public/linear",
			RecvWindow: 5000,
			MakerBps:   2.0,
			TakerBps:   5.5,
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "basisbot",
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
			Bucket:         "basisbot-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Strategy: StrategyConfig{
			Symbol:         "BTC",
			Size:           0.01,
			EntryGapUSD:    100.0,
			ExitGapUSD:     40.0,
			MaxEntryGapUSD: 2000.0,
			MinHold:        duration{30 * time.Second},
			MaxHold:        duration{4 * time.Hour},
			SettleWindow:   duration{30 * time.Second},
			ErrorCooldown:  duration{60 * time.Second},
			TickInterval:   duration{5 * time.Second},
		},
		Risk: RiskConfig{
			MaxLeverage:     3.0,
			MarginBufferPct: 20.0,
			MaxSlippageBps:  10.0,
			BookDepth:       20,
		},
		Executor: ExecutorConfig{
			SizeTolerancePct: 1.0,
			SizeToleranceAbs: 0.001,
			MakerImprove:     1.0,
			MakerWait:        duration{5 * time.Second},
			TakerFallback:    true,
		},
		Recorder: RecorderConfig{
			Enabled:              true,
			SampleInterval:       duration{5 * time.Second},
			FlushSize:            100,
			ArchiveRetentionDays: 90,
			ArchiveInterval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimitPerMin: 120,
		},
		Notify: NotifyConfig{
			Events: []string{"trade_opened", "trade_closed", "exit_failed", "desync", "gap_alert", "error"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"paper":   true,
	"monitor": true,
	"record":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, paper, monitor, record)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet and Bybit credentials are only required for live trading.
	if strings.ToLower(c.Mode) == "trade" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode trade")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		if c.Bybit.ApiKey == "" || c.Bybit.ApiSecret == "" {
			errs = append(errs, "bybit: api_key and api_secret are required for mode trade")
		}
	}

	// Hyperliquid endpoints
	if c.Hyperliquid.BaseURL == "" {
		errs = append(errs, "hyperliquid: base_url must not be empty")
	}

	// Bybit endpoints
	if c.Bybit.BaseURL == "" {
		errs = append(errs, "bybit: base_url must not be empty")
	}
	if c.Bybit.RecvWindow <= 0 {
		errs = append(errs, "bybit: recv_window must be > 0")
	}

	// Postgres
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

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Strategy
	if c.Strategy.Symbol == "" {
		errs = append(errs, "strategy: symbol must not be empty")
	}
	if c.Strategy.Size <= 0 {
		errs = append(errs, "strategy: size must be > 0")
	}
	if c.Strategy.EntryGapUSD <= 0 {
		errs = append(errs, "strategy: entry_gap_usd must be > 0")
	}
	if c.Strategy.ExitGapUSD < 0 {
		errs = append(errs, "strategy: exit_gap_usd must be >= 0")
	}
	if c.Strategy.ExitGapUSD >= c.Strategy.EntryGapUSD {
		errs = append(errs, "strategy: exit_gap_usd must be below entry_gap_usd")
	}
	if c.Strategy.MaxEntryGapUSD > 0 && c.Strategy.MaxEntryGapUSD <= c.Strategy.EntryGapUSD {
		errs = append(errs, "strategy: max_entry_gap_usd must exceed entry_gap_usd")
	}
	if c.Strategy.TickInterval.Duration <= 0 {
		errs = append(errs, "strategy: tick_interval must be > 0")
	}

	// Risk
	if c.Risk.MaxLeverage <= 0 {
		errs = append(errs, "risk: max_leverage must be > 0")
	}
	if c.Risk.MarginBufferPct < 0 {
		errs = append(errs, "risk: margin_buffer_pct must be >= 0")
	}
	if c.Risk.MaxSlippageBps <= 0 {
		errs = append(errs, "risk: max_slippage_bps must be > 0")
	}
	if c.Risk.BookDepth < 1 {
		errs = append(errs, "risk: book_depth must be >= 1")
	}

	// Executor
	if c.Executor.SizeTolerancePct < 0 {
		errs = append(errs, "executor: size_tolerance_pct must be >= 0")
	}
	if c.Executor.MakerWait.Duration <= 0 {
		errs = append(errs, "executor: maker_wait must be > 0")
	}

	// Recorder
	if c.Recorder.Enabled {
		if c.Recorder.SampleInterval.Duration <= 0 {
			errs = append(errs, "recorder: sample_interval must be > 0 when enabled")
		}
		if c.Recorder.FlushSize < 1 {
			errs = append(errs, "recorder: flush_size must be >= 1 when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
