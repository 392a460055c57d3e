package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest per-venue quotes.
type PriceCache interface {
	SetQuote(ctx context.Context, venue, symbol string, md MarketData) error
	GetQuote(ctx context.Context, venue, symbol string) (MarketData, error)
}

// TradeBus publishes completed trades to a durable stream for external
// consumers (dashboards, accounting).
type TradeBus interface {
	PublishTrade(ctx context.Context, trade CompletedTrade) error
	ReadTrades(ctx context.Context, lastID string, count int) ([]StreamMessage, error)
}

// StreamMessage is a single entry read back from the trade stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// RateLimiter bounds the rate of an action identified by key. Allow reports
// whether one more occurrence fits within limit events per window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter writes archive objects to object storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte) error
}

// BlobReader reads archive objects back.
type BlobReader interface {
	Read(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}
