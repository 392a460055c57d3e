package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/basisbot/internal/domain"
)

// quoteTTL expires stale quotes so monitoring never serves hours-old prices
// after a feed dies.
const quoteTTL = 30 * time.Second

// PriceCache implements domain.PriceCache using Redis hashes. Each quote is
// stored at key "quote:{venue}:{symbol}" with fields "bid", "ask", and "ts"
// (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func quoteKey(venue, symbol string) string {
	return "quote:" + venue + ":" + symbol
}

// SetQuote stores the latest top-of-book for a venue/symbol pair.
func (pc *PriceCache) SetQuote(ctx context.Context, venue, symbol string, md domain.MarketData) error {
	key := quoteKey(venue, symbol)
	fields := map[string]interface{}{
		"bid": strconv.FormatFloat(md.Bid, 'f', -1, 64),
		"ask": strconv.FormatFloat(md.Ask, 'f', -1, 64),
		"ts":  strconv.FormatInt(md.Timestamp.UnixNano(), 10),
	}

	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", venue, symbol, err)
	}
	return nil
}

// GetQuote retrieves the latest top-of-book for a venue/symbol pair.
// It returns domain.ErrNotFound when no quote is cached.
func (pc *PriceCache) GetQuote(ctx context.Context, venue, symbol string) (domain.MarketData, error) {
	key := quoteKey(venue, symbol)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.MarketData{}, fmt.Errorf("redis: get quote %s/%s: %w", venue, symbol, err)
	}
	if len(vals) == 0 {
		return domain.MarketData{}, domain.ErrNotFound
	}

	bid, err := strconv.ParseFloat(vals["bid"], 64)
	if err != nil {
		return domain.MarketData{}, fmt.Errorf("redis: parse bid %s/%s: %w", venue, symbol, err)
	}
	ask, err := strconv.ParseFloat(vals["ask"], 64)
	if err != nil {
		return domain.MarketData{}, fmt.Errorf("redis: parse ask %s/%s: %w", venue, symbol, err)
	}
	tsNano, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.MarketData{}, fmt.Errorf("redis: parse ts %s/%s: %w", venue, symbol, err)
	}

	return domain.MarketData{
		Bid:       bid,
		Ask:       ask,
		Mid:       (bid + ask) / 2,
		Timestamp: time.Unix(0, tsNano).UTC(),
	}, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
