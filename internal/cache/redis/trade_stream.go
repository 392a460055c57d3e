package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/basisbot/internal/domain"
)

// tradeStream is the Redis stream key for completed trades.
const tradeStream = "trades:completed"

// streamMaxLen is the approximate maximum stream length, enforced via
// XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// TradeBus implements domain.TradeBus using a Redis Stream for durable,
// ordered delivery of completed trades to external consumers.
type TradeBus struct {
	rdb *redis.Client
}

// NewTradeBus creates a TradeBus backed by the given Client.
func NewTradeBus(c *Client) *TradeBus {
	return &TradeBus{rdb: c.Underlying()}
}

// PublishTrade appends a completed trade to the stream as JSON using XADD
// with approximate MAXLEN trimming.
func (tb *TradeBus) PublishTrade(ctx context.Context, trade domain.CompletedTrade) error {
	payload, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("redis: marshal trade %s: %w", trade.ID, err)
	}

	args := &redis.XAddArgs{
		Stream: tradeStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := tb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: publish trade %s: %w", trade.ID, err)
	}
	return nil
}

// readBlock is how long ReadTrades waits for new entries before returning
// empty.
const readBlock = 5 * time.Second

// ReadTrades reads up to count messages from the trade stream starting after
// lastID. Use "0" or "0-0" as lastID to read from the beginning, or "$" to
// read only new messages. The call blocks for a short window when no messages
// are available and then returns an empty slice (not an error).
func (tb *TradeBus) ReadTrades(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	args := &redis.XReadArgs{
		Streams: []string{tradeStream, lastID},
		Count:   int64(count),
		Block:   readBlock,
	}

	results, err := tb.rdb.XRead(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: read trade stream: %w", err)
	}

	var messages []domain.StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			payload, ok := msg.Values["payload"]
			if !ok {
				continue
			}

			var data []byte
			switch v := payload.(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}

			messages = append(messages, domain.StreamMessage{
				ID:      msg.ID,
				Payload: data,
			})
		}
	}

	return messages, nil
}

// Compile-time interface check.
var _ domain.TradeBus = (*TradeBus)(nil)
