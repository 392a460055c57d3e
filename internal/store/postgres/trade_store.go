package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/basisbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, symbol, cheap_venue, expensive_venue, size,
	entry_gap_usd, exit_gap_usd,
	cheap_entry_price, expensive_entry_price,
	cheap_exit_price, expensive_exit_price,
	entry_fees_usd, exit_fees_usd,
	gross_pnl_usd, net_pnl_usd,
	hold_seconds, opened_at, closed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.CompletedTrade, error) {
	var trades []domain.CompletedTrade
	for rows.Next() {
		var t domain.CompletedTrade
		if err := rows.Scan(
			&t.ID, &t.Symbol, &t.CheapVenue, &t.ExpensiveVenue, &t.Size,
			&t.EntryGapUSD, &t.ExitGapUSD,
			&t.CheapEntryPrice, &t.ExpensiveEntryPrice,
			&t.CheapExitPrice, &t.ExpensiveExitPrice,
			&t.EntryFeesUSD, &t.ExitFeesUSD,
			&t.GrossPnLUSD, &t.NetPnLUSD,
			&t.HoldSeconds, &t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert persists one completed round trip. Re-inserting the same trade ID
// is a no-op via ON CONFLICT DO NOTHING.
func (s *TradeStore) Insert(ctx context.Context, t domain.CompletedTrade) error {
	const query = `
		INSERT INTO trades (
			id, symbol, cheap_venue, expensive_venue, size,
			entry_gap_usd, exit_gap_usd,
			cheap_entry_price, expensive_entry_price,
			cheap_exit_price, expensive_exit_price,
			entry_fees_usd, exit_fees_usd,
			gross_pnl_usd, net_pnl_usd,
			hold_seconds, opened_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9,
			$10, $11,
			$12, $13,
			$14, $15,
			$16, $17, $18
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.Symbol, t.CheapVenue, t.ExpensiveVenue, t.Size,
		t.EntryGapUSD, t.ExitGapUSD,
		t.CheapEntryPrice, t.ExpensiveEntryPrice,
		t.CheapExitPrice, t.ExpensiveExitPrice,
		t.EntryFeesUSD, t.ExitFeesUSD,
		t.GrossPnLUSD, t.NetPnLUSD,
		t.HoldSeconds, t.OpenedAt, t.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// ListRecent returns the most recently closed trades, newest first.
func (s *TradeStore) ListRecent(ctx context.Context, limit int) ([]domain.CompletedTrade, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + tradeSelectCols + ` FROM trades ORDER BY closed_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent trades: %w", err)
	}
	return trades, nil
}

// ListBefore returns trades closed strictly before cutoff, oldest first
// (for archiving). limit <= 0 means no limit.
func (s *TradeStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.CompletedTrade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE closed_at < $1 ORDER BY closed_at ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// SumNetPnL returns the total net P&L of trades closed at or after since.
func (s *TradeStore) SumNetPnL(ctx context.Context, since time.Time) (float64, error) {
	var sum *float64
	err := s.pool.QueryRow(ctx,
		`SELECT SUM(net_pnl_usd) FROM trades WHERE closed_at >= $1`, since,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum net pnl: %w", err)
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}
