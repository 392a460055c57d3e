package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/basisbot/internal/domain"
)

// GapStore implements domain.GapStore using PostgreSQL.
type GapStore struct {
	pool *pgxpool.Pool
}

// NewGapStore creates a new GapStore backed by the given connection pool.
func NewGapStore(pool *pgxpool.Pool) *GapStore {
	return &GapStore{pool: pool}
}

// InsertBatch inserts gap snapshots efficiently using pgx Batch. Duplicate
// snapshot IDs are silently skipped via ON CONFLICT DO NOTHING.
func (s *GapStore) InsertBatch(ctx context.Context, snaps []domain.GapSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO gap_snapshots (
			id, symbol, venue_a, venue_b, venue_a_mid, venue_b_mid, gap_usd, observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	for _, g := range snaps {
		batch.Queue(query,
			g.ID, g.Symbol, g.VenueA, g.VenueB,
			g.VenueAMid, g.VenueBMid, g.GapUSD, g.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range snaps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert gap batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListBefore returns snapshots observed strictly before cutoff, oldest first
// (for archiving). limit <= 0 means no limit.
func (s *GapStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.GapSnapshot, error) {
	query := `SELECT id, symbol, venue_a, venue_b, venue_a_mid, venue_b_mid, gap_usd, observed_at
		FROM gap_snapshots WHERE observed_at < $1 ORDER BY observed_at ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list gap snapshots before: %w", err)
	}
	defer rows.Close()

	var snaps []domain.GapSnapshot
	for rows.Next() {
		var g domain.GapSnapshot
		if err := rows.Scan(
			&g.ID, &g.Symbol, &g.VenueA, &g.VenueB,
			&g.VenueAMid, &g.VenueBMid, &g.GapUSD, &g.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan gap snapshot: %w", err)
		}
		snaps = append(snaps, g)
	}
	return snaps, rows.Err()
}

// DeleteBefore deletes all snapshots observed before cutoff. Returns the
// number deleted.
func (s *GapStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM gap_snapshots WHERE observed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete gap snapshots before: %w", err)
	}
	return tag.RowsAffected(), nil
}
