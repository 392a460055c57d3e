package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/basisbot/internal/domain"
)

// Archiver moves aged records out of the primary store into object storage.
// Gap snapshots are high-volume sampling data and are deleted from Postgres
// once the archive upload succeeds; completed trades are archived but never
// deleted, they are the accounting record.
type Archiver struct {
	writer domain.BlobWriter
	trades domain.TradeStore
	gaps   domain.GapStore
	audit  domain.AuditStore
}

// NewArchiver creates a new Archiver.
func NewArchiver(
	writer domain.BlobWriter,
	trades domain.TradeStore,
	gaps domain.GapStore,
	audit domain.AuditStore,
) *Archiver {
	return &Archiver{
		writer: writer,
		trades: trades,
		gaps:   gaps,
		audit:  audit,
	}
}

// ArchiveGaps uploads all gap snapshots observed before the cutoff as JSONL
// to archive/gaps/YYYY-MM.jsonl, then deletes them from the primary store.
// Deletion only happens after the upload succeeded. Returns the number of
// archived records.
func (a *Archiver) ArchiveGaps(ctx context.Context, before time.Time) (int64, error) {
	snaps, err := a.gaps.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive gaps query: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(snaps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive gaps marshal: %w", err)
	}

	path := archivePath("gaps", before)
	if err := a.writer.Write(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive gaps upload: %w", err)
	}

	deleted, err := a.gaps.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(snaps)), fmt.Errorf("s3blob: archive gaps prune: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.gaps", map[string]any{
		"path":    path,
		"count":   len(snaps),
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return int64(len(snaps)), fmt.Errorf("s3blob: archive gaps audit log: %w", err)
	}

	return int64(len(snaps)), nil
}

// ArchiveTrades uploads all completed trades closed before the cutoff as
// JSONL to archive/trades/YYYY-MM.jsonl. The primary rows are retained.
// Returns the number of archived records.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Write(ctx, path, buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))

	if err := a.audit.Log(ctx, "archive.trades", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive trades audit log: %w", err)
	}

	return count, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/gaps/2025-01.jsonl
//	archive/trades/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
