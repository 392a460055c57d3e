package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/basisbot/internal/domain"
	"github.com/alanyoungcy/basisbot/internal/venue"
	"github.com/alanyoungcy/basisbot/internal/venue/paper"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memGapStore struct {
	mu      sync.Mutex
	batches [][]domain.GapSnapshot
	failing bool
}

func (s *memGapStore) InsertBatch(_ context.Context, snaps []domain.GapSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("store unavailable")
	}
	batch := make([]domain.GapSnapshot, len(snaps))
	copy(batch, snaps)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *memGapStore) ListBefore(context.Context, time.Time, int) ([]domain.GapSnapshot, error) {
	return nil, nil
}

func (s *memGapStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func testRecorder(store *memGapStore, flushSize int) (*Recorder, *paper.Venue, *paper.Venue) {
	alpha := paper.New("alpha", venue.FeeSchedule{}, 0)
	beta := paper.New("beta", venue.FeeSchedule{}, 0)
	alpha.SetQuote("BTC", 49_990, 50_010)
	beta.SetQuote("BTC", 50_140, 50_160)

	r := New(Config{Symbol: "BTC", SampleInterval: time.Second, FlushSize: flushSize},
		alpha, beta, store, nil, testLogger())
	return r, alpha, beta
}

func TestSampleBuffersUntilFlushSize(t *testing.T) {
	store := &memGapStore{}
	r, _, _ := testRecorder(store, 3)

	for i := 0; i < 2; i++ {
		if err := r.sample(context.Background()); err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}
	}
	if len(store.batches) != 0 {
		t.Fatalf("flushed %d batches before reaching flush size", len(store.batches))
	}

	if err := r.sample(context.Background()); err != nil {
		t.Fatalf("third sample: %v", err)
	}
	if len(store.batches) != 1 || len(store.batches[0]) != 3 {
		t.Fatalf("batches = %+v, want one batch of 3", store.batches)
	}

	snap := store.batches[0][0]
	if snap.Symbol != "BTC" || snap.VenueA != "alpha" || snap.VenueB != "beta" {
		t.Fatalf("snapshot = %+v", snap)
	}
	// Signed gap: venue B mid minus venue A mid.
	if math.Abs(snap.GapUSD-150) > 1e-9 {
		t.Fatalf("gap = %v, want 150", snap.GapUSD)
	}
	if snap.ID == "" || snap.Timestamp.IsZero() {
		t.Fatalf("snapshot missing id or timestamp: %+v", snap)
	}
}

func TestFlushKeepsBufferOnFailure(t *testing.T) {
	store := &memGapStore{failing: true}
	r, _, _ := testRecorder(store, 1)

	if err := r.sample(context.Background()); err == nil {
		t.Fatal("sample should surface the flush failure")
	}
	if len(r.pending) != 1 {
		t.Fatalf("pending = %d, want buffered snapshot retained", len(r.pending))
	}

	// The retained batch goes through once the store recovers.
	store.mu.Lock()
	store.failing = false
	store.mu.Unlock()
	if err := r.flush(context.Background()); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if len(store.batches) != 1 || len(r.pending) != 0 {
		t.Fatalf("batches = %d pending = %d after retry", len(store.batches), len(r.pending))
	}
}

func TestSampleFailsWhenQuoteMissing(t *testing.T) {
	store := &memGapStore{}
	r, _, _ := testRecorder(store, 10)

	r.cfg.Symbol = "ETH"
	if err := r.sample(context.Background()); err == nil {
		t.Fatal("missing quote should fail the sample")
	}
	if len(r.pending) != 0 {
		t.Fatalf("pending = %d, want nothing buffered on failure", len(r.pending))
	}
}
