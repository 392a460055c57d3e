package recorder

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memBlobArchiver struct {
	gapCutoff   time.Time
	tradeCutoff time.Time
	gapCalls    int
	tradeCalls  int
	gapErr      error
}

func (a *memBlobArchiver) ArchiveGaps(_ context.Context, before time.Time) (int64, error) {
	a.gapCalls++
	a.gapCutoff = before
	if a.gapErr != nil {
		return 0, a.gapErr
	}
	return 10, nil
}

func (a *memBlobArchiver) ArchiveTrades(_ context.Context, before time.Time) (int64, error) {
	a.tradeCalls++
	a.tradeCutoff = before
	return 3, nil
}

func TestArchiverRunOnce(t *testing.T) {
	blob := &memBlobArchiver{}
	a := NewArchiver(blob, 90, time.Hour, testLogger())

	if err := a.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if blob.gapCalls != 1 || blob.tradeCalls != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", blob.gapCalls, blob.tradeCalls)
	}

	wantCutoff := time.Now().UTC().Add(-90 * 24 * time.Hour)
	if d := blob.gapCutoff.Sub(wantCutoff); d < -time.Minute || d > time.Minute {
		t.Fatalf("gap cutoff = %v, want about %v", blob.gapCutoff, wantCutoff)
	}
	if !blob.gapCutoff.Equal(blob.tradeCutoff) {
		t.Fatalf("cutoffs differ: %v vs %v", blob.gapCutoff, blob.tradeCutoff)
	}
}

func TestArchiverRunOnceStopsOnGapError(t *testing.T) {
	blob := &memBlobArchiver{gapErr: errors.New("bucket unavailable")}
	a := NewArchiver(blob, 90, time.Hour, testLogger())

	if err := a.RunOnce(context.Background()); err == nil {
		t.Fatal("gap archive failure must surface")
	}
	if blob.tradeCalls != 0 {
		t.Fatal("trade archive should not run after a gap archive failure")
	}
}
