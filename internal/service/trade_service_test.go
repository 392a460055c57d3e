package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/basisbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memTradeStore struct {
	trades    []domain.CompletedTrade
	insertErr error
}

func (s *memTradeStore) Insert(_ context.Context, trade domain.CompletedTrade) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.trades = append(s.trades, trade)
	return nil
}

func (s *memTradeStore) ListRecent(_ context.Context, limit int) ([]domain.CompletedTrade, error) {
	if limit > len(s.trades) {
		limit = len(s.trades)
	}
	return s.trades[:limit], nil
}

func (s *memTradeStore) ListBefore(context.Context, time.Time, int) ([]domain.CompletedTrade, error) {
	return nil, nil
}

func (s *memTradeStore) SumNetPnL(context.Context, time.Time) (float64, error) {
	var sum float64
	for _, t := range s.trades {
		sum += t.NetPnLUSD
	}
	return sum, nil
}

type memBus struct {
	published []domain.CompletedTrade
	err       error
}

func (b *memBus) PublishTrade(_ context.Context, trade domain.CompletedTrade) error {
	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, trade)
	return nil
}

func (b *memBus) ReadTrades(context.Context, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memAudit struct {
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type memNotifier struct {
	events []string
	err    error
}

func (n *memNotifier) Notify(_ context.Context, event, _, _ string) error {
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, event)
	return nil
}

func sampleTrade() domain.CompletedTrade {
	return domain.CompletedTrade{
		ID:          "t-1",
		Symbol:      "BTC",
		CheapVenue:  "hyperliquid",
		Size:        0.01,
		EntryGapUSD: 150,
		ExitGapUSD:  30,
		NetPnLUSD:   0.85,
		HoldSeconds: 90,
		ClosedAt:    time.Now().UTC(),
	}
}

func TestRecordFansOut(t *testing.T) {
	store := &memTradeStore{}
	bus := &memBus{}
	audit := &memAudit{}
	notifier := &memNotifier{}
	svc := NewTradeService(store, bus, audit, notifier, testLogger())

	if err := svc.Record(context.Background(), sampleTrade()); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(store.trades) != 1 {
		t.Fatalf("stored trades = %d, want 1", len(store.trades))
	}
	if len(bus.published) != 1 || bus.published[0].ID != "t-1" {
		t.Fatalf("published = %+v", bus.published)
	}
	if len(audit.events) != 1 || audit.events[0] != "trade_closed" {
		t.Fatalf("audit events = %v", audit.events)
	}
	if len(notifier.events) != 1 || notifier.events[0] != "trade_closed" {
		t.Fatalf("notify events = %v", notifier.events)
	}
}

func TestRecordInsertFailureSurfaces(t *testing.T) {
	store := &memTradeStore{insertErr: errors.New("db down")}
	bus := &memBus{}
	svc := NewTradeService(store, bus, nil, nil, testLogger())

	if err := svc.Record(context.Background(), sampleTrade()); err == nil {
		t.Fatal("insert failure must be returned")
	}
	if len(bus.published) != 0 {
		t.Fatal("nothing should be published when the insert fails")
	}
}

func TestRecordFanOutFailuresSwallowed(t *testing.T) {
	store := &memTradeStore{}
	bus := &memBus{err: errors.New("stream down")}
	notifier := &memNotifier{err: errors.New("webhook down")}
	svc := NewTradeService(store, bus, nil, notifier, testLogger())

	// Fan-out is best-effort once the trade is durable.
	if err := svc.Record(context.Background(), sampleTrade()); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(store.trades) != 1 {
		t.Fatal("trade should still be stored")
	}
}

func TestRecordWithOnlyStore(t *testing.T) {
	store := &memTradeStore{}
	svc := NewTradeService(store, nil, nil, nil, testLogger())
	if err := svc.Record(context.Background(), sampleTrade()); err != nil {
		t.Fatalf("Record with nil fan-out targets: %v", err)
	}
}

func TestTotalNetPnL(t *testing.T) {
	store := &memTradeStore{}
	svc := NewTradeService(store, nil, nil, nil, testLogger())

	a := sampleTrade()
	b := sampleTrade()
	b.ID = "t-2"
	b.NetPnLUSD = -0.35
	for _, tr := range []domain.CompletedTrade{a, b} {
		if err := svc.Record(context.Background(), tr); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	sum, err := svc.TotalNetPnL(context.Background())
	if err != nil {
		t.Fatalf("TotalNetPnL: %v", err)
	}
	if want := 0.5; sum < want-1e-9 || sum > want+1e-9 {
		t.Fatalf("sum = %v, want %v", sum, want)
	}
}
