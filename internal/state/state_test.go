package state

import (
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

func testPosition() domain.HedgePosition {
	return domain.HedgePosition{
		Symbol:              "BTC",
		CheapVenue:          "hyperliquid",
		ExpensiveVenue:      "bybit",
		EntryGapUSD:         150,
		Size:                0.01,
		CheapEntryPrice:     50_010,
		ExpensiveEntryPrice: 50_140,
	}
}

func TestOpenClosedLifecycle(t *testing.T) {
	m := NewManager(time.Minute, testLogger())

	if !m.IsFlat() || m.State() != domain.EngineStateFlat {
		t.Fatalf("new manager state = %v, want FLAT", m.State())
	}
	if m.Current() != nil {
		t.Fatal("flat manager should hold no position")
	}

	if err := m.OpenPosition(testPosition()); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	if !m.IsOpen() {
		t.Fatal("manager should be OPEN after OpenPosition")
	}
	held := m.Current()
	if held == nil || held.CheapVenue != "hyperliquid" || held.Size != 0.01 {
		t.Fatalf("held position = %+v", held)
	}
	if held.OpenedAt.IsZero() {
		t.Fatal("OpenPosition should stamp OpenedAt")
	}

	closed, err := m.ClosePosition(30, 0.85)
	if err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if closed.EntryGapUSD != 150 {
		t.Fatalf("closed record = %+v", closed)
	}
	if !m.IsFlat() || m.Current() != nil {
		t.Fatal("manager should be FLAT holding nothing after close")
	}
}

func TestOpenWhileOpenRejected(t *testing.T) {
	m := NewManager(time.Minute, testLogger())
	if err := m.OpenPosition(testPosition()); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}

	second := testPosition()
	second.Size = 0.5
	err := m.OpenPosition(second)
	if !errors.Is(err, domain.ErrNotFlat) {
		t.Fatalf("second open err = %v, want ErrNotFlat", err)
	}
	// The held record must be untouched.
	if held := m.Current(); held.Size != 0.01 {
		t.Fatalf("held size = %v, want original 0.01", held.Size)
	}
}

func TestCloseWhileFlatRejected(t *testing.T) {
	m := NewManager(time.Minute, testLogger())
	_, err := m.ClosePosition(0, 0)
	if !errors.Is(err, domain.ErrNotOpen) {
		t.Fatalf("close while flat err = %v, want ErrNotOpen", err)
	}
}

func TestErrorCooldown(t *testing.T) {
	m := NewManager(time.Minute, testLogger())
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	if m.TradingBlocked() {
		t.Fatal("fresh manager should not be blocked")
	}
	m.RecordError()
	if !m.TradingBlocked() {
		t.Fatal("manager should be blocked inside cooldown")
	}
	clock = clock.Add(59 * time.Second)
	if !m.TradingBlocked() {
		t.Fatal("manager should still be blocked at 59s")
	}
	clock = clock.Add(2 * time.Second)
	if m.TradingBlocked() {
		t.Fatal("manager should unblock after cooldown expires")
	}
}

func TestCooldownDefaultApplied(t *testing.T) {
	m := NewManager(0, testLogger())
	if m.errorCooldown != DefaultErrorCooldown {
		t.Fatalf("cooldown = %v, want default %v", m.errorCooldown, DefaultErrorCooldown)
	}
}

func TestSettleWindow(t *testing.T) {
	m := NewManager(time.Minute, testLogger())
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	if m.InSettleWindow(30 * time.Second) {
		t.Fatal("no exit yet, settle window should be inactive")
	}
	if err := m.OpenPosition(testPosition()); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	if _, err := m.ClosePosition(30, 1); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if !m.InSettleWindow(30 * time.Second) {
		t.Fatal("settle window should be active right after exit")
	}
	clock = clock.Add(31 * time.Second)
	if m.InSettleWindow(30 * time.Second) {
		t.Fatal("settle window should expire")
	}
}

func TestHoldDuration(t *testing.T) {
	m := NewManager(time.Minute, testLogger())
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	if m.HoldDuration() != 0 {
		t.Fatal("flat manager hold duration should be zero")
	}
	if err := m.OpenPosition(testPosition()); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
	clock = clock.Add(90 * time.Second)
	if got := m.HoldDuration(); got != 90*time.Second {
		t.Fatalf("hold duration = %v, want 90s", got)
	}
}
