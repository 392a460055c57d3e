// Package state tracks the FLAT/OPEN lifecycle of the cross-venue hedge.
// A hedge record exists if and only if the machine is OPEN; the record is
// immutable while held and only closure transitions the machine back to FLAT.
package state

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/basisbot/internal/domain"
)

// DefaultErrorCooldown suppresses entry evaluation after an execution
// failure so repeated failures do not hammer the venues.
const DefaultErrorCooldown = 60 * time.Second

// Manager is the position state machine. It is created once at process start
// and mutated only by the strategy loop while holding the execution lock.
type Manager struct {
	mu sync.Mutex

	st       domain.EngineState
	position *domain.HedgePosition

	lastErrorAt   time.Time
	cooldownUntil time.Time
	lastExitAt    time.Time

	errorCooldown time.Duration
	logger        *slog.Logger

	now func() time.Time
}

// NewManager creates a Manager starting in FLAT with the given error
// cooldown. A non-positive cooldown falls back to DefaultErrorCooldown.
func NewManager(errorCooldown time.Duration, logger *slog.Logger) *Manager {
	if errorCooldown <= 0 {
		errorCooldown = DefaultErrorCooldown
	}
	return &Manager{
		st:            domain.EngineStateFlat,
		errorCooldown: errorCooldown,
		logger:        logger.With(slog.String("component", "state")),
		now:           time.Now,
	}
}

// OpenPosition records a new hedge and transitions FLAT -> OPEN. Calling it
// while already OPEN is an invariant violation: the existing record is never
// overwritten and domain.ErrNotFlat is returned.
func (m *Manager) OpenPosition(pos domain.HedgePosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.st == domain.EngineStateOpen {
		m.logger.Error("openPosition called while already open",
			slog.String("held_cheap", m.position.CheapVenue),
			slog.String("held_expensive", m.position.ExpensiveVenue),
		)
		return fmt.Errorf("state: open from %s: %w", m.st, domain.ErrNotFlat)
	}
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = m.now().UTC()
	}
	p := pos
	m.position = &p
	m.st = domain.EngineStateOpen

	m.logger.Info("position opened",
		slog.String("cheap_venue", pos.CheapVenue),
		slog.String("expensive_venue", pos.ExpensiveVenue),
		slog.Float64("entry_gap_usd", pos.EntryGapUSD),
		slog.Float64("size", pos.Size),
	)
	return nil
}

// ClosePosition clears the hedge record and transitions OPEN -> FLAT,
// stamping the post-exit settle reference time. It returns the record that
// was held so the caller can build the completed-trade report.
func (m *Manager) ClosePosition(exitGapUSD, netPnLUSD float64) (domain.HedgePosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.st != domain.EngineStateOpen {
		return domain.HedgePosition{}, fmt.Errorf("state: close from %s: %w", m.st, domain.ErrNotOpen)
	}
	closed := *m.position
	m.position = nil
	m.st = domain.EngineStateFlat
	m.lastExitAt = m.now().UTC()

	m.logger.Info("position closed",
		slog.Float64("entry_gap_usd", closed.EntryGapUSD),
		slog.Float64("exit_gap_usd", exitGapUSD),
		slog.Float64("net_pnl_usd", netPnLUSD),
	)
	return closed, nil
}

// RecordError starts the error cooldown window during which entry
// evaluation is suppressed.
func (m *Manager) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	m.lastErrorAt = now
	m.cooldownUntil = now.Add(m.errorCooldown)

	m.logger.Warn("error recorded, entry cooldown started",
		slog.Time("cooldown_until", m.cooldownUntil),
	)
}

// TradingBlocked reports whether the machine is inside the error cooldown.
func (m *Manager) TradingBlocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().UTC().Before(m.cooldownUntil)
}

// InSettleWindow reports whether less than window has passed since the last
// exit. Entry evaluation waits out this window so venue-side position
// reporting can catch up before being trusted again.
func (m *Manager) InSettleWindow(window time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastExitAt.IsZero() {
		return false
	}
	return m.now().UTC().Sub(m.lastExitAt) < window
}

// IsFlat reports whether no hedge is held.
func (m *Manager) IsFlat() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st == domain.EngineStateFlat
}

// IsOpen reports whether a hedge is held.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st == domain.EngineStateOpen
}

// State returns the current lifecycle state.
func (m *Manager) State() domain.EngineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

// Current returns a copy of the held hedge record, or nil when FLAT.
func (m *Manager) Current() *domain.HedgePosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.position == nil {
		return nil
	}
	p := *m.position
	return &p
}

// HoldDuration returns how long the current hedge has been held. Zero when
// FLAT.
func (m *Manager) HoldDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.position == nil {
		return 0
	}
	return m.now().UTC().Sub(m.position.OpenedAt)
}
