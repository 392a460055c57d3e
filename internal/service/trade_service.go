// Package service hosts the application services that sit between the
// strategy engine and the persistence/notification layers.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/basisbot/internal/domain"
	"github.com/alanyoungcy/basisbot/internal/notify"
)

// Announcer is the subset of the notifier used by services. Events are
// filtered by type so operators can mute the noisy ones.
type Announcer interface {
	Notify(ctx context.Context, event, title, message string) error
}

// TradeService records completed round-trip trades. A completed trade is
// written to the durable store, published on the trade stream for downstream
// consumers, announced to operators, and audit-logged.
type TradeService struct {
	trades   domain.TradeStore
	bus      domain.TradeBus
	audit    domain.AuditStore
	notifier Announcer
	logger   *slog.Logger
}

// NewTradeService creates a TradeService. The bus, audit store and notifier
// may be nil; only the trade store is required.
func NewTradeService(
	trades domain.TradeStore,
	bus domain.TradeBus,
	audit domain.AuditStore,
	notifier Announcer,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		trades:   trades,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "trade_service")),
	}
}

// Record persists a completed trade and fans it out to the stream, the audit
// log and the notifier. Persistence failure is returned to the caller; the
// fan-out steps are best-effort and only logged, since the trade itself is
// already durable by then.
func (s *TradeService) Record(ctx context.Context, trade domain.CompletedTrade) error {
	if err := s.trades.Insert(ctx, trade); err != nil {
		return fmt.Errorf("trade_service: insert trade %s: %w", trade.ID, err)
	}

	if s.bus != nil {
		if err := s.bus.PublishTrade(ctx, trade); err != nil {
			s.logger.WarnContext(ctx, "publish trade failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "trade_closed", map[string]any{
			"trade_id":     trade.ID,
			"symbol":       trade.Symbol,
			"net_pnl_usd":  trade.NetPnLUSD,
			"hold_seconds": trade.HoldSeconds,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.notifier != nil {
		title := fmt.Sprintf("Trade closed: %s", trade.Symbol)
		msg := fmt.Sprintf(
			"%s %.6f | entry gap $%.2f, exit gap $%.2f | net P&L $%.2f (fees $%.2f) | held %s",
			trade.Symbol, trade.Size,
			trade.EntryGapUSD, trade.ExitGapUSD,
			trade.NetPnLUSD, trade.EntryFeesUSD+trade.ExitFeesUSD,
			(time.Duration(trade.HoldSeconds) * time.Second).String(),
		)
		if err := s.notifier.Notify(ctx, notify.EventTradeClosed, title, msg); err != nil {
			s.logger.WarnContext(ctx, "trade notification failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "recorded trade",
		slog.String("trade_id", trade.ID),
		slog.String("symbol", trade.Symbol),
		slog.Float64("net_pnl_usd", trade.NetPnLUSD),
	)
	return nil
}

// ListRecent returns the most recently closed trades, newest first.
func (s *TradeService) ListRecent(ctx context.Context, limit int) ([]domain.CompletedTrade, error) {
	trades, err := s.trades.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list recent: %w", err)
	}
	return trades, nil
}

// TotalNetPnL returns the all-time net P&L across recorded trades.
func (s *TradeService) TotalNetPnL(ctx context.Context) (float64, error) {
	sum, err := s.trades.SumNetPnL(ctx, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("trade_service: sum net pnl: %w", err)
	}
	return sum, nil
}
