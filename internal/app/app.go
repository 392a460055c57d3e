// Package app owns the application lifecycle: it wires venues, stores,
// caches, blob storage, the strategy engine, and notifications, then runs
// the mode selected in config until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/basisbot/internal/config"
)

// App holds the configuration, logger, and the cleanup stack built up while
// wiring. Cleanups run in reverse order on Close.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires dependencies and blocks in the configured mode until ctx is
// cancelled. Cleanup registered during wiring is deferred to Close so that
// the caller controls teardown ordering relative to its own defers.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	run, err := a.modeFunc(a.cfg.Mode)
	if err != nil {
		return err
	}
	return run(ctx, deps)
}

// modeFunc resolves the mode name to its run loop.
func (a *App) modeFunc(mode string) (func(context.Context, *Dependencies) error, error) {
	switch strings.ToLower(mode) {
	case "trade":
		return a.TradeMode, nil
	case "paper":
		return a.PaperMode, nil
	case "monitor":
		return a.MonitorMode, nil
	case "record":
		return a.RecordMode, nil
	default:
		return nil, fmt.Errorf("app: unsupported mode %q", mode)
	}
}

// Close runs the cleanup stack in reverse order. Safe to call twice.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
