package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/basisbot/internal/crypto"
	"github.com/alanyoungcy/basisbot/internal/domain"
	"github.com/alanyoungcy/basisbot/internal/executor"
	"github.com/alanyoungcy/basisbot/internal/notify"
	"github.com/alanyoungcy/basisbot/internal/recorder"
	"github.com/alanyoungcy/basisbot/internal/risk"
	"github.com/alanyoungcy/basisbot/internal/server"
	"github.com/alanyoungcy/basisbot/internal/server/handler"
	"github.com/alanyoungcy/basisbot/internal/server/ws"
	"github.com/alanyoungcy/basisbot/internal/state"
	"github.com/alanyoungcy/basisbot/internal/strategy"
	"github.com/alanyoungcy/basisbot/internal/venue"
	"github.com/alanyoungcy/basisbot/internal/venue/bybit"
	"github.com/alanyoungcy/basisbot/internal/venue/hyperliquid"
	"github.com/alanyoungcy/basisbot/internal/venue/paper"
)

// mainnetSource is the agent source Hyperliquid expects for mainnet signing.
const mainnetSource = "a"

// statusBroadcastInterval is how often the engine status is pushed to
// WebSocket clients.
const statusBroadcastInterval = 5 * time.Second

// TradeMode runs the live trading engine: both venue clients with real
// credentials, the strategy loop, the gap recorder, the archiver, and the API
// server.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.String("symbol", a.cfg.Strategy.Symbol),
	)

	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    a.cfg.Wallet.PrivateKey,
		EncryptedKeyPath: a.cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      a.cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fmt.Errorf("trade mode: load signing key: %w", err)
	}
	signer, err := crypto.NewSigner(key, mainnetSource)
	if err != nil {
		return fmt.Errorf("trade mode: signer: %w", err)
	}

	hl := hyperliquid.NewClient(a.cfg.Hyperliquid.BaseURL, signer)
	by := bybit.NewClient(a.cfg.Bybit.BaseURL, &crypto.HMACAuth{
		Key:        a.cfg.Bybit.ApiKey,
		Secret:     a.cfg.Bybit.ApiSecret,
		RecvWindow: a.cfg.Bybit.RecvWindow,
	})

	registry := venue.NewRegistry()
	registry.Register(hl, venue.FeeSchedule{
		MakerBps: a.cfg.Hyperliquid.MakerBps,
		TakerBps: a.cfg.Hyperliquid.TakerBps,
	})
	registry.Register(by, venue.FeeSchedule{
		MakerBps: a.cfg.Bybit.MakerBps,
		TakerBps: a.cfg.Bybit.TakerBps,
	})

	engine := a.buildEngine(deps, registry, hl, by)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })

	// Live quote feed into the price cache so dashboards and the monitor
	// endpoints see fresh prices between ticks.
	if a.cfg.Hyperliquid.WsURL != "" {
		g.Go(func() error { return a.runQuoteFeed(gctx, deps) })
	}

	a.startRecorder(gctx, g, deps, hl, by)
	a.startServer(gctx, g, deps, engine)

	return g.Wait()
}

// PaperMode runs the strategy against simulated venues that are fed live
// market data. Orders fill locally; no credentials are required.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode",
		slog.String("symbol", a.cfg.Strategy.Symbol),
	)

	// Read-only live clients for market data.
	liveHL := hyperliquid.NewClient(a.cfg.Hyperliquid.BaseURL, nil)
	liveBy := bybit.NewClient(a.cfg.Bybit.BaseURL, &crypto.HMACAuth{
		RecvWindow: a.cfg.Bybit.RecvWindow,
	})

	const paperBalance = 100_000
	hlFees := venue.FeeSchedule{MakerBps: a.cfg.Hyperliquid.MakerBps, TakerBps: a.cfg.Hyperliquid.TakerBps}
	byFees := venue.FeeSchedule{MakerBps: a.cfg.Bybit.MakerBps, TakerBps: a.cfg.Bybit.TakerBps}
	paperHL := paper.New(hyperliquid.Name, hlFees, paperBalance)
	paperBy := paper.New(bybit.Name, byFees, paperBalance)

	registry := venue.NewRegistry()
	registry.Register(paperHL, hlFees)
	registry.Register(paperBy, byFees)

	engine := a.buildEngine(deps, registry, paperHL, paperBy)

	g, gctx := errgroup.WithContext(ctx)

	// Seed the paper venues with live quotes before the engine starts so the
	// first reconciliation pass sees prices.
	seed := func(ctx context.Context) error {
		symbol := a.cfg.Strategy.Symbol
		mdA, err := liveHL.GetMarketData(ctx, symbol)
		if err != nil {
			return fmt.Errorf("paper mode: seed %s quote: %w", hyperliquid.Name, err)
		}
		mdB, err := liveBy.GetMarketData(ctx, symbol)
		if err != nil {
			return fmt.Errorf("paper mode: seed %s quote: %w", bybit.Name, err)
		}
		paperHL.SetQuote(symbol, mdA.Bid, mdA.Ask)
		paperBy.SetQuote(symbol, mdB.Bid, mdB.Ask)
		return nil
	}
	if err := seed(ctx); err != nil {
		return err
	}

	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Strategy.TickInterval.Duration)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if err := seed(gctx); err != nil {
					a.logger.WarnContext(gctx, "paper quote refresh failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})

	a.startRecorder(gctx, g, deps, liveHL, liveBy)
	a.startServer(gctx, g, deps, engine)

	return g.Wait()
}

// MonitorMode observes the cross-venue gap without trading. Gap crossings of
// the entry threshold are logged and announced.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode",
		slog.String("symbol", a.cfg.Strategy.Symbol),
	)

	hl := hyperliquid.NewClient(a.cfg.Hyperliquid.BaseURL, nil)
	by := bybit.NewClient(a.cfg.Bybit.BaseURL, &crypto.HMACAuth{
		RecvWindow: a.cfg.Bybit.RecvWindow,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.watchGap(gctx, deps, hl, by) })
	a.startServer(gctx, g, deps, nil)

	return g.Wait()
}

// RecordMode runs only the gap recorder and the archiver, persisting gap
// history for offline analysis.
func (a *App) RecordMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting record mode",
		slog.String("symbol", a.cfg.Strategy.Symbol),
	)
	if !a.cfg.Recorder.Enabled {
		return fmt.Errorf("record mode: recorder is disabled in config")
	}

	hl := hyperliquid.NewClient(a.cfg.Hyperliquid.BaseURL, nil)
	by := bybit.NewClient(a.cfg.Bybit.BaseURL, &crypto.HMACAuth{
		RecvWindow: a.cfg.Bybit.RecvWindow,
	})

	g, gctx := errgroup.WithContext(ctx)
	a.startRecorder(gctx, g, deps, hl, by)
	a.startServer(gctx, g, deps, nil)

	return g.Wait()
}

// buildEngine assembles the state machine, risk gate, executor and strategy
// over the two venues.
func (a *App) buildEngine(deps *Dependencies, registry *venue.Registry, venueA, venueB venue.Exchange) *strategy.Strategy {
	logger := slog.Default()

	stateMgr := state.NewManager(a.cfg.Strategy.ErrorCooldown.Duration, logger)
	riskMgr := risk.NewManager(risk.Config{
		MaxLeverage:     a.cfg.Risk.MaxLeverage,
		MarginBufferPct: a.cfg.Risk.MarginBufferPct,
		MaxSlippageBps:  a.cfg.Risk.MaxSlippageBps,
		BookDepth:       a.cfg.Risk.BookDepth,
	}, logger)

	execCfg := executor.Defaults()
	execCfg.SizeTolerancePct = a.cfg.Executor.SizeTolerancePct
	execCfg.SizeToleranceAbs = a.cfg.Executor.SizeToleranceAbs
	execCfg.MakerImprove = a.cfg.Executor.MakerImprove
	execCfg.MakerWait = a.cfg.Executor.MakerWait.Duration
	execCfg.TakerFallback = a.cfg.Executor.TakerFallback
	execMgr := executor.NewManager(registry, deps.Notifier, deps.AuditStore, execCfg, logger)

	var tradeRecorder strategy.TradeRecorder
	if deps.TradeService != nil {
		tradeRecorder = deps.TradeService
	}

	return strategy.New(
		strategy.Config{
			Symbol:           a.cfg.Strategy.Symbol,
			Size:             a.cfg.Strategy.Size,
			EntryGapUSD:      a.cfg.Strategy.EntryGapUSD,
			ExitGapUSD:       a.cfg.Strategy.ExitGapUSD,
			MaxEntryGapUSD:   a.cfg.Strategy.MaxEntryGapUSD,
			MinHold:          a.cfg.Strategy.MinHold.Duration,
			MaxHold:          a.cfg.Strategy.MaxHold.Duration,
			SettleWindow:     a.cfg.Strategy.SettleWindow.Duration,
			TickInterval:     a.cfg.Strategy.TickInterval.Duration,
			SizeTolerancePct: a.cfg.Executor.SizeTolerancePct,
			SizeToleranceAbs: a.cfg.Executor.SizeToleranceAbs,
		},
		venueA, venueB,
		stateMgr, riskMgr, execMgr,
		tradeRecorder,
		deps.Notifier,
		deps.Metrics,
		logger,
	)
}

// startRecorder launches the gap recorder and, when S3 is wired, the archive
// loop.
func (a *App) startRecorder(ctx context.Context, g *errgroup.Group, deps *Dependencies, venueA, venueB venue.Exchange) {
	if !a.cfg.Recorder.Enabled || deps.GapStore == nil {
		return
	}

	rec := recorder.New(recorder.Config{
		Symbol:         a.cfg.Strategy.Symbol,
		SampleInterval: a.cfg.Recorder.SampleInterval.Duration,
		FlushSize:      a.cfg.Recorder.FlushSize,
	}, venueA, venueB, deps.GapStore, deps.PriceCache, slog.Default())
	g.Go(func() error { return rec.Run(ctx) })

	if deps.BlobArchiver != nil {
		arch := recorder.NewArchiver(
			deps.BlobArchiver,
			a.cfg.Recorder.ArchiveRetentionDays,
			a.cfg.Recorder.ArchiveInterval.Duration,
			slog.Default(),
		)
		g.Go(func() error { return arch.Run(ctx) })
	}
}

// startServer launches the HTTP API server with whatever handlers the current
// mode supports, plus the WebSocket hub and its broadcast feeds.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, engine *strategy.Strategy) {
	if !a.cfg.Server.Enabled {
		return
	}
	logger := slog.Default()

	var statusFn func() any
	var statusHandler *handler.StatusHandler
	if engine != nil {
		statusFn = func() any { return engine.Status() }
		statusHandler = handler.NewStatusHandler(engine, a.cfg.Mode, logger)
	}
	hub := ws.NewHub(statusFn, logger)
	g.Go(func() error { return hub.Run(ctx) })

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Pingers, logger),
		Status: statusHandler,
	}
	if deps.TradeService != nil {
		handlers.Trades = handler.NewTradeHandler(deps.TradeService, logger)
	}
	if deps.AuditStore != nil {
		handlers.Audit = handler.NewAuditHandler(deps.AuditStore, logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
	}, handlers, deps.Metrics.Handler(), hub, deps.RateLimiter, logger)

	g.Go(func() error { return srv.Start() })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	})

	// Periodic status broadcast to connected clients.
	if engine != nil {
		g.Go(func() error {
			ticker := time.NewTicker(statusBroadcastInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					hub.Broadcast(ws.ChannelStatus, engine.Status())
				}
			}
		})
	}

	// Relay completed trades from the stream to WebSocket clients.
	if deps.TradeBus != nil {
		g.Go(func() error { return a.relayTrades(ctx, deps, hub) })
	}
}

// relayTrades tails the completed-trade stream and broadcasts each entry.
func (a *App) relayTrades(ctx context.Context, deps *Dependencies, hub *ws.Hub) error {
	lastID := "$"
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgs, err := deps.TradeBus.ReadTrades(ctx, lastID, 10)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.WarnContext(ctx, "trade stream read failed",
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}
		for _, msg := range msgs {
			lastID = msg.ID
			var trade domain.CompletedTrade
			if err := json.Unmarshal(msg.Payload, &trade); err != nil {
				a.logger.WarnContext(ctx, "malformed trade stream entry",
					slog.String("stream_id", msg.ID),
				)
				continue
			}
			hub.Broadcast(ws.ChannelTrades, trade)
		}
	}
}

// runQuoteFeed keeps a WebSocket subscription to the Hyperliquid book and
// mirrors each quote into the price cache.
func (a *App) runQuoteFeed(ctx context.Context, deps *Dependencies) error {
	wsClient := hyperliquid.NewWSClient(a.cfg.Hyperliquid.WsURL)
	wsClient.OnQuote(func(symbol string, md domain.MarketData) {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := deps.PriceCache.SetQuote(cacheCtx, hyperliquid.Name, symbol, md); err != nil {
			a.logger.Warn("cache ws quote failed", slog.String("error", err.Error()))
		}
	})

	if err := wsClient.Connect(ctx); err != nil {
		return fmt.Errorf("quote feed: %w", err)
	}
	defer wsClient.Close()

	if err := wsClient.Subscribe(ctx, a.cfg.Strategy.Symbol); err != nil {
		return fmt.Errorf("quote feed subscribe: %w", err)
	}

	<-ctx.Done()
	return ctx.Err()
}

// watchGap polls both venues and logs/announces entry-threshold crossings
// without placing orders.
func (a *App) watchGap(ctx context.Context, deps *Dependencies, venueA, venueB venue.Exchange) error {
	const alertCooldown = 5 * time.Minute
	symbol := a.cfg.Strategy.Symbol
	var lastAlert time.Time

	ticker := time.NewTicker(a.cfg.Strategy.TickInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		mdA, err := venueA.GetMarketData(ctx, symbol)
		if err != nil {
			a.logger.WarnContext(ctx, "monitor quote failed",
				slog.String("venue", venueA.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		mdB, err := venueB.GetMarketData(ctx, symbol)
		if err != nil {
			a.logger.WarnContext(ctx, "monitor quote failed",
				slog.String("venue", venueB.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}

		gap := mdB.Mid - mdA.Mid
		deps.Metrics.ObserveTick(gap)

		if deps.PriceCache != nil {
			_ = deps.PriceCache.SetQuote(ctx, venueA.Name(), symbol, mdA)
			_ = deps.PriceCache.SetQuote(ctx, venueB.Name(), symbol, mdB)
		}

		a.logger.InfoContext(ctx, "gap observed",
			slog.String("symbol", symbol),
			slog.Float64("venue_a_mid", mdA.Mid),
			slog.Float64("venue_b_mid", mdB.Mid),
			slog.Float64("gap_usd", gap),
		)

		abs := gap
		if abs < 0 {
			abs = -abs
		}
		if abs >= a.cfg.Strategy.EntryGapUSD && time.Since(lastAlert) >= alertCooldown {
			lastAlert = time.Now()
			if err := deps.Notifier.Notify(ctx, notify.EventGapAlert,
				fmt.Sprintf("Gap alert: %s", symbol),
				fmt.Sprintf("cross-venue gap $%.2f exceeds entry threshold $%.2f", gap, a.cfg.Strategy.EntryGapUSD),
			); err != nil {
				a.logger.WarnContext(ctx, "gap alert failed", slog.String("error", err.Error()))
			}
		}
	}
}
