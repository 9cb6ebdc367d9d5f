package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mbeaudet/hedgerun/internal/domain"
	"github.com/mbeaudet/hedgerun/internal/executor"
	"github.com/mbeaudet/hedgerun/internal/platform/kalshi"
	"github.com/mbeaudet/hedgerun/internal/risk"
	"github.com/mbeaudet/hedgerun/internal/server"
	"github.com/mbeaudet/hedgerun/internal/server/handler"
	"github.com/mbeaudet/hedgerun/internal/settle"
)

// LiveMode trades against the real venues with the durable postgres ledger.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")
	return a.run(ctx, deps)
}

// PaperMode runs the identical pipeline against simulated venues and the
// in-memory ledger.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode",
		slog.Float64("poly_bankroll", a.cfg.Paper.PolyBankroll),
		slog.Float64("kalshi_bankroll", a.cfg.Paper.KalshiBankroll),
	)
	return a.run(ctx, deps)
}

// run starts the execution coordinator, the settlement monitor, the Kalshi
// lifecycle stream, and the HTTP server, and blocks until the context is
// cancelled or a subsystem fails.
func (a *App) run(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	gate := risk.NewGate(risk.Limits{
		MinBet:          a.cfg.Risk.MinBet,
		MaxBet:          a.cfg.Risk.MaxBet,
		MinROI:          a.cfg.Risk.MinROI,
		MaxROI:          a.cfg.Risk.MaxROI,
		MaxDailyTrades:  a.cfg.Risk.MaxDailyTrades,
		MaxDailyLoss:    a.cfg.Risk.MaxDailyLoss,
		MinVenueBalance: a.cfg.Risk.MinVenueBalance,
	}, deps.Ledger, a.logger)

	dispatch := executor.NewDispatcher(deps.Poly, deps.Kalshi, a.cfg.Executor.LegTimeout.Duration, a.logger)
	rollback := executor.NewRollbackEngine(deps.Poly, deps.Kalshi,
		a.cfg.Executor.RollbackTimeout.Duration, a.cfg.Executor.MaxSlippage, a.logger)

	coord := executor.NewCoordinator(deps.Feed, deps.Poly, deps.Kalshi,
		gate, dispatch, rollback, deps.Ledger, a.logger)
	coord.SetAlerter(deps.Notifier)
	coord.SetMaxConcurrent(a.cfg.Executor.MaxConcurrent)
	if a.cfg.Executor.UseLock {
		coord.SetLockManager(deps.Locks)
		coord.SetLockTTL(a.cfg.Executor.LockTTL.Duration)
	}

	g.Go(func() error {
		return coord.Run(ctx)
	})

	// Settlement monitor.
	monitor := settle.NewMonitor(deps.Ledger, deps.Results, gate,
		a.cfg.Settle.Interval.Duration, a.logger)
	monitor.SetAlerter(deps.Notifier)
	monitor.SetBalanceSources(deps.Poly, deps.Kalshi)
	if deps.PaperPoly != nil && deps.PaperKalshi != nil {
		monitor.SetPayout(func(venue domain.Venue, amount float64) {
			switch venue {
			case domain.VenuePolymarket:
				deps.PaperPoly.Credit(amount)
			case domain.VenueKalshi:
				deps.PaperKalshi.Credit(amount)
			}
		})
	}
	g.Go(func() error {
		return monitor.Run(ctx)
	})

	// Kalshi lifecycle stream: determined markets nudge the monitor ahead
	// of its polling interval. Polling remains the source of truth, so a
	// stream failure only costs latency.
	if deps.Lifecycle != nil {
		a.startLifecycleStream(ctx, deps, monitor)
	}

	// HTTP server if enabled.
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, gate)
	}

	return g.Wait()
}

// startLifecycleStream connects the websocket and subscribes to the markets
// of currently open positions. Best effort: failures are logged, never fatal.
func (a *App) startLifecycleStream(ctx context.Context, deps *Dependencies, monitor *settle.Monitor) {
	deps.Lifecycle.OnLifecycle(func(lc kalshi.WSLifecycle) {
		monitor.Nudge(lc.Ticker)
	})

	if err := deps.Lifecycle.Connect(ctx); err != nil {
		a.logger.WarnContext(ctx, "kalshi lifecycle stream unavailable",
			slog.String("error", err.Error()),
		)
		return
	}

	open, err := deps.Ledger.GetOpen(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "lifecycle subscriptions: load open positions failed",
			slog.String("error", err.Error()),
		)
		return
	}
	tickers := make([]string, 0, len(open))
	for _, pos := range open {
		tickers = append(tickers, strings.ToUpper(pos.EventKey))
	}
	if len(tickers) == 0 {
		return
	}
	if err := deps.Lifecycle.Subscribe(ctx, tickers); err != nil {
		a.logger.WarnContext(ctx, "lifecycle subscribe failed",
			slog.String("error", err.Error()),
		)
	}
}

// startHTTPServer adds the HTTP server and its graceful shutdown to the
// errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, gate *risk.Gate) {
	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(a.cfg.Mode, a.logger),
		Positions: handler.NewPositionHandler(deps.Ledger, a.logger),
		Stats:     handler.NewStatsHandler(deps.Ledger, a.logger),
		Risk:      handler.NewRiskHandler(gate, a.logger),
	}, deps.RateLimiter, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
