package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/evaluator"
	"github.com/alanyoungcy/crossarb/internal/exchange"
	"github.com/alanyoungcy/crossarb/internal/execution"
	"github.com/alanyoungcy/crossarb/internal/marketdata"
	"github.com/alanyoungcy/crossarb/internal/server"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
)

// runEngine builds the feed, evaluator, and coordinator from the wired
// dependencies and runs them, together with the optional archiver loop and
// ops HTTP server, until the context ends or a component fails.
func (a *App) runEngine(ctx context.Context, deps *Dependencies) error {
	cfg := a.cfg
	started := time.Now()

	staleAfter := map[domain.Venue]time.Duration{}
	if cfg.MEXC.RestFallback {
		staleAfter[domain.VenueMEXC] = cfg.MEXC.StaleAfter.Duration
	}
	feed := marketdata.New(marketdata.Options{
		Symbol:           cfg.Trading.Symbol,
		Depth:            cfg.Trading.OrderBookDepth,
		StaleAfter:       staleAfter,
		RESTMaxDeviation: cfg.MEXC.RestMaxDeviationQuote.Decimal,
	}, []exchange.Adapter{deps.MEXC, deps.BingX}, deps.BookCache, deps.PriceCache, a.logger)

	eval := evaluator.New(evaluator.Config{
		MinProfitQuote:  cfg.Trading.MinProfitQuote.Decimal,
		MinProfitPct:    cfg.Trading.MinProfitPct.Decimal,
		MaxBasePerTrade: cfg.Trading.MaxBasePerTrade.Decimal,
		MaxSlippageBps:  cfg.Trading.MaxSlippageBps.Decimal,
		BaseIncrement:   cfg.MEXC.BaseIncrement.Decimal,
	}, a.logger)

	tracker := execution.NewTracker(execution.TrackerConfig{
		PollInterval: cfg.Trading.OrderPoll.Duration,
		Timeout:      cfg.Trading.OrderTimeout.Duration,
		UnknownAfter: cfg.Trading.UnknownAfter,
	}, a.logger)

	coord := execution.NewCoordinator(execution.Config{
		Symbol:               cfg.Trading.Symbol,
		QuoteAsset:           cfg.Trading.QuoteAsset,
		RecheckInterval:      cfg.Trading.RecheckInterval.Duration,
		PreExecTolerancePct:  cfg.Trading.PreExecTolerancePct.Decimal,
		EmergencyDiscountPct: cfg.Recovery.EmergencyDiscountPct.Decimal,
		SellRetries:          cfg.Recovery.SellRetries,
		EmergencySellFirst:   cfg.Recovery.EmergencySellFirst,
		DryRun:               cfg.Trading.DryRun,
		LockTTL:              cfg.Redis.LockTTL.Duration,
	}, feed, eval, deps.MEXC, deps.BingX, tracker,
		deps.ExecutionStore, deps.StuckStore, deps.Alerts, deps.LockManager, a.logger)

	coord.OnRecord(func(rec domain.ExecutionRecord) {
		switch rec.Status {
		case domain.ExecStatusRecovered:
			deps.Alerts.Recovered(rec)
		default:
			deps.Alerts.Cycle(rec)
		}
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return feed.Run(ctx) })
	g.Go(func() error { return coord.Run(ctx) })

	if cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error { return a.archiveLoop(ctx, deps.Archiver) })
	}

	if cfg.Server.Enabled {
		srv := server.NewServer(server.Config{
			Port:        cfg.Server.Port,
			CORSOrigins: cfg.Server.CORSOrigins,
			APIKey:      cfg.Server.APIKey,
			Limiter:     deps.RateLimiter,
		}, server.Handlers{
			Health:     handler.NewHealthHandler(a.logger),
			Status:     handler.NewStatusHandler(cfg.Trading.Symbol, cfg.Trading.DryRun, started, feed, coord),
			Books:      handler.NewBookHandler(feed),
			Executions: handler.NewExecutionHandler(deps.ExecutionStore, a.logger),
			Stuck:      handler.NewStuckHandler(deps.StuckStore, a.logger),
		}, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	deps.Alerts.Startup(cfg.Trading.Symbol, cfg.Trading.DryRun)

	return g.Wait()
}

// archiveLoop periodically moves execution records older than the retention
// window to blob storage.
func (a *App) archiveLoop(ctx context.Context, archiver domain.Archiver) error {
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		cutoff := time.Now().UTC().Add(-retention)
		n, err := archiver.ArchiveExecutions(ctx, cutoff)
		if err != nil {
			a.logger.Error("archive pass failed", slog.String("error", err.Error()))
			continue
		}
		if n > 0 {
			a.logger.Info("archived executions",
				slog.Int64("count", n),
				slog.Time("before", cutoff),
			)
		}
	}
}
