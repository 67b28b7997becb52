package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/ranc1/marketmaker/internal/blob/s3"
	"github.com/ranc1/marketmaker/internal/book"
	"github.com/ranc1/marketmaker/internal/engine"
	"github.com/ranc1/marketmaker/internal/notify"
)

// TradeMode starts the fetchers, balance refresh timer, arbitrage engine,
// exposure watch, and the optional mirror/archiver goroutines. It blocks
// until the context is cancelled or a fatal error occurs.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	g, ctx := errgroup.WithContext(ctx)

	store := a.startMarketData(ctx, g, deps)

	balances := engine.NewBalanceTracker(deps.Exchanges, a.cfg.Engine.RequestTimeout.Duration, a.logger)
	g.Go(func() error {
		return balances.RunRefreshTimer(ctx, a.cfg.Engine.BalanceRefreshInterval.Duration)
	})

	clock := engine.NewTransactionClock()
	executor := engine.NewExecutor(balances, clock, deps.Notifier, a.logger)
	eng := engine.New(deps.Exchanges, store, balances, clock, executor, deps.Notifier, engine.Config{
		ProfitThreshold: a.cfg.Engine.ProfitThreshold,
		MinTradeVolume:  a.cfg.Engine.MinTradeVolume,
		ListingBuffer:   a.cfg.Engine.ListingBuffer,
		QuoteReserve:    a.cfg.Engine.QuoteReserve,
		BaseReserve:     a.cfg.Engine.BaseReserve,
		TickInterval:    a.cfg.Engine.TickInterval.Duration,
		BookValidWindow: a.cfg.Engine.BookValidWindow.Duration,
		SyncTolerance:   a.cfg.Engine.SyncTolerance.Duration,
		RequestTimeout:  a.cfg.Engine.RequestTimeout.Duration,
	}, a.logger)

	g.Go(func() error {
		return eng.Run(ctx)
	})
	g.Go(func() error {
		return eng.RunExposureWatch(ctx, a.cfg.Engine.ExposureCheckInterval.Duration)
	})
	g.Go(func() error {
		return a.runWatchdog(ctx, store, deps.Notifier)
	})

	return g.Wait()
}

// MonitorMode runs market data collection only: fetchers plus the optional
// mirror and archiver. No balances are read and no orders are placed.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	store := a.startMarketData(ctx, g, deps)
	g.Go(func() error {
		return a.runWatchdog(ctx, store, deps.Notifier)
	})

	return g.Wait()
}

// startMarketData creates the book store and starts one fetcher per venue,
// plus the archiver when S3 is enabled. Both modes share this plumbing.
func (a *App) startMarketData(ctx context.Context, g *errgroup.Group, deps *Dependencies) *book.Store {
	venues := make([]string, 0, len(deps.Exchanges))
	for _, ex := range deps.Exchanges {
		venues = append(venues, ex.Name())
	}
	store := book.NewStore(venues)

	fetcherCfg := book.FetcherConfig{
		PollInterval:      a.cfg.Fetcher.PollInterval.Duration,
		MinUpdateInterval: a.cfg.Fetcher.MinUpdateInterval.Duration,
		LagTolerance:      a.cfg.Fetcher.LagTolerance.Duration,
		RequestTimeout:    a.cfg.Fetcher.RequestTimeout.Duration,
	}
	for _, ex := range deps.Exchanges {
		fetcher := book.NewFetcher(ex, store, deps.BookPublisher(), fetcherCfg, a.logger)
		g.Go(func() error {
			return fetcher.Run(ctx)
		})
	}

	if deps.BlobWriter != nil {
		archiver := s3blob.NewBookArchiver(deps.BlobWriter, store, a.cfg.S3.SampleInterval.Duration, a.logger)
		g.Go(func() error {
			return archiver.Run(ctx)
		})
	}

	return store
}

// runWatchdog fails the whole process when every fetcher has gone quiet.
// Stale books already stop the engine from trading; this catches the case
// where nothing at all is flowing and the operator should be paged.
func (a *App) runWatchdog(ctx context.Context, store *book.Store, notifier *notify.Notifier) error {
	tolerance := 3 * a.cfg.Fetcher.LagTolerance.Duration
	ticker := time.NewTicker(a.cfg.Fetcher.LagTolerance.Duration)
	defer ticker.Stop()

	started := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			newest := store.NewestUpdate()
			if newest.IsZero() {
				// No venue has ever produced a book; grant the same grace
				// period from process start.
				newest = started
			}
			age := time.Since(newest)
			if age <= tolerance {
				continue
			}

			a.logger.ErrorContext(ctx, "all venue feeds stalled",
				slog.Duration("age", age),
				slog.Duration("tolerance", tolerance),
			)
			notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := notifier.Notify(notifyCtx, notify.EventVenueDown,
				"market data stalled",
				fmt.Sprintf("no venue has produced an order book for %s", age.Round(time.Second)),
			); err != nil {
				a.logger.ErrorContext(ctx, "stall notification failed", slog.String("error", err.Error()))
			}
			cancel()
			return fmt.Errorf("app: no market data for %s", age.Round(time.Second))
		}
	}
}
