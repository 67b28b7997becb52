package book

import (
	"context"
	"log/slog"
	"time"

	"github.com/ranc1/marketmaker/internal/domain"
	"github.com/ranc1/marketmaker/internal/venue"
)

// Publisher mirrors snapshot updates to an external channel (e.g. Redis) on a
// best-effort basis. Failures are logged and never affect fetching.
type Publisher interface {
	PublishBook(ctx context.Context, snap domain.BookSnapshot) error
}

// FetcherConfig holds the timing parameters of a fetcher worker.
type FetcherConfig struct {
	// PollInterval is the sleep between top-of-book queries.
	PollInterval time.Duration
	// MinUpdateInterval is the minimum age of a snapshot before an unchanged
	// quote from the venue bumps UpdatedAt. Echoes inside this interval are
	// ignored so UpdatedAt is not refreshed faster than the venue's own
	// update cadence.
	MinUpdateInterval time.Duration
	// LagTolerance is how stale the snapshot may grow under adapter errors
	// before an unresponsive warning is emitted. One warning is logged per
	// tolerance window, not per failed poll.
	LagTolerance time.Duration
	// RequestTimeout bounds each top-of-book call.
	RequestTimeout time.Duration
}

// Fetcher keeps one venue's snapshot in the store as fresh as possible
// without ever stopping, even under permanent adapter failure. A dead venue
// is detected by the watchdog through snapshot age, not by the fetcher
// terminating.
type Fetcher struct {
	exchange  venue.Exchange
	store     *Store
	publisher Publisher
	cfg       FetcherConfig
	logger    *slog.Logger

	lastWarning time.Time
	now         func() time.Time
}

// NewFetcher creates a fetcher for the given venue. publisher may be nil.
func NewFetcher(ex venue.Exchange, store *Store, publisher Publisher, cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		exchange:  ex,
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger: logger.With(
			slog.String("component", "book_fetcher"),
			slog.String("venue", ex.Name()),
		),
		now: time.Now,
	}
}

// Run polls the venue until ctx is cancelled. Adapter errors never propagate;
// the only way out of the loop is context cancellation.
func (f *Fetcher) Run(ctx context.Context) error {
	f.logger.InfoContext(ctx, "book fetcher started")
	defer f.logger.Info("book fetcher stopped")

	for {
		f.poll(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.cfg.PollInterval):
		}
	}
}

// poll performs one fetch-compare-store iteration.
func (f *Fetcher) poll(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout)
	bid, ask, err := f.exchange.TopOfBook(reqCtx)
	cancel()

	name := f.exchange.Name()
	current, _ := f.store.Get(name)
	nowT := f.now()

	if err != nil {
		// Keep the previous snapshot untouched. Warn once per tolerance
		// window when the book has gone unresponsive.
		sinceUpdate := nowT.Sub(current.UpdatedAt)
		if sinceUpdate > f.cfg.LagTolerance && nowT.Sub(f.lastWarning) > f.cfg.LagTolerance {
			f.lastWarning = nowT
			f.logger.WarnContext(ctx, "venue unresponsive",
				slog.Duration("since_last_update", sinceUpdate),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if bid == current.Bid && ask == current.Ask {
		// An unchanged quote inside the venue's refresh cadence is evidence
		// of liveness, not staleness.
		if nowT.Sub(current.UpdatedAt) > f.cfg.MinUpdateInterval {
			current.UpdatedAt = nowT
			f.store.Set(current)
			f.publish(ctx, current)
		}
		return
	}

	snap := domain.BookSnapshot{
		Venue:     name,
		Bid:       bid,
		Ask:       ask,
		UpdatedAt: nowT,
	}
	f.store.Set(snap)
	f.publish(ctx, snap)
}

func (f *Fetcher) publish(ctx context.Context, snap domain.BookSnapshot) {
	if f.publisher == nil {
		return
	}
	if err := f.publisher.PublishBook(ctx, snap); err != nil {
		f.logger.DebugContext(ctx, "snapshot publish failed",
			slog.String("error", err.Error()),
		)
	}
}
