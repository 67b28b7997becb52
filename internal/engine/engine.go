package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/ranc1/marketmaker/internal/book"
	"github.com/ranc1/marketmaker/internal/domain"
	"github.com/ranc1/marketmaker/internal/venue"
)

// Config holds the decision-loop parameters. Defaults mirror the production
// constants the engine has been run with; see config.Defaults.
type Config struct {
	// ProfitThreshold is the minimum fee-adjusted relative profit required
	// to trade.
	ProfitThreshold float64
	// MinTradeVolume is the smallest volume worth trading, in base asset.
	MinTradeVolume float64
	// ListingBuffer is the volume left behind in a price level so the level
	// is not depleted and other participants' quotes stay meaningful.
	ListingBuffer float64
	// QuoteReserve and BaseReserve are per-currency safety margins that are
	// never spent.
	QuoteReserve float64
	BaseReserve  float64
	// TickInterval is the decision cadence.
	TickInterval time.Duration
	// BookValidWindow is the maximum snapshot age before a book is untrusted.
	BookValidWindow time.Duration
	// SyncTolerance is the maximum update-time skew allowed between the
	// buyer's and a counter-venue's books for them to be comparable.
	SyncTolerance time.Duration
	// RequestTimeout bounds open-order queries in the exposure watch.
	RequestTimeout time.Duration
}

// Engine is the single-threaded decision loop. It is the only writer of trade
// intent: each tick it considers every venue as a prospective buyer, finds
// the best profitable counter-venue among books it can currently trust, sizes
// the trade under balance and liquidity constraints, and hands the pair to
// the executor.
type Engine struct {
	exchanges []venue.Exchange
	byName    map[string]venue.Exchange
	books     *book.Store
	balances  *BalanceTracker
	clock     *TransactionClock
	executor  *Executor
	notifier  Notifier
	cfg       Config
	logger    *slog.Logger

	now func() time.Time
}

// New creates an engine. Venue iteration follows the order of exchanges,
// which makes counter-venue tie-breaking deterministic (first encountered
// wins; a true tie yields equal profit either way).
func New(exchanges []venue.Exchange, books *book.Store, balances *BalanceTracker,
	clock *TransactionClock, executor *Executor, notifier Notifier, cfg Config, logger *slog.Logger) *Engine {

	byName := make(map[string]venue.Exchange, len(exchanges))
	for _, ex := range exchanges {
		byName[ex.Name()] = ex
	}
	return &Engine{
		exchanges: exchanges,
		byName:    byName,
		books:     books,
		balances:  balances,
		clock:     clock,
		executor:  executor,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "engine")),
		now:       time.Now,
	}
}

// Run executes the decision loop until ctx is cancelled. A panic inside one
// tick is logged and the loop continues on the next tick; the engine must
// never take the process down over a single bad decision cycle.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "arbitrage engine started",
		slog.Duration("tick_interval", e.cfg.TickInterval),
		slog.Float64("profit_threshold", e.cfg.ProfitThreshold),
	)
	defer e.logger.Info("arbitrage engine stopped")

	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.safeTick(ctx)
		}
	}
}

func (e *Engine) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "decision tick panicked",
				slog.Any("panic", r),
			)
		}
	}()
	e.tick(ctx)
}

// tick is one decision cycle. No decision is made on unknown balances: a
// failed refresh skips the whole tick.
func (e *Engine) tick(ctx context.Context) {
	if e.balances.NeedsRefresh() {
		if err := e.balances.Refresh(ctx); err != nil {
			e.logger.ErrorContext(ctx, "balance refresh failed, skipping tick",
				slog.String("error", err.Error()),
			)
			return
		}
	}

	for _, buyer := range e.exchanges {
		e.evaluateBuyer(ctx, buyer)
	}
}

// evaluateBuyer runs steps 2a-2f of the decision algorithm for one
// prospective buyer venue.
func (e *Engine) evaluateBuyer(ctx context.Context, buyer venue.Exchange) {
	buyerName := buyer.Name()
	if !e.bookValid(buyerName) {
		return
	}

	sellerName, ok := e.findCounterVenue(buyer)
	if !ok {
		return
	}
	seller := e.byName[sellerName]

	buyerBook, _ := e.books.Get(buyerName)
	sellerBook, _ := e.books.Get(sellerName)
	buyPrice := buyerBook.Ask.Price
	sellPrice := sellerBook.Bid.Price

	purchaseVolume := e.purchaseVolume(buyer, seller, buyerBook.Ask, sellerBook.Bid)
	if purchaseVolume <= 0 {
		return
	}

	sellVolume := e.sellVolume(buyer, purchaseVolume)
	if sellVolume < e.cfg.MinTradeVolume {
		// Below minimum tradable size once withdrawal fees and the safety
		// margin are taken out. Frequent and harmless.
		e.logger.DebugContext(ctx, "under minimum arbitrage volume",
			slog.String("buyer", buyerName),
			slog.Float64("sell_volume", sellVolume),
		)
		return
	}

	if err := e.executor.Execute(ctx, TradePair{
		Buyer:      buyer,
		BuyPrice:   buyPrice,
		BuyVolume:  purchaseVolume,
		Seller:     seller,
		SellPrice:  sellPrice,
		SellVolume: sellVolume,
	}); err != nil {
		e.logger.ErrorContext(ctx, "arbitrage execution failed",
			slog.String("buyer", buyerName),
			slog.String("seller", sellerName),
			slog.String("error", err.Error()),
		)
	}
}

// bookValid reports whether the venue's snapshot can be trusted: it must
// postdate our own last transaction on that venue and be younger than the
// validity window. Staleness is always recoverable by the next fetch.
func (e *Engine) bookValid(venueName string) bool {
	snap, ok := e.books.Get(venueName)
	if !ok {
		return false
	}
	if !snap.UpdatedAt.After(e.clock.Last(venueName)) {
		return false
	}
	return e.now().Sub(snap.UpdatedAt) < e.cfg.BookValidWindow
}

// booksInSync reports whether two venues' snapshots are close enough in time
// to be compared. Fetchers run independently, so across venues there is no
// ordering guarantee; this bound is what makes a cross-venue price
// comparison meaningful.
func (e *Engine) booksInSync(a, b time.Time) bool {
	skew := a.Sub(b)
	if skew < 0 {
		skew = -skew
	}
	return skew <= e.cfg.SyncTolerance
}

// findCounterVenue picks, among the other venues with a valid and in-sync
// book, the one with the highest best bid, and accepts it when the
// fee-adjusted profit against the buyer's ask clears the threshold.
func (e *Engine) findCounterVenue(buyer venue.Exchange) (string, bool) {
	buyerName := buyer.Name()
	buyerBook, _ := e.books.Get(buyerName)
	buyerAsk := buyerBook.Ask.Price
	if buyerAsk <= 0 {
		return "", false
	}

	bestName := ""
	bestBid := 0.0
	for _, other := range e.exchanges {
		name := other.Name()
		if name == buyerName || !e.bookValid(name) {
			continue
		}
		otherBook, _ := e.books.Get(name)
		if !e.booksInSync(buyerBook.UpdatedAt, otherBook.UpdatedAt) {
			continue
		}
		if otherBook.Bid.Price > bestBid {
			bestBid = otherBook.Bid.Price
			bestName = name
		}
	}
	if bestName == "" {
		return "", false
	}

	profit := (bestBid - buyerAsk) / buyerAsk
	if profit-buyer.FeeDeduction() <= e.cfg.ProfitThreshold {
		return "", false
	}

	e.logger.Info("profitable venue pair found",
		slog.String("buyer", buyerName),
		slog.String("seller", bestName),
		slog.Float64("profit", roundDown(profit, 4)),
	)
	return bestName, true
}

// purchaseVolume sizes the buy leg under liquidity, balance, and reserve
// constraints. Zero means no trade; insufficient funds or liquidity is a
// normal outcome, not an error.
func (e *Engine) purchaseVolume(buyer, seller venue.Exchange, buyerAsk, sellerBid domain.PriceLevel) float64 {
	available := min(buyerAsk.Volume, sellerBid.Volume)
	if available < e.cfg.MinTradeVolume+e.cfg.ListingBuffer {
		return 0
	}

	usableQuote := e.balances.Balance(buyer.Name()).Quote - e.cfg.QuoteReserve
	usableBase := e.balances.Balance(seller.Name()).Base - e.cfg.BaseReserve

	if usableQuote <= 0 {
		e.logger.Debug("insufficient funds on buyer account",
			slog.String("venue", buyer.Name()),
		)
		return 0
	}
	if usableBase <= 0 {
		e.logger.Debug("insufficient funds on seller account",
			slog.String("venue", seller.Name()),
		)
		return 0
	}

	vol := min(usableQuote/buyerAsk.Price, usableBase, available-e.cfg.ListingBuffer)
	return roundDown(vol, buyer.VolumePrecision())
}

// sellVolume derives the sell leg size from the purchase: the buyer venue's
// withdrawal fee comes off the top, plus one unit of safety margin against
// rounding differences between venues.
func (e *Engine) sellVolume(buyer venue.Exchange, purchaseVolume float64) float64 {
	return purchaseVolume*(1-buyer.WithdrawalFee()) - 1
}

// RunExposureWatch periodically lists open orders across all venues and
// raises a notification when any linger unresolved. It is deliberately not
// part of the per-tick path.
func (e *Engine) RunExposureWatch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.checkExposure(ctx)
		}
	}
}

func (e *Engine) checkExposure(ctx context.Context) {
	for _, ex := range e.exchanges {
		reqCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
		orders, err := ex.OpenOrders(reqCtx)
		cancel()
		if err != nil {
			e.logger.WarnContext(ctx, "open order query failed",
				slog.String("venue", ex.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(orders) == 0 {
			continue
		}
		e.logger.WarnContext(ctx, "unresolved open orders",
			slog.String("venue", ex.Name()),
			slog.Int("count", len(orders)),
		)
		if e.notifier != nil {
			_ = e.notifier.Notify(ctx, "exposure", "Unresolved open orders",
				ex.Name()+" still has open arbitrage orders")
		}
	}
}
