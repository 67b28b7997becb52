package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ranc1/marketmaker/internal/domain"
	"github.com/ranc1/marketmaker/internal/venue"
)

// Notifier is the best-effort operator notification channel. Implementations
// must never let delivery failures affect trading; the executor additionally
// dispatches asynchronously so a slow channel cannot block a leg.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// TradePair is a fully sized two-legged arbitrage: buy on the cheap venue,
// sell on the expensive one.
type TradePair struct {
	Buyer      venue.Exchange
	BuyPrice   float64
	BuyVolume  float64
	Seller     venue.Exchange
	SellPrice  float64
	SellVolume float64
}

// Executor submits the two legs of a trade pair sequentially, buy first. The
// ordering preserves the no-naked-short invariant: a failed buy aborts the
// pair before any sell is attempted, while a failed sell leaves the bought
// position intentionally unhedged because no compensating action exists.
type Executor struct {
	balances      *BalanceTracker
	clock         *TransactionClock
	notifier      Notifier
	logger        *slog.Logger
	notifyTimeout time.Duration

	now func() time.Time
}

// NewExecutor creates an executor. notifier may be nil, in which case
// terminal outcomes are only logged.
func NewExecutor(balances *BalanceTracker, clock *TransactionClock, notifier Notifier, logger *slog.Logger) *Executor {
	return &Executor{
		balances:      balances,
		clock:         clock,
		notifier:      notifier,
		logger:        logger.With(slog.String("component", "executor")),
		notifyTimeout: 10 * time.Second,
		now:           time.Now,
	}
}

// Execute places the buy leg and then the sell leg. Before either leg is
// attempted it marks balances stale and touches both venues' transaction
// clocks: a failed or in-flight order still invalidates reuse of the
// pre-trade quotes on both sides.
func (e *Executor) Execute(ctx context.Context, pair TradePair) error {
	pairID := uuid.New().String()
	buyerName := pair.Buyer.Name()
	sellerName := pair.Seller.Name()

	log := e.logger.With(
		slog.String("pair_id", pairID),
		slog.String("buyer", buyerName),
		slog.String("seller", sellerName),
	)

	e.balances.MarkStale()
	now := e.now()
	e.clock.Touch(buyerName, now)
	e.clock.Touch(sellerName, now)

	if err := pair.Buyer.SubmitOrder(ctx, domain.SideBuy, pair.BuyPrice, pair.BuyVolume); err != nil {
		log.ErrorContext(ctx, "buy leg failed, pair aborted",
			slog.Float64("price", pair.BuyPrice),
			slog.Float64("volume", pair.BuyVolume),
			slog.String("error", err.Error()),
		)
		e.notifyAsync("trade_failed", "Arbitrage buy leg failed",
			fmt.Sprintf("Buy on %s at %v (volume %v) failed: %v. Sell leg not attempted.",
				buyerName, pair.BuyPrice, pair.BuyVolume, err))
		return fmt.Errorf("buy leg on %s: %w", buyerName, err)
	}

	log.InfoContext(ctx, "buy leg placed",
		slog.Float64("price", pair.BuyPrice),
		slog.Float64("volume", pair.BuyVolume),
	)

	if err := pair.Seller.SubmitOrder(ctx, domain.SideSell, pair.SellPrice, pair.SellVolume); err != nil {
		// The asset has been bought; there is no compensating action. The
		// position stays unhedged until corrected manually or by a later
		// opportunity in the opposite direction.
		log.ErrorContext(ctx, "sell leg failed, position unhedged",
			slog.Float64("price", pair.SellPrice),
			slog.Float64("volume", pair.SellVolume),
			slog.String("error", err.Error()),
		)
		e.notifyAsync("trade_failed", "Arbitrage sell leg failed, position unhedged",
			fmt.Sprintf("Bought %v on %s at %v but sell on %s at %v (volume %v) failed: %v",
				pair.BuyVolume, buyerName, pair.BuyPrice, sellerName, pair.SellPrice, pair.SellVolume, err))
		return fmt.Errorf("sell leg on %s: %w", sellerName, err)
	}

	log.InfoContext(ctx, "sell leg placed",
		slog.Float64("price", pair.SellPrice),
		slog.Float64("volume", pair.SellVolume),
	)

	e.notifyAsync("trade_submitted", "Arbitrage order pair submitted",
		fmt.Sprintf("Purchase from %s at %v, volume: %v\nSell to %s at %v, volume: %v",
			buyerName, pair.BuyPrice, pair.BuyVolume, sellerName, pair.SellPrice, pair.SellVolume))
	return nil
}

// notifyAsync delivers a notification in the background with its own timeout
// so delivery never blocks or fails an execution path.
func (e *Executor) notifyAsync(event, title, message string) {
	if e.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.notifyTimeout)
		defer cancel()
		if err := e.notifier.Notify(ctx, event, title, message); err != nil {
			e.logger.Warn("notification failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}()
}
