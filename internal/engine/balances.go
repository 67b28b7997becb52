// Package engine implements the arbitrage decision core: balance tracking,
// per-venue transaction clocks, the tick-driven decision loop, and two-legged
// order execution.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ranc1/marketmaker/internal/domain"
	"github.com/ranc1/marketmaker/internal/venue"
)

// BalanceTracker holds the last-known balance per venue. Balances are
// refreshed on demand: the staleness flag is raised after every order
// submission attempt (capital may have moved) and by a wall-clock timer that
// catches external transfers. A failed refresh never corrupts previously
// known balances, and the flag is cleared only when every venue refreshed
// successfully.
type BalanceTracker struct {
	exchanges []venue.Exchange
	timeout   time.Duration
	logger    *slog.Logger

	mu       sync.RWMutex
	balances map[string]domain.Balance
	stale    atomic.Bool
}

// NewBalanceTracker creates a tracker seeded with zero balances for every
// exchange. It starts stale so the first tick performs an initial refresh
// before any trading decision.
func NewBalanceTracker(exchanges []venue.Exchange, timeout time.Duration, logger *slog.Logger) *BalanceTracker {
	balances := make(map[string]domain.Balance, len(exchanges))
	for _, ex := range exchanges {
		balances[ex.Name()] = domain.Balance{}
	}
	t := &BalanceTracker{
		exchanges: exchanges,
		timeout:   timeout,
		logger:    logger.With(slog.String("component", "balance_tracker")),
		balances:  balances,
	}
	t.stale.Store(true)
	return t
}

// MarkStale requests a refresh before the next trading decision.
func (t *BalanceTracker) MarkStale() {
	t.stale.Store(true)
}

// NeedsRefresh reports whether balances must be refreshed before they can be
// trusted.
func (t *BalanceTracker) NeedsRefresh() bool {
	return t.stale.Load()
}

// Refresh queries every venue's balance. On any failure the stored balances
// are left untouched, the staleness flag stays raised, and the error is
// returned so the caller can skip its decision tick.
func (t *BalanceTracker) Refresh(ctx context.Context) error {
	fresh := make(map[string]domain.Balance, len(t.exchanges))
	for _, ex := range t.exchanges {
		reqCtx, cancel := context.WithTimeout(ctx, t.timeout)
		bal, err := ex.Balances(reqCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("refresh %s balance: %w", ex.Name(), err)
		}
		fresh[ex.Name()] = bal
	}

	t.mu.Lock()
	t.balances = fresh
	t.mu.Unlock()
	t.stale.Store(false)

	t.logger.InfoContext(ctx, "account balances updated",
		slog.Any("balances", fresh),
	)
	return nil
}

// Balance returns the last-known balance for the venue. Venues the tracker
// was not seeded with report a zero balance.
func (t *BalanceTracker) Balance(venueName string) domain.Balance {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balances[venueName]
}

// RunRefreshTimer raises the staleness flag on a fixed interval until ctx is
// cancelled. This catches balance changes from external transfers that no
// order submission would flag.
func (t *BalanceTracker) RunRefreshTimer(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.MarkStale()
		}
	}
}
