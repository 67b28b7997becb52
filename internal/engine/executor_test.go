package engine

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranc1/marketmaker/internal/domain"
	"github.com/ranc1/marketmaker/internal/venue"
)

func newTestExecutor(t *testing.T, exchanges ...*stubExchange) (*Executor, *TransactionClock, *recordingNotifier) {
	t.Helper()
	vexchanges := make([]venue.Exchange, 0, len(exchanges))
	for _, ex := range exchanges {
		vexchanges = append(vexchanges, ex)
	}
	balances := NewBalanceTracker(vexchanges, time.Second, slog.Default())
	require.NoError(t, balances.Refresh(context.Background()))

	clock := NewTransactionClock()
	notifier := &recordingNotifier{}
	return NewExecutor(balances, clock, notifier, slog.Default()), clock, notifier
}

func testPair(buyer, seller *stubExchange) TradePair {
	return TradePair{
		Buyer:      buyer,
		BuyPrice:   1.00,
		BuyVolume:  1000,
		Seller:     seller,
		SellPrice:  1.05,
		SellVolume: 989,
	}
}

func TestExecuteBothLegs(t *testing.T) {
	buyer := newStubExchange("btc38", 0.01)
	seller := newStubExchange("dex", 0.004)
	exec, clock, notifier := newTestExecutor(t, buyer, seller)

	at := time.Now()
	exec.now = func() time.Time { return at }

	err := exec.Execute(context.Background(), testPair(buyer, seller))
	require.NoError(t, err)

	require.Len(t, buyer.submitted(), 1)
	require.Len(t, seller.submitted(), 1)
	assert.Equal(t, at, clock.Last("btc38"))
	assert.Equal(t, at, clock.Last("dex"))
	assert.True(t, exec.balances.NeedsRefresh())

	assert.Eventually(t, func() bool {
		evs := notifier.recorded()
		return len(evs) == 1 && evs[0] == "trade_submitted"
	}, time.Second, 10*time.Millisecond)
}

func TestExecuteBuyFailureAbortsPair(t *testing.T) {
	buyer := newStubExchange("btc38", 0.01)
	buyer.failOn(domain.SideBuy, domain.ErrOrderRejected)
	seller := newStubExchange("dex", 0.004)
	exec, clock, notifier := newTestExecutor(t, buyer, seller)

	at := time.Now()
	exec.now = func() time.Time { return at }

	err := exec.Execute(context.Background(), testPair(buyer, seller))
	assert.ErrorIs(t, err, domain.ErrOrderRejected)

	// The sell leg must never fire without the asset in hand.
	assert.Empty(t, seller.submitted())

	// Both clocks advance even though the trade failed: capital may have
	// moved, so the pre-trade quotes are burned either way.
	assert.Equal(t, at, clock.Last("btc38"))
	assert.Equal(t, at, clock.Last("dex"))
	assert.True(t, exec.balances.NeedsRefresh())

	assert.Eventually(t, func() bool {
		evs := notifier.recorded()
		return len(evs) == 1 && evs[0] == "trade_failed"
	}, time.Second, 10*time.Millisecond)
}

func TestExecuteSellFailureReportedNotRolledBack(t *testing.T) {
	buyer := newStubExchange("btc38", 0.01)
	seller := newStubExchange("dex", 0.004)
	seller.failOn(domain.SideSell, domain.ErrOrderRejected)
	exec, clock, notifier := newTestExecutor(t, buyer, seller)

	at := time.Now()
	exec.now = func() time.Time { return at }

	err := exec.Execute(context.Background(), testPair(buyer, seller))
	assert.ErrorIs(t, err, domain.ErrOrderRejected)

	// The buy went through and stays: no compensating sell, no retry.
	require.Len(t, buyer.submitted(), 1)
	assert.Empty(t, seller.submitted())
	assert.Equal(t, at, clock.Last("btc38"))
	assert.Equal(t, at, clock.Last("dex"))

	assert.Eventually(t, func() bool {
		evs := notifier.recorded()
		return len(evs) == 1 && evs[0] == "trade_failed"
	}, time.Second, 10*time.Millisecond)
}
