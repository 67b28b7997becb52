package engine

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ranc1/marketmaker/internal/book"
	"github.com/ranc1/marketmaker/internal/domain"
	"github.com/ranc1/marketmaker/internal/venue"
)

// submission records one SubmitOrder call on a stub venue.
type submission struct {
	Side   domain.Side
	Price  float64
	Volume float64
}

// stubExchange implements venue.Exchange with canned data.
type stubExchange struct {
	name          string
	fee           float64
	withdrawalFee float64
	precision     int

	balance    domain.Balance
	balanceErr error

	mu          sync.Mutex
	submitErr   map[domain.Side]error
	submissions []submission

	openOrders []domain.OpenOrder
}

func newStubExchange(name string, fee float64) *stubExchange {
	return &stubExchange{name: name, fee: fee, precision: 5}
}

func (s *stubExchange) Name() string { return s.name }

func (s *stubExchange) TopOfBook(ctx context.Context) (domain.PriceLevel, domain.PriceLevel, error) {
	return domain.PriceLevel{}, domain.PriceLevel{}, domain.ErrBookUnavailable
}

func (s *stubExchange) Balances(ctx context.Context) (domain.Balance, error) {
	if s.balanceErr != nil {
		return domain.Balance{}, s.balanceErr
	}
	return s.balance, nil
}

func (s *stubExchange) SubmitOrder(ctx context.Context, side domain.Side, price, volume float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.submitErr[side]; err != nil {
		return err
	}
	s.submissions = append(s.submissions, submission{Side: side, Price: price, Volume: volume})
	return nil
}

func (s *stubExchange) failOn(side domain.Side, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr == nil {
		s.submitErr = make(map[domain.Side]error)
	}
	s.submitErr[side] = err
}

func (s *stubExchange) submitted() []submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]submission(nil), s.submissions...)
}

func (s *stubExchange) OpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	return s.openOrders, nil
}

func (s *stubExchange) FeeDeduction() float64  { return s.fee }
func (s *stubExchange) WithdrawalFee() float64 { return s.withdrawalFee }
func (s *stubExchange) VolumePrecision() int   { return s.precision }

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(ctx context.Context, event, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) recorded() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func testEngineConfig() Config {
	return Config{
		ProfitThreshold: 0.02,
		MinTradeVolume:  500,
		ListingBuffer:   500,
		QuoteReserve:    0,
		BaseReserve:     0,
		TickInterval:    500 * time.Millisecond,
		BookValidWindow: 4 * time.Second,
		SyncTolerance:   4 * time.Second,
		RequestTimeout:  5 * time.Second,
	}
}

// newTestEngine wires an engine over the given stubs with fresh, in-sync
// books and known balances.
func newTestEngine(t *testing.T, cfg Config, exchanges ...*stubExchange) (*Engine, *book.Store, *TransactionClock, *recordingNotifier) {
	t.Helper()

	names := make([]string, 0, len(exchanges))
	vexchanges := make([]venue.Exchange, 0, len(exchanges))
	for _, ex := range exchanges {
		names = append(names, ex.name)
		vexchanges = append(vexchanges, ex)
	}

	store := book.NewStore(names)
	balances := NewBalanceTracker(vexchanges, time.Second, slog.Default())
	clock := NewTransactionClock()
	notifier := &recordingNotifier{}
	executor := NewExecutor(balances, clock, notifier, slog.Default())
	eng := New(vexchanges, store, balances, clock, executor, notifier, cfg, slog.Default())

	require.NoError(t, balances.Refresh(context.Background()))
	return eng, store, clock, notifier
}

func setBook(store *book.Store, venueName string, bid, ask domain.PriceLevel, at time.Time) {
	store.Set(domain.BookSnapshot{Venue: venueName, Bid: bid, Ask: ask, UpdatedAt: at})
}

func TestFindCounterVenueProfitAboveThreshold(t *testing.T) {
	buyer := newStubExchange("btc38", 0.01)
	seller := newStubExchange("dex", 0.004)
	eng, store, _, _ := newTestEngine(t, testEngineConfig(), buyer, seller)

	now := time.Now()
	eng.now = func() time.Time { return now }
	setBook(store, "btc38", domain.PriceLevel{Price: 0.99, Volume: 5000}, domain.PriceLevel{Price: 1.00, Volume: 5000}, now)
	setBook(store, "dex", domain.PriceLevel{Price: 1.05, Volume: 5000}, domain.PriceLevel{Price: 1.06, Volume: 5000}, now)

	// profit = (1.05-1.00)/1.00 - 0.01 = 0.04 > 0.02
	name, ok := eng.findCounterVenue(buyer)
	assert.True(t, ok)
	assert.Equal(t, "dex", name)
}

func TestFindCounterVenueProfitBelowThreshold(t *testing.T) {
	cfg := testEngineConfig()
	cfg.ProfitThreshold = 0.05
	buyer := newStubExchange("btc38", 0.01)
	seller := newStubExchange("dex", 0.004)
	eng, store, _, _ := newTestEngine(t, cfg, buyer, seller)

	now := time.Now()
	eng.now = func() time.Time { return now }
	setBook(store, "btc38", domain.PriceLevel{Price: 0.99, Volume: 5000}, domain.PriceLevel{Price: 1.00, Volume: 5000}, now)
	setBook(store, "dex", domain.PriceLevel{Price: 1.05, Volume: 5000}, domain.PriceLevel{Price: 1.06, Volume: 5000}, now)

	// 0.04 does not clear a 0.05 threshold.
	_, ok := eng.findCounterVenue(buyer)
	assert.False(t, ok)
}

func TestFindCounterVenueSkipsOutOfSyncBooks(t *testing.T) {
	cfg := testEngineConfig()
	cfg.BookValidWindow = time.Minute // isolate the sync check
	buyer := newStubExchange("btc38", 0.01)
	seller := newStubExchange("dex", 0.004)
	eng, store, _, _ := newTestEngine(t, cfg, buyer, seller)

	now := time.Now()
	eng.now = func() time.Time { return now }
	setBook(store, "btc38", domain.PriceLevel{Price: 0.99, Volume: 5000}, domain.PriceLevel{Price: 1.00, Volume: 5000}, now)
	// Seller book is 10s older than the buyer's: beyond the 4s sync tolerance.
	setBook(store, "dex", domain.PriceLevel{Price: 1.05, Volume: 5000}, domain.PriceLevel{Price: 1.06, Volume: 5000}, now.Add(-10*time.Second))

	_, ok := eng.findCounterVenue(buyer)
	assert.False(t, ok)
}

func TestBookValidity(t *testing.T) {
	buyer := newStubExchange("btc38", 0.01)
	eng, store, clock, _ := newTestEngine(t, testEngineConfig(), buyer)

	now := time.Now()
	eng.now = func() time.Time { return now }

	// Fresh book, no transactions: valid.
	setBook(store, "btc38", domain.PriceLevel{Price: 0.44, Volume: 1}, domain.PriceLevel{Price: 0.45, Volume: 1}, now.Add(-time.Second))
	assert.True(t, eng.bookValid("btc38"))

	// Older than the validity window: invalid.
	setBook(store, "btc38", domain.PriceLevel{Price: 0.44, Volume: 1}, domain.PriceLevel{Price: 0.45, Volume: 1}, now.Add(-5*time.Second))
	assert.False(t, eng.bookValid("btc38"))

	// Fresh, but predating our own last transaction on the venue: never
	// valid, regardless of the freshness window.
	setBook(store, "btc38", domain.PriceLevel{Price: 0.44, Volume: 1}, domain.PriceLevel{Price: 0.45, Volume: 1}, now.Add(-time.Second))
	clock.Touch("btc38", now)
	assert.False(t, eng.bookValid("btc38"))

	// A fetch after the transaction restores validity.
	setBook(store, "btc38", domain.PriceLevel{Price: 0.44, Volume: 1}, domain.PriceLevel{Price: 0.45, Volume: 1}, now.Add(time.Second))
	assert.True(t, eng.bookValid("btc38"))
}

func TestPurchaseVolumeSizing(t *testing.T) {
	buyer := newStubExchange("btc38", 0.01)
	buyer.balance = domain.Balance{Quote: 1000}
	seller := newStubExchange("dex", 0.004)
	seller.balance = domain.Balance{Base: 5000}
	eng, _, _, _ := newTestEngine(t, testEngineConfig(), buyer, seller)

	// available = min(2000, 1800) = 1800 >= 500+500; purchase =
	// min(1000/1, 5000, 1800-500) = 1000.
	vol := eng.purchaseVolume(buyer, seller,
		domain.PriceLevel{Price: 1, Volume: 2000},
		domain.PriceLevel{Price: 1.05, Volume: 1800},
	)
	assert.Equal(t, 1000.0, vol)
}

func TestPurchaseVolumeInsufficientLiquidity(t *testing.T) {
	buyer := newStubExchange("btc38", 0.01)
	buyer.balance = domain.Balance{Quote: 1000}
	seller := newStubExchange("dex", 0.004)
	seller.balance = domain.Balance{Base: 5000}
	eng, _, _, _ := newTestEngine(t, testEngineConfig(), buyer, seller)

	// available = 900 < min trade volume + buffer.
	vol := eng.purchaseVolume(buyer, seller,
		domain.PriceLevel{Price: 1, Volume: 900},
		domain.PriceLevel{Price: 1.05, Volume: 2000},
	)
	assert.Equal(t, 0.0, vol)
}

func TestPurchaseVolumeInsufficientFunds(t *testing.T) {
	cfg := testEngineConfig()
	cfg.QuoteReserve = 50
	cfg.BaseReserve = 100

	buyer := newStubExchange("btc38", 0.01)
	buyer.balance = domain.Balance{Quote: 40} // below the reserve
	seller := newStubExchange("dex", 0.004)
	seller.balance = domain.Balance{Base: 5000}
	eng, _, _, _ := newTestEngine(t, cfg, buyer, seller)

	vol := eng.purchaseVolume(buyer, seller,
		domain.PriceLevel{Price: 1, Volume: 2000},
		domain.PriceLevel{Price: 1.05, Volume: 2000},
	)
	assert.Equal(t, 0.0, vol)

	// Seller side below its base reserve is just as blocking.
	buyer.balance = domain.Balance{Quote: 1000}
	seller.balance = domain.Balance{Base: 100}
	vol = eng.purchaseVolume(buyer, seller,
		domain.PriceLevel{Price: 1, Volume: 2000},
		domain.PriceLevel{Price: 1.05, Volume: 2000},
	)
	assert.Equal(t, 0.0, vol)
}

func TestSellVolumeAppliesWithdrawalFee(t *testing.T) {
	withFee := newStubExchange("btc38", 0.01)
	withFee.withdrawalFee = 0.01
	noFee := newStubExchange("dex", 0.004)
	eng, _, _, _ := newTestEngine(t, testEngineConfig(), withFee, noFee)

	assert.InDelta(t, 989.0, eng.sellVolume(withFee, 1000), 1e-9)
	assert.InDelta(t, 999.0, eng.sellVolume(noFee, 1000), 1e-9)
}

func TestTickExecutesProfitablePair(t *testing.T) {
	buyer := newStubExchange("btc38", 0.01)
	buyer.balance = domain.Balance{Quote: 1000}
	seller := newStubExchange("dex", 0.004)
	seller.balance = domain.Balance{Base: 5000}
	eng, store, _, notifier := newTestEngine(t, testEngineConfig(), buyer, seller)

	now := time.Now()
	eng.now = func() time.Time { return now }
	setBook(store, "btc38", domain.PriceLevel{Price: 0.99, Volume: 4000}, domain.PriceLevel{Price: 1.00, Volume: 2000}, now)
	setBook(store, "dex", domain.PriceLevel{Price: 1.05, Volume: 1800}, domain.PriceLevel{Price: 1.06, Volume: 4000}, now)

	eng.tick(context.Background())

	buys := buyer.submitted()
	require.Len(t, buys, 1)
	assert.Equal(t, domain.SideBuy, buys[0].Side)
	assert.Equal(t, 1.00, buys[0].Price)
	assert.Equal(t, 1000.0, buys[0].Volume)

	sells := seller.submitted()
	require.Len(t, sells, 1)
	assert.Equal(t, domain.SideSell, sells[0].Side)
	assert.Equal(t, 1.05, sells[0].Price)
	assert.InDelta(t, 999.0, sells[0].Volume, 1e-9)

	assert.Eventually(t, func() bool {
		for _, ev := range notifier.recorded() {
			if ev == "trade_submitted" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestRepeatedUnprofitableTicksSubmitNothing(t *testing.T) {
	buyer := newStubExchange("btc38", 0.01)
	buyer.balance = domain.Balance{Quote: 100000}
	seller := newStubExchange("dex", 0.004)
	seller.balance = domain.Balance{Base: 100000}
	eng, store, _, _ := newTestEngine(t, testEngineConfig(), buyer, seller)

	now := time.Now()
	eng.now = func() time.Time { return now }
	// Spread is negative on both sides: no profit anywhere.
	setBook(store, "btc38", domain.PriceLevel{Price: 0.99, Volume: 4000}, domain.PriceLevel{Price: 1.00, Volume: 4000}, now)
	setBook(store, "dex", domain.PriceLevel{Price: 0.99, Volume: 4000}, domain.PriceLevel{Price: 1.00, Volume: 4000}, now)

	for i := 0; i < 50; i++ {
		eng.tick(context.Background())
	}

	assert.Empty(t, buyer.submitted())
	assert.Empty(t, seller.submitted())
}

func TestTickSkippedWhenBalanceRefreshFails(t *testing.T) {
	buyer := newStubExchange("btc38", 0.01)
	seller := newStubExchange("dex", 0.004)
	eng, store, _, _ := newTestEngine(t, testEngineConfig(), buyer, seller)

	now := time.Now()
	eng.now = func() time.Time { return now }
	setBook(store, "btc38", domain.PriceLevel{Price: 0.99, Volume: 4000}, domain.PriceLevel{Price: 1.00, Volume: 4000}, now)
	setBook(store, "dex", domain.PriceLevel{Price: 1.05, Volume: 4000}, domain.PriceLevel{Price: 1.06, Volume: 4000}, now)

	buyer.balance = domain.Balance{Quote: 100000}
	seller.balance = domain.Balance{Base: 100000}
	buyer.balanceErr = domain.ErrBalanceUnavailable
	eng.balances.MarkStale()

	eng.tick(context.Background())

	// The profitable pair exists but no decision may be made on unknown
	// balances.
	assert.Empty(t, buyer.submitted())
	assert.Empty(t, seller.submitted())
	assert.True(t, eng.balances.NeedsRefresh())
}

func TestSafeTickRecoversFromPanic(t *testing.T) {
	buyer := newStubExchange("btc38", 0.01)
	eng, _, _, _ := newTestEngine(t, testEngineConfig(), buyer)

	// Force a panic inside the tick through a nil books store.
	eng.books = nil
	assert.NotPanics(t, func() { eng.safeTick(context.Background()) })
}
