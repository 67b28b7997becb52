package dex

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/ranc1/marketmaker/internal/domain"
	"github.com/ranc1/marketmaker/internal/venue"
)

// Name identifies this venue in book snapshots and balance maps.
const Name = "dex"

// Config holds the adapter settings for the BitShares DEX venue.
type Config struct {
	WalletURL      string
	WalletPassword string
	Account        string

	// The traded pair: BaseSymbol priced in QuoteSymbol. Asset ids and
	// precisions must match the chain's asset objects, e.g. BTS is "1.3.0"
	// with precision 5.
	BaseSymbol     string
	BaseAssetID    string
	BasePrecision  int
	QuoteSymbol    string
	QuoteAssetID   string
	QuotePrecision int

	BookDepth     int
	WallThreshold float64
	OrderExpiry   time.Duration

	FeeDeduction    float64
	WithdrawalFee   float64
	VolumePrecision int
}

// wallet is the slice of the cli_wallet API the adapter uses.
type wallet interface {
	Unlock(ctx context.Context, password string) error
	GetOrderBook(ctx context.Context, base, quote string, limit int) (OrderBook, error)
	ListAccountBalances(ctx context.Context, account string) ([]AssetAmount, error)
	SellAsset(ctx context.Context, account, amountToSell, symbolToSell, minToReceive, symbolToReceive string, expiry time.Duration, fillOrKill bool) error
	GetAccountLimitOrders(ctx context.Context, account, base, quote string, limit int) ([]LimitOrder, error)
	Close() error
}

// Exchange adapts a cli_wallet connection to the venue interface. Every order
// is expressed as a sell: a buy of the base asset sells the quote asset.
type Exchange struct {
	wallet wallet
	cfg    Config
}

var _ venue.Exchange = (*Exchange)(nil)

// NewExchange dials the wallet and unlocks it for signing.
func NewExchange(ctx context.Context, cfg Config) (*Exchange, error) {
	client, err := Dial(ctx, cfg.WalletURL)
	if err != nil {
		return nil, err
	}
	if err := client.Unlock(ctx, cfg.WalletPassword); err != nil {
		client.Close()
		return nil, fmt.Errorf("dex: unlock wallet: %w", err)
	}
	return newExchange(client, cfg), nil
}

func newExchange(w wallet, cfg Config) *Exchange {
	if cfg.BookDepth <= 0 {
		cfg.BookDepth = 10
	}
	return &Exchange{wallet: w, cfg: cfg}
}

// Close releases the wallet connection.
func (e *Exchange) Close() error { return e.wallet.Close() }

func (e *Exchange) Name() string { return Name }

func (e *Exchange) TopOfBook(ctx context.Context) (domain.PriceLevel, domain.PriceLevel, error) {
	book, err := e.wallet.GetOrderBook(ctx, e.cfg.BaseSymbol, e.cfg.QuoteSymbol, e.cfg.BookDepth)
	if err != nil {
		return domain.PriceLevel{}, domain.PriceLevel{}, fmt.Errorf("%w: %s", domain.ErrBookUnavailable, err)
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return domain.PriceLevel{}, domain.PriceLevel{}, fmt.Errorf("%w: dex returned an empty side", domain.ErrBookUnavailable)
	}

	bids, err := toLevels(book.Bids)
	if err != nil {
		return domain.PriceLevel{}, domain.PriceLevel{}, fmt.Errorf("%w: %s", domain.ErrBookUnavailable, err)
	}
	asks, err := toLevels(book.Asks)
	if err != nil {
		return domain.PriceLevel{}, domain.PriceLevel{}, fmt.Errorf("%w: %s", domain.ErrBookUnavailable, err)
	}

	bid := venue.TrueTopOfBook(bids, e.cfg.WallThreshold)
	ask := venue.TrueTopOfBook(asks, e.cfg.WallThreshold)
	return bid, ask, nil
}

func (e *Exchange) Balances(ctx context.Context) (domain.Balance, error) {
	raw, err := e.wallet.ListAccountBalances(ctx, e.cfg.Account)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("%w: %s", domain.ErrBalanceUnavailable, err)
	}

	var bal domain.Balance
	for _, aa := range raw {
		units, err := aa.Amount.Float64()
		if err != nil {
			return domain.Balance{}, fmt.Errorf("%w: bad amount %q for asset %s", domain.ErrBalanceUnavailable, aa.Amount, aa.AssetID)
		}
		switch aa.AssetID {
		case e.cfg.BaseAssetID:
			bal.Base = units / math.Pow10(e.cfg.BasePrecision)
		case e.cfg.QuoteAssetID:
			bal.Quote = units / math.Pow10(e.cfg.QuotePrecision)
		}
	}
	return bal, nil
}

// SubmitOrder places a limit order. A buy sells price*volume of the quote
// asset for at least volume of the base asset; a sell is the mirror image.
func (e *Exchange) SubmitOrder(ctx context.Context, side domain.Side, price, volume float64) error {
	quoteAmount := formatAmount(price*volume, e.cfg.QuotePrecision)
	baseAmount := formatAmount(volume, e.cfg.BasePrecision)

	var err error
	switch side {
	case domain.SideBuy:
		err = e.wallet.SellAsset(ctx, e.cfg.Account,
			quoteAmount, e.cfg.QuoteSymbol,
			baseAmount, e.cfg.BaseSymbol,
			e.cfg.OrderExpiry, false)
	case domain.SideSell:
		err = e.wallet.SellAsset(ctx, e.cfg.Account,
			baseAmount, e.cfg.BaseSymbol,
			quoteAmount, e.cfg.QuoteSymbol,
			e.cfg.OrderExpiry, false)
	default:
		return fmt.Errorf("dex: unknown order side %q", side)
	}
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrOrderRejected, err)
	}
	return nil
}

func (e *Exchange) OpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	orders, err := e.wallet.GetAccountLimitOrders(ctx, e.cfg.Account, e.cfg.BaseSymbol, e.cfg.QuoteSymbol, e.cfg.BookDepth)
	if err != nil {
		return nil, err
	}

	out := make([]domain.OpenOrder, 0, len(orders))
	for _, o := range orders {
		open, err := e.mapOrder(o)
		if err != nil {
			return nil, fmt.Errorf("dex: order %s: %w", o.ID, err)
		}
		out = append(out, open)
	}
	return out, nil
}

// mapOrder converts a raw limit order to the venue-neutral form. The chain
// stores a sell of the base of sell_price for its quote; which of the two is
// our base asset decides the side.
func (e *Exchange) mapOrder(o LimitOrder) (domain.OpenOrder, error) {
	sellBase, err := o.SellPrice.Base.Amount.Float64()
	if err != nil {
		return domain.OpenOrder{}, fmt.Errorf("bad sell_price base: %w", err)
	}
	sellQuote, err := o.SellPrice.Quote.Amount.Float64()
	if err != nil {
		return domain.OpenOrder{}, fmt.Errorf("bad sell_price quote: %w", err)
	}
	forSale, err := o.ForSale.Float64()
	if err != nil {
		return domain.OpenOrder{}, fmt.Errorf("bad for_sale: %w", err)
	}
	if sellBase == 0 || sellQuote == 0 {
		return domain.OpenOrder{}, fmt.Errorf("degenerate sell_price %v/%v", sellBase, sellQuote)
	}

	baseScale := math.Pow10(e.cfg.BasePrecision)
	quoteScale := math.Pow10(e.cfg.QuotePrecision)

	if o.SellPrice.Base.AssetID == e.cfg.BaseAssetID {
		// Selling the base asset: a sell order.
		price := (sellQuote / quoteScale) / (sellBase / baseScale)
		return domain.OpenOrder{
			ID:     o.ID,
			Side:   domain.SideSell,
			Price:  price,
			Volume: forSale / baseScale,
		}, nil
	}

	// Selling the quote asset: a buy order. Remaining volume is the base
	// amount the unsold quote still purchases.
	price := (sellBase / quoteScale) / (sellQuote / baseScale)
	return domain.OpenOrder{
		ID:     o.ID,
		Side:   domain.SideBuy,
		Price:  price,
		Volume: (forSale / quoteScale) / price,
	}, nil
}

func (e *Exchange) FeeDeduction() float64  { return e.cfg.FeeDeduction }
func (e *Exchange) WithdrawalFee() float64 { return e.cfg.WithdrawalFee }
func (e *Exchange) VolumePrecision() int   { return e.cfg.VolumePrecision }

func toLevels(raw []BookLevel) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		price, err := lvl.Price.Float64()
		if err != nil {
			return nil, fmt.Errorf("bad level price %q", lvl.Price)
		}
		volume, err := lvl.Base.Float64()
		if err != nil {
			return nil, fmt.Errorf("bad level volume %q", lvl.Base)
		}
		levels = append(levels, domain.PriceLevel{Price: price, Volume: volume})
	}
	return levels, nil
}

func formatAmount(v float64, precision int) string {
	return strconv.FormatFloat(v, 'f', precision, 64)
}
