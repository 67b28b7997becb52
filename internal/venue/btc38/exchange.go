package btc38

import (
	"context"
	"fmt"
	"time"

	"github.com/ranc1/marketmaker/internal/domain"
	"github.com/ranc1/marketmaker/internal/venue"
)

// Name identifies this venue in book snapshots and balance maps.
const Name = "btc38"

// Config holds the adapter settings for the BTC38 venue.
type Config struct {
	BaseURL   string
	AccessKey string
	SecretKey string
	AccountID string

	// Coin and Market name the traded pair, e.g. "bts" quoted in "cny".
	Coin   string
	Market string

	// WallThreshold is the cumulative volume a price level must hide behind
	// before it is treated as the real top of book.
	WallThreshold float64

	FeeDeduction    float64
	WithdrawalFee   float64
	VolumePrecision int
}

// Exchange adapts the BTC38 REST API to the venue interface.
type Exchange struct {
	client *Client
	cfg    Config
}

var _ venue.Exchange = (*Exchange)(nil)

// NewExchange creates the BTC38 venue adapter.
func NewExchange(cfg Config) *Exchange {
	return &Exchange{
		client: NewClient(cfg.BaseURL, cfg.AccessKey, cfg.SecretKey, cfg.AccountID),
		cfg:    cfg,
	}
}

func (e *Exchange) Name() string { return Name }

// TopOfBook fetches the depth and reduces each side to its sanitized best
// level, skipping past dust in front of the first real wall.
func (e *Exchange) TopOfBook(ctx context.Context) (domain.PriceLevel, domain.PriceLevel, error) {
	depth, err := e.client.GetDepth(ctx, e.cfg.Coin, e.cfg.Market)
	if err != nil {
		return domain.PriceLevel{}, domain.PriceLevel{}, fmt.Errorf("%w: %s", domain.ErrBookUnavailable, err)
	}
	if len(depth.Bids) == 0 || len(depth.Asks) == 0 {
		return domain.PriceLevel{}, domain.PriceLevel{}, fmt.Errorf("%w: btc38 returned an empty side", domain.ErrBookUnavailable)
	}

	bid := venue.TrueTopOfBook(toLevels(depth.Bids), e.cfg.WallThreshold)
	ask := venue.TrueTopOfBook(toLevels(depth.Asks), e.cfg.WallThreshold)
	return bid, ask, nil
}

func (e *Exchange) Balances(ctx context.Context) (domain.Balance, error) {
	bal, err := e.client.GetMyBalance(ctx)
	if err != nil {
		return domain.Balance{}, fmt.Errorf("%w: %s", domain.ErrBalanceUnavailable, err)
	}

	quote, err := bal.CNYBalance.Float64()
	if err != nil {
		return domain.Balance{}, fmt.Errorf("%w: bad cny balance %q", domain.ErrBalanceUnavailable, bal.CNYBalance)
	}
	base, err := bal.BTSBalance.Float64()
	if err != nil {
		return domain.Balance{}, fmt.Errorf("%w: bad bts balance %q", domain.ErrBalanceUnavailable, bal.BTSBalance)
	}
	return domain.Balance{Quote: quote, Base: base}, nil
}

func (e *Exchange) SubmitOrder(ctx context.Context, side domain.Side, price, volume float64) error {
	orderType := 1
	if side == domain.SideSell {
		orderType = 2
	}
	if err := e.client.SubmitOrder(ctx, orderType, e.cfg.Market, price, volume, e.cfg.Coin); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrOrderRejected, err)
	}
	return nil
}

func (e *Exchange) OpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	orders, err := e.client.GetOrderList(ctx, e.cfg.Coin)
	if err != nil {
		return nil, err
	}

	out := make([]domain.OpenOrder, 0, len(orders))
	for _, o := range orders {
		price, _ := o.Price.Float64()
		amount, _ := o.Amount.Float64()

		side := domain.SideBuy
		if o.Type.String() == "2" {
			side = domain.SideSell
		}
		created, _ := time.ParseInLocation("2006-01-02 15:04:05", o.Time, time.Local)

		out = append(out, domain.OpenOrder{
			ID:        o.ID.String(),
			Side:      side,
			Price:     price,
			Volume:    amount,
			CreatedAt: created,
		})
	}
	return out, nil
}

func (e *Exchange) FeeDeduction() float64  { return e.cfg.FeeDeduction }
func (e *Exchange) WithdrawalFee() float64 { return e.cfg.WithdrawalFee }
func (e *Exchange) VolumePrecision() int   { return e.cfg.VolumePrecision }

func toLevels(raw [][]float64) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		levels = append(levels, domain.PriceLevel{Price: pair[0], Volume: pair[1]})
	}
	return levels
}
