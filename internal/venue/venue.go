// Package venue defines the capability interface every exchange adapter must
// implement, together with the liquidity sanitization applied to raw depth
// before it reaches the rest of the engine. Concrete adapters live in
// sub-packages (btc38, dex) and own all wire-level concerns: transport,
// request signing, and response parsing.
package venue

import (
	"context"

	"github.com/ranc1/marketmaker/internal/domain"
)

// Exchange is the capability surface the engine consumes, one instance per
// venue. Implementations must sanitize depth with TrueTopOfBook before
// returning it from TopOfBook.
type Exchange interface {
	// Name returns the venue identifier used as the key in the book store,
	// balance map, and transaction clock.
	Name() string

	// TopOfBook returns the liquidity-sanitized best bid and best ask. It
	// fails with an error wrapping domain.ErrBookUnavailable on transport or
	// parse errors, or when the venue reports an explicit failure marker.
	TopOfBook(ctx context.Context) (bid, ask domain.PriceLevel, err error)

	// Balances returns the account balance on this venue. It fails with an
	// error wrapping domain.ErrBalanceUnavailable.
	Balances(ctx context.Context) (domain.Balance, error)

	// SubmitOrder places a limit order. It fails with an error wrapping
	// domain.ErrOrderRejected when the venue does not confirm acceptance.
	// Acceptance is not confirmation of fill.
	SubmitOrder(ctx context.Context, side domain.Side, price, volume float64) error

	// OpenOrders lists this account's resting orders on the venue. Used only
	// by the periodic exposure check.
	OpenOrders(ctx context.Context) ([]domain.OpenOrder, error)

	// FeeDeduction is the static per-venue fraction subtracted from raw
	// profit before comparing against the profit threshold.
	FeeDeduction() float64

	// WithdrawalFee is the static fraction of purchased volume lost to an
	// on-chain withdrawal before the asset can be sold elsewhere. Zero for
	// venues with no such constraint.
	WithdrawalFee() float64

	// VolumePrecision is the number of decimal places the venue accepts for
	// order volume.
	VolumePrecision() int
}
