// Package domain contains the core value types shared across the market
// maker: price levels, order-book snapshots, balances, and order sides.
// It has no dependencies on the rest of the application.
package domain

import "time"

// PriceLevel is a single price+volume entry at the top of an order book.
// Levels stored here have already been liquidity-sanitized by the venue
// adapter, so Volume is the realistically executable size at Price.
type PriceLevel struct {
	Price  float64
	Volume float64
}

// BookSnapshot is the latest known top of book for one venue. UpdatedAt is
// monotonically non-decreasing and is bumped even when the venue echoes an
// unchanged quote, provided the echo arrives inside the expected refresh
// cadence.
type BookSnapshot struct {
	Venue     string
	Bid       PriceLevel
	Ask       PriceLevel
	UpdatedAt time.Time
}

// Spread returns the absolute bid-ask spread of the snapshot.
func (s BookSnapshot) Spread() float64 {
	return s.Ask.Price - s.Bid.Price
}
