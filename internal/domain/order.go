package domain

import "time"

// Side is the direction of an order leg.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OpenOrder is a resting order reported by a venue. It is used for the
// periodic unresolved-exposure check, not for the per-tick decision loop.
type OpenOrder struct {
	ID        string
	Side      Side
	Price     float64
	Volume    float64
	CreatedAt time.Time
}
