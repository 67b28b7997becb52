package domain

import "errors"

var (
	// ErrBookUnavailable is returned by a venue adapter when the order book
	// could not be fetched or parsed, or the venue reported an explicit
	// failure marker.
	ErrBookUnavailable = errors.New("order book unavailable")

	// ErrBalanceUnavailable is returned by a venue adapter when account
	// balances could not be retrieved.
	ErrBalanceUnavailable = errors.New("balance unavailable")

	// ErrOrderRejected is returned by a venue adapter when the venue did not
	// confirm acceptance of a submitted order.
	ErrOrderRejected = errors.New("order rejected")
)
