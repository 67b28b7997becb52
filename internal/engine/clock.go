package engine

import (
	"sync"
	"time"
)

// TransactionClock records, per venue, the last time an order leg was
// attempted there, success or failure. A book snapshot that predates the
// venue's own last transaction must not be trusted: our trade changed the
// venue's state, so a quote from before it is stale by definition.
type TransactionClock struct {
	mu   sync.Mutex
	last map[string]time.Time
}

// NewTransactionClock creates an empty clock. Venues with no recorded
// transaction report the zero time, which every real snapshot postdates.
func NewTransactionClock() *TransactionClock {
	return &TransactionClock{last: make(map[string]time.Time)}
}

// Touch records an order attempt on the venue at time t.
func (c *TransactionClock) Touch(venueName string, t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[venueName] = t
}

// Last returns the time of the most recent order attempt on the venue.
func (c *TransactionClock) Last(venueName string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last[venueName]
}
