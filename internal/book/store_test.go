package book

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ranc1/marketmaker/internal/domain"
)

func TestStoreSeedsZeroSnapshots(t *testing.T) {
	s := NewStore([]string{"btc38", "dex"})

	snap, ok := s.Get("btc38")
	assert.True(t, ok)
	assert.Equal(t, "btc38", snap.Venue)
	assert.True(t, snap.UpdatedAt.IsZero())

	_, ok = s.Get("unknown")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"btc38", "dex"}, s.Venues())
}

func TestStoreSetReplacesWholeSnapshot(t *testing.T) {
	s := NewStore([]string{"btc38"})
	now := time.Now()

	s.Set(domain.BookSnapshot{
		Venue:     "btc38",
		Bid:       domain.PriceLevel{Price: 0.44, Volume: 1200},
		Ask:       domain.PriceLevel{Price: 0.45, Volume: 900},
		UpdatedAt: now,
	})

	snap, ok := s.Get("btc38")
	assert.True(t, ok)
	assert.Equal(t, 0.44, snap.Bid.Price)
	assert.Equal(t, 900.0, snap.Ask.Volume)
	assert.Equal(t, now, snap.UpdatedAt)
}

func TestStoreNewestUpdate(t *testing.T) {
	s := NewStore([]string{"a", "b"})
	assert.True(t, s.NewestUpdate().IsZero())

	older := time.Now().Add(-time.Minute)
	newer := time.Now()
	s.Set(domain.BookSnapshot{Venue: "a", UpdatedAt: older})
	s.Set(domain.BookSnapshot{Venue: "b", UpdatedAt: newer})

	assert.Equal(t, newer, s.NewestUpdate())
	assert.Len(t, s.All(), 2)
}
