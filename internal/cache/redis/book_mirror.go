package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ranc1/marketmaker/internal/domain"
)

// Channel carries every published snapshot for live subscribers.
const Channel = "books"

// BookMirror publishes top-of-book snapshots to Redis.
//
// Key schema:
//
//	book:{venue}:latest - JSON snapshot, refreshed on every publish
//
// Each write also goes out on the "books" pub/sub channel. The TTL keeps a
// dead trader from leaving stale quotes behind for readers that only poll the
// key.
type BookMirror struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBookMirror creates a BookMirror backed by the given Client.
func NewBookMirror(c *Client, ttl time.Duration) *BookMirror {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &BookMirror{rdb: c.Underlying(), ttl: ttl}
}

func bookKey(venue string) string { return "book:" + venue + ":latest" }

// PublishBook stores the snapshot under the venue's key and announces it on
// the pub/sub channel.
func (m *BookMirror) PublishBook(ctx context.Context, snap domain.BookSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal book %s: %w", snap.Venue, err)
	}

	pipe := m.rdb.TxPipeline()
	pipe.Set(ctx, bookKey(snap.Venue), data, m.ttl)
	pipe.Publish(ctx, Channel, data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish book %s: %w", snap.Venue, err)
	}
	return nil
}

// LatestBook reads back the most recent snapshot for a venue. It returns
// domain.ErrBookUnavailable when no snapshot is stored or the TTL expired.
func (m *BookMirror) LatestBook(ctx context.Context, venue string) (domain.BookSnapshot, error) {
	data, err := m.rdb.Get(ctx, bookKey(venue)).Bytes()
	if err == redis.Nil {
		return domain.BookSnapshot{}, fmt.Errorf("%w: no mirrored snapshot for %s", domain.ErrBookUnavailable, venue)
	}
	if err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: get book %s: %w", venue, err)
	}

	var snap domain.BookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.BookSnapshot{}, fmt.Errorf("redis: decode book %s: %w", venue, err)
	}
	return snap, nil
}
