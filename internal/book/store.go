// Package book holds the shared order-book state: a store mapping each venue
// to its latest top-of-book snapshot, and the per-venue fetcher workers that
// keep those snapshots fresh.
package book

import (
	"sync"
	"time"

	"github.com/ranc1/marketmaker/internal/domain"
)

// Store is a concurrently shared venue → BookSnapshot mapping. Each venue's
// entry has exactly one writer (its fetcher); the decision loop and the
// watchdog only read. Writes replace the whole snapshot, never individual
// fields, so readers always observe a consistent record.
type Store struct {
	mu    sync.RWMutex
	books map[string]domain.BookSnapshot
}

// NewStore creates a Store pre-seeded with a zero snapshot for every given
// venue. Entries live for the process lifetime and are only ever overwritten,
// never deleted.
func NewStore(venues []string) *Store {
	books := make(map[string]domain.BookSnapshot, len(venues))
	for _, v := range venues {
		books[v] = domain.BookSnapshot{Venue: v}
	}
	return &Store{books: books}
}

// Get returns the latest snapshot for the venue. The second return value is
// false for venues the store was not seeded with.
func (s *Store) Get(venue string) (domain.BookSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.books[venue]
	return snap, ok
}

// Set replaces the venue's snapshot wholesale.
func (s *Store) Set(snap domain.BookSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[snap.Venue] = snap
}

// Venues returns the seeded venue names in unspecified order.
func (s *Store) Venues() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.books))
	for v := range s.books {
		names = append(names, v)
	}
	return names
}

// All returns a copy of every snapshot currently in the store.
func (s *Store) All() []domain.BookSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := make([]domain.BookSnapshot, 0, len(s.books))
	for _, snap := range s.books {
		snaps = append(snaps, snap)
	}
	return snaps
}

// NewestUpdate returns the most recent UpdatedAt across all venues. The
// watchdog uses it to detect the engine running blind: if even the newest
// snapshot is ancient, every fetcher is dead.
func (s *Store) NewestUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var newest time.Time
	for _, snap := range s.books {
		if snap.UpdatedAt.After(newest) {
			newest = snap.UpdatedAt
		}
	}
	return newest
}
