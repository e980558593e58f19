package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

type ttlEntry struct {
	value     []byte
	expiresAt time.Time
}

// TTLStore is a mutex-guarded key-value table with per-entry expiry.
type TTLStore struct {
	mu      sync.Mutex
	clock   crawler.Clock
	entries map[string]ttlEntry
}

// NewTTLStore constructs a TTLStore that reads time from clock.
func NewTTLStore(clock crawler.Clock) *TTLStore {
	return &TTLStore{clock: clock, entries: make(map[string]ttlEntry)}
}

// Get implements crawler.TTLStore. Expired entries are evicted lazily.
func (s *TTLStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, crawler.ErrNotFound
	}
	if !e.expiresAt.IsZero() && !s.clock.Now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, crawler.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Set implements crawler.TTLStore. A non-positive ttl never expires.
func (s *TTLStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := ttlEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.clock.Now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}
