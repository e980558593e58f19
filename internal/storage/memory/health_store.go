package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

// HealthStore keeps URL health records in a map.
type HealthStore struct {
	mu      sync.RWMutex
	records map[string]crawler.URLHealth
}

// NewHealthStore constructs an empty HealthStore.
func NewHealthStore() *HealthStore {
	return &HealthStore{records: make(map[string]crawler.URLHealth)}
}

// GetOrCreate implements crawler.HealthStore.
func (s *HealthStore) GetOrCreate(_ context.Context, url string, now time.Time) (crawler.URLHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.records[url]; ok {
		return h, nil
	}
	h := crawler.URLHealth{URL: url, Status: crawler.HealthPending, CreatedAt: now}
	s.records[url] = h
	return h, nil
}

// SaveHealth implements crawler.HealthStore.
func (s *HealthStore) SaveHealth(_ context.Context, health crawler.URLHealth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[health.URL] = health
	return nil
}

// GetHealth returns the stored record or crawler.ErrNotFound.
func (s *HealthStore) GetHealth(_ context.Context, url string) (crawler.URLHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.records[url]
	if !ok {
		return crawler.URLHealth{}, crawler.ErrNotFound
	}
	return h, nil
}
