package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

// StatsStore records per-source run bookkeeping.
type StatsStore struct {
	mu    sync.RWMutex
	stats map[string]crawler.SourceStats
}

// NewStatsStore constructs a StatsStore.
func NewStatsStore() *StatsStore {
	return &StatsStore{stats: make(map[string]crawler.SourceStats)}
}

// UpdateSourceStats implements crawler.SourceStatsWriter.
func (s *StatsStore) UpdateSourceStats(_ context.Context, id string, stats crawler.SourceStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.stats[id]
	cur.LastRunAt = stats.LastRunAt
	cur.TotalDocuments += stats.Added
	s.stats[id] = cur
	return nil
}

// SourceStats implements crawler.SourceStatsReader.
func (s *StatsStore) SourceStats(_ context.Context, id string) (crawler.SourceStats, error) {
	st, ok := s.Stats(id)
	if !ok {
		return crawler.SourceStats{}, crawler.ErrNotFound
	}
	return st, nil
}

// Stats returns the accumulated stats for id.
func (s *StatsStore) Stats(id string) (crawler.SourceStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[id]
	return st, ok
}
