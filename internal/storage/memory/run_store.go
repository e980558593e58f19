package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

// RunStore provides an in-memory run summary store.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]crawler.RunSummary
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]crawler.RunSummary)}
}

// SaveRun upserts a run summary.
func (s *RunStore) SaveRun(_ context.Context, run crawler.RunSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, runID string) (crawler.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return crawler.RunSummary{}, crawler.ErrNotFound
	}
	return run, nil
}
