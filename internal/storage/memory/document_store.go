package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

// DocumentStore keeps documents keyed by checksum. The checksum is unique:
// Create reports crawler.ErrDuplicateChecksum rather than overwrite.
type DocumentStore struct {
	mu         sync.RWMutex
	byChecksum map[string]crawler.Document
	order      []string
}

// NewDocumentStore constructs an empty DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{byChecksum: make(map[string]crawler.Document)}
}

// FindByChecksum implements crawler.DocumentStore.
func (s *DocumentStore) FindByChecksum(_ context.Context, checksum string) (crawler.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.byChecksum[checksum]
	if !ok {
		return crawler.Document{}, crawler.ErrNotFound
	}
	return doc, nil
}

// Create implements crawler.DocumentStore.
func (s *DocumentStore) Create(_ context.Context, doc crawler.Document) (crawler.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byChecksum[doc.Checksum]; exists {
		return crawler.Document{}, crawler.ErrDuplicateChecksum
	}
	s.byChecksum[doc.Checksum] = doc
	s.order = append(s.order, doc.Checksum)
	return doc, nil
}

// List returns documents in creation order.
func (s *DocumentStore) List() []crawler.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Document, 0, len(s.order))
	for _, c := range s.order {
		out = append(out, s.byChecksum[c])
	}
	return out
}
