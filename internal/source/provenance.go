package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

// DefaultProvenanceTTL is how long discovery provenance is remembered.
const DefaultProvenanceTTL = 24 * time.Hour

// ProvenanceCache is a short-lived side table from candidate URL to how it
// was discovered.
type ProvenanceCache struct {
	store crawler.TTLStore
	ttl   time.Duration
}

// NewProvenanceCache wraps store. ttl <= 0 uses DefaultProvenanceTTL.
func NewProvenanceCache(store crawler.TTLStore, ttl time.Duration) *ProvenanceCache {
	if ttl <= 0 {
		ttl = DefaultProvenanceTTL
	}
	return &ProvenanceCache{store: store, ttl: ttl}
}

func provenanceKey(url string) string {
	return "provenance:" + url
}

// Put remembers the provenance of candidate.
func (p *ProvenanceCache) Put(ctx context.Context, candidate crawler.CandidateURL) error {
	raw, err := json.Marshal(candidate.Provenance)
	if err != nil {
		return fmt.Errorf("encode provenance: %w", err)
	}
	if err := p.store.Set(ctx, provenanceKey(candidate.URL), raw, p.ttl); err != nil {
		return fmt.Errorf("put provenance: %w", err)
	}
	return nil
}

// Get returns the provenance recorded for url; ok is false when unknown or expired.
func (p *ProvenanceCache) Get(ctx context.Context, url string) (crawler.Provenance, bool, error) {
	raw, err := p.store.Get(ctx, provenanceKey(url))
	if errors.Is(err, crawler.ErrNotFound) {
		return crawler.Provenance{}, false, nil
	}
	if err != nil {
		return crawler.Provenance{}, false, fmt.Errorf("get provenance: %w", err)
	}
	var prov crawler.Provenance
	if err := json.Unmarshal(raw, &prov); err != nil {
		return crawler.Provenance{}, false, fmt.Errorf("decode provenance: %w", err)
	}
	return prov, true, nil
}

// Remember returns the live provenance cached for candidate.URL. When there
// is none it stores candidate's provenance and reports seen as false. An
// existing entry is never overwritten, so it keeps the first discovery until
// it expires.
func (p *ProvenanceCache) Remember(ctx context.Context, candidate crawler.CandidateURL) (prev crawler.Provenance, seen bool, err error) {
	prev, seen, err = p.Get(ctx, candidate.URL)
	if err != nil || seen {
		return prev, seen, err
	}
	return crawler.Provenance{}, false, p.Put(ctx, candidate)
}
