package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

// Catalog serves sources from configuration and forwards run bookkeeping to
// a stats writer. It implements crawler.SourceStore.
type Catalog struct {
	mu      sync.RWMutex
	sources map[string]crawler.Source
	stats   crawler.SourceStatsWriter
}

// NewCatalog validates sources and builds a Catalog. stats may be nil.
func NewCatalog(sources []crawler.Source, stats crawler.SourceStatsWriter) (*Catalog, error) {
	c := &Catalog{sources: make(map[string]crawler.Source, len(sources)), stats: stats}
	for _, s := range sources {
		if err := Validate(s); err != nil {
			return nil, err
		}
		if _, dup := c.sources[s.ID]; dup {
			return nil, fmt.Errorf("source %q defined twice: %w", s.ID, crawler.ErrValidation)
		}
		c.sources[s.ID] = s
	}
	return c, nil
}

// Validate checks the fields every run depends on.
func Validate(s crawler.Source) error {
	if s.ID == "" {
		return fmt.Errorf("source id is required: %w", crawler.ErrValidation)
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("source %q: base_url must be absolute: %w", s.ID, crawler.ErrValidation)
	}
	for _, st := range s.Strategies {
		if !st.Valid() {
			return fmt.Errorf("source %q: unknown strategy %q: %w", s.ID, st, crawler.ErrValidation)
		}
	}
	if s.MinRelevanceScore < 0 || s.MaxPages < 0 || s.DocumentTarget < 0 || s.MaxCandidates < 0 {
		return fmt.Errorf("source %q: limits must be non-negative: %w", s.ID, crawler.ErrValidation)
	}
	return nil
}

// Load seeds each source's bookkeeping from the stats writer when it can also
// read. Sources that have never run keep zero values.
func (c *Catalog) Load(ctx context.Context) error {
	reader, ok := c.stats.(crawler.SourceStatsReader)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, s := range c.sources {
		st, err := reader.SourceStats(ctx, id)
		if errors.Is(err, crawler.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("load stats for source %q: %w", id, err)
		}
		at := st.LastRunAt
		s.LastRunAt = &at
		s.TotalDocuments = st.TotalDocuments
		c.sources[id] = s
	}
	return nil
}

// GetSource returns crawler.ErrNotFound for unknown ids.
func (c *Catalog) GetSource(_ context.Context, id string) (crawler.Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sources[id]
	if !ok {
		return crawler.Source{}, fmt.Errorf("source %q: %w", id, crawler.ErrNotFound)
	}
	return s, nil
}

// ListSources returns every source ordered by id.
func (c *Catalog) ListSources(_ context.Context) ([]crawler.Source, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]crawler.Source, 0, len(c.sources))
	for _, s := range c.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateSourceStats records run bookkeeping locally and in the stats writer.
func (c *Catalog) UpdateSourceStats(ctx context.Context, id string, stats crawler.SourceStats) error {
	c.mu.Lock()
	s, ok := c.sources[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("source %q: %w", id, crawler.ErrNotFound)
	}
	at := stats.LastRunAt
	s.LastRunAt = &at
	s.TotalDocuments += stats.Added
	c.sources[id] = s
	c.mu.Unlock()

	if c.stats == nil {
		return nil
	}
	if err := c.stats.UpdateSourceStats(ctx, id, stats); err != nil {
		return fmt.Errorf("update source stats: %w", err)
	}
	return nil
}
