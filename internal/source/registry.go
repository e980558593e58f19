package source

import (
	"fmt"
	"sort"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/extract"
)

// Registry resolves adapters by name.
type Registry struct {
	adapters map[string]crawler.SourceAdapter
}

// NewRegistry indexes adapters by Name.
func NewRegistry(adapters ...crawler.SourceAdapter) *Registry {
	r := &Registry{adapters: make(map[string]crawler.SourceAdapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
	}
	return r
}

// DefaultRegistry registers the built-in adapters around one extractor.
func DefaultRegistry(extractor *extract.Extractor) *Registry {
	return NewRegistry(
		NewSearch(extractor),
		NewCategory(extractor),
		NewSitemap(extractor),
		NewListing(extractor),
	)
}

// Get returns the adapter for name. An empty name means the listing adapter.
func (r *Registry) Get(name string) (crawler.SourceAdapter, error) {
	if name == "" {
		name = AdapterListing
	}
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("adapter %q: %w", name, crawler.ErrUnknownAdapter)
	}
	return a, nil
}

// Names lists registered adapters alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
