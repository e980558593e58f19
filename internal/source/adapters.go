// Package source holds the per-source discovery adapters, the adapter
// registry, the provenance side table and the configured source catalog.
package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/extract"
)

// Adapter names.
const (
	AdapterSearch   = "search"
	AdapterCategory = "category"
	AdapterSitemap  = "sitemap"
	AdapterListing  = "listing"
)

// Discovery methods recorded in provenance.
const (
	MethodSearch   = "search"
	MethodCategory = "category"
	MethodSitemap  = "sitemap"
	MethodListing  = "listing"
)

type discoverFunc func(ctx context.Context, src crawler.Source, pages crawler.PageFetcher, h *harvester, c *collector) error

// htmlAdapter shares extraction and bookkeeping across discovery styles.
type htmlAdapter struct {
	name      string
	extractor *extract.Extractor
	discover  discoverFunc
	now       func() time.Time
}

func (a *htmlAdapter) Name() string { return a.name }

// Extract applies the source's selector overrides ahead of the default cascade.
func (a *htmlAdapter) Extract(raw crawler.RawFetch, src crawler.Source) (crawler.ExtractedDocument, error) {
	doc, err := a.extractor.WithOverrides(src.Selectors).Extract(raw, src.BaseURL)
	if err != nil {
		return crawler.ExtractedDocument{}, fmt.Errorf("extract %s: %w", raw.URL, err)
	}
	return doc, nil
}

// DiscoverURLs returns candidates in discovery order. It fails with
// crawler.ErrDiscoveryFailed only when nothing was found and every listing
// fetch failed.
func (a *htmlAdapter) DiscoverURLs(ctx context.Context, src crawler.Source, pages crawler.PageFetcher) ([]crawler.CandidateURL, error) {
	h, err := newHarvester(src.Discovery.LinkSelector, src.Discovery.LinkPattern)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", src.ID, err)
	}
	c := &collector{seen: map[string]struct{}{}, now: a.now()}
	if err := a.discover(ctx, src, pages, h, c); err != nil {
		return c.out, err
	}
	if len(c.out) == 0 && c.attempts > 0 && c.failures == c.attempts {
		return nil, fmt.Errorf("discover %s: %d listing fetches failed (%s): %w", src.ID, c.failures, c.lastErr, crawler.ErrDiscoveryFailed)
	}
	return c.out, nil
}

// collector accumulates candidates and listing fetch outcomes.
type collector struct {
	out      []crawler.CandidateURL
	seen     map[string]struct{}
	attempts int
	failures int
	lastErr  string
	now      time.Time
}

// fetch retrieves a listing page and records the outcome.
func (c *collector) fetch(ctx context.Context, pages crawler.PageFetcher, pageURL string) (crawler.RawFetch, bool) {
	c.attempts++
	raw := pages.FetchPage(ctx, pageURL)
	if !raw.OK() {
		c.failures++
		c.lastErr = raw.Err
		if c.lastErr == "" {
			c.lastErr = string(raw.Status)
		}
		return raw, false
	}
	return raw, true
}

// add appends new links and reports how many were new.
func (c *collector) add(links []string, prov crawler.Provenance) int {
	added := 0
	for _, l := range links {
		if _, ok := c.seen[l]; ok {
			continue
		}
		c.seen[l] = struct{}{}
		p := prov
		p.DiscoveredAt = c.now
		c.out = append(c.out, crawler.CandidateURL{URL: l, Provenance: p})
		added++
	}
	return added
}

func maxPages(src crawler.Source) int {
	if src.MaxPages > 0 {
		return src.MaxPages
	}
	return 1
}

// paginate walks pages 1..max of a listing, stopping early when a page
// fails or yields nothing new.
func paginate(ctx context.Context, src crawler.Source, pages crawler.PageFetcher, h *harvester, c *collector, pageURL func(page int) (string, bool), prov crawler.Provenance) error {
	for page := 1; page <= maxPages(src); page++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("discovery canceled: %w", err)
		}
		u, ok := pageURL(page)
		if !ok {
			return nil
		}
		raw, ok := c.fetch(ctx, pages, u)
		if !ok {
			return nil
		}
		p := prov
		p.ListingURL = u
		if c.add(h.Links(raw.Body, finalURL(raw, u)), p) == 0 {
			return nil
		}
	}
	return nil
}

func finalURL(raw crawler.RawFetch, fallback string) string {
	if raw.FinalURL != "" {
		return raw.FinalURL
	}
	return fallback
}

// withPage sets the page query parameter for page > 1.
func withPage(rawURL, param string, page int) string {
	if page <= 1 {
		return rawURL
	}
	if param == "" {
		param = "page"
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

func joinBase(base, path string) string {
	if path == "" {
		return base
	}
	b, err := url.Parse(base)
	if err != nil {
		return path
	}
	p, err := url.Parse(path)
	if err != nil {
		return path
	}
	return b.ResolveReference(p).String()
}

// NewSearch discovers candidates through the source's search form, one query
// per keyword, paging while results keep coming.
func NewSearch(extractor *extract.Extractor) crawler.SourceAdapter {
	return &htmlAdapter{name: AdapterSearch, extractor: extractor, now: time.Now, discover: discoverSearch}
}

func discoverSearch(ctx context.Context, src crawler.Source, pages crawler.PageFetcher, h *harvester, c *collector) error {
	tmpl := src.Discovery.SearchURL
	if tmpl == "" {
		return fmt.Errorf("discover %s: search adapter requires discovery.search_url", src.ID)
	}
	paged := strings.Contains(tmpl, "{page}")
	for _, kw := range src.Discovery.Keywords {
		err := paginate(ctx, src, pages, h, c, func(page int) (string, bool) {
			if page > 1 && !paged {
				return "", false
			}
			r := strings.NewReplacer("{query}", url.QueryEscape(kw), "{page}", strconv.Itoa(page))
			return joinBase(src.BaseURL, r.Replace(tmpl)), true
		}, crawler.Provenance{Method: MethodSearch, Keyword: kw})
		if err != nil {
			return err
		}
	}
	return nil
}

// NewCategory discovers candidates from category listing paths with
// query-parameter pagination.
func NewCategory(extractor *extract.Extractor) crawler.SourceAdapter {
	return &htmlAdapter{name: AdapterCategory, extractor: extractor, now: time.Now, discover: discoverCategory}
}

func discoverCategory(ctx context.Context, src crawler.Source, pages crawler.PageFetcher, h *harvester, c *collector) error {
	if len(src.Discovery.CategoryPaths) == 0 {
		return fmt.Errorf("discover %s: category adapter requires discovery.category_paths", src.ID)
	}
	for _, path := range src.Discovery.CategoryPaths {
		listing := joinBase(src.BaseURL, path)
		err := paginate(ctx, src, pages, h, c, func(page int) (string, bool) {
			return withPage(listing, src.Discovery.PageParam, page), true
		}, crawler.Provenance{Method: MethodCategory, Keyword: path})
		if err != nil {
			return err
		}
	}
	return nil
}

// NewListing discovers candidates from a single listing page (the base URL
// unless discovery.listing_url is set).
func NewListing(extractor *extract.Extractor) crawler.SourceAdapter {
	return &htmlAdapter{name: AdapterListing, extractor: extractor, now: time.Now, discover: discoverListing}
}

func discoverListing(ctx context.Context, src crawler.Source, pages crawler.PageFetcher, h *harvester, c *collector) error {
	listing := joinBase(src.BaseURL, src.Discovery.ListingURL)
	return paginate(ctx, src, pages, h, c, func(page int) (string, bool) {
		return withPage(listing, src.Discovery.PageParam, page), true
	}, crawler.Provenance{Method: MethodListing})
}

// NewSitemap discovers candidates from sitemap.xml, following one level of
// sitemap index.
func NewSitemap(extractor *extract.Extractor) crawler.SourceAdapter {
	return &htmlAdapter{name: AdapterSitemap, extractor: extractor, now: time.Now, discover: discoverSitemap}
}

type sitemapDoc struct {
	URLs     []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

func discoverSitemap(ctx context.Context, src crawler.Source, pages crawler.PageFetcher, h *harvester, c *collector) error {
	root := src.Discovery.SitemapURL
	if root == "" {
		root = "/sitemap.xml"
	}
	queue := []string{joinBase(src.BaseURL, root)}
	budget := maxPages(src)
	for len(queue) > 0 && budget > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("discovery canceled: %w", err)
		}
		next := queue[0]
		queue = queue[1:]
		budget--
		raw, ok := c.fetch(ctx, pages, next)
		if !ok {
			continue
		}
		var doc sitemapDoc
		if err := xml.Unmarshal(raw.Body, &doc); err != nil {
			c.failures++
			c.lastErr = "parse sitemap: " + err.Error()
			continue
		}
		for _, sm := range doc.Sitemaps {
			if loc := strings.TrimSpace(sm.Loc); loc != "" {
				queue = append(queue, loc)
			}
		}
		links := make([]string, 0, len(doc.URLs))
		for _, u := range doc.URLs {
			norm, err := NormalizeURL(u.Loc)
			if err != nil || !h.Match(norm) {
				continue
			}
			links = append(links, norm)
		}
		c.add(links, crawler.Provenance{Method: MethodSitemap, ListingURL: next})
	}
	return nil
}
