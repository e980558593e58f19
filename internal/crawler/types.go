// Package crawler defines core types shared across subsystems.
package crawler

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Strategy names a fetch profile (transport + identity + optional browser automation).
type Strategy string

// Strategies understood by the fetch executor, ordered from cheapest to most expensive.
const (
	StrategyPlain            Strategy = "plain"
	StrategyAlternateProfile Strategy = "alternate-profile"
	StrategyAutomatedBrowser Strategy = "automated-browser"
	StrategyStealthBrowser   Strategy = "stealth-automated-browser"
)

// DefaultStrategies returns the full candidate list in conservative order.
func DefaultStrategies() []Strategy {
	return []Strategy{
		StrategyPlain,
		StrategyAlternateProfile,
		StrategyAutomatedBrowser,
		StrategyStealthBrowser,
	}
}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyPlain, StrategyAlternateProfile, StrategyAutomatedBrowser, StrategyStealthBrowser:
		return true
	default:
		return false
	}
}

// ParseStrategy converts a configured name into a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	s := Strategy(strings.ToLower(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown fetch strategy %q", name)
	}
	return s, nil
}

// FetchStatus is the outcome of a single strategy attempt.
type FetchStatus string

// Fetch outcomes recorded on RawFetch.
const (
	FetchStatusOK           FetchStatus = "ok"
	FetchStatusBlocked      FetchStatus = "blocked"
	FetchStatusNetworkError FetchStatus = "network_error"
	FetchStatusTimeout      FetchStatus = "timeout"
)

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
	Timeout time.Duration
}

// FetchResponse is the result returned by a transport-level Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// RawFetch is the immediate result of one strategy attempt.
type RawFetch struct {
	URL        string        `json:"url"`
	FinalURL   string        `json:"final_url"`
	Status     FetchStatus   `json:"status"`
	StatusCode int           `json:"status_code"`
	Headers    http.Header   `json:"-"`
	Body       []byte        `json:"-"`
	Elapsed    time.Duration `json:"elapsed"`
	Strategy   Strategy      `json:"strategy"`
	Err        string        `json:"error,omitempty"`
}

// OK reports whether the attempt produced usable content.
func (r RawFetch) OK() bool {
	return r.Status == FetchStatusOK
}

// Source is a configured origin of regulatory documents.
type Source struct {
	ID                string            `json:"id" mapstructure:"id"`
	Name              string            `json:"name" mapstructure:"name"`
	BaseURL           string            `json:"base_url" mapstructure:"base_url"`
	Active            bool              `json:"active" mapstructure:"active"`
	Adapter           string            `json:"adapter" mapstructure:"adapter"`
	RequestDelay      time.Duration     `json:"request_delay" mapstructure:"request_delay"`
	Timeout           time.Duration     `json:"timeout" mapstructure:"timeout"`
	MinRelevanceScore int               `json:"min_relevance_score" mapstructure:"min_relevance_score"`
	CustomHeaders     map[string]string `json:"custom_headers" mapstructure:"custom_headers"`
	MaxPages          int               `json:"max_pages" mapstructure:"max_pages"`
	DocumentTarget    int               `json:"document_target" mapstructure:"document_target"`
	MaxCandidates     int               `json:"max_candidates" mapstructure:"max_candidates"`
	SampleURLs        []string          `json:"sample_urls" mapstructure:"sample_urls"`
	Strategies        []Strategy        `json:"strategies" mapstructure:"strategies"`
	Discovery         DiscoveryConfig   `json:"discovery" mapstructure:"discovery"`
	Selectors         map[string]string `json:"selectors" mapstructure:"selectors"`
	LastRunAt         *time.Time        `json:"last_run_at,omitempty" mapstructure:"-"`
	TotalDocuments    int               `json:"total_documents" mapstructure:"-"`
}

// Headers converts CustomHeaders into an http.Header.
func (s Source) Headers() http.Header {
	if len(s.CustomHeaders) == 0 {
		return nil
	}
	h := make(http.Header, len(s.CustomHeaders))
	for k, v := range s.CustomHeaders {
		h.Set(k, v)
	}
	return h
}

// DiscoveryConfig tells a source adapter where candidate URLs come from.
type DiscoveryConfig struct {
	// SearchURL is a template containing {query} and optionally {page}.
	SearchURL     string   `json:"search_url" mapstructure:"search_url"`
	Keywords      []string `json:"keywords" mapstructure:"keywords"`
	CategoryPaths []string `json:"category_paths" mapstructure:"category_paths"`
	PageParam     string   `json:"page_param" mapstructure:"page_param"`
	SitemapURL    string   `json:"sitemap_url" mapstructure:"sitemap_url"`
	ListingURL    string   `json:"listing_url" mapstructure:"listing_url"`
	LinkSelector  string   `json:"link_selector" mapstructure:"link_selector"`
	LinkPattern   string   `json:"link_pattern" mapstructure:"link_pattern"`
}

// SourceStats is the bookkeeping written back after every run. Writers add
// Added to the stored total; readers report that total in TotalDocuments.
type SourceStats struct {
	LastRunAt      time.Time
	Added          int
	TotalDocuments int
}

// Provenance records how a candidate URL was discovered.
type Provenance struct {
	Method       string    `json:"method"`
	Keyword      string    `json:"keyword,omitempty"`
	ListingURL   string    `json:"listing_url,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// CandidateURL is a discovered absolute address plus provenance.
type CandidateURL struct {
	URL        string
	Provenance Provenance
	// FirstSeen is the provenance cached by an earlier run, when one is
	// still live.
	FirstSeen *Provenance
}

// ExtractedDocument is the structured output of extraction.
type ExtractedDocument struct {
	Title        string            `json:"title"`
	DocumentType string            `json:"document_type"`
	TypeCode     string            `json:"type_code,omitempty"`
	Number       string            `json:"number"`
	Year         int               `json:"year,omitempty"`
	IssueDate    *time.Time        `json:"issue_date,omitempty"`
	SourceURL    string            `json:"source_url"`
	FileURL      string            `json:"file_url,omitempty"`
	Body         string            `json:"body"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Category is a coarse TIK classification label.
type Category string

// Classification taxonomy, in tie-break order.
const (
	CategoryDataProtection Category = "perlindungan_data"
	CategoryCyberSecurity  Category = "keamanan_siber"
	CategoryTelecom        Category = "telekomunikasi"
	CategoryElectronicTrx  Category = "transaksi_elektronik"
	CategoryBroadcasting   Category = "penyiaran"
	CategoryEGovernment    Category = "spbe"
	CategoryGeneralTIK     Category = "tik_umum"
	CategoryNonTIK         Category = "non_tik"
)

// Categories lists the taxonomy in tie-break order.
func Categories() []Category {
	return []Category{
		CategoryDataProtection,
		CategoryCyberSecurity,
		CategoryTelecom,
		CategoryElectronicTrx,
		CategoryBroadcasting,
		CategoryEGovernment,
		CategoryGeneralTIK,
		CategoryNonTIK,
	}
}

// ScoreBreakdown explains how a relevance score was reached.
type ScoreBreakdown struct {
	ByCategory map[Category]int `json:"by_category"`
	Threshold  int              `json:"threshold"`
	Matches    int              `json:"matches"`
}

// ScoredDocument is an extracted document enriched with relevance data.
type ScoredDocument struct {
	ExtractedDocument
	Score           int            `json:"score"`
	MatchedKeywords map[string]int `json:"matched_keywords"`
	Relevant        bool           `json:"relevant"`
	Category        Category       `json:"category"`
	Breakdown       ScoreBreakdown `json:"breakdown"`
}

// Document is a persisted, deduplicated record.
type Document struct {
	ScoredDocument
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// HealthStatus is the state of a monitored URL.
type HealthStatus string

// URL health states.
const (
	HealthPending HealthStatus = "pending"
	HealthActive  HealthStatus = "active"
	HealthBroken  HealthStatus = "broken"
)

// URLHealth is the per-URL monitoring state.
type URLHealth struct {
	URL            string       `json:"url"`
	Status         HealthStatus `json:"status"`
	LastStatusCode int          `json:"last_status_code"`
	LastError      string       `json:"last_error,omitempty"`
	FailureCount   int          `json:"failure_count"`
	LastCheckedAt  *time.Time   `json:"last_checked_at,omitempty"`
	LastSuccessAt  *time.Time   `json:"last_success_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// HealthAlert is emitted when a URL crosses the failure threshold.
type HealthAlert struct {
	SourceID     string    `json:"source_id"`
	URL          string    `json:"url"`
	FailureCount int       `json:"failure_count"`
	LastError    string    `json:"last_error"`
	StatusCode   int       `json:"status_code"`
	Strategy     Strategy  `json:"strategy"`
	RaisedAt     time.Time `json:"raised_at"`
}

// RunStatus represents the lifecycle state of a source run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// Stop reasons reported on RunSummary.
const (
	StopTargetReached  = "target_reached"
	StopExhausted      = "candidates_exhausted"
	StopCanceled       = "canceled"
	StopDiscoveryError = "discovery_failed"
)

// RunSummary reports the statistics of one source run.
type RunSummary struct {
	RunID              string     `json:"run_id"`
	SourceID           string     `json:"source_id"`
	Status             RunStatus  `json:"status"`
	Strategy           Strategy   `json:"strategy"`
	Candidates         int        `json:"candidates"`
	Processed          int        `json:"processed"`
	Relevant           int        `json:"relevant"`
	Saved              int        `json:"saved"`
	Duplicates         int        `json:"duplicates"`
	FetchFailures      int        `json:"fetch_failures"`
	ExtractionFailures int        `json:"extraction_failures"`
	FinalThreshold     int        `json:"final_threshold"`
	StopReason         string     `json:"stop_reason"`
	ErrorText          string     `json:"error_text,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	FinishedAt         *time.Time `json:"finished_at,omitempty"`
	DurationMs         int64      `json:"duration_ms"`
}
