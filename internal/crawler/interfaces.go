package crawler

import (
	"context"
	"time"
)

// DocumentStore persists deduplicated documents keyed by checksum.
type DocumentStore interface {
	// FindByChecksum returns ErrNotFound when no record exists.
	FindByChecksum(ctx context.Context, checksum string) (Document, error)
	// Create returns ErrDuplicateChecksum when the checksum already exists.
	Create(ctx context.Context, doc Document) (Document, error)
}

// SourceStore exposes read-only source configuration plus run bookkeeping.
type SourceStore interface {
	GetSource(ctx context.Context, id string) (Source, error)
	ListSources(ctx context.Context) ([]Source, error)
	UpdateSourceStats(ctx context.Context, id string, stats SourceStats) error
}

// SourceStatsWriter persists the bookkeeping half of SourceStore.
type SourceStatsWriter interface {
	UpdateSourceStats(ctx context.Context, id string, stats SourceStats) error
}

// SourceStatsReader loads persisted bookkeeping. It returns ErrNotFound for a
// source that has never run.
type SourceStatsReader interface {
	SourceStats(ctx context.Context, id string) (SourceStats, error)
}

// HealthStore persists URL health records.
type HealthStore interface {
	// GetOrCreate returns the record for url, creating a pending one when absent.
	GetOrCreate(ctx context.Context, url string, now time.Time) (URLHealth, error)
	SaveHealth(ctx context.Context, health URLHealth) error
}

// RunStore persists run summaries for later inspection.
type RunStore interface {
	SaveRun(ctx context.Context, run RunSummary) error
	GetRun(ctx context.Context, runID string) (RunSummary, error)
}

// TTLStore is a short-lived key-value side table.
type TTLStore interface {
	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Alerter dispatches a health alert to an operator-facing channel.
type Alerter interface {
	Alert(ctx context.Context, alert HealthAlert) error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// StrategyExecutor performs one attempt with a named strategy. It never fails;
// every problem is reported through RawFetch.Status.
type StrategyExecutor interface {
	Execute(ctx context.Context, request FetchRequest, strategy Strategy) RawFetch
}

// PageFetcher retrieves listing pages on behalf of a SourceAdapter.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) RawFetch
}

// SourceAdapter captures source-specific discovery and extraction.
type SourceAdapter interface {
	Name() string
	DiscoverURLs(ctx context.Context, src Source, pages PageFetcher) ([]CandidateURL, error)
	Extract(raw RawFetch, src Source) (ExtractedDocument, error)
}

// Queue provides enqueue/dequeue semantics for source runs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// QueueItem wraps a run ready to execute.
type QueueItem struct {
	RunID     string
	SourceID  string
	Submitted int64
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces document and run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
