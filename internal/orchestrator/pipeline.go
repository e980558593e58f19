package orchestrator

import (
	"context"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/dedup"
	"github.com/JakeFAU/tik-regcrawler/internal/extract"
	"github.com/JakeFAU/tik-regcrawler/internal/metrics"
	"github.com/JakeFAU/tik-regcrawler/internal/progress"
)

// Document outcomes reported to metrics and progress sinks.
const (
	OutcomeSaved            = "saved"
	OutcomeDuplicate        = "duplicate"
	OutcomeIrrelevant       = "irrelevant"
	OutcomeFetchFailed      = "fetch_failed"
	OutcomeExtractionFailed = "extraction_failed"
	OutcomePersistError     = "persist_error"
)

// pageFetcher serves listing pages to source adapters with the run's
// strategy, headers and pacing.
type pageFetcher struct {
	o *Orchestrator
	r *run
}

func (p *pageFetcher) FetchPage(ctx context.Context, url string) crawler.RawFetch {
	if err := p.r.pacer.Wait(ctx, p.r.state.Delay()); err != nil {
		return crawler.RawFetch{URL: url, Status: crawler.FetchStatusNetworkError, Strategy: p.r.state.Strategy, Err: err.Error()}
	}
	raw := p.o.deps.Executor.Execute(context.WithoutCancel(ctx), p.o.request(p.r, url), p.r.state.Strategy)
	p.r.pacer.Done()
	return raw
}

func (o *Orchestrator) request(r *run, url string) crawler.FetchRequest {
	timeout := r.src.Timeout
	if timeout <= 0 {
		timeout = o.cfg.DefaultTimeout
	}
	return crawler.FetchRequest{URL: url, Headers: r.src.Headers(), Timeout: timeout}
}

// processURL runs one candidate through fetch, health, extraction, scoring
// and persistence. Nothing here aborts the run. Work after the fetch uses a
// context detached from cancellation so a URL in flight completes.
func (o *Orchestrator) processURL(ctx context.Context, r *run, candidate crawler.CandidateURL, index int) {
	work := context.WithoutCancel(ctx)
	logger := r.logger.With(zap.String("url", candidate.URL))

	raw := o.fetch(work, r, candidate.URL, index)
	r.state.RecordFetch(raw.OK())
	o.recordHealth(work, r, raw, logger)
	o.emit(progress.Event{
		RunID:       r.id,
		SourceID:    r.src.ID,
		Stage:       progress.StageFetchDone,
		URL:         candidate.URL,
		Strategy:    string(raw.Strategy),
		FetchStatus: string(raw.Status),
		StatusCode:  raw.StatusCode,
		StatusClass: progress.ClassifyStatus(raw.StatusCode),
		Bytes:       int64(len(raw.Body)),
		Dur:         raw.Elapsed,
		Note:        raw.Err,
	})
	if !raw.OK() {
		o.outcome(r, candidate.URL, OutcomeFetchFailed, 0)
		return
	}

	doc, err := r.adapter.Extract(raw, r.src)
	if err != nil {
		r.state.ExtractionFailures++
		logger.Debug("document dropped", zap.Error(err))
		o.outcome(r, candidate.URL, OutcomeExtractionFailed, 0)
		return
	}
	enrich(&doc, raw, candidate, o.deps.Clock.Now())

	scored := o.deps.Scorer.ScoreDocument(doc, r.state.Threshold)
	metrics.ObserveScore(scored.Score)
	r.state.RecordScore(scored.Relevant)
	if len(scored.MatchedKeywords) > 0 {
		scored.Metadata["matched_keywords"] = strings.Join(sortedKeys(scored.MatchedKeywords), ",")
	}
	if !scored.Relevant && !o.cfg.PersistIrrelevant {
		o.outcome(r, candidate.URL, OutcomeIrrelevant, scored.Score)
		return
	}

	o.archive(work, r, &scored, raw.Body, logger)
	saved, created, err := o.deps.Gateway.SaveIfNew(work, r.src.ID, scored)
	if err != nil {
		logger.Error("save document failed", zap.Error(err))
		o.outcome(r, candidate.URL, OutcomePersistError, scored.Score)
		return
	}
	r.state.RecordSave(created, scored.Relevant)
	if !created {
		logger.Debug("duplicate document", zap.String("document_id", saved.ID))
		o.outcome(r, candidate.URL, OutcomeDuplicate, scored.Score)
		return
	}
	logger.Info("document saved",
		zap.String("document_id", saved.ID),
		zap.Int("score", scored.Score),
		zap.String("category", string(scored.Category)),
		zap.Bool("relevant", scored.Relevant),
	)
	o.outcome(r, candidate.URL, OutcomeSaved, scored.Score)
}

// fetch uses the selected strategy. Every DriftInterval-th URL it falls back
// through the other candidates when the selected one fails, and switches the
// run to the first one that succeeds.
func (o *Orchestrator) fetch(ctx context.Context, r *run, url string, index int) crawler.RawFetch {
	req := o.request(r, url)
	raw := o.deps.Executor.Execute(ctx, req, r.state.Strategy)
	drift := index > 0 && index%o.cfg.DriftInterval == 0
	if raw.OK() || !drift {
		return raw
	}
	for _, alt := range r.candidates {
		if alt == r.state.Strategy {
			continue
		}
		attempt := o.deps.Executor.Execute(ctx, req, alt)
		if !attempt.OK() {
			continue
		}
		r.logger.Info("strategy drift detected",
			zap.String("from", string(r.state.Strategy)),
			zap.String("to", string(alt)),
			zap.String("url", url),
		)
		r.state.Strategy = alt
		o.deps.Selector.Remember(ctx, r.src.ID, alt)
		return attempt
	}
	return raw
}

func (o *Orchestrator) recordHealth(ctx context.Context, r *run, raw crawler.RawFetch, logger *zap.Logger) {
	h, err := o.deps.Health.Record(ctx, raw)
	if err != nil {
		logger.Warn("health update failed", zap.Error(err))
		return
	}
	if !o.deps.Health.ShouldNotify(h) || o.deps.Alerter == nil {
		return
	}
	alert := crawler.HealthAlert{
		SourceID:     r.src.ID,
		URL:          h.URL,
		FailureCount: h.FailureCount,
		LastError:    h.LastError,
		StatusCode:   h.LastStatusCode,
		Strategy:     raw.Strategy,
		RaisedAt:     o.deps.Clock.Now(),
	}
	if err := o.deps.Alerter.Alert(ctx, alert); err != nil {
		logger.Error("health alert failed", zap.Error(err))
	}
}

// archive writes the page that produced a document to the blob store and
// records its URI. The path is keyed by checksum so a duplicate rewrites the
// same object.
func (o *Orchestrator) archive(ctx context.Context, r *run, doc *crawler.ScoredDocument, body []byte, logger *zap.Logger) {
	if o.deps.Blobs == nil || len(body) == 0 {
		return
	}
	key := path.Join(o.cfg.SnapshotPrefix, r.src.ID, dedup.DocumentChecksum(doc.ExtractedDocument)+".html")
	uri, err := o.deps.Blobs.PutObject(ctx, key, "text/html; charset=utf-8", body)
	if err != nil {
		logger.Warn("snapshot archive failed", zap.Error(err))
		return
	}
	doc.Metadata["snapshot_uri"] = uri
}

func (o *Orchestrator) outcome(r *run, url, outcome string, score int) {
	metrics.ObserveDocument(r.src.ID, outcome)
	o.emit(progress.Event{
		RunID:    r.id,
		SourceID: r.src.ID,
		Stage:    progress.StageDocument,
		URL:      url,
		Outcome:  outcome,
		Score:    score,
	})
}

// enrich adds fetch and discovery details to the document metadata.
func enrich(doc *crawler.ExtractedDocument, raw crawler.RawFetch, candidate crawler.CandidateURL, now time.Time) {
	prov := candidate.Provenance
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]string)
	}
	if doc.Metadata[extract.MetaOriginalURL] == "" {
		doc.Metadata[extract.MetaOriginalURL] = raw.URL
	}
	doc.Metadata["fetch_strategy"] = string(raw.Strategy)
	doc.Metadata["fetched_at"] = now.UTC().Format(time.RFC3339)
	if prov.Method != "" {
		doc.Metadata["discovery_method"] = prov.Method
	}
	if prov.Keyword != "" {
		doc.Metadata["discovery_keyword"] = prov.Keyword
	}
	if prov.ListingURL != "" {
		doc.Metadata["listing_url"] = prov.ListingURL
	}
	if first := candidate.FirstSeen; first != nil {
		if !first.DiscoveredAt.IsZero() {
			doc.Metadata["first_discovered_at"] = first.DiscoveredAt.UTC().Format(time.RFC3339)
		}
		if first.Method != "" {
			doc.Metadata["first_discovery_method"] = first.Method
		}
		if first.Keyword != "" {
			doc.Metadata["first_discovery_keyword"] = first.Keyword
		}
	}
	if doc.SourceURL == "" {
		doc.SourceURL = raw.FinalURL
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
