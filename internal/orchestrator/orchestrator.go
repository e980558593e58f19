// Package orchestrator drives source runs: discovery, then fetch, health,
// extraction, scoring and persistence for each candidate URL in turn, paced
// by an adaptive delay.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/dedup"
	"github.com/JakeFAU/tik-regcrawler/internal/health"
	"github.com/JakeFAU/tik-regcrawler/internal/metrics"
	"github.com/JakeFAU/tik-regcrawler/internal/progress"
	"github.com/JakeFAU/tik-regcrawler/internal/relevance"
	"github.com/JakeFAU/tik-regcrawler/internal/selector"
	"github.com/JakeFAU/tik-regcrawler/internal/source"
)

// Config holds run-wide defaults. Per-source settings take precedence.
type Config struct {
	DocumentTarget    int           `mapstructure:"document_target"`
	MaxCandidates     int           `mapstructure:"max_candidates"`
	DriftInterval     int           `mapstructure:"drift_interval"`
	DefaultDelay      time.Duration `mapstructure:"default_delay"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
	MinRelevanceScore int           `mapstructure:"min_relevance_score"`
	PersistIrrelevant bool          `mapstructure:"persist_irrelevant"`
	SnapshotPrefix    string        `mapstructure:"snapshot_prefix"`
	Concurrency       int           `mapstructure:"concurrency"`
}

// DefaultConfig returns the stock run settings.
func DefaultConfig() Config {
	return Config{
		DocumentTarget:    50,
		MaxCandidates:     200,
		DriftInterval:     10,
		DefaultDelay:      2 * time.Second,
		DefaultTimeout:    45 * time.Second,
		MinRelevanceScore: 5,
		SnapshotPrefix:    "snapshots",
		Concurrency:       4,
	}
}

// Deps are the collaborators a run needs. Blobs, Alerter and Progress are
// optional.
type Deps struct {
	Sources    crawler.SourceStore
	Adapters   *source.Registry
	Executor   crawler.StrategyExecutor
	Selector   *selector.Selector
	Scorer     *relevance.Scorer
	Threshold  relevance.ThresholdPolicy
	Gateway    *dedup.Gateway
	Health     *health.Monitor
	Alerter    crawler.Alerter
	Provenance *source.ProvenanceCache
	Runs       crawler.RunStore
	Blobs      crawler.BlobStore
	IDs        crawler.IDGenerator
	Clock      crawler.Clock
	Progress   progress.Emitter
}

// Orchestrator runs sources.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New builds an Orchestrator, filling zero config values with defaults.
func New(cfg Config, deps Deps, logger *zap.Logger) *Orchestrator {
	def := DefaultConfig()
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = def.MaxCandidates
	}
	if cfg.DriftInterval <= 0 {
		cfg.DriftInterval = def.DriftInterval
	}
	if cfg.DefaultDelay < 0 {
		cfg.DefaultDelay = 0
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = def.DefaultTimeout
	}
	if cfg.MinRelevanceScore <= 0 {
		cfg.MinRelevanceScore = def.MinRelevanceScore
	}
	if cfg.SnapshotPrefix == "" {
		cfg.SnapshotPrefix = def.SnapshotPrefix
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if deps.Threshold == (relevance.ThresholdPolicy{}) {
		deps.Threshold = relevance.DefaultThresholdPolicy()
	}
	if deps.Progress == nil {
		deps.Progress = progress.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, deps: deps, logger: logger.Named("orchestrator")}
}

// RunSource runs one source under a fresh run ID.
func (o *Orchestrator) RunSource(ctx context.Context, sourceID string) (crawler.RunSummary, error) {
	runID, err := o.deps.IDs.NewID()
	if err != nil {
		return crawler.RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	return o.Run(ctx, runID, sourceID)
}

// RunAll runs every active source, at most Concurrency at a time. One
// source failing does not stop the others; their errors are joined.
func (o *Orchestrator) RunAll(ctx context.Context) ([]crawler.RunSummary, error) {
	sources, err := o.deps.Sources.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	var active []crawler.Source
	for _, src := range sources {
		if src.Active {
			active = append(active, src)
		}
	}

	summaries := make([]crawler.RunSummary, len(active))
	errs := make([]error, len(active))
	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)
	for i, src := range active {
		g.Go(func() error {
			summaries[i], errs[i] = o.RunSource(ctx, src.ID)
			return nil
		})
	}
	_ = g.Wait()
	return summaries, errors.Join(errs...)
}

// run carries the per-run collaborators through the URL loop.
type run struct {
	id         string
	src        crawler.Source
	adapter    crawler.SourceAdapter
	state      *RunState
	candidates []crawler.Strategy
	pacer      *pacer
	summary    *crawler.RunSummary
	logger     *zap.Logger
}

// Run executes one run of sourceID under runID. Fetch-level problems are
// absorbed into the summary; an error is returned only when the run could not
// proceed (unknown or inactive source, no strategy, discovery failure).
// Cancellation stops the run between URLs and is reported as StopCanceled.
func (o *Orchestrator) Run(ctx context.Context, runID, sourceID string) (crawler.RunSummary, error) {
	start := o.deps.Clock.Now()
	summary := crawler.RunSummary{
		RunID:     runID,
		SourceID:  sourceID,
		Status:    crawler.RunStatusRunning,
		StartedAt: start,
	}
	logger := o.logger.With(zap.String("run_id", runID), zap.String("source_id", sourceID))

	src, err := o.deps.Sources.GetSource(ctx, sourceID)
	if err != nil {
		return o.fail(ctx, nil, &summary, logger, fmt.Errorf("load source %s: %w", sourceID, err))
	}
	if !src.Active {
		return o.fail(ctx, nil, &summary, logger, fmt.Errorf("run source %s: %w", sourceID, crawler.ErrSourceInactive))
	}
	o.saveRun(ctx, summary, logger)
	o.emit(progress.Event{RunID: runID, SourceID: sourceID, Stage: progress.StageRunStart})
	logger.Info("run started", zap.String("adapter", src.Adapter))

	adapter, err := o.deps.Adapters.Get(src.Adapter)
	if err != nil {
		return o.fail(ctx, &src, &summary, logger, fmt.Errorf("resolve adapter: %w", err))
	}
	decision, err := o.deps.Selector.SelectForSource(ctx, src)
	if err != nil {
		return o.fail(ctx, &src, &summary, logger, err)
	}
	summary.Strategy = decision.Strategy

	threshold := src.MinRelevanceScore
	if threshold <= 0 {
		threshold = o.cfg.MinRelevanceScore
	}
	delay := src.RequestDelay
	if delay <= 0 {
		delay = o.cfg.DefaultDelay
	}
	r := &run{
		id:         runID,
		src:        src,
		adapter:    adapter,
		state:      NewRunState(threshold, delay, decision.Strategy, o.deps.Threshold),
		candidates: o.deps.Selector.Candidates(src),
		pacer:      newPacer(src.ID, delay),
		summary:    &summary,
		logger:     logger,
	}

	found, err := adapter.DiscoverURLs(ctx, src, &pageFetcher{o: o, r: r})
	if err != nil {
		if ctx.Err() != nil {
			summary.StopReason = crawler.StopCanceled
			return o.finish(ctx, r, nil)
		}
		summary.StopReason = crawler.StopDiscoveryError
		return o.finish(ctx, r, fmt.Errorf("discover %s: %w", src.ID, err))
	}
	candidates := o.prepareCandidates(ctx, r, found)
	summary.Candidates = len(candidates)
	logger.Info("candidates discovered", zap.Int("found", len(found)), zap.Int("kept", len(candidates)))

	summary.StopReason = crawler.StopExhausted
	target := o.documentTarget(src)
	for i, candidate := range candidates {
		if ctx.Err() != nil {
			summary.StopReason = crawler.StopCanceled
			break
		}
		if err := r.pacer.Wait(ctx, r.state.Delay()); err != nil {
			summary.StopReason = crawler.StopCanceled
			break
		}
		o.processURL(ctx, r, candidate, i)
		r.pacer.Done()
		if r.state.TargetReached(target) {
			summary.StopReason = crawler.StopTargetReached
			break
		}
	}
	return o.finish(ctx, r, nil)
}

func (o *Orchestrator) documentTarget(src crawler.Source) int {
	if src.DocumentTarget > 0 {
		return src.DocumentTarget
	}
	return o.cfg.DocumentTarget
}

// prepareCandidates normalizes, dedupes and caps the discovered URLs. Each
// URL picks up the provenance cached by an earlier run, or seeds the cache.
func (o *Orchestrator) prepareCandidates(ctx context.Context, r *run, found []crawler.CandidateURL) []crawler.CandidateURL {
	limit := r.src.MaxCandidates
	if limit <= 0 {
		limit = o.cfg.MaxCandidates
	}
	seen := make(map[string]struct{}, len(found))
	out := make([]crawler.CandidateURL, 0, min(len(found), limit))
	for _, c := range found {
		if len(out) >= limit {
			break
		}
		normalized, err := source.NormalizeURL(c.URL)
		if err != nil {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		c.URL = normalized
		if o.deps.Provenance != nil {
			prev, seen, err := o.deps.Provenance.Remember(ctx, c)
			switch {
			case err != nil:
				r.logger.Warn("provenance cache failed", zap.String("url", c.URL), zap.Error(err))
			case seen:
				c.FirstSeen = &prev
			}
		}
		out = append(out, c)
	}
	return out
}

// fail ends a run that never reached the URL loop.
func (o *Orchestrator) fail(ctx context.Context, src *crawler.Source, summary *crawler.RunSummary, logger *zap.Logger, err error) (crawler.RunSummary, error) {
	r := &run{id: summary.RunID, summary: summary, logger: logger, state: NewRunState(0, 0, "", o.deps.Threshold)}
	if src != nil {
		r.src = *src
	}
	return o.finish(ctx, r, err)
}

// finish records the outcome: source bookkeeping (also on failure), the run
// summary, metrics and a terminal progress event. Writes use a context
// detached from cancellation so a canceled run is still recorded.
func (o *Orchestrator) finish(ctx context.Context, r *run, runErr error) (crawler.RunSummary, error) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	now := o.deps.Clock.Now()
	s := r.summary
	st := r.state
	s.Processed = st.Processed
	s.Relevant = st.Relevant
	s.Saved = st.Saved
	s.Duplicates = st.Duplicates
	s.FetchFailures = st.FetchFailures
	s.ExtractionFailures = st.ExtractionFailures
	s.FinalThreshold = st.Threshold
	if st.Strategy != "" {
		s.Strategy = st.Strategy
	}
	s.FinishedAt = &now
	s.DurationMs = now.Sub(s.StartedAt).Milliseconds()
	s.Status = crawler.RunStatusSucceeded
	if runErr != nil {
		s.Status = crawler.RunStatusFailed
		s.ErrorText = runErr.Error()
	}

	if r.src.ID != "" {
		stats := crawler.SourceStats{LastRunAt: now, Added: st.Saved}
		if err := o.deps.Sources.UpdateSourceStats(bg, r.src.ID, stats); err != nil {
			r.logger.Error("update source stats failed", zap.Error(err))
		}
	}
	o.saveRun(bg, *s, r.logger)
	metrics.ObserveRun(s.SourceID, string(s.Status), now.Sub(s.StartedAt))

	evt := progress.Event{RunID: s.RunID, SourceID: s.SourceID, Stage: progress.StageRunDone, Dur: now.Sub(s.StartedAt), Note: s.StopReason}
	fields := []zap.Field{
		zap.String("status", string(s.Status)),
		zap.String("stop_reason", s.StopReason),
		zap.Int("processed", s.Processed),
		zap.Int("relevant", s.Relevant),
		zap.Int("saved", s.Saved),
		zap.Int("duplicates", s.Duplicates),
		zap.Int("fetch_failures", s.FetchFailures),
		zap.Int("final_threshold", s.FinalThreshold),
		zap.Int64("duration_ms", s.DurationMs),
	}
	if runErr != nil {
		evt.Stage = progress.StageRunError
		evt.Note = runErr.Error()
		r.logger.Error("run failed", append(fields, zap.Error(runErr))...)
	} else {
		r.logger.Info("run finished", fields...)
	}
	if evt.Dur < 0 {
		evt.Dur = 0
	}
	o.emit(evt)
	return *s, runErr
}

func (o *Orchestrator) saveRun(ctx context.Context, summary crawler.RunSummary, logger *zap.Logger) {
	if o.deps.Runs == nil {
		return
	}
	if err := o.deps.Runs.SaveRun(ctx, summary); err != nil {
		logger.Warn("save run failed", zap.Error(err))
	}
}

func (o *Orchestrator) emit(evt progress.Event) {
	if evt.TS.IsZero() {
		evt.TS = o.deps.Clock.Now()
	}
	o.deps.Progress.Emit(evt)
}
