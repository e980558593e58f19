// Package selector calibrates fetch strategies against known-good sample
// URLs and remembers the winner per source.
package selector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/metrics"
)

// Selection reasons reported with each decision.
const (
	ReasonCached  = "cached"
	ReasonTrial   = "trial"
	ReasonDefault = "default"
	ReasonDrift   = "drift"
)

// Config tunes calibration.
type Config struct {
	Trials          int           `mapstructure:"trials"`
	TrialPause      time.Duration `mapstructure:"trial_pause"`
	LatencyWeight   float64       `mapstructure:"latency_weight"`
	RevalidateAfter time.Duration `mapstructure:"revalidate_after"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the stock calibration settings.
func DefaultConfig() Config {
	return Config{
		Trials:          2,
		TrialPause:      time.Second,
		LatencyWeight:   1.5,
		RevalidateAfter: 24 * time.Hour,
		Timeout:         30 * time.Second,
	}
}

// Decision is the outcome of SelectForSource.
type Decision struct {
	Strategy crawler.Strategy
	Reason   string
	Results  []TrialResult
}

type availability interface {
	Available(candidates []crawler.Strategy) []crawler.Strategy
}

// Selector picks the strategy a run should use.
type Selector struct {
	cfg    Config
	exec   crawler.StrategyExecutor
	cache  *Cache
	clock  crawler.Clock
	logger *zap.Logger
	pause  func(ctx context.Context, d time.Duration) error
}

// New builds a Selector. cache may be nil to disable reuse across runs.
func New(cfg Config, exec crawler.StrategyExecutor, cache *Cache, clock crawler.Clock, logger *zap.Logger) *Selector {
	def := DefaultConfig()
	if cfg.Trials <= 0 {
		cfg.Trials = def.Trials
	}
	if cfg.LatencyWeight <= 0 {
		cfg.LatencyWeight = def.LatencyWeight
	}
	if cfg.RevalidateAfter <= 0 {
		cfg.RevalidateAfter = def.RevalidateAfter
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		cfg:    cfg,
		exec:   exec,
		cache:  cache,
		clock:  clock,
		logger: logger.Named("selector"),
		pause:  sleep,
	}
}

// SelectBestStrategy trials every candidate over sampleURLs and returns the
// winner. Without sample URLs the first candidate is returned untested.
func (s *Selector) SelectBestStrategy(ctx context.Context, candidates []crawler.Strategy, sampleURLs []string) (crawler.Strategy, error) {
	strategy, _, err := s.selectWith(ctx, candidates, sampleURLs, nil)
	return strategy, err
}

// Trial runs the calibration rounds and returns per-strategy results in
// candidate order. Rounds are sequential so latency figures stay comparable.
func (s *Selector) Trial(ctx context.Context, candidates []crawler.Strategy, sampleURLs []string, headers http.Header) ([]TrialResult, error) {
	results := make([]TrialResult, len(candidates))
	for i, c := range candidates {
		results[i].Strategy = c
	}
	for round := 0; round < s.cfg.Trials; round++ {
		if round > 0 {
			if err := s.pause(ctx, s.cfg.TrialPause); err != nil {
				return results, err
			}
		}
		for i, strategy := range candidates {
			for _, u := range sampleURLs {
				if err := ctx.Err(); err != nil {
					return results, fmt.Errorf("calibration canceled: %w", err)
				}
				raw := s.exec.Execute(ctx, crawler.FetchRequest{URL: u, Headers: headers, Timeout: s.cfg.Timeout}, strategy)
				results[i].Attempts++
				results[i].TotalElapsed += raw.Elapsed
				if raw.OK() {
					results[i].Successes++
				}
			}
		}
	}
	return results, nil
}

func (s *Selector) selectWith(ctx context.Context, candidates []crawler.Strategy, sampleURLs []string, headers http.Header) (crawler.Strategy, []TrialResult, error) {
	if len(candidates) == 0 {
		return "", nil, errors.New("no candidate strategies")
	}
	if len(sampleURLs) == 0 {
		return candidates[0], nil, nil
	}
	results, err := s.Trial(ctx, candidates, sampleURLs, headers)
	if err != nil {
		return "", results, err
	}
	winner, ok := Best(results, s.cfg.LatencyWeight)
	for _, r := range results {
		s.logger.Debug("strategy trial",
			zap.String("strategy", string(r.Strategy)),
			zap.Int("successes", r.Successes),
			zap.Int("attempts", r.Attempts),
			zap.Duration("avg_latency", r.AvgLatency()),
			zap.Float64("score", r.Score(s.cfg.LatencyWeight)),
		)
	}
	if !ok {
		s.logger.Warn("no strategy succeeded during calibration", zap.String("fallback", string(winner)))
	}
	return winner, results, nil
}

// Candidates resolves the candidate list for src, restricted to strategies
// the executor can serve.
func (s *Selector) Candidates(src crawler.Source) []crawler.Strategy {
	candidates := src.Strategies
	if len(candidates) == 0 {
		candidates = crawler.DefaultStrategies()
	}
	if a, ok := s.exec.(availability); ok {
		candidates = a.Available(candidates)
	}
	return candidates
}

// SelectForSource returns the strategy a run of src should use. A cached
// choice younger than RevalidateAfter is reused; an older one is tried first.
func (s *Selector) SelectForSource(ctx context.Context, src crawler.Source) (Decision, error) {
	candidates := s.Candidates(src)
	if len(candidates) == 0 {
		return Decision{}, fmt.Errorf("select strategy for %s: no available strategies", src.ID)
	}

	if s.cache != nil {
		choice, ok, err := s.cache.Get(ctx, src.ID)
		if err != nil {
			s.logger.Warn("strategy cache lookup failed", zap.String("source_id", src.ID), zap.Error(err))
		}
		if ok && contains(candidates, choice.Strategy) {
			if s.clock.Now().Sub(choice.SelectedAt) < s.cfg.RevalidateAfter {
				return s.decide(src.ID, Decision{Strategy: choice.Strategy, Reason: ReasonCached}), nil
			}
			candidates = OrderCandidates(candidates, choice.Strategy)
		}
	}

	if len(src.SampleURLs) == 0 {
		return s.decide(src.ID, Decision{Strategy: candidates[0], Reason: ReasonDefault}), nil
	}
	winner, results, err := s.selectWith(ctx, candidates, src.SampleURLs, src.Headers())
	if err != nil {
		return Decision{}, fmt.Errorf("select strategy for %s: %w", src.ID, err)
	}
	decision := Decision{Strategy: winner, Reason: ReasonTrial, Results: results}
	score := 0.0
	for _, r := range results {
		if r.Strategy == winner {
			score = r.Score(s.cfg.LatencyWeight)
		}
	}
	s.store(ctx, src.ID, Choice{Strategy: winner, SelectedAt: s.clock.Now(), Score: score})
	return s.decide(src.ID, decision), nil
}

// Remember records a strategy switch made mid-run.
func (s *Selector) Remember(ctx context.Context, sourceID string, strategy crawler.Strategy) {
	metrics.ObserveStrategySelection(sourceID, string(strategy), ReasonDrift)
	s.store(ctx, sourceID, Choice{Strategy: strategy, SelectedAt: s.clock.Now()})
}

func (s *Selector) store(ctx context.Context, sourceID string, choice Choice) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, sourceID, choice); err != nil {
		s.logger.Warn("strategy cache write failed", zap.String("source_id", sourceID), zap.Error(err))
	}
}

func (s *Selector) decide(sourceID string, d Decision) Decision {
	metrics.ObserveStrategySelection(sourceID, string(d.Strategy), d.Reason)
	s.logger.Info("strategy selected",
		zap.String("source_id", sourceID),
		zap.String("strategy", string(d.Strategy)),
		zap.String("reason", d.Reason),
	)
	return d
}

func contains(list []crawler.Strategy, s crawler.Strategy) bool {
	for _, c := range list {
		if c == s {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("trial pause: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
