package orchestrator

import (
	"time"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/relevance"
)

// recentWindow is the number of fetch outcomes the delay scale looks at.
const recentWindow = 10

// RunState is the tuning of one run: the threshold in force, the delay
// scale, the selected strategy and the counters that drive them. It is owned
// by a single run and is not safe for concurrent use.
type RunState struct {
	Threshold  int
	BaseDelay  time.Duration
	DelayScale int
	Strategy   crawler.Strategy

	Processed          int
	Scored             int
	Relevant           int
	Saved              int
	SavedRelevant      int
	Duplicates         int
	FetchFailures      int
	ExtractionFailures int

	policy         relevance.ThresholdPolicy
	windowScored   int
	windowRelevant int
	recent         []bool
}

// NewRunState starts a run at the given threshold, base delay and strategy.
func NewRunState(threshold int, baseDelay time.Duration, strategy crawler.Strategy, policy relevance.ThresholdPolicy) *RunState {
	return &RunState{
		Threshold:  threshold,
		BaseDelay:  baseDelay,
		DelayScale: 1,
		Strategy:   strategy,
		policy:     policy,
		recent:     make([]bool, 0, recentWindow),
	}
}

// RecordFetch notes a fetch outcome and rescales the delay: ×1 while at least
// 80% of recent fetches succeed, ×2 down to 50%, ×4 below that.
func (s *RunState) RecordFetch(ok bool) {
	s.Processed++
	if !ok {
		s.FetchFailures++
	}
	if len(s.recent) == recentWindow {
		copy(s.recent, s.recent[1:])
		s.recent = s.recent[:recentWindow-1]
	}
	s.recent = append(s.recent, ok)
	successes := 0
	for _, r := range s.recent {
		if r {
			successes++
		}
	}
	ratio := float64(successes) / float64(len(s.recent))
	switch {
	case ratio >= 0.8:
		s.DelayScale = 1
	case ratio >= 0.5:
		s.DelayScale = 2
	default:
		s.DelayScale = 4
	}
}

// SuccessRatio is the share of recent fetches that succeeded (1 with no history).
func (s *RunState) SuccessRatio() float64 {
	if len(s.recent) == 0 {
		return 1
	}
	n := 0
	for _, r := range s.recent {
		if r {
			n++
		}
	}
	return float64(n) / float64(len(s.recent))
}

// Delay is the pause before the next request.
func (s *RunState) Delay() time.Duration {
	return s.BaseDelay * time.Duration(s.DelayScale)
}

// RecordScore counts a scored document and, after each full window, lets the
// threshold policy lower the threshold. It never rises mid-run.
func (s *RunState) RecordScore(relevant bool) {
	s.Scored++
	s.windowScored++
	if relevant {
		s.Relevant++
		s.windowRelevant++
	}
	window := s.policy.Window
	if window <= 0 {
		window = 1
	}
	if s.windowScored < window {
		return
	}
	s.Threshold = s.policy.Next(s.Threshold, s.windowScored, s.windowRelevant)
	s.windowScored, s.windowRelevant = 0, 0
}

// RecordSave counts a save attempt outcome.
func (s *RunState) RecordSave(created, relevant bool) {
	switch {
	case !created:
		s.Duplicates++
	case relevant:
		s.Saved++
		s.SavedRelevant++
	default:
		s.Saved++
	}
}

// TargetReached reports whether target relevant documents have been saved.
// A non-positive target never stops the run.
func (s *RunState) TargetReached(target int) bool {
	return target > 0 && s.SavedRelevant >= target
}
