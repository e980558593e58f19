package selector

import (
	"time"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

// TrialResult aggregates the calibration outcome of one strategy.
type TrialResult struct {
	Strategy     crawler.Strategy `json:"strategy"`
	Attempts     int              `json:"attempts"`
	Successes    int              `json:"successes"`
	TotalElapsed time.Duration    `json:"total_elapsed"`
}

// SuccessRate is successes over attempts in [0, 1].
func (r TrialResult) SuccessRate() float64 {
	if r.Attempts == 0 {
		return 0
	}
	return float64(r.Successes) / float64(r.Attempts)
}

// AvgLatency is the mean attempt duration.
func (r TrialResult) AvgLatency() time.Duration {
	if r.Attempts == 0 {
		return 0
	}
	return r.TotalElapsed / time.Duration(r.Attempts)
}

// Score is successRate*100 - avgLatencySeconds*weight.
func (r TrialResult) Score(weight float64) float64 {
	return r.SuccessRate()*100 - r.AvgLatency().Seconds()*weight
}

// Best picks the winning strategy. Higher score wins; equal scores go to the
// higher success rate and then to the earlier candidate. A strategy with no
// successes never beats one that succeeded at least once. With no successes
// at all the first candidate is returned and ok is false.
func Best(results []TrialResult, weight float64) (crawler.Strategy, bool) {
	if len(results) == 0 {
		return "", false
	}
	best := -1
	for i, r := range results {
		if r.Successes == 0 {
			continue
		}
		if best < 0 || better(r, results[best], weight) {
			best = i
		}
	}
	if best < 0 {
		return results[0].Strategy, false
	}
	return results[best].Strategy, true
}

func better(a, b TrialResult, weight float64) bool {
	sa, sb := a.Score(weight), b.Score(weight)
	if sa != sb {
		return sa > sb
	}
	return a.SuccessRate() > b.SuccessRate()
}

// OrderCandidates moves preferred to the front, keeping the rest in order.
func OrderCandidates(candidates []crawler.Strategy, preferred crawler.Strategy) []crawler.Strategy {
	out := make([]crawler.Strategy, 0, len(candidates))
	found := false
	for _, c := range candidates {
		if c == preferred {
			found = true
		}
	}
	if found {
		out = append(out, preferred)
	}
	for _, c := range candidates {
		if c != preferred {
			out = append(out, c)
		}
	}
	return out
}
