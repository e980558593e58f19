package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/tik-regcrawler/internal/metrics"
)

// pacer keeps a gap of at least the current delay between the end of one
// request to a source and the start of the next. The first request passes
// immediately.
type pacer struct {
	sourceID string
	limiter  *rate.Limiter
	delay    time.Duration
}

func newPacer(sourceID string, delay time.Duration) *pacer {
	return &pacer{sourceID: sourceID, limiter: rate.NewLimiter(limitFor(delay), 1), delay: delay}
}

func limitFor(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}

func (p *pacer) setDelay(delay time.Duration) {
	if delay == p.delay {
		return
	}
	p.delay = delay
	p.limiter.SetLimit(limitFor(delay))
}

// Wait blocks until the next request may go out, using delay as the gap.
// It returns early with an error when ctx is done.
func (p *pacer) Wait(ctx context.Context, delay time.Duration) error {
	p.setDelay(delay)
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pace %s: %w", p.sourceID, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(p.sourceID, waited)
	}
	return nil
}

// Done marks the end of a request. The token refilled while the request was
// in flight is discarded, so the next Wait sleeps the full delay from now.
func (p *pacer) Done() {
	p.limiter = rate.NewLimiter(limitFor(p.delay), 1)
	p.limiter.Allow()
}
