// Package health tracks per-URL fetch outcomes as a small state machine and
// signals when a URL has failed often enough to warrant an alert.
package health

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/lockmap"
)

// DefaultNotifyThreshold is the failure count at which ShouldNotify turns true.
const DefaultNotifyThreshold = 3

// Monitor updates URLHealth records. Updates for the same URL are serialized.
type Monitor struct {
	store     crawler.HealthStore
	clock     crawler.Clock
	threshold int
	locks     *lockmap.Map
	logger    *zap.Logger
}

// NewMonitor wires a Monitor. threshold <= 0 selects DefaultNotifyThreshold.
func NewMonitor(store crawler.HealthStore, clock crawler.Clock, threshold int, logger *zap.Logger) *Monitor {
	if threshold <= 0 {
		threshold = DefaultNotifyThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		store:     store,
		clock:     clock,
		threshold: threshold,
		locks:     lockmap.New(),
		logger:    logger.Named("health"),
	}
}

// Threshold returns the configured notify threshold.
func (m *Monitor) Threshold() int {
	return m.threshold
}

// Observe returns the record for url, creating a pending one when first seen.
func (m *Monitor) Observe(ctx context.Context, url string) (crawler.URLHealth, error) {
	h, err := m.store.GetOrCreate(ctx, url, m.clock.Now())
	if err != nil {
		return crawler.URLHealth{}, fmt.Errorf("get or create url health: %w", err)
	}
	return h, nil
}

// RecordSuccess moves url to active and resets its failure count.
func (m *Monitor) RecordSuccess(ctx context.Context, url string, statusCode int) (crawler.URLHealth, error) {
	return m.update(ctx, url, func(h *crawler.URLHealth) {
		now := m.clock.Now()
		h.Status = crawler.HealthActive
		h.FailureCount = 0
		h.LastError = ""
		h.LastStatusCode = statusCode
		h.LastCheckedAt = &now
		h.LastSuccessAt = &now
	})
}

// RecordFailure moves url to broken and increments its failure count.
func (m *Monitor) RecordFailure(ctx context.Context, url string, statusCode int, errText string) (crawler.URLHealth, error) {
	return m.update(ctx, url, func(h *crawler.URLHealth) {
		now := m.clock.Now()
		h.Status = crawler.HealthBroken
		h.FailureCount++
		h.LastError = errText
		h.LastStatusCode = statusCode
		h.LastCheckedAt = &now
	})
}

// Record applies the outcome of raw. Blocked, timed-out, and network-error
// fetches all count as failures.
func (m *Monitor) Record(ctx context.Context, raw crawler.RawFetch) (crawler.URLHealth, error) {
	if raw.OK() {
		return m.RecordSuccess(ctx, raw.URL, raw.StatusCode)
	}
	errText := raw.Err
	if errText == "" {
		errText = string(raw.Status)
	}
	return m.RecordFailure(ctx, raw.URL, raw.StatusCode, errText)
}

// ShouldNotify reports whether h has reached the failure threshold.
func (m *Monitor) ShouldNotify(h crawler.URLHealth) bool {
	return h.FailureCount >= m.threshold
}

func (m *Monitor) update(ctx context.Context, url string, mutate func(*crawler.URLHealth)) (crawler.URLHealth, error) {
	unlock := m.locks.Lock(url)
	defer unlock()

	h, err := m.Observe(ctx, url)
	if err != nil {
		return crawler.URLHealth{}, err
	}
	prev := h.Status
	mutate(&h)
	if err := m.store.SaveHealth(ctx, h); err != nil {
		return crawler.URLHealth{}, fmt.Errorf("save url health: %w", err)
	}
	if prev != h.Status {
		m.logger.Debug("url health transition",
			zap.String("url", url),
			zap.String("from", string(prev)),
			zap.String("to", string(h.Status)),
			zap.Int("failure_count", h.FailureCount),
		)
	}
	return h, nil
}
