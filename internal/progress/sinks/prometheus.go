package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/tik-regcrawler/internal/metrics"
	"github.com/JakeFAU/tik-regcrawler/internal/progress"
)

// PrometheusSink exports run lifecycle and per-site fetch counters.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsInFlight  prometheus.Gauge

	fetches    *prometheus.CounterVec
	fetchBytes *prometheus.CounterVec
	documents  *prometheus.CounterVec

	mu      sync.Mutex
	running map[string]struct{}
}

// NewPrometheusSink registers the sink's collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regcrawler_progress_runs_started_total",
			Help: "Source runs started.",
		}, []string{"source"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regcrawler_progress_runs_completed_total",
			Help: "Source runs completed partitioned by result.",
		}, []string{"source", "result"}),
		runsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "regcrawler_progress_runs_in_flight",
			Help: "Source runs currently executing.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regcrawler_progress_fetches_total",
			Help: "Fetch completions partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regcrawler_progress_fetch_bytes_total",
			Help: "Bytes downloaded per site.",
		}, []string{"site"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regcrawler_progress_documents_total",
			Help: "Document outcomes per site.",
		}, []string{"site", "outcome"}),
		running: make(map[string]struct{}),
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted, s.runsCompleted, s.runsInFlight, s.fetches, s.fetchBytes, s.documents,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.WithLabelValues(evt.SourceID).Inc()
			if s.track(evt.RunID, true) {
				s.runsInFlight.Inc()
			}
		case progress.StageRunDone, progress.StageRunError:
			result := "success"
			if evt.Stage == progress.StageRunError {
				result = "error"
			}
			s.runsCompleted.WithLabelValues(evt.SourceID, result).Inc()
			if s.track(evt.RunID, false) {
				s.runsInFlight.Dec()
			}
		case progress.StageFetchDone:
			site := metrics.SanitizeSite(evt.URL)
			class := evt.StatusClass
			if class == "" {
				class = progress.StatusOther
			}
			s.fetches.WithLabelValues(site, string(class)).Inc()
			if evt.Bytes > 0 {
				s.fetchBytes.WithLabelValues(site).Add(float64(evt.Bytes))
			}
		case progress.StageDocument:
			s.documents.WithLabelValues(metrics.SanitizeSite(evt.URL), evt.Outcome).Inc()
		}
	}
	return nil
}

// track records a run starting or finishing and reports whether the state changed.
func (s *PrometheusSink) track(runID string, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[runID]
	if start {
		s.running[runID] = struct{}{}
		return !ok
	}
	delete(s.running, runID)
	return ok
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
