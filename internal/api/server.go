package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/metrics"
	"github.com/JakeFAU/tik-regcrawler/internal/queue/memory"
)

// Submitter queues a run for a source.
type Submitter interface {
	Submit(ctx context.Context, sourceID string) (crawler.RunSummary, error)
}

// HealthReader looks up URL health without creating records.
type HealthReader interface {
	GetHealth(ctx context.Context, url string) (crawler.URLHealth, error)
}

// Check is a named readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Config controls the server.
type Config struct {
	APIKey         string
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router    chi.Router
	submitter Submitter
	sources   crawler.SourceStore
	runs      crawler.RunStore
	health    HealthReader
	checks    []Check
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	cfg Config,
	submitter Submitter,
	sources crawler.SourceStore,
	runs crawler.RunStore,
	health HealthReader,
	checks []Check,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	s := &Server{
		submitter: submitter,
		sources:   sources,
		runs:      runs,
		health:    health,
		checks:    checks,
		logger:    logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Get("/sources", s.listSources)
		r.Get("/sources/{source_id}", s.getSource)
		r.Post("/sources/{source_id}/runs", s.submitRun)
		r.Get("/runs/{run_id}", s.getRun)
		r.Get("/health/urls/*", s.getURLHealth)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	failing := map[string]string{}
	for _, c := range s.checks {
		if err := c.Fn(ctx); err != nil {
			failing[c.Name] = err.Error()
		}
	}
	if len(failing) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failing": failing})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.ListSources(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.sources.GetSource(r.Context(), chi.URLParam(r, "source_id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	summary, err := s.submitter.Submit(r.Context(), chi.URLParam(r, "source_id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Location", "/v1/runs/"+summary.RunID)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": summary.RunID, "status": string(summary.Status)})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.GetRun(r.Context(), chi.URLParam(r, "run_id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// getURLHealth takes the monitored URL from the path remainder (escaped or
// not) or, failing that, from the url query parameter.
func (s *Server) getURLHealth(w http.ResponseWriter, r *http.Request) {
	target, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid url escape")
		return
	}
	if target == "" {
		target = r.URL.Query().Get("url")
	}
	target = repairScheme(target)
	if u, err := url.Parse(target); err != nil || !u.IsAbs() {
		writeError(w, http.StatusBadRequest, "an absolute url is required")
		return
	}
	h, err := s.health.GetHealth(r.Context(), target)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

// repairScheme restores the double slash that path cleaning collapses in
// "https:/host".
func repairScheme(raw string) string {
	for _, scheme := range []string{"https:/", "http:/"} {
		if strings.HasPrefix(raw, scheme) && !strings.HasPrefix(raw, scheme+"/") {
			return scheme + "/" + strings.TrimPrefix(raw, scheme)
		}
	}
	return raw
}

// fail maps domain errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, crawler.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, crawler.ErrSourceInactive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, memory.ErrFull):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
