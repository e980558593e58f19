package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/queue/memory"
	"github.com/JakeFAU/tik-regcrawler/internal/source"
	storemem "github.com/JakeFAU/tik-regcrawler/internal/storage/memory"
)

type stubSubmitter struct {
	runs *storemem.RunStore
	err  error
}

func (s stubSubmitter) Submit(ctx context.Context, sourceID string) (crawler.RunSummary, error) {
	if s.err != nil {
		return crawler.RunSummary{}, s.err
	}
	run := crawler.RunSummary{RunID: "run-" + sourceID, SourceID: sourceID, Status: crawler.RunStatusQueued}
	return run, s.runs.SaveRun(ctx, run)
}

type fixture struct {
	server *Server
	runs   *storemem.RunStore
	health *storemem.HealthStore
}

func newFixture(t *testing.T, cfg Config, submitErr error, checks ...Check) fixture {
	t.Helper()
	catalog, err := source.NewCatalog([]crawler.Source{
		{ID: "jdih", Name: "JDIH", BaseURL: "https://jdih.example.go.id", Active: true},
	}, nil)
	require.NoError(t, err)
	runs := storemem.NewRunStore()
	health := storemem.NewHealthStore()
	srv := NewServer(cfg, stubSubmitter{runs: runs, err: submitErr}, catalog, runs, health, checks, nil)
	return fixture{server: srv, runs: runs, health: health}
}

func do(t *testing.T, h http.Handler, method, target string, header http.Header) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthzAndReadyz(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	rec, body := do(t, f.server.Handler(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])

	rec, _ = do(t, f.server.Handler(), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	failing := newFixture(t, Config{}, nil, Check{Name: "postgres", Fn: func(context.Context) error {
		return errors.New("connection refused")
	}})
	rec, body = do(t, failing.server.Handler(), http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, map[string]any{"postgres": "connection refused"}, body["failing"])
}

func TestSources(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	rec, body := do(t, f.server.Handler(), http.MethodGet, "/v1/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["sources"], 1)

	rec, body = do(t, f.server.Handler(), http.MethodGet, "/v1/sources/jdih", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "JDIH", body["name"])

	rec, _ = do(t, f.server.Handler(), http.MethodGet, "/v1/sources/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	rec, body := do(t, f.server.Handler(), http.MethodPost, "/v1/sources/jdih/runs", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, "run-jdih", body["run_id"])
	require.Equal(t, "/v1/runs/run-jdih", rec.Header().Get("Location"))

	rec, body = do(t, f.server.Handler(), http.MethodGet, "/v1/runs/run-jdih", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "queued", body["status"])

	rec, _ = do(t, f.server.Handler(), http.MethodGet, "/v1/runs/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitRunErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		code int
	}{
		{name: "unknown source", err: fmt.Errorf("load source: %w", crawler.ErrNotFound), code: http.StatusNotFound},
		{name: "inactive", err: crawler.ErrSourceInactive, code: http.StatusConflict},
		{name: "queue full", err: fmt.Errorf("enqueue run: %w", memory.ErrFull), code: http.StatusServiceUnavailable},
		{name: "internal", err: errors.New("boom"), code: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, Config{}, tt.err)
			rec, body := do(t, f.server.Handler(), http.MethodPost, "/v1/sources/jdih/runs", nil)
			require.Equal(t, tt.code, rec.Code)
			require.NotEmpty(t, body["error"])
		})
	}
}

func TestURLHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	target := "https://jdih.example.go.id/doc/1"
	h, err := f.health.GetOrCreate(context.Background(), target, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	h.Status = crawler.HealthBroken
	h.FailureCount = 3
	require.NoError(t, f.health.SaveHealth(context.Background(), h))

	for _, path := range []string{
		"/v1/health/urls/" + url.PathEscape(target),
		"/v1/health/urls/?url=" + url.QueryEscape(target),
	} {
		rec, body := do(t, f.server.Handler(), http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.Equal(t, "broken", body["status"])
	}

	rec, _ := do(t, f.server.Handler(), http.MethodGet, "/v1/health/urls/"+url.PathEscape("https://jdih.example.go.id/other"), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, f.server.Handler(), http.MethodGet, "/v1/health/urls/relative", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRepairScheme(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://a.go.id/x", repairScheme("https:/a.go.id/x"))
	require.Equal(t, "http://a.go.id", repairScheme("http:/a.go.id"))
	require.Equal(t, "https://a.go.id", repairScheme("https://a.go.id"))
}

func TestAPIKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{APIKey: "secret"}, nil)
	rec, _ := do(t, f.server.Handler(), http.MethodGet, "/v1/sources", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, f.server.Handler(), http.MethodGet, "/v1/sources", http.Header{"X-Api-Key": {"secret"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, f.server.Handler(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t, Config{}, nil)
	h := f.server.Handler()
	rec, _ := do(t, h, http.MethodGet, "/v1/sources/jdih", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodGet, "/v1/runs/does-not-exist", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	exposition := rec.Body.String()
	require.Contains(t, exposition, `http_request_duration_seconds_count{method="GET",route="/v1/sources/{source_id}"}`)
	require.Contains(t, exposition, `route="/v1/runs/{run_id}"`)
	require.NotContains(t, exposition, `route="/v1/sources/jdih"`)
	require.NotContains(t, exposition, "does-not-exist")
}
