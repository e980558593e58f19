package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/tik-regcrawler/internal/config"
	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

type mockCloser struct {
	mock.Mock
}

func (m *mockCloser) Close() error {
	args := m.Called()
	return args.Error(0)
}

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Run.DefaultDelay = 0
	return cfg
}

func newApp(t *testing.T, cfg config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, zap.NewNop(), Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a
}

func TestNewMemoryBackends(t *testing.T) {
	t.Parallel()

	a := newApp(t, baseConfig(t))
	assert.NotNil(t, a.Orchestrator)
	assert.NotNil(t, a.Selector)
	assert.Empty(t, a.Checks)
	assert.Equal(t,
		[]crawler.Strategy{crawler.StrategyPlain, crawler.StrategyAlternateProfile},
		a.Executor.Available(crawler.DefaultStrategies()),
	)
}

func TestNewSQLiteAndLocalBlobs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := baseConfig(t)
	cfg.Storage.Backend = config.BackendSQLite
	cfg.SQLite.Path = filepath.Join(dir, "regcrawler.db")
	cfg.Storage.Blob = config.BlobLocal
	cfg.Storage.LocalDir = filepath.Join(dir, "blobs")
	cfg.Automation.StealthRunner = config.RunnerExec
	cfg.Automation.ExecCommand = "/bin/false"

	a := newApp(t, cfg)
	require.Len(t, a.Checks, 1)
	assert.Equal(t, "sqlite", a.Checks[0].Name)
	require.NoError(t, a.Checks[0].Fn(context.Background()))
	assert.Contains(t, a.Executor.Available(crawler.DefaultStrategies()), crawler.StrategyStealthBrowser)
}

func TestNewConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{name: "unknown backend", mutate: func(c *config.Config) { c.Storage.Backend = "mongo" }, want: "unknown storage backend: mongo"},
		{name: "unknown blob", mutate: func(c *config.Config) { c.Storage.Blob = "s3" }, want: "unknown blob store: s3"},
		{name: "local blob without dir", mutate: func(c *config.Config) { c.Storage.Blob = config.BlobLocal }, want: "initialize local blob store"},
		{name: "postgres without dsn", mutate: func(c *config.Config) { c.Storage.Backend = config.BackendPostgres }, want: "initialize postgres"},
		{name: "missing keyword file", mutate: func(c *config.Config) { c.Relevance.KeywordsFile = "/nonexistent/keywords.yaml" }, want: "load keyword table"},
		{name: "unknown runner", mutate: func(c *config.Config) { c.Automation.BrowserRunner = "selenium" }, want: "unknown automation runner"},
		{
			name: "invalid source",
			mutate: func(c *config.Config) {
				c.Sources = []crawler.Source{{ID: "x", BaseURL: "not a url"}}
			},
			want: "build source catalog",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := baseConfig(t)
			tt.mutate(&cfg)
			a, err := New(context.Background(), cfg, nil, Options{Registerer: prometheus.NewRegistry()})
			require.ErrorContains(t, err, tt.want)
			assert.Nil(t, a)
		})
	}
}

func TestCloseReleasesInReverseOrder(t *testing.T) {
	t.Parallel()

	first := new(mockCloser)
	second := new(mockCloser)
	var order []string
	first.On("Close").Run(func(mock.Arguments) { order = append(order, "first") }).Return(nil).Once()
	second.On("Close").Run(func(mock.Arguments) { order = append(order, "second") }).Return(errors.New("boom")).Once()

	a := &App{Logger: zap.NewNop()}
	a.addCloser("first", first.Close)
	a.addCloser("second", second.Close)
	a.Close(context.Background())
	a.Close(context.Background())

	first.AssertExpectations(t)
	second.AssertExpectations(t)
	assert.Equal(t, []string{"second", "first"}, order)
}

const detailPage = `<html><head><title>Peraturan Menteri Nomor %d Tahun 2023 tentang Perlindungan Data Pribadi</title></head>
<body><h1>Peraturan Menteri Nomor %d Tahun 2023 tentang Perlindungan Data Pribadi</h1>
<p>Peraturan ini mengatur keamanan siber, data pribadi dan transformasi digital pada penyelenggara sistem elektronik.
Ketentuan mengenai pelindungan data pribadi berlaku bagi seluruh penyelenggara.</p></body></html>`

func TestRunSourceEndToEnd(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/peraturan", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>Daftar Peraturan</title></head><body><ul>
<li><a href="/detail/1">Peraturan 1</a></li>
<li><a href="/detail/2">Peraturan 2</a></li>
<li><a href="/tentang">Tentang</a></li>
</ul></body></html>`)
	})
	for i := 1; i <= 2; i++ {
		n := i
		mux.HandleFunc(fmt.Sprintf("/detail/%d", n), func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprintf(w, detailPage, n, n)
		})
	}
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	cfg := baseConfig(t)
	cfg.Sources = []crawler.Source{{
		ID:        "local",
		Name:      "Local JDIH",
		BaseURL:   ts.URL,
		Active:    true,
		Adapter:   "listing",
		Discovery: crawler.DiscoveryConfig{ListingURL: "/peraturan", LinkPattern: "/detail/"},
	}}
	a := newApp(t, cfg)

	summary, err := a.Orchestrator.RunSource(context.Background(), "local")
	require.NoError(t, err)
	assert.Equal(t, crawler.RunStatusSucceeded, summary.Status)
	assert.Equal(t, 2, summary.Candidates)
	assert.Equal(t, 2, summary.Processed)
	assert.Zero(t, summary.FetchFailures)

	stored, err := a.Runs.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, summary.Processed, stored.Processed)
}

func TestHandlerServesOpsAPI(t *testing.T) {
	t.Parallel()

	cfg := baseConfig(t)
	cfg.Sources = []crawler.Source{{ID: "off", BaseURL: "https://off.example.go.id"}}
	a := newApp(t, cfg)
	handler, _, q := a.Handler()
	t.Cleanup(q.Close)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sources/off/runs", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sources/missing/runs", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
