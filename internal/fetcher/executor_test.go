package fetcher

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

type fetchFunc func(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error)

func (f fetchFunc) Fetch(ctx context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	return f(ctx, req)
}

func respond(code int, body string) fetchFunc {
	return func(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
		return crawler.FetchResponse{URL: req.URL, StatusCode: code, Body: []byte(body), Headers: http.Header{}}, nil
	}
}

const okPage = `<html><head><title>Peraturan Menteri Nomor 5</title></head><body><h1>Peraturan</h1><p>isi</p></body></html>`

func TestExecuteClassifiesOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		transport crawler.Fetcher
		status    crawler.FetchStatus
		code      int
	}{
		{name: "ok", transport: respond(200, okPage), status: crawler.FetchStatusOK, code: 200},
		{name: "forbidden", transport: respond(403, okPage), status: crawler.FetchStatusBlocked, code: 403},
		{name: "rate limited", transport: respond(429, ""), status: crawler.FetchStatusBlocked, code: 429},
		{name: "server error", transport: respond(500, "<html><body>oops, something broke on our side</body></html>"), status: crawler.FetchStatusNetworkError, code: 500},
		{name: "challenge 503", transport: respond(503, `<html><head><title>Just a moment...</title></head><body></body></html>`), status: crawler.FetchStatusBlocked, code: 503},
		{name: "challenge 200", transport: respond(200, `<html><body><div id="cf-browser-verification"></div></body></html>`), status: crawler.FetchStatusBlocked, code: 200},
		{name: "empty body", transport: respond(200, ""), status: crawler.FetchStatusNetworkError, code: 200},
		{
			name: "network error",
			transport: fetchFunc(func(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error) {
				return crawler.FetchResponse{}, errors.New("connection refused")
			}),
			status: crawler.FetchStatusNetworkError,
		},
		{
			name: "deadline",
			transport: fetchFunc(func(ctx context.Context, _ crawler.FetchRequest) (crawler.FetchResponse, error) {
				<-ctx.Done()
				return crawler.FetchResponse{}, ctx.Err()
			}),
			status: crawler.FetchStatusTimeout,
		},
		{
			name: "panic",
			transport: fetchFunc(func(context.Context, crawler.FetchRequest) (crawler.FetchResponse, error) {
				panic("driver crashed")
			}),
			status: crawler.FetchStatusNetworkError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ex := NewExecutor(Config{Timeout: 50 * time.Millisecond}, nil, nil)
			ex.Register(crawler.StrategyPlain, tt.transport)

			raw := ex.Execute(context.Background(), crawler.FetchRequest{URL: "https://example.gov/doc/1"}, crawler.StrategyPlain)
			require.Equal(t, tt.status, raw.Status, raw.Err)
			require.Equal(t, tt.code, raw.StatusCode)
			require.Equal(t, crawler.StrategyPlain, raw.Strategy)
			require.Equal(t, "https://example.gov/doc/1", raw.URL)
			if tt.status != crawler.FetchStatusOK {
				require.NotEmpty(t, raw.Err)
			}
		})
	}
}

func TestExecuteUnknownStrategy(t *testing.T) {
	t.Parallel()

	ex := NewExecutor(Config{}, nil, nil)
	raw := ex.Execute(context.Background(), crawler.FetchRequest{URL: "https://x"}, crawler.StrategyStealthBrowser)
	require.Equal(t, crawler.FetchStatusNetworkError, raw.Status)
	require.Contains(t, raw.Err, "not available")
}

func TestAvailable(t *testing.T) {
	t.Parallel()

	ex := NewExecutor(Config{}, nil, nil)
	ex.Register(crawler.StrategyPlain, respond(200, okPage))
	ex.Register(crawler.StrategyStealthBrowser, respond(200, okPage))
	require.Equal(t,
		[]crawler.Strategy{crawler.StrategyPlain, crawler.StrategyStealthBrowser},
		ex.Available(crawler.DefaultStrategies()),
	)
}

func TestBlockDetector(t *testing.T) {
	t.Parallel()

	d := NewBlockDetector()
	tests := []struct {
		name    string
		body    string
		blocked bool
	}{
		{name: "empty", body: "", blocked: false},
		{name: "regular", body: okPage, blocked: false},
		{name: "cloudflare title", body: `<html><head><title>Attention Required! | Cloudflare</title></head></html>`, blocked: true},
		{name: "incapsula", body: `<html><body><iframe src="/_Incapsula_Resource?x=1"></iframe></body></html>`, blocked: true},
		{name: "short captcha page", body: `<html><body><div class="g-recaptcha"></div>Verifikasi</body></html>`, blocked: true},
		{
			name:    "long page with captcha form",
			body:    "<html><body><p>" + strings.Repeat("Isi peraturan yang panjang. ", 100) + `</p><div class="g-recaptcha"></div></body></html>`,
			blocked: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			blocked, _ := d.Detect([]byte(tt.body))
			require.Equal(t, tt.blocked, blocked)
		})
	}
}

func TestRotatorCyclesPool(t *testing.T) {
	t.Parallel()

	r := NewRotator(MobileProfiles)
	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		seen[r.Next().Name]++
	}
	require.Equal(t, map[string]int{"chrome-android": 2, "safari-iphone": 2}, seen)

	h := MobileProfiles[0].Headers()
	require.Equal(t, "?1", h.Get("Sec-CH-UA-Mobile"))
	require.Contains(t, h.Get("Accept-Language"), "id-ID")
}
