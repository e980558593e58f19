// Package automation drives real browsers for the automated-browser and
// stealth-automated-browser strategies. The core only sees the Runner
// contract: a JSON-tagged Request in, a JSON-tagged Result out.
package automation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/fetcher"
)

// Viewport is the browser window size.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Request describes one browser navigation.
type Request struct {
	URL                  string            `json:"url"`
	Stealth              bool              `json:"stealth"`
	UserAgent            string            `json:"user_agent,omitempty"`
	Headers              map[string]string `json:"headers,omitempty"`
	Viewport             Viewport          `json:"viewport"`
	TimeoutMs            int64             `json:"timeout_ms"`
	ScrollSteps          int               `json:"scroll_steps"`
	PreNavigationDelayMs int64             `json:"pre_navigation_delay_ms"`
}

// Timeout returns the request timeout as a duration.
func (r Request) Timeout() time.Duration {
	return time.Duration(r.TimeoutMs) * time.Millisecond
}

// Result is what a runner reports back.
type Result struct {
	OK         bool   `json:"ok"`
	StatusCode int    `json:"status_code"`
	FinalURL   string `json:"final_url"`
	HTML       string `json:"html"`
	ElapsedMs  int64  `json:"elapsed_ms"`
	Error      string `json:"error,omitempty"`
	TimedOut   bool   `json:"timed_out,omitempty"`
}

// Runner executes browser navigations.
type Runner interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// Config tunes the Fetcher adapter.
type Config struct {
	Stealth     bool
	Timeout     time.Duration
	ScrollSteps int
	// MaxPreNavigationDelay bounds the random pause before navigating.
	MaxPreNavigationDelay time.Duration
	Profiles              []fetcher.Profile
}

// Fetcher adapts a Runner to crawler.Fetcher.
type Fetcher struct {
	cfg     Config
	runner  Runner
	rotator *fetcher.Rotator
}

// NewFetcher wraps runner for use by the strategy executor.
func NewFetcher(cfg Config, runner Runner) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.ScrollSteps <= 0 {
		cfg.ScrollSteps = 3
	}
	return &Fetcher{cfg: cfg, runner: runner, rotator: fetcher.NewRotator(cfg.Profiles)}
}

// Fetch implements crawler.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	req := f.buildRequest(request)
	res, err := f.runner.Run(ctx, req)
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("run automation: %w", err)
	}
	if res.TimedOut {
		return crawler.FetchResponse{}, fmt.Errorf("automation %s: %w", res.Error, context.DeadlineExceeded)
	}
	if !res.OK && res.HTML == "" {
		msg := res.Error
		if msg == "" {
			msg = "automation returned no content"
		}
		return crawler.FetchResponse{}, errors.New(msg)
	}
	finalURL := res.FinalURL
	if finalURL == "" {
		finalURL = request.URL
	}
	status := res.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return crawler.FetchResponse{
		URL:        finalURL,
		StatusCode: status,
		Headers:    http.Header{},
		Body:       []byte(res.HTML),
		Duration:   time.Duration(res.ElapsedMs) * time.Millisecond,
	}, nil
}

func (f *Fetcher) buildRequest(request crawler.FetchRequest) Request {
	profile := f.rotator.Next()
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	req := Request{
		URL:         request.URL,
		Stealth:     f.cfg.Stealth,
		UserAgent:   profile.UserAgent,
		Headers:     map[string]string{"Accept-Language": profile.AcceptLanguage},
		Viewport:    Viewport{Width: profile.ViewportWidth, Height: profile.ViewportHeight},
		TimeoutMs:   timeout.Milliseconds(),
		ScrollSteps: f.cfg.ScrollSteps,
	}
	for key, values := range request.Headers {
		if len(values) > 0 {
			req.Headers[key] = values[0]
		}
	}
	if f.cfg.MaxPreNavigationDelay > 0 {
		req.PreNavigationDelayMs = rand.Int64N(f.cfg.MaxPreNavigationDelay.Milliseconds() + 1) //nolint:gosec // timing jitter
	}
	if f.cfg.Stealth {
		req.Viewport = jitterViewport(req.Viewport)
	}
	return req
}

// jitterViewport nudges the window size so repeated visits do not share an
// exact fingerprint.
func jitterViewport(v Viewport) Viewport {
	if v.Width == 0 || v.Height == 0 {
		v = Viewport{Width: 1366, Height: 768}
	}
	v.Width += rand.IntN(41) - 20  //nolint:gosec // fingerprint jitter
	v.Height += rand.IntN(41) - 20 //nolint:gosec // fingerprint jitter
	return v
}
