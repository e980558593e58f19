package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RodConfig controls the rod runner.
type RodConfig struct {
	// RemoteURL connects to an existing browser instead of launching one.
	RemoteURL string
	// BinPath overrides the Chrome binary used by the launcher.
	BinPath string
}

// RodRunner implements Runner with go-rod. Stealth requests open pages
// through go-rod/stealth, which patches the navigator fingerprint.
type RodRunner struct {
	cfg RodConfig

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// NewRod builds a runner. The browser is launched on first use.
func NewRod(cfg RodConfig) *RodRunner {
	return &RodRunner{cfg: cfg}
}

func (r *RodRunner) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}
	wsURL := r.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		if r.cfg.BinPath != "" {
			l = l.Bin(r.cfg.BinPath)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		wsURL = u
		r.lnch = l
	}
	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	r.browser = b
	return b, nil
}

// Close shuts the browser down.
func (r *RodRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.lnch != nil {
		r.lnch.Cleanup()
		r.lnch = nil
	}
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// Run opens a tab, navigates, scrolls and returns the rendered DOM.
func (r *RodRunner) Run(ctx context.Context, req Request) (Result, error) {
	b, err := r.connect()
	if err != nil {
		return Result{}, err
	}
	if err := sleepCtx(ctx, time.Duration(req.PreNavigationDelayMs)*time.Millisecond); err != nil {
		return Result{}, fmt.Errorf("pre-navigation delay: %w", err)
	}

	var pg *rod.Page
	if req.Stealth {
		pg, err = stealth.Page(b)
	} else {
		pg, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return Result{}, fmt.Errorf("open tab: %w", err)
	}
	defer func() { _ = pg.Close() }()

	timeout := req.Timeout()
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	p := pg.Context(navCtx)

	start := time.Now()
	html, finalURL, status, err := r.navigate(p, req)
	elapsed := time.Since(start)
	if err != nil {
		res := Result{ElapsedMs: elapsed.Milliseconds(), Error: err.Error()}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			res.TimedOut = true
		}
		return res, nil
	}
	if finalURL == "" {
		finalURL = req.URL
	}
	return Result{
		OK:         true,
		StatusCode: status,
		FinalURL:   finalURL,
		HTML:       html,
		ElapsedMs:  elapsed.Milliseconds(),
	}, nil
}

func (r *RodRunner) navigate(p *rod.Page, req Request) (string, string, int, error) {
	if req.UserAgent != "" {
		if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: req.UserAgent}); err != nil {
			return "", "", 0, fmt.Errorf("set user-agent: %w", err)
		}
	}
	if len(req.Headers) > 0 {
		dict := make([]string, 0, len(req.Headers)*2)
		for k, v := range req.Headers {
			dict = append(dict, k, v)
		}
		if _, err := p.SetExtraHeaders(dict); err != nil {
			return "", "", 0, fmt.Errorf("set extra headers: %w", err)
		}
	}
	if req.Viewport.Width > 0 && req.Viewport.Height > 0 {
		if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             req.Viewport.Width,
			Height:            req.Viewport.Height,
			DeviceScaleFactor: 1,
			Mobile:            req.Viewport.Width < 600,
		}); err != nil {
			return "", "", 0, fmt.Errorf("set viewport: %w", err)
		}
	}

	var status atomic.Int64
	wait := p.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument {
			return false
		}
		status.CompareAndSwap(0, int64(e.Response.Status))
		return true
	})
	go wait()

	if err := p.Navigate(req.URL); err != nil {
		return "", "", 0, fmt.Errorf("navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", "", 0, fmt.Errorf("wait load: %w", err)
	}
	for i := 0; i < req.ScrollSteps; i++ {
		if err := p.Mouse.Scroll(0, float64(req.Viewport.Height)*0.8, 4); err != nil {
			return "", "", 0, fmt.Errorf("scroll: %w", err)
		}
		if err := sleepCtx(p.GetContext(), scrollPause(req.Stealth, i)); err != nil {
			return "", "", 0, fmt.Errorf("scroll: %w", err)
		}
	}

	res, err := p.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", "", 0, fmt.Errorf("read dom: %w", err)
	}
	info, err := p.Info()
	finalURL := ""
	if err == nil {
		finalURL = info.URL
	}
	code := int(status.Load())
	if code == 0 {
		code = 200
	}
	return res.Value.Str(), finalURL, code, nil
}
