package automation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// navigatorMask hides the most common headless tells before any page script runs.
const navigatorMask = `(() => {
  Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
  Object.defineProperty(navigator, 'languages', {get: () => ['id-ID', 'id', 'en-US', 'en']});
  Object.defineProperty(navigator, 'plugins', {get: () => [1, 2, 3, 4, 5]});
  Object.defineProperty(navigator, 'hardwareConcurrency', {get: () => 8});
  Object.defineProperty(navigator, 'deviceMemory', {get: () => 8});
  window.chrome = window.chrome || {runtime: {}};
  const query = window.navigator.permissions && window.navigator.permissions.query;
  if (query) {
    window.navigator.permissions.query = (p) => p.name === 'notifications'
      ? Promise.resolve({state: Notification.permission})
      : query(p);
  }
})();`

// ChromedpConfig controls the chromedp runner.
type ChromedpConfig struct {
	MaxParallel int
	// SettleDelay is how long to wait after the body is ready.
	SettleDelay time.Duration
}

// ChromedpRunner implements Runner with headless Chrome via chromedp.
type ChromedpRunner struct {
	cfg         ChromedpConfig
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp starts an allocator shared by all navigations.
func NewChromedp(cfg ChromedpConfig) (*ChromedpRunner, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.Flag("disable-infobars", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &ChromedpRunner{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (r *ChromedpRunner) Close() {
	r.allocCancel()
}

// Run navigates, scrolls and returns the rendered DOM.
func (r *ChromedpRunner) Run(ctx context.Context, req Request) (Result, error) {
	if err := r.acquire(ctx); err != nil {
		return Result{}, err
	}
	defer r.release()

	if err := sleepCtx(ctx, time.Duration(req.PreNavigationDelayMs)*time.Millisecond); err != nil {
		return Result{}, fmt.Errorf("pre-navigation delay: %w", err)
	}

	taskCtx, taskCancel := chromedp.NewContext(r.allocator)
	defer taskCancel()
	timeout := req.Timeout()
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	taskCtx, cancel := context.WithTimeout(taskCtx, timeout)
	defer cancel()
	// Follow the caller's cancellation as well as our own deadline.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	var html, finalURL string
	err := chromedp.Run(taskCtx, r.actions(req, &html, &finalURL)...)
	elapsed := time.Since(start)
	if err != nil {
		res := Result{ElapsedMs: elapsed.Milliseconds(), Error: err.Error()}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			res.TimedOut = true
		}
		return res, nil
	}

	status, responseURL := meta.snapshotWithFallbacks(req.URL, finalURL)
	return Result{
		OK:         true,
		StatusCode: status,
		FinalURL:   responseURL,
		HTML:       html,
		ElapsedMs:  elapsed.Milliseconds(),
	}, nil
}

func (r *ChromedpRunner) actions(req Request, html, finalURL *string) []chromedp.Action {
	actions := []chromedp.Action{
		setupAction(req),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	for i := 0; i < req.ScrollSteps; i++ {
		actions = append(actions,
			chromedp.Evaluate(`window.scrollBy(0, Math.floor(window.innerHeight * 0.8))`, nil),
			chromedp.Sleep(scrollPause(req.Stealth, i)),
		)
	}
	actions = append(actions,
		chromedp.Sleep(r.cfg.SettleDelay),
		chromedp.Location(finalURL),
		chromedp.OuterHTML("html", html, chromedp.ByQuery),
	)
	return actions
}

func setupAction(req Request) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if req.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(req.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(req.Headers) > 0 {
			headers := network.Headers{}
			for k, v := range req.Headers {
				headers[k] = v
			}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		if req.Viewport.Width > 0 && req.Viewport.Height > 0 {
			mobile := req.Viewport.Width < 600
			if err := emulation.SetDeviceMetricsOverride(int64(req.Viewport.Width), int64(req.Viewport.Height), 1, mobile).Do(ctx); err != nil {
				return fmt.Errorf("set viewport: %w", err)
			}
		}
		if req.Stealth {
			if _, err := page.AddScriptToEvaluateOnNewDocument(navigatorMask).Do(ctx); err != nil {
				return fmt.Errorf("install navigator mask: %w", err)
			}
		}
		return nil
	})
}

// scrollPause varies the gap between scroll steps in stealth mode.
func scrollPause(stealth bool, step int) time.Duration {
	if !stealth {
		return 200 * time.Millisecond
	}
	return time.Duration(250+(step*137)%400) * time.Millisecond
}

func (r *ChromedpRunner) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (r *ChromedpRunner) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	// First document response is the navigation; later ones are frames.
	if m.status == 0 {
		m.status = int(event.Response.Status)
		m.url = event.Response.URL
	}
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()
	switch {
	case finalURL != "":
		url = finalURL
	case url != "":
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep %s: %w", d, ctx.Err())
	case <-t.C:
		return nil
	}
}
