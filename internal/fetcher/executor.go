package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/metrics"
)

// DefaultTimeout bounds a single strategy attempt.
const DefaultTimeout = 45 * time.Second

// Config controls the executor.
type Config struct {
	Timeout time.Duration
}

// Executor dispatches a fetch to the transport registered for a strategy and
// classifies the outcome. It implements crawler.StrategyExecutor.
type Executor struct {
	cfg        Config
	transports map[crawler.Strategy]crawler.Fetcher
	detector   *BlockDetector
	logger     *zap.Logger
}

// NewExecutor builds an Executor. A nil detector uses NewBlockDetector.
func NewExecutor(cfg Config, detector *BlockDetector, logger *zap.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if detector == nil {
		detector = NewBlockDetector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		cfg:        cfg,
		transports: make(map[crawler.Strategy]crawler.Fetcher),
		detector:   detector,
		logger:     logger.Named("executor"),
	}
}

// Register binds a transport to a strategy.
func (e *Executor) Register(strategy crawler.Strategy, f crawler.Fetcher) {
	e.transports[strategy] = f
}

// Available filters candidates down to strategies with a registered transport.
func (e *Executor) Available(candidates []crawler.Strategy) []crawler.Strategy {
	out := make([]crawler.Strategy, 0, len(candidates))
	for _, s := range candidates {
		if _, ok := e.transports[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Execute performs one attempt. It never panics and never returns an error;
// every failure is captured in the RawFetch.
func (e *Executor) Execute(ctx context.Context, request crawler.FetchRequest, strategy crawler.Strategy) (raw crawler.RawFetch) {
	start := time.Now()
	raw = crawler.RawFetch{URL: request.URL, Strategy: strategy}
	defer func() {
		if r := recover(); r != nil {
			raw.Status = crawler.FetchStatusNetworkError
			raw.Err = fmt.Sprintf("fetch panicked: %v", r)
			raw.Body = nil
		}
		raw.Elapsed = time.Since(start)
		metrics.ObserveFetch(string(strategy), string(raw.Status), raw.Elapsed)
	}()

	transport, ok := e.transports[strategy]
	if !ok {
		raw.Status = crawler.FetchStatusNetworkError
		raw.Err = fmt.Sprintf("strategy %q not available", strategy)
		return raw
	}

	timeout := request.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := transport.Fetch(fetchCtx, request)
	if err != nil {
		raw.Status = classifyError(fetchCtx, err)
		raw.Err = err.Error()
		return raw
	}
	e.classifyResponse(&raw, resp)
	return raw
}

func (e *Executor) classifyResponse(raw *crawler.RawFetch, resp crawler.FetchResponse) {
	raw.FinalURL = resp.URL
	if raw.FinalURL == "" {
		raw.FinalURL = raw.URL
	}
	raw.StatusCode = resp.StatusCode
	raw.Headers = resp.Headers
	raw.Body = resp.Body

	blocked, signature := e.detector.Detect(resp.Body)
	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		raw.Status = crawler.FetchStatusBlocked
		raw.Err = fmt.Sprintf("http %d", resp.StatusCode)
	case blocked:
		raw.Status = crawler.FetchStatusBlocked
		raw.Err = "block signature: " + signature
	case resp.StatusCode >= http.StatusBadRequest:
		raw.Status = crawler.FetchStatusNetworkError
		raw.Err = fmt.Sprintf("http %d", resp.StatusCode)
	case len(resp.Body) == 0:
		raw.Status = crawler.FetchStatusNetworkError
		raw.Err = "empty response body"
	default:
		raw.Status = crawler.FetchStatusOK
	}
	if raw.Status != crawler.FetchStatusOK {
		e.logger.Debug("fetch rejected",
			zap.String("url", raw.URL),
			zap.String("strategy", string(raw.Strategy)),
			zap.String("status", string(raw.Status)),
			zap.String("reason", raw.Err),
		)
	}
}

func classifyError(ctx context.Context, err error) crawler.FetchStatus {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return crawler.FetchStatusTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return crawler.FetchStatusTimeout
	}
	return crawler.FetchStatusNetworkError
}
