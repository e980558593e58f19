package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/storage/memory"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newMonitor() *Monitor {
	return NewMonitor(memory.NewHealthStore(), &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}, 0, nil)
}

func TestObserveCreatesPending(t *testing.T) {
	t.Parallel()

	m := newMonitor()
	h, err := m.Observe(context.Background(), "https://example.gov/doc/1")
	require.NoError(t, err)
	require.Equal(t, crawler.HealthPending, h.Status)
	require.Zero(t, h.FailureCount)
	require.False(t, m.ShouldNotify(h))
}

func TestThreeBrokenFetchesNotify(t *testing.T) {
	t.Parallel()

	m := newMonitor()
	ctx := context.Background()
	url := "https://example.gov/doc/1"
	raw := crawler.RawFetch{URL: url, Status: crawler.FetchStatusNetworkError, Err: "connection refused"}

	var h crawler.URLHealth
	var err error
	for i := 1; i <= 3; i++ {
		h, err = m.Record(ctx, raw)
		require.NoError(t, err)
		require.Equal(t, i, h.FailureCount)
		require.Equal(t, i == 3, m.ShouldNotify(h), "notify must flip exactly at the threshold")
	}
	require.Equal(t, crawler.HealthBroken, h.Status)
	require.Equal(t, "connection refused", h.LastError)
	require.NotNil(t, h.LastCheckedAt)
	require.Nil(t, h.LastSuccessAt)

	h, err = m.Record(ctx, crawler.RawFetch{URL: url, Status: crawler.FetchStatusBlocked})
	require.NoError(t, err)
	require.Equal(t, 4, h.FailureCount)
	require.True(t, m.ShouldNotify(h))
	require.Equal(t, "blocked", h.LastError)
}

func TestSuccessResetsFailures(t *testing.T) {
	t.Parallel()

	m := newMonitor()
	ctx := context.Background()
	url := "https://example.gov/doc/2"
	for i := 0; i < 3; i++ {
		_, err := m.RecordFailure(ctx, url, 503, "timeout")
		require.NoError(t, err)
	}

	h, err := m.Record(ctx, crawler.RawFetch{URL: url, Status: crawler.FetchStatusOK, StatusCode: 200})
	require.NoError(t, err)
	require.Equal(t, crawler.HealthActive, h.Status)
	require.Zero(t, h.FailureCount)
	require.Empty(t, h.LastError)
	require.Equal(t, 200, h.LastStatusCode)
	require.NotNil(t, h.LastSuccessAt)
	require.False(t, m.ShouldNotify(h))
}

func TestConcurrentFailuresAreOrdered(t *testing.T) {
	t.Parallel()

	m := newMonitor()
	url := "https://example.gov/doc/3"
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.RecordFailure(context.Background(), url, 0, "x"); err != nil {
				t.Errorf("RecordFailure() error = %v", err)
			}
		}()
	}
	wg.Wait()
	h, err := m.Observe(context.Background(), url)
	require.NoError(t, err)
	require.Equal(t, 25, h.FailureCount)
}

func TestCustomThreshold(t *testing.T) {
	t.Parallel()

	m := NewMonitor(memory.NewHealthStore(), &stepClock{}, 5, nil)
	require.Equal(t, 5, m.Threshold())
	require.False(t, m.ShouldNotify(crawler.URLHealth{FailureCount: 4}))
	require.True(t, m.ShouldNotify(crawler.URLHealth{FailureCount: 5}))
}
