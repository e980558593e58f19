package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func TestDocumentStoreUniqueChecksum(t *testing.T) {
	t.Parallel()

	store := NewDocumentStore()
	ctx := context.Background()

	_, err := store.FindByChecksum(ctx, "abc")
	require.ErrorIs(t, err, crawler.ErrNotFound)

	doc := crawler.Document{ID: "1", Checksum: "abc"}
	_, err = store.Create(ctx, doc)
	require.NoError(t, err)

	_, err = store.Create(ctx, crawler.Document{ID: "2", Checksum: "abc"})
	require.ErrorIs(t, err, crawler.ErrDuplicateChecksum)

	found, err := store.FindByChecksum(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, "1", found.ID)
	require.Len(t, store.List(), 1)
}

func TestHealthStoreGetOrCreate(t *testing.T) {
	t.Parallel()

	store := NewHealthStore()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	h, err := store.GetOrCreate(ctx, "https://example.gov/doc/1", now)
	require.NoError(t, err)
	require.Equal(t, crawler.HealthPending, h.Status)
	require.Zero(t, h.FailureCount)

	h.Status = crawler.HealthBroken
	h.FailureCount = 2
	require.NoError(t, store.SaveHealth(ctx, h))

	again, err := store.GetOrCreate(ctx, h.URL, now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, again.FailureCount)
	require.Equal(t, now, again.CreatedAt)

	_, err = store.GetHealth(ctx, "https://other")
	require.ErrorIs(t, err, crawler.ErrNotFound)
}

func TestTTLStoreExpiry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewTTLStore(clock)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Hour))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", string(got))

	clock.now = clock.now.Add(time.Hour)
	_, err = store.Get(ctx, "k")
	require.ErrorIs(t, err, crawler.ErrNotFound)

	require.NoError(t, store.Set(ctx, "forever", []byte("x"), 0))
	clock.now = clock.now.Add(1000 * time.Hour)
	_, err = store.Get(ctx, "forever")
	require.NoError(t, err)
}

func TestRunAndStatsStores(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	runs := NewRunStore()
	_, err := runs.GetRun(ctx, "r1")
	require.ErrorIs(t, err, crawler.ErrNotFound)

	require.NoError(t, runs.SaveRun(ctx, crawler.RunSummary{RunID: "r1", Status: crawler.RunStatusQueued}))
	require.NoError(t, runs.SaveRun(ctx, crawler.RunSummary{RunID: "r1", Status: crawler.RunStatusSucceeded, Processed: 3}))
	run, err := runs.GetRun(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, crawler.RunStatusSucceeded, run.Status)
	require.Equal(t, 3, run.Processed)

	stats := NewStatsStore()
	now := time.Now().UTC()
	require.NoError(t, stats.UpdateSourceStats(ctx, "jdih", crawler.SourceStats{LastRunAt: now, Added: 4}))
	require.NoError(t, stats.UpdateSourceStats(ctx, "jdih", crawler.SourceStats{LastRunAt: now, Added: 3}))
	got, ok := stats.Stats("jdih")
	require.True(t, ok)
	require.Equal(t, 7, got.TotalDocuments)
	_, err = stats.SourceStats(ctx, "other")
	require.ErrorIs(t, err, crawler.ErrNotFound)
}
