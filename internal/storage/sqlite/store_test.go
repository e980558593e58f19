package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDocumentsAreUniqueByChecksum(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()
	created := time.Date(2024, 2, 1, 10, 0, 0, 123, time.UTC)
	doc := crawler.Document{
		ID: "d1", SourceID: "jdih", Checksum: "abc", CreatedAt: created,
		ScoredDocument: crawler.ScoredDocument{
			ExtractedDocument: crawler.ExtractedDocument{Title: "UU No. 11 Tahun 2008", Number: "11", Year: 2008},
			Score:             16,
			Category:          crawler.CategoryElectronicTrx,
			MatchedKeywords:   map[string]int{"transaksi elektronik": 8, "informasi elektronik": 8},
		},
	}
	_, err := s.Create(ctx, doc)
	require.NoError(t, err)

	dup := doc
	dup.ID = "d2"
	_, err = s.Create(ctx, dup)
	require.ErrorIs(t, err, crawler.ErrDuplicateChecksum)

	got, err := s.FindByChecksum(ctx, "abc")
	require.NoError(t, err)
	require.Equal(t, doc, got)

	n, err := s.CountDocuments(ctx, "jdih")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = s.FindByChecksum(ctx, "nope")
	require.ErrorIs(t, err, crawler.ErrNotFound)
}

func TestConcurrentCreateKeepsOneRecord(t *testing.T) {
	t.Parallel()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "regs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Create(context.Background(), crawler.Document{ID: string(rune('a' + i)), Checksum: "same", CreatedAt: time.Now()})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, created)
}

func TestHealthLifecycle(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	h, err := s.GetOrCreate(ctx, "https://example.gov/doc/1", now)
	require.NoError(t, err)
	require.Equal(t, crawler.HealthPending, h.Status)
	require.Nil(t, h.LastCheckedAt)
	require.Equal(t, now, h.CreatedAt)

	checked := now.Add(time.Minute)
	h.Status = crawler.HealthBroken
	h.FailureCount = 3
	h.LastError = "timeout"
	h.LastCheckedAt = &checked
	require.NoError(t, s.SaveHealth(ctx, h))

	again, err := s.GetOrCreate(ctx, "https://example.gov/doc/1", now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, h, again, "get-or-create must not reset an existing record")

	_, err = s.GetHealth(ctx, "https://unknown")
	require.ErrorIs(t, err, crawler.ErrNotFound)
}

func TestRunsAndStats(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()
	run := crawler.RunSummary{RunID: "r1", SourceID: "jdih", Status: crawler.RunStatusRunning}
	require.NoError(t, s.SaveRun(ctx, run))
	run.Status = crawler.RunStatusSucceeded
	run.Saved = 3
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, crawler.RunStatusSucceeded, got.Status)
	require.Equal(t, 3, got.Saved)
	_, err = s.GetRun(ctx, "r2")
	require.ErrorIs(t, err, crawler.ErrNotFound)

	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateSourceStats(ctx, "jdih", crawler.SourceStats{LastRunAt: at, Added: 2}))
	require.NoError(t, s.UpdateSourceStats(ctx, "jdih", crawler.SourceStats{LastRunAt: at.Add(time.Hour), Added: 5}))
	stats, err := s.SourceStats(ctx, "jdih")
	require.NoError(t, err)
	require.Equal(t, 7, stats.TotalDocuments, "runs accumulate")
	require.Equal(t, at.Add(time.Hour), stats.LastRunAt)
}
