package dedup

import (
	"context"
	"crypto/md5" //nolint:gosec // test mirrors production checksum
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/storage/memory"
)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }

type seqIDs struct {
	n atomic.Int64
}

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("doc-%d", s.n.Add(1)), nil
}

func scored(title, number string, year int) crawler.ScoredDocument {
	return crawler.ScoredDocument{
		ExtractedDocument: crawler.ExtractedDocument{Title: title, Number: number, Year: year, Body: "isi"},
		Score:             10,
		Relevant:          true,
	}
}

func TestChecksum(t *testing.T) {
	t.Parallel()

	sum := md5.Sum([]byte("UU No. 11 Tahun 2008" + "11" + "2008")) //nolint:gosec // test
	require.Equal(t, hex.EncodeToString(sum[:]), Checksum("UU No. 11 Tahun 2008", "11", 2008))

	empty := md5.Sum([]byte("")) //nolint:gosec // test
	require.Equal(t, hex.EncodeToString(empty[:]), Checksum("", "", 0))

	a := DocumentChecksum(crawler.ExtractedDocument{Title: "T", Number: "1", Year: 2020, Body: "one"})
	b := DocumentChecksum(crawler.ExtractedDocument{Title: "T", Number: "1", Year: 2020, Body: "two"})
	require.Equal(t, a, b, "body text is not part of the key")
}

func TestSaveIfNewIdempotent(t *testing.T) {
	t.Parallel()

	store := memory.NewDocumentStore()
	gw := NewGateway(store, &seqIDs{}, fixedClock{}, nil)
	ctx := context.Background()

	first, created, err := gw.SaveIfNew(ctx, "jdih", scored("UU No. 11 Tahun 2008", "11", 2008))
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "doc-1", first.ID)
	require.Equal(t, "jdih", first.SourceID)

	changed := scored("UU No. 11 Tahun 2008", "11", 2008)
	changed.Body = "different body"
	second, created, err := gw.SaveIfNew(ctx, "other", changed)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first, second)
	require.Len(t, store.List(), 1)
	require.Equal(t, "isi", store.List()[0].Body)
}

func TestSaveIfNewConcurrent(t *testing.T) {
	t.Parallel()

	store := memory.NewDocumentStore()
	gw := NewGateway(store, &seqIDs{}, fixedClock{}, nil)

	var (
		wg      sync.WaitGroup
		created atomic.Int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := gw.SaveIfNew(context.Background(), "s", scored("Peraturan Presiden Nomor 95", "95", 2018))
			if err != nil {
				t.Errorf("SaveIfNew() error = %v", err)
			}
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, created.Load())
	require.Len(t, store.List(), 1)
}

// racingStore simulates another process inserting between lookup and create.
type racingStore struct {
	inner   *memory.DocumentStore
	raced   bool
	winner  crawler.Document
	findErr error
}

func (r *racingStore) FindByChecksum(ctx context.Context, checksum string) (crawler.Document, error) {
	if r.findErr != nil {
		return crawler.Document{}, r.findErr
	}
	return r.inner.FindByChecksum(ctx, checksum)
}

func (r *racingStore) Create(ctx context.Context, doc crawler.Document) (crawler.Document, error) {
	if !r.raced {
		r.raced = true
		r.winner = doc
		r.winner.ID = "winner"
		if _, err := r.inner.Create(ctx, r.winner); err != nil {
			return crawler.Document{}, err
		}
	}
	return r.inner.Create(ctx, doc)
}

func TestSaveIfNewResolvesConflict(t *testing.T) {
	t.Parallel()

	store := &racingStore{inner: memory.NewDocumentStore()}
	gw := NewGateway(store, &seqIDs{}, fixedClock{}, nil)

	doc, created, err := gw.SaveIfNew(context.Background(), "s", scored("Peraturan Menteri Nomor 5", "5", 2020))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "winner", doc.ID)
}

func TestSaveIfNewPropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	store := &racingStore{inner: memory.NewDocumentStore(), findErr: boom}
	gw := NewGateway(store, &seqIDs{}, fixedClock{}, nil)

	_, _, err := gw.SaveIfNew(context.Background(), "s", scored("Peraturan Menteri Nomor 5", "5", 2020))
	require.ErrorIs(t, err, boom)
}
