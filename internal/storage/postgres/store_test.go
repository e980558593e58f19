package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func sampleDocument() crawler.Document {
	return crawler.Document{
		ID:        "doc-1",
		SourceID:  "jdih",
		Checksum:  "5d41402abc4b2a76b9719d911017c592",
		CreatedAt: time.Unix(1700000000, 0).UTC(),
		ScoredDocument: crawler.ScoredDocument{
			ExtractedDocument: crawler.ExtractedDocument{Title: "UU No. 27 Tahun 2022", Number: "27", Year: 2022},
			Score:             19,
			Relevant:          true,
			Category:          crawler.CategoryDataProtection,
			MatchedKeywords:   map[string]int{"data pribadi": 10, "keamanan siber": 9},
		},
	}
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil)
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	require.ErrorContains(t, store.Ping(context.Background()), "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInsertsDocument(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	doc := sampleDocument()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs(doc.ID, doc.Checksum, doc.SourceID, doc.Title, doc.Number, doc.Year, "perlindungan_data", 19, true, pgxmock.AnyArg(), doc.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	got, err := store.Create(context.Background(), doc)
	require.NoError(t, err)
	require.Equal(t, doc.ID, got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateConflictIsDuplicate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (checksum) DO NOTHING")).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	_, err := store.Create(context.Background(), sampleDocument())
	require.ErrorIs(t, err, crawler.ErrDuplicateChecksum)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByChecksum(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	doc := sampleDocument()
	payload, err := json.Marshal(doc.ScoredDocument)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM documents")).
		WithArgs(doc.Checksum).
		WillReturnRows(pgxmock.NewRows([]string{"id", "source_id", "checksum", "payload", "created_at"}).
			AddRow(doc.ID, doc.SourceID, doc.Checksum, payload, doc.CreatedAt))
	got, err := store.FindByChecksum(context.Background(), doc.Checksum)
	require.NoError(t, err)
	require.Equal(t, doc, got)

	mock.ExpectQuery(regexp.QuoteMeta("FROM documents")).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	_, err = store.FindByChecksum(context.Background(), "missing")
	require.ErrorIs(t, err, crawler.ErrNotFound)

	mock.ExpectQuery(regexp.QuoteMeta("FROM documents")).
		WithArgs("boom").
		WillReturnError(errors.New("connection reset"))
	_, err = store.FindByChecksum(context.Background(), "boom")
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateHealth(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	url := "https://example.gov/doc/1"

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO url_health")).
		WithArgs(url, "pending", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM url_health")).
		WithArgs(url).
		WillReturnRows(pgxmock.NewRows([]string{"url", "status", "last_status_code", "last_error", "failure_count", "last_checked_at", "last_success_at", "created_at"}).
			AddRow(url, "pending", 0, "", 0, (*time.Time)(nil), (*time.Time)(nil), now))

	h, err := store.GetOrCreate(context.Background(), url, now)
	require.NoError(t, err)
	require.Equal(t, crawler.HealthPending, h.Status)
	require.Zero(t, h.FailureCount)
	require.Nil(t, h.LastCheckedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveHealth(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	checked := time.Unix(1700000100, 0).UTC()
	h := crawler.URLHealth{URL: "https://x", Status: crawler.HealthBroken, LastStatusCode: 503, LastError: "http 503", FailureCount: 3, LastCheckedAt: &checked}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE url_health")).
		WithArgs(h.URL, "broken", 503, "http 503", 3, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.SaveHealth(context.Background(), h))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunsRoundTrip(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	run := crawler.RunSummary{RunID: "run-1", SourceID: "jdih", Status: crawler.RunStatusSucceeded, Processed: 4, StartedAt: time.Unix(1700000000, 0).UTC()}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO runs")).
		WithArgs("run-1", "jdih", "succeeded", run.StartedAt, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.SaveRun(context.Background(), run))

	payload, err := json.Marshal(run)
	require.NoError(t, err)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM runs")).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(payload))
	got, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, 4, got.Processed)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM runs")).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)
	_, err = store.GetRun(context.Background(), "nope")
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSourceStatsAndMigrate(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO source_stats")).
		WithArgs("jdih", at, 12).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, store.UpdateSourceStats(context.Background(), "jdih", crawler.SourceStats{LastRunAt: at, Added: 12}))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT last_run_at, total_documents FROM source_stats")).
		WithArgs("jdih").
		WillReturnRows(pgxmock.NewRows([]string{"last_run_at", "total_documents"}).AddRow(at, 30))
	stats, err := store.SourceStats(context.Background(), "jdih")
	require.NoError(t, err)
	require.Equal(t, 30, stats.TotalDocuments)
	require.Equal(t, at, stats.LastRunAt)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT last_run_at, total_documents FROM source_stats")).
		WithArgs("fresh").
		WillReturnError(pgx.ErrNoRows)
	_, err = store.SourceStats(context.Background(), "fresh")
	require.ErrorIs(t, err, crawler.ErrNotFound)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS documents")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
