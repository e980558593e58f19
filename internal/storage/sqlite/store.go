// Package sqlite provides an embedded, single-file record store backed by
// the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL UNIQUE,
	source_id  TEXT NOT NULL,
	title      TEXT NOT NULL,
	category   TEXT NOT NULL,
	score      INTEGER NOT NULL,
	payload    BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS url_health (
	url              TEXT PRIMARY KEY,
	status           TEXT NOT NULL,
	last_status_code INTEGER NOT NULL DEFAULT 0,
	last_error       TEXT NOT NULL DEFAULT '',
	failure_count    INTEGER NOT NULL DEFAULT 0,
	last_checked_at  INTEGER,
	last_success_at  INTEGER,
	created_at       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS source_stats (
	source_id       TEXT PRIMARY KEY,
	last_run_at     INTEGER NOT NULL,
	total_documents INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	run_id    TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	status    TEXT NOT NULL,
	payload   BLOB NOT NULL
);`

// Store implements crawler.DocumentStore, crawler.HealthStore,
// crawler.RunStore and crawler.SourceStatsWriter on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite.path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps SQLite lock handling simple and :memory: shared.
	db.SetMaxOpenConns(1)
	pragmas := []string{"PRAGMA busy_timeout = 10000", "PRAGMA foreign_keys = ON"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range append(pragmas, schema) {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Ping checks that the database file is usable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// FindByChecksum implements crawler.DocumentStore.
func (s *Store) FindByChecksum(ctx context.Context, checksum string) (crawler.Document, error) {
	var (
		doc     crawler.Document
		payload []byte
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source_id, checksum, payload, created_at FROM documents WHERE checksum = ?`, checksum).
		Scan(&doc.ID, &doc.SourceID, &doc.Checksum, &payload, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.Document{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Document{}, fmt.Errorf("select document: %w", err)
	}
	if err := json.Unmarshal(payload, &doc.ScoredDocument); err != nil {
		return crawler.Document{}, fmt.Errorf("decode document payload: %w", err)
	}
	doc.CreatedAt = fromNanos(created)
	return doc, nil
}

// Create implements crawler.DocumentStore.
func (s *Store) Create(ctx context.Context, doc crawler.Document) (crawler.Document, error) {
	payload, err := json.Marshal(doc.ScoredDocument)
	if err != nil {
		return crawler.Document{}, fmt.Errorf("encode document payload: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO documents (id, checksum, source_id, title, category, score, payload, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (checksum) DO NOTHING`,
		doc.ID, doc.Checksum, doc.SourceID, doc.Title, string(doc.Category), doc.Score, payload, doc.CreatedAt.UnixNano())
	if err != nil {
		return crawler.Document{}, fmt.Errorf("insert document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return crawler.Document{}, fmt.Errorf("insert document: %w", err)
	}
	if n == 0 {
		return crawler.Document{}, crawler.ErrDuplicateChecksum
	}
	return doc, nil
}

// CountDocuments returns the number of stored documents for sourceID.
func (s *Store) CountDocuments(ctx context.Context, sourceID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE source_id = ?`, sourceID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// GetOrCreate implements crawler.HealthStore.
func (s *Store) GetOrCreate(ctx context.Context, url string, now time.Time) (crawler.URLHealth, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO url_health (url, status, created_at) VALUES (?, ?, ?) ON CONFLICT (url) DO NOTHING`,
		url, string(crawler.HealthPending), now.UnixNano()); err != nil {
		return crawler.URLHealth{}, fmt.Errorf("insert url health: %w", err)
	}
	return s.GetHealth(ctx, url)
}

// GetHealth returns crawler.ErrNotFound for unknown URLs.
func (s *Store) GetHealth(ctx context.Context, url string) (crawler.URLHealth, error) {
	var (
		h                crawler.URLHealth
		status           string
		checked, success sql.NullInt64
		created          int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT url, status, last_status_code, last_error, failure_count, last_checked_at, last_success_at, created_at
FROM url_health WHERE url = ?`, url).
		Scan(&h.URL, &status, &h.LastStatusCode, &h.LastError, &h.FailureCount, &checked, &success, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.URLHealth{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.URLHealth{}, fmt.Errorf("select url health: %w", err)
	}
	h.Status = crawler.HealthStatus(status)
	h.LastCheckedAt = nullTime(checked)
	h.LastSuccessAt = nullTime(success)
	h.CreatedAt = fromNanos(created)
	return h, nil
}

// SaveHealth implements crawler.HealthStore.
func (s *Store) SaveHealth(ctx context.Context, h crawler.URLHealth) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE url_health
SET status = ?, last_status_code = ?, last_error = ?, failure_count = ?, last_checked_at = ?, last_success_at = ?
WHERE url = ?`,
		string(h.Status), h.LastStatusCode, h.LastError, h.FailureCount, nanosOrNull(h.LastCheckedAt), nanosOrNull(h.LastSuccessAt), h.URL)
	if err != nil {
		return fmt.Errorf("update url health: %w", err)
	}
	return nil
}

// UpdateSourceStats implements crawler.SourceStatsWriter.
func (s *Store) UpdateSourceStats(ctx context.Context, id string, stats crawler.SourceStats) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO source_stats (source_id, last_run_at, total_documents) VALUES (?, ?, ?)
ON CONFLICT (source_id) DO UPDATE SET last_run_at = excluded.last_run_at,
    total_documents = source_stats.total_documents + excluded.total_documents`,
		id, stats.LastRunAt.UnixNano(), stats.Added)
	if err != nil {
		return fmt.Errorf("upsert source stats: %w", err)
	}
	return nil
}

// SourceStats implements crawler.SourceStatsReader.
func (s *Store) SourceStats(ctx context.Context, id string) (crawler.SourceStats, error) {
	var (
		at    int64
		stats crawler.SourceStats
	)
	err := s.db.QueryRowContext(ctx, `SELECT last_run_at, total_documents FROM source_stats WHERE source_id = ?`, id).
		Scan(&at, &stats.TotalDocuments)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.SourceStats{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.SourceStats{}, fmt.Errorf("select source stats: %w", err)
	}
	stats.LastRunAt = fromNanos(at)
	return stats, nil
}

// SaveRun implements crawler.RunStore.
func (s *Store) SaveRun(ctx context.Context, run crawler.RunSummary) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs (run_id, source_id, status, payload) VALUES (?, ?, ?, ?)
ON CONFLICT (run_id) DO UPDATE SET status = excluded.status, payload = excluded.payload`,
		run.RunID, run.SourceID, string(run.Status), payload)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// GetRun implements crawler.RunStore.
func (s *Store) GetRun(ctx context.Context, runID string) (crawler.RunSummary, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM runs WHERE run_id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.RunSummary{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.RunSummary{}, fmt.Errorf("select run: %w", err)
	}
	var run crawler.RunSummary
	if err := json.Unmarshal(payload, &run); err != nil {
		return crawler.RunSummary{}, fmt.Errorf("decode run: %w", err)
	}
	return run, nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nanosOrNull(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
