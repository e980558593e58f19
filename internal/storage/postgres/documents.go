package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

const insertDocument = `
INSERT INTO documents (id, checksum, source_id, title, number, year, category, score, relevant, payload, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (checksum) DO NOTHING`

const selectDocument = `
SELECT id, source_id, checksum, payload, created_at
FROM documents
WHERE checksum = $1`

// FindByChecksum implements crawler.DocumentStore.
func (s *Store) FindByChecksum(ctx context.Context, checksum string) (crawler.Document, error) {
	var (
		doc     crawler.Document
		payload []byte
	)
	err := s.pool.QueryRow(ctx, selectDocument, checksum).
		Scan(&doc.ID, &doc.SourceID, &doc.Checksum, &payload, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Document{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Document{}, fmt.Errorf("select document: %w", err)
	}
	if err := json.Unmarshal(payload, &doc.ScoredDocument); err != nil {
		return crawler.Document{}, fmt.Errorf("decode document payload: %w", err)
	}
	return doc, nil
}

// Create implements crawler.DocumentStore. The unique checksum makes the
// insert a no-op on conflict, reported as crawler.ErrDuplicateChecksum.
func (s *Store) Create(ctx context.Context, doc crawler.Document) (crawler.Document, error) {
	payload, err := json.Marshal(doc.ScoredDocument)
	if err != nil {
		return crawler.Document{}, fmt.Errorf("encode document payload: %w", err)
	}
	tag, err := s.pool.Exec(ctx, insertDocument,
		doc.ID,
		doc.Checksum,
		doc.SourceID,
		doc.Title,
		doc.Number,
		doc.Year,
		string(doc.Category),
		doc.Score,
		doc.Relevant,
		payload,
		doc.CreatedAt.UTC(),
	)
	if err != nil {
		return crawler.Document{}, fmt.Errorf("insert document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.Document{}, crawler.ErrDuplicateChecksum
	}
	return doc, nil
}

// UpdateSourceStats implements crawler.SourceStatsWriter.
func (s *Store) UpdateSourceStats(ctx context.Context, id string, stats crawler.SourceStats) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO source_stats (source_id, last_run_at, total_documents)
VALUES ($1,$2,$3)
ON CONFLICT (source_id) DO UPDATE
SET last_run_at = EXCLUDED.last_run_at,
    total_documents = source_stats.total_documents + EXCLUDED.total_documents`,
		id, stats.LastRunAt.UTC(), stats.Added)
	if err != nil {
		return fmt.Errorf("upsert source stats: %w", err)
	}
	return nil
}

// SourceStats implements crawler.SourceStatsReader.
func (s *Store) SourceStats(ctx context.Context, id string) (crawler.SourceStats, error) {
	var stats crawler.SourceStats
	err := s.pool.QueryRow(ctx, `SELECT last_run_at, total_documents FROM source_stats WHERE source_id = $1`, id).
		Scan(&stats.LastRunAt, &stats.TotalDocuments)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.SourceStats{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.SourceStats{}, fmt.Errorf("select source stats: %w", err)
	}
	stats.LastRunAt = stats.LastRunAt.UTC()
	return stats, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
