package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

// SaveRun implements crawler.RunStore.
func (s *Store) SaveRun(ctx context.Context, run crawler.RunSummary) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO runs (run_id, source_id, status, started_at, finished_at, payload)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (run_id) DO UPDATE
SET status = EXCLUDED.status, finished_at = EXCLUDED.finished_at, payload = EXCLUDED.payload`,
		run.RunID,
		run.SourceID,
		string(run.Status),
		run.StartedAt.UTC(),
		utcPtr(run.FinishedAt),
		payload,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// GetRun implements crawler.RunStore.
func (s *Store) GetRun(ctx context.Context, runID string) (crawler.RunSummary, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM runs WHERE run_id = $1`, runID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
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
