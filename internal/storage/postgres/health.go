package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

const selectHealth = `
SELECT url, status, last_status_code, last_error, failure_count, last_checked_at, last_success_at, created_at
FROM url_health
WHERE url = $1`

// GetOrCreate implements crawler.HealthStore.
func (s *Store) GetOrCreate(ctx context.Context, url string, now time.Time) (crawler.URLHealth, error) {
	_, err := s.pool.Exec(ctx, `
INSERT INTO url_health (url, status, created_at)
VALUES ($1,$2,$3)
ON CONFLICT (url) DO NOTHING`, url, string(crawler.HealthPending), now.UTC())
	if err != nil {
		return crawler.URLHealth{}, fmt.Errorf("insert url health: %w", err)
	}
	return s.GetHealth(ctx, url)
}

// GetHealth returns crawler.ErrNotFound for unknown URLs.
func (s *Store) GetHealth(ctx context.Context, url string) (crawler.URLHealth, error) {
	var (
		h      crawler.URLHealth
		status string
	)
	err := s.pool.QueryRow(ctx, selectHealth, url).Scan(
		&h.URL,
		&status,
		&h.LastStatusCode,
		&h.LastError,
		&h.FailureCount,
		&h.LastCheckedAt,
		&h.LastSuccessAt,
		&h.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.URLHealth{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.URLHealth{}, fmt.Errorf("select url health: %w", err)
	}
	h.Status = crawler.HealthStatus(status)
	return h, nil
}

// SaveHealth implements crawler.HealthStore.
func (s *Store) SaveHealth(ctx context.Context, h crawler.URLHealth) error {
	_, err := s.pool.Exec(ctx, `
UPDATE url_health
SET status = $2, last_status_code = $3, last_error = $4, failure_count = $5,
	last_checked_at = $6, last_success_at = $7
WHERE url = $1`,
		h.URL,
		string(h.Status),
		h.LastStatusCode,
		h.LastError,
		h.FailureCount,
		utcPtr(h.LastCheckedAt),
		utcPtr(h.LastSuccessAt),
	)
	if err != nil {
		return fmt.Errorf("update url health: %w", err)
	}
	return nil
}
