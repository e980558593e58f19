package selector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
)

// Choice is the remembered winner for a source.
type Choice struct {
	Strategy   crawler.Strategy `json:"strategy"`
	SelectedAt time.Time        `json:"selected_at"`
	Score      float64          `json:"score"`
}

// Cache persists choices in a TTL store so later runs can reuse them.
type Cache struct {
	store crawler.TTLStore
	ttl   time.Duration
}

// NewCache builds a Cache. ttl <= 0 keeps entries forever.
func NewCache(store crawler.TTLStore, ttl time.Duration) *Cache {
	return &Cache{store: store, ttl: ttl}
}

func cacheKey(sourceID string) string {
	return "strategy:" + sourceID
}

// Get returns the cached choice for sourceID; ok is false when absent.
func (c *Cache) Get(ctx context.Context, sourceID string) (Choice, bool, error) {
	raw, err := c.store.Get(ctx, cacheKey(sourceID))
	if errors.Is(err, crawler.ErrNotFound) {
		return Choice{}, false, nil
	}
	if err != nil {
		return Choice{}, false, fmt.Errorf("get strategy choice: %w", err)
	}
	var choice Choice
	if err := json.Unmarshal(raw, &choice); err != nil {
		return Choice{}, false, fmt.Errorf("decode strategy choice: %w", err)
	}
	return choice, true, nil
}

// Put stores choice for sourceID.
func (c *Cache) Put(ctx context.Context, sourceID string, choice Choice) error {
	raw, err := json.Marshal(choice)
	if err != nil {
		return fmt.Errorf("encode strategy choice: %w", err)
	}
	if err := c.store.Set(ctx, cacheKey(sourceID), raw, c.ttl); err != nil {
		return fmt.Errorf("put strategy choice: %w", err)
	}
	return nil
}
