// Package dedup computes document checksums and persists documents only when
// no record with the same checksum exists.
package dedup

import (
	"context"
	"crypto/md5" //nolint:gosec // checksum is a natural key, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/tik-regcrawler/internal/crawler"
	"github.com/JakeFAU/tik-regcrawler/internal/lockmap"
)

// Checksum returns md5_hex(title + number + year). A zero year contributes
// an empty string. Body text is deliberately not part of the key.
func Checksum(title, number string, year int) string {
	yearText := ""
	if year > 0 {
		yearText = strconv.Itoa(year)
	}
	sum := md5.Sum([]byte(title + number + yearText)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}

// DocumentChecksum is Checksum over a document's identifying fields.
func DocumentChecksum(doc crawler.ExtractedDocument) string {
	return Checksum(doc.Title, doc.Number, doc.Year)
}

// Gateway implements save-if-new on top of a DocumentStore.
type Gateway struct {
	store  crawler.DocumentStore
	ids    crawler.IDGenerator
	clock  crawler.Clock
	locks  *lockmap.Map
	logger *zap.Logger
}

// NewGateway wires a Gateway.
func NewGateway(store crawler.DocumentStore, ids crawler.IDGenerator, clock crawler.Clock, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		store:  store,
		ids:    ids,
		clock:  clock,
		locks:  lockmap.New(),
		logger: logger.Named("dedup"),
	}
}

// SaveIfNew returns the existing record (wasCreated=false) when the checksum
// is already stored and never overwrites it. Otherwise it creates the record.
// A unique-constraint conflict from a concurrent writer resolves to the
// winning record.
func (g *Gateway) SaveIfNew(ctx context.Context, sourceID string, doc crawler.ScoredDocument) (crawler.Document, bool, error) {
	checksum := DocumentChecksum(doc.ExtractedDocument)
	unlock := g.locks.Lock(checksum)
	defer unlock()

	existing, err := g.store.FindByChecksum(ctx, checksum)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, crawler.ErrNotFound):
		return crawler.Document{}, false, fmt.Errorf("find by checksum: %w", err)
	}

	id, err := g.ids.NewID()
	if err != nil {
		return crawler.Document{}, false, fmt.Errorf("generate document id: %w", err)
	}
	created, err := g.store.Create(ctx, crawler.Document{
		ScoredDocument: doc,
		ID:             id,
		SourceID:       sourceID,
		Checksum:       checksum,
		CreatedAt:      g.clock.Now(),
	})
	if errors.Is(err, crawler.ErrDuplicateChecksum) {
		g.logger.Debug("checksum conflict resolved to existing record", zap.String("checksum", checksum))
		existing, findErr := g.store.FindByChecksum(ctx, checksum)
		if findErr != nil {
			return crawler.Document{}, false, fmt.Errorf("re-find after conflict: %w", findErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return crawler.Document{}, false, fmt.Errorf("create document: %w", err)
	}
	return created, true, nil
}
