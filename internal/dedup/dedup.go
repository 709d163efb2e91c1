// Package dedup gates collected items on the content-hash uniqueness
// constraint before they are persisted.
package dedup

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/robowatch/crawler/internal/crawl"
)

// Outcome reports a reservation attempt. Exactly one of ID/ExistingID is
// set: ID for a winning insert, ExistingID for a duplicate.
type Outcome struct {
	Duplicate  bool   `json:"is_duplicate"`
	ID         string `json:"id,omitempty"`
	ExistingID string `json:"existing_id,omitempty"`
}

// Deduplicator decides new-vs-duplicate by delegating atomicity to the
// item store's unique-index insert. There is no in-process seen-hash
// cache; correctness is independent of process count.
type Deduplicator struct {
	items  crawl.ItemStore
	hasher crawl.Hasher
	logger *zap.Logger
}

// New constructs a Deduplicator.
func New(items crawl.ItemStore, hasher crawl.Hasher, logger *zap.Logger) *Deduplicator {
	return &Deduplicator{items: items, hasher: hasher, logger: logger}
}

// CheckAndReserve inserts the item. A unique-index conflict resolves to a
// duplicate outcome; any other store failure escalates so the caller can
// abort the job rather than accumulate unpersisted state.
func (d *Deduplicator) CheckAndReserve(ctx context.Context, item crawl.Item) (Outcome, error) {
	id, err := d.items.InsertItem(ctx, item)
	if err != nil {
		var dup *crawl.DuplicateError
		if errors.As(err, &dup) {
			d.logger.Debug("duplicate content detected",
				zap.String("hash", short(item.ContentHash)),
				zap.String("url", item.URL),
				zap.String("existing_id", dup.ExistingID),
			)
			return Outcome{Duplicate: true, ExistingID: dup.ExistingID}, nil
		}
		return Outcome{}, fmt.Errorf("insert item: %w", err)
	}
	return Outcome{ID: id}, nil
}

// CheckContent reports whether raw content would be a duplicate, without
// reserving anything. Used by non-crawler ingestion paths so manual
// entry shares the same dedup key space.
func (d *Deduplicator) CheckContent(ctx context.Context, title, content string) (string, bool, error) {
	hash := d.hasher.Digest(title, content)
	existingID, err := d.items.FindIDByHash(ctx, hash)
	if err != nil {
		return "", false, fmt.Errorf("find by hash: %w", err)
	}
	return hash, existingID != "", nil
}

func short(hash string) string {
	if len(hash) > 16 {
		return hash[:16]
	}
	return hash
}
