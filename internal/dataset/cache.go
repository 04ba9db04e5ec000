// Package dataset shares one short-lived listing snapshot between every
// consumer polling the portal inside the same window, collapsing N upstream
// calls into one.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

// Snapshot is the cached result of one full listing fetch.
type Snapshot struct {
	Items []domain.ListingItem `json:"items"`
	Meta  domain.PageMeta      `json:"meta"`
}

// Cache serves listing snapshots keyed by (year, pageSize) out of the shared
// key-value store.
type Cache struct {
	portal ports.PortalAPI
	kv     ports.KeyValueStore
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache wires the portal client and the shared store.
func NewCache(portal ports.PortalAPI, kv ports.KeyValueStore, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{portal: portal, kv: kv, ttl: ttl, logger: logger}
}

// GetDataset returns the listing for (year, pageSize). The third return value
// reports whether the snapshot came from the cache; on a miss exactly one
// upstream call sequence runs and the result is stored for the TTL.
func (c *Cache) GetDataset(ctx context.Context, year, pageSize int) ([]domain.ListingItem, domain.PageMeta, bool, error) {
	key := fmt.Sprintf("dataset:%d:%d", year, pageSize)

	if raw, ok, err := c.kv.Get(ctx, key); err != nil {
		c.logger.Warn("dataset cache read failed", "error", err)
	} else if ok {
		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			c.logger.Debug("dataset cache hit", slog.String("key", key), slog.Int("items", len(snap.Items)))
			return snap.Items, snap.Meta, true, nil
		}
		c.logger.Warn("dataset cache entry corrupt, refetching", slog.String("key", key))
	}

	items, meta, err := c.fetchAll(ctx, year, pageSize)
	if err != nil {
		return nil, domain.PageMeta{}, false, err
	}

	raw, err := json.Marshal(Snapshot{Items: items, Meta: meta})
	if err == nil {
		if err := c.kv.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.Warn("dataset cache write failed", "error", err)
		}
	}

	return items, meta, false, nil
}

// fetchAll pages through the listing until every element is collected.
func (c *Cache) fetchAll(ctx context.Context, year, pageSize int) ([]domain.ListingItem, domain.PageMeta, error) {
	var all []domain.ListingItem
	var meta domain.PageMeta

	for page := 0; ; page++ {
		items, pageMeta, err := c.portal.Listing(ctx, year, page, pageSize)
		if err != nil {
			return nil, domain.PageMeta{}, fmt.Errorf("listing page %d: %w", page, err)
		}
		meta = pageMeta
		all = append(all, items...)

		if len(items) == 0 || len(all) >= pageMeta.TotalElements || len(items) < pageSize {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, domain.PageMeta{}, err
		}
	}

	return all, meta, nil
}
