// Package ledger keeps the per-day record of item identifiers that already
// triggered notifications, so a second run over the same dataset sends
// nothing.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

// Ledger partitions listing items into new and already-processed for one
// calendar day. It is bounded: past the cap the oldest identifiers are
// evicted first, and the whole day expires after the TTL.
type Ledger struct {
	kv         ports.KeyValueStore
	maxEntries int
	ttl        time.Duration
	logger     *slog.Logger
}

// New wires the shared key-value store.
func New(kv ports.KeyValueStore, maxEntries int, ttl time.Duration, logger *slog.Logger) *Ledger {
	if maxEntries <= 0 {
		maxEntries = 2000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{kv: kv, maxEntries: maxEntries, ttl: ttl, logger: logger}
}

func dayListKey(dayKey string) string { return "ledger:" + dayKey }

func markerKey(dayKey, id string) string { return "processed:" + dayKey + ":" + id }

// Partition splits items into new and already-processed for dayKey and
// records the new identifiers. Items without a resolvable identifier are
// always treated as new: over-notifying beats silently losing a malformed
// record. The per-identifier markers use insert-if-absent, so two overlapping
// runs cannot both claim the same item.
//
// A non-nil error means the ledger could not be fully read or written; the
// returned partition is still usable, skewed toward "new".
func (l *Ledger) Partition(ctx context.Context, items []domain.ListingItem, dayKey string) (newItems, seen []domain.ListingItem, err error) {
	ids, loadErr := l.loadDay(ctx, dayKey)
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}

	var errs []error
	if loadErr != nil {
		errs = append(errs, loadErr)
	}

	for _, item := range items {
		id := item.Identifier()
		if id == "" {
			newItems = append(newItems, item)
			continue
		}
		if _, ok := known[id]; ok {
			seen = append(seen, item)
			continue
		}

		won, nxErr := l.kv.SetNX(ctx, markerKey(dayKey, id), []byte("1"), l.ttl)
		if nxErr != nil {
			errs = append(errs, nxErr)
			// Store unavailable: favor over-notification.
			won = true
		}
		if !won {
			seen = append(seen, item)
			known[id] = struct{}{}
			continue
		}

		newItems = append(newItems, item)
		known[id] = struct{}{}
		ids = append(ids, id)
	}

	// Evict oldest entries past the cap before re-storing.
	if len(ids) > l.maxEntries {
		evicted := ids[:len(ids)-l.maxEntries]
		ids = ids[len(ids)-l.maxEntries:]
		for _, id := range evicted {
			if delErr := l.kv.Delete(ctx, markerKey(dayKey, id)); delErr != nil {
				l.logger.Warn("ledger marker eviction failed", slog.String("id", id), "error", delErr)
			}
		}
	}

	if storeErr := l.storeDay(ctx, dayKey, ids); storeErr != nil {
		errs = append(errs, storeErr)
	}

	return newItems, seen, errors.Join(errs...)
}

// Size returns the number of identifiers currently recorded for dayKey.
func (l *Ledger) Size(ctx context.Context, dayKey string) (int, error) {
	ids, err := l.loadDay(ctx, dayKey)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (l *Ledger) loadDay(ctx context.Context, dayKey string) ([]string, error) {
	raw, ok, err := l.kv.Get(ctx, dayListKey(dayKey))
	if err != nil || !ok {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		l.logger.Warn("ledger entry corrupt, resetting", slog.String("day", dayKey))
		return nil, nil
	}
	return ids, nil
}

func (l *Ledger) storeDay(ctx context.Context, dayKey string, ids []string) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return l.kv.Set(ctx, dayListKey(dayKey), raw, l.ttl)
}
