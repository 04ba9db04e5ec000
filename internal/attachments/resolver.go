// Package attachments picks the representative attachment for a listing item
// and caches the choice so repeat resolutions stay off the portal.
package attachments

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/matching"
	"TenderWatch/internal/ports"
)

// defaultMarkers are the filename fragments that identify the document worth
// notifying about, in priority order.
var defaultMarkers = []string{
	"terminos de referencia",
	"tdr",
	"pliego",
	"bases",
	"especificacion",
}

// DefaultName labels the sentinel meta when no attachment can be resolved.
const DefaultName = "documento"

// Resolver selects one attachment per item, with a TTL cache keyed by item
// identifier. Within the TTL the cached choice is reused even if the upstream
// list changed: a stale-but-available answer beats extra upstream calls.
type Resolver struct {
	portal  ports.PortalAPI
	kv      ports.KeyValueStore
	ttl     time.Duration
	markers []string
	logger  *slog.Logger
}

// NewResolver wires the portal client and shared store; markers may be nil to
// use the defaults.
func NewResolver(portal ports.PortalAPI, kv ports.KeyValueStore, ttl time.Duration, markers []string, logger *slog.Logger) *Resolver {
	if len(markers) == 0 {
		markers = defaultMarkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{portal: portal, kv: kv, ttl: ttl, markers: markers, logger: logger}
}

// ResolvePrimary returns the representative attachment for the item. It never
// fails: when the listing errors or comes back empty the sentinel meta (zero
// id, generic name) is returned so the notification can still go out.
func (r *Resolver) ResolvePrimary(ctx context.Context, itemID string) domain.AttachmentMeta {
	key := "attachment:" + itemID

	if raw, ok, err := r.kv.Get(ctx, key); err == nil && ok {
		var meta domain.AttachmentMeta
		if err := json.Unmarshal(raw, &meta); err == nil {
			return meta
		}
	}

	meta := r.pick(ctx, itemID)

	if raw, err := json.Marshal(meta); err == nil {
		if err := r.kv.Set(ctx, key, raw, r.ttl); err != nil {
			r.logger.Warn("attachment cache write failed", slog.String("item", itemID), "error", err)
		}
	}
	return meta
}

func (r *Resolver) pick(ctx context.Context, itemID string) domain.AttachmentMeta {
	list, err := r.portal.Attachments(ctx, itemID)
	if err != nil {
		r.logger.Warn("attachment listing failed", slog.String("item", itemID), "error", err)
		return domain.AttachmentMeta{Name: DefaultName}
	}
	if len(list) == 0 {
		return domain.AttachmentMeta{Name: DefaultName}
	}

	for _, marker := range r.markers {
		normalizedMarker := matching.Normalize(marker)
		for _, att := range list {
			if strings.Contains(matching.Normalize(att.Name), normalizedMarker) {
				return domain.AttachmentMeta{AttachmentID: att.ID, Name: att.Name}
			}
		}
	}

	first := list[0]
	return domain.AttachmentMeta{AttachmentID: first.ID, Name: first.Name}
}
