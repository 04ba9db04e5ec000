package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

// Fetcher combines the store with the portal download endpoint: resolve the
// metadata record, reuse a usable local file, otherwise download and persist.
type Fetcher struct {
	store  *Store
	portal ports.PortalAPI
	logger *slog.Logger
}

// NewFetcher wires the store and portal client.
func NewFetcher(store *Store, portal ports.PortalAPI, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{store: store, portal: portal, logger: logger}
}

// EnsureLocal guarantees a verified local copy of the attachment and returns
// its record. An integrity failure triggers one purge-and-refetch cycle
// before surfacing as an error.
func (f *Fetcher) EnsureLocal(ctx context.Context, meta domain.AttachmentMeta, itemID string) (*domain.StoredDocument, error) {
	if meta.IsSentinel() {
		return nil, fmt.Errorf("item %s has no resolvable attachment", itemID)
	}

	doc, err := f.store.ResolveOrCreate(ctx, meta.AttachmentID, meta.Name, itemID)
	if err != nil {
		return nil, err
	}

	if f.store.HasUsableLocalFile(ctx, doc) {
		return doc, nil
	}

	if err := f.download(ctx, doc, meta); err != nil {
		if !errors.Is(err, ErrIntegrity) {
			return nil, err
		}
		f.logger.Warn("integrity failure, refetching once",
			slog.Int64("attachment", meta.AttachmentID), "error", err)
		doc.Purge()
		if err := f.download(ctx, doc, meta); err != nil {
			return nil, fmt.Errorf("refetch after integrity failure: %w", err)
		}
	}
	return doc, nil
}

func (f *Fetcher) download(ctx context.Context, doc *domain.StoredDocument, meta domain.AttachmentMeta) error {
	data, mime, err := f.portal.Download(ctx, meta.AttachmentID)
	if err != nil {
		return fmt.Errorf("download attachment %d: %w", meta.AttachmentID, err)
	}
	return f.store.StoreBinary(ctx, doc, data, mime, meta.Name)
}
