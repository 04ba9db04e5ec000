// Package documents persists portal attachments locally, keyed by the
// upstream attachment id, with SHA-256 and MIME-signature verification of the
// actual bytes.
package documents

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

// ErrIntegrity marks corrupt bytes: the payload signature contradicts the
// claimed MIME type.
var ErrIntegrity = errors.New("document integrity failure")

// Store owns the on-disk layout and the stored-document metadata records.
type Store struct {
	repo        ports.DocumentRepository
	root        string
	allowed     map[string]struct{}
	fallbackExt string
	logger      *slog.Logger
}

// NewStore wires the metadata repository and the storage root.
func NewStore(repo ports.DocumentRepository, root string, allowedExts []string, fallbackExt string, logger *slog.Logger) *Store {
	allowed := make(map[string]struct{}, len(allowedExts))
	for _, ext := range allowedExts {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	if fallbackExt == "" {
		fallbackExt = "pdf"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:        repo,
		root:        root,
		allowed:     allowed,
		fallbackExt: strings.TrimPrefix(fallbackExt, "."),
		logger:      logger,
	}
}

// ResolveOrCreate looks the document up by attachment id, creating the
// metadata record (binary fetched lazily) when absent. The item context is
// denormalized onto the record for fast listing.
func (s *Store) ResolveOrCreate(ctx context.Context, attachmentID int64, displayName, itemID string) (*domain.StoredDocument, error) {
	if attachmentID == 0 {
		return nil, fmt.Errorf("attachment id is zero")
	}

	doc, err := s.repo.ByAttachmentID(ctx, attachmentID)
	if err != nil {
		return nil, fmt.Errorf("lookup document %d: %w", attachmentID, err)
	}
	if doc != nil {
		return doc, nil
	}

	now := time.Now()
	doc = &domain.StoredDocument{
		ID:           uuid.NewString(),
		AttachmentID: attachmentID,
		ItemID:       itemID,
		DisplayName:  displayName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document %d: %w", attachmentID, err)
	}
	return doc, nil
}

// StoreBinary writes the payload under the derived path, recomputes the
// SHA-256 digest and validates the byte signature against the claimed MIME.
// A signature mismatch is a hard error and nothing is persisted.
func (s *Store) StoreBinary(ctx context.Context, doc *domain.StoredDocument, data []byte, mime, name string) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrIntegrity)
	}
	if !verifySignature(data, mime) {
		return fmt.Errorf("%w: signature does not match claimed type %q", ErrIntegrity, mime)
	}

	digest := sha256.Sum256(data)

	path := s.pathFor(doc, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create document dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename document: %w", err)
	}

	now := time.Now()
	doc.Path = path
	doc.Size = int64(len(data))
	doc.SHA256 = hex.EncodeToString(digest[:])
	doc.MIME = mime
	doc.FetchedAt = &now
	doc.VerifiedAt = &now
	doc.UpdatedAt = now

	if err := s.repo.Update(ctx, doc); err != nil {
		return fmt.Errorf("persist document metadata: %w", err)
	}

	s.logger.Info("document stored",
		slog.String("item", doc.ItemID),
		slog.Int64("attachment", doc.AttachmentID),
		slog.Int64("bytes", doc.Size),
	)
	return nil
}

// HasUsableLocalFile reports whether the record points at a present,
// non-empty file. A dangling pointer is purged immediately so a phantom
// cached state can never mask real absence.
func (s *Store) HasUsableLocalFile(ctx context.Context, doc *domain.StoredDocument) bool {
	if !doc.HasLocation() {
		return false
	}

	info, err := os.Stat(doc.Path)
	if err == nil && info.Size() > 0 {
		return true
	}

	s.logger.Warn("purging unusable document pointer",
		slog.String("path", doc.Path),
		slog.Int64("attachment", doc.AttachmentID),
	)
	doc.Purge()
	doc.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, doc); err != nil {
		s.logger.Error("purge persist failed", "error", err)
	}
	return false
}

// pathFor derives {root}/{itemID}/{attachmentID}_{recordID}_{slug}.{ext};
// extensions outside the whitelist collapse to the configured fallback.
func (s *Store) pathFor(doc *domain.StoredDocument, name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if _, ok := s.allowed[ext]; !ok {
		ext = s.fallbackExt
	}

	base := strings.TrimSuffix(name, filepath.Ext(name))
	filename := strconv.FormatInt(doc.AttachmentID, 10) + "_" + doc.ID + "_" + Slug(base) + "." + ext
	return filepath.Join(s.root, doc.ItemID, filename)
}
