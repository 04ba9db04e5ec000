package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

// DocumentRepository persists stored-document metadata in Postgres.
type DocumentRepository struct {
	db *sql.DB
}

var _ ports.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository wires a sql.DB implementation.
func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// ByAttachmentID looks a document up by its unique upstream attachment id;
// nil means not found.
func (r *DocumentRepository) ByAttachmentID(ctx context.Context, attachmentID int64) (*domain.StoredDocument, error) {
	query, args, err := psql.
		Select("id", "attachment_id", "item_id", "display_name", "path",
			"size_bytes", "sha256", "mime", "fetched_at", "verified_at",
			"created_at", "updated_at").
		From("stored_documents").
		Where(sq.Eq{"attachment_id": attachmentID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build document query: %w", err)
	}

	var doc domain.StoredDocument
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&doc.ID, &doc.AttachmentID, &doc.ItemID, &doc.DisplayName, &doc.Path,
		&doc.Size, &doc.SHA256, &doc.MIME, &doc.FetchedAt, &doc.VerifiedAt,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query document: %w", err)
	}
	return &doc, nil
}

// Create inserts a fresh metadata record.
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.StoredDocument) error {
	query, args, err := psql.
		Insert("stored_documents").
		Columns("id", "attachment_id", "item_id", "display_name", "path",
			"size_bytes", "sha256", "mime", "fetched_at", "verified_at",
			"created_at", "updated_at").
		Values(doc.ID, doc.AttachmentID, doc.ItemID, doc.DisplayName, doc.Path,
			doc.Size, doc.SHA256, doc.MIME, doc.FetchedAt, doc.VerifiedAt,
			doc.CreatedAt, doc.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build document insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Update persists the mutable fields of an existing record.
func (r *DocumentRepository) Update(ctx context.Context, doc *domain.StoredDocument) error {
	query, args, err := psql.
		Update("stored_documents").
		Set("path", doc.Path).
		Set("size_bytes", doc.Size).
		Set("sha256", doc.SHA256).
		Set("mime", doc.MIME).
		Set("fetched_at", doc.FetchedAt).
		Set("verified_at", doc.VerifiedAt).
		Set("updated_at", doc.UpdatedAt).
		Where(sq.Eq{"id": doc.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build document update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}
