package ports

import (
	"context"
	"time"

	"TenderWatch/internal/domain"
)

// PortalAttachment is one attachment entry from the portal's listing endpoint.
type PortalAttachment struct {
	ID   int64  `json:"id"`
	Name string `json:"nombreArchivo"`
}

// PortalAPI issues authenticated, paced and retried calls against the
// upstream procurement portal.
type PortalAPI interface {
	// Listing fetches one page of contracting processes for a year.
	Listing(ctx context.Context, year, page, pageSize int) ([]domain.ListingItem, domain.PageMeta, error)
	// Attachments lists the downloadable files of one item.
	Attachments(ctx context.Context, itemID string) ([]PortalAttachment, error)
	// Download retrieves attachment bytes plus the upstream content type.
	Download(ctx context.Context, attachmentID int64) ([]byte, string, error)
}

// KeyValueStore is the shared atomic store with TTL semantics backing the
// dataset cache, the idempotency ledger, the attachment cache and the
// per-recipient action locks. Always injected, never ambient global state.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores the value only if the key is absent (or expired) and
	// reports whether this caller won the insert.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// SubscriberRepository reads the subscriber base maintained by the excluded
// admin screens. The core consumes it read-only.
type SubscriberRepository interface {
	ActiveSubscribers(ctx context.Context) ([]domain.Subscriber, error)
}

// DocumentRepository persists stored-document metadata.
type DocumentRepository interface {
	ByAttachmentID(ctx context.Context, attachmentID int64) (*domain.StoredDocument, error)
	Create(ctx context.Context, doc *domain.StoredDocument) error
	Update(ctx context.Context, doc *domain.StoredDocument) error
}

// SendRecordRepository persists the audit trail of dispatch attempts.
type SendRecordRepository interface {
	Record(ctx context.Context, rec domain.SendRecord) error
	FailedSendsForItem(ctx context.Context, itemID string) (int, error)
}

// Channel delivers a notification through one concrete mechanism. The send is
// an external rate-limited API treated as a black box.
type Channel interface {
	Kind() domain.ChannelKind
	Send(ctx context.Context, msg domain.Message) domain.SendOutcome
	// SendDocument delivers a stored file to the recipient where the channel
	// supports it.
	SendDocument(ctx context.Context, recipient, path, caption string) domain.SendOutcome
}

// Analyzer forwards a compatibility-scoring request to the external AI
// collaborator; the core never produces scores itself.
type Analyzer interface {
	Score(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error)
}

// Scheduler controls when engine runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
