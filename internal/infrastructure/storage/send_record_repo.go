package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

// SendRecordRepository appends dispatch outcomes to the audit trail.
type SendRecordRepository struct {
	db *sql.DB
}

var _ ports.SendRecordRepository = (*SendRecordRepository)(nil)

// NewSendRecordRepository wires a sql.DB implementation.
func NewSendRecordRepository(db *sql.DB) *SendRecordRepository {
	return &SendRecordRepository{db: db}
}

// Record appends one send record.
func (r *SendRecordRepository) Record(ctx context.Context, rec domain.SendRecord) error {
	query, args, err := psql.
		Insert("send_records").
		Columns("item_id", "subscriber_id", "channel", "status", "message",
			"matched_keywords", "sent_at").
		Values(rec.ItemID, rec.SubscriberID, string(rec.Channel), string(rec.Status),
			rec.Message, pq.StringArray(rec.MatchedKeywords), rec.SentAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build send record insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert send record: %w", err)
	}
	return nil
}

// FailedSendsForItem returns how many dispatches have failed for an item; the
// dispatcher surfaces items that keep accumulating failures.
func (r *SendRecordRepository) FailedSendsForItem(ctx context.Context, itemID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM send_records WHERE item_id = $1 AND status = $2`,
		itemID, string(domain.SendStatusFailed),
	).Scan(&count)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("count failed sends: %w", err)
	}
	return count, nil
}
