package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/ports"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// subscriberBase carries the fields shared by every channel kind.
type subscriberBase struct {
	id        string
	recipient string
	profile   string
	notifyAll bool
	keywords  []string
}

func (s subscriberBase) ID() string             { return s.id }
func (s subscriberBase) RecipientID() string    { return s.recipient }
func (s subscriberBase) Keywords() []string     { return s.keywords }
func (s subscriberBase) NotifyAll() bool        { return s.notifyAll }
func (s subscriberBase) CompanyProfile() string { return s.profile }

// telegramSubscriber and emailSubscriber are the per-channel implementations
// of the domain.Subscriber capability interface.
type telegramSubscriber struct{ subscriberBase }

func (telegramSubscriber) Channel() domain.ChannelKind { return domain.ChannelTelegram }

type emailSubscriber struct{ subscriberBase }

func (emailSubscriber) Channel() domain.ChannelKind { return domain.ChannelEmail }

// SubscriberRepository reads the subscriber base from Postgres. The admin
// screens own writes; the core only lists active rows.
type SubscriberRepository struct {
	db *sql.DB
}

var _ ports.SubscriberRepository = (*SubscriberRepository)(nil)

// NewSubscriberRepository wires a sql.DB implementation.
func NewSubscriberRepository(db *sql.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// ActiveSubscribers returns every active subscriber; rows with an unknown
// channel kind are skipped rather than failing the run.
func (r *SubscriberRepository) ActiveSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	query, args, err := psql.
		Select("id", "channel", "recipient", "notify_all", "company_profile", "keywords").
		From("subscribers").
		Where(sq.Eq{"active": true}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build subscriber query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	var subscribers []domain.Subscriber
	for rows.Next() {
		var base subscriberBase
		var channel string
		var keywords pq.StringArray
		if err := rows.Scan(&base.id, &channel, &base.recipient, &base.notifyAll, &base.profile, &keywords); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		base.keywords = keywords

		switch domain.ChannelKind(channel) {
		case domain.ChannelTelegram:
			subscribers = append(subscribers, telegramSubscriber{base})
		case domain.ChannelEmail:
			subscribers = append(subscribers, emailSubscriber{base})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return subscribers, nil
}
