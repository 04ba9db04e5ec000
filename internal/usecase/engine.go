// Package usecase composes the ingestion, matching and fan-out pipeline into
// single engine runs.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/listing"
	"TenderWatch/internal/matching"
	"TenderWatch/internal/metrics"
	"TenderWatch/internal/ports"
)

// Hard preconditions: without a dataset or subscribers there is nothing to do
// and the run ends early with a descriptive error.
var (
	ErrNoDataset     = errors.New("no dataset available")
	ErrNoSubscribers = errors.New("no active subscribers configured")
)

// DatasetProvider serves the shared listing snapshot.
type DatasetProvider interface {
	GetDataset(ctx context.Context, year, pageSize int) ([]domain.ListingItem, domain.PageMeta, bool, error)
}

// Partitioner splits items into new and already-processed for a day.
type Partitioner interface {
	Partition(ctx context.Context, items []domain.ListingItem, dayKey string) (newItems, seen []domain.ListingItem, err error)
}

// ItemMatcher evaluates one subscriber against one item.
type ItemMatcher interface {
	Evaluate(item domain.ListingItem, sub domain.Subscriber) matching.Result
}

// AttachmentResolver picks the representative attachment for an item.
type AttachmentResolver interface {
	ResolvePrimary(ctx context.Context, itemID string) domain.AttachmentMeta
}

// Sender dispatches one notification and records the outcome.
type Sender interface {
	Dispatch(ctx context.Context, sub domain.Subscriber, item domain.ListingItem, att domain.AttachmentMeta, matched []string) (domain.SendOutcome, error)
}

// EngineDeps wires all driven adapters into the orchestration engine.
type EngineDeps struct {
	Dataset     DatasetProvider
	Ledger      Partitioner
	Matcher     ItemMatcher
	Attachments AttachmentResolver
	Dispatcher  Sender
	Subscribers ports.SubscriberRepository
	Metrics     *metrics.Collector
	Logger      *slog.Logger

	Year     int
	PageSize int
	Location *time.Location
}

// Engine runs the full pipeline once per invocation: dataset → date filter →
// ledger partition → per (subscriber × new item) match, resolve, dispatch →
// aggregate. Per-item and per-subscriber errors are collected, never fatal.
type Engine struct {
	deps EngineDeps
}

// NewEngine constructs the orchestration component.
func NewEngine(deps EngineDeps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.PageSize <= 0 {
		deps.PageSize = 500
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector()
	}
	return &Engine{deps: deps}
}

// RunDay executes one run for the given calendar day. It fails outright only
// when no dataset can be produced or no active subscriber exists.
func (e *Engine) RunDay(ctx context.Context, day time.Time) (*domain.RunReport, error) {
	d := e.deps
	dayKey := day.In(d.Location).Format("2006-01-02")
	report := domain.NewRunReport(dayKey)
	start := time.Now()

	subscribers, err := d.Subscribers.ActiveSubscribers(ctx)
	if err != nil {
		d.Metrics.RecordRun("error", time.Since(start))
		return nil, fmt.Errorf("load subscribers: %w", err)
	}
	if len(subscribers) == 0 {
		d.Metrics.RecordRun("empty", time.Since(start))
		return nil, ErrNoSubscribers
	}

	year := d.Year
	if year == 0 {
		year = day.In(d.Location).Year()
	}
	items, _, cacheHit, err := d.Dataset.GetDataset(ctx, year, d.PageSize)
	if err != nil {
		d.Metrics.RecordRun("error", time.Since(start))
		return nil, fmt.Errorf("%w: %v", ErrNoDataset, err)
	}
	report.TotalReceived = len(items)
	report.DatasetCacheHit = cacheHit

	filtered := listing.FilterByDate(items, day, d.Location)
	report.TotalFiltered = len(filtered)

	newItems, seen, err := d.Ledger.Partition(ctx, filtered, dayKey)
	if err != nil {
		report.AddError(fmt.Sprintf("ledger: %v", err))
	}
	report.TotalNew = len(newItems)
	report.AlreadySeen = len(seen)
	d.Metrics.RecordNewItems(len(newItems))

	d.Logger.Info("dataset ready",
		slog.String("day", dayKey),
		slog.Int("received", report.TotalReceived),
		slog.Int("filtered", report.TotalFiltered),
		slog.Int("new", report.TotalNew),
		slog.Int("already_seen", report.AlreadySeen),
		slog.Bool("cache_hit", cacheHit),
	)

	for _, item := range newItems {
		if err := ctx.Err(); err != nil {
			report.AddError("run cancelled")
			break
		}
		e.fanOut(ctx, item, subscribers, report)
	}

	report.FinishedAt = time.Now()
	d.Metrics.RecordRun("ok", time.Since(start))
	d.Logger.Info("run finished",
		slog.String("day", dayKey),
		slog.Int("matches", report.Matches),
		slog.Int("sends", report.Sends),
		slog.Int("failures", report.Failures),
		slog.Int("items_without_send", len(report.ItemsWithoutSend)),
	)
	return report, nil
}

// fanOut evaluates every subscriber against one new item and dispatches on
// match. The item lands in ItemsWithoutSend when no send succeeded.
func (e *Engine) fanOut(ctx context.Context, item domain.ListingItem, subscribers []domain.Subscriber, report *domain.RunReport) {
	d := e.deps
	itemID := item.Identifier()
	successes := 0

	for _, sub := range subscribers {
		if err := ctx.Err(); err != nil {
			break
		}

		result := d.Matcher.Evaluate(item, sub)
		if !result.Pass {
			continue
		}

		stats := report.Stats(sub.ID())
		stats.Matches++
		report.Matches++

		att := d.Attachments.ResolvePrimary(ctx, itemID)

		outcome, err := d.Dispatcher.Dispatch(ctx, sub, item, att, result.MatchedKeywords)
		if err != nil {
			report.AddError(fmt.Sprintf("item %s subscriber %s: %v", itemID, sub.ID(), err))
		}
		d.Metrics.RecordSend(string(sub.Channel()), outcome.Success)

		if outcome.Success {
			stats.Sends++
			report.Sends++
			successes++
		} else {
			stats.Failures++
			report.Failures++
			report.AddError(fmt.Sprintf("send failed for item %s subscriber %s: %s", itemID, sub.ID(), outcome.Message))
		}
	}

	if successes == 0 {
		label := itemID
		if label == "" {
			label = item.ProcessCode
		}
		report.ItemsWithoutSend = append(report.ItemsWithoutSend, label)
	}
}
