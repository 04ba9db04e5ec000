package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"TenderWatch/internal/domain"
	"TenderWatch/internal/matching"
)

type fakeDataset struct {
	items []domain.ListingItem
	hit   bool
	err   error
}

func (f *fakeDataset) GetDataset(context.Context, int, int) ([]domain.ListingItem, domain.PageMeta, bool, error) {
	return f.items, domain.PageMeta{TotalElements: len(f.items)}, f.hit, f.err
}

// fakeLedger remembers identifiers across calls, like the real thing.
type fakeLedger struct {
	seen map[string]struct{}
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{seen: map[string]struct{}{}}
}

func (f *fakeLedger) Partition(_ context.Context, items []domain.ListingItem, dayKey string) ([]domain.ListingItem, []domain.ListingItem, error) {
	var fresh, old []domain.ListingItem
	for _, item := range items {
		id := item.Identifier()
		if id == "" {
			fresh = append(fresh, item)
			continue
		}
		key := dayKey + ":" + id
		if _, ok := f.seen[key]; ok {
			old = append(old, item)
			continue
		}
		f.seen[key] = struct{}{}
		fresh = append(fresh, item)
	}
	return fresh, old, nil
}

type fakeResolver struct {
	meta domain.AttachmentMeta
}

func (f *fakeResolver) ResolvePrimary(context.Context, string) domain.AttachmentMeta {
	return f.meta
}

type dispatchCall struct {
	itemID  string
	subID   string
	matched []string
}

type fakeSender struct {
	outcome domain.SendOutcome
	calls   []dispatchCall
}

func (f *fakeSender) Dispatch(_ context.Context, sub domain.Subscriber, item domain.ListingItem, _ domain.AttachmentMeta, matched []string) (domain.SendOutcome, error) {
	f.calls = append(f.calls, dispatchCall{itemID: item.Identifier(), subID: sub.ID(), matched: matched})
	return f.outcome, nil
}

type fakeSubscriber struct {
	id        string
	keywords  []string
	notifyAll bool
}

func (f fakeSubscriber) ID() string                  { return f.id }
func (f fakeSubscriber) RecipientID() string         { return f.id }
func (f fakeSubscriber) Channel() domain.ChannelKind { return domain.ChannelTelegram }
func (f fakeSubscriber) Keywords() []string          { return f.keywords }
func (f fakeSubscriber) NotifyAll() bool             { return f.notifyAll }
func (f fakeSubscriber) CompanyProfile() string      { return "" }

type fakeSubscriberRepo struct {
	subs []domain.Subscriber
	err  error
}

func (f *fakeSubscriberRepo) ActiveSubscribers(context.Context) ([]domain.Subscriber, error) {
	return f.subs, f.err
}

func lima(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Lima")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

// Three fresh items, one keyword subscriber: only the consultoría item
// matches, so one send goes out and the other two land in the follow-up list.
func TestRunDaySingleMatchScenario(t *testing.T) {
	t.Parallel()

	loc := lima(t)
	day := time.Date(2026, time.March, 15, 9, 0, 0, 0, loc)

	items := []domain.ListingItem{
		{ItemID: 1, ProcessCode: "COT-1", Object: "OBRA DE SANEAMIENTO", PublishedAt: "15/03/2026"},
		{ItemID: 2, ProcessCode: "COT-2", Object: "ADQUISICIÓN DE CEMENTO", PublishedAt: "15/03/2026"},
		{ItemID: 3, ProcessCode: "COT-3", Object: "CONSULTORÍA AMBIENTAL", PublishedAt: "15/03/2026"},
	}
	sender := &fakeSender{outcome: domain.SendOutcome{Success: true}}
	engine := NewEngine(EngineDeps{
		Dataset:     &fakeDataset{items: items},
		Ledger:      newFakeLedger(),
		Matcher:     matching.NewMatcher(),
		Attachments: &fakeResolver{meta: domain.AttachmentMeta{AttachmentID: 7, Name: "TDR.pdf"}},
		Dispatcher:  sender,
		Subscribers: &fakeSubscriberRepo{subs: []domain.Subscriber{fakeSubscriber{id: "s1", keywords: []string{"consultoria"}}}},
		Location:    loc,
	})

	report, err := engine.RunDay(context.Background(), day)
	if err != nil {
		t.Fatalf("RunDay: %v", err)
	}

	if report.TotalNew != 3 {
		t.Fatalf("total_new: got %d, want 3", report.TotalNew)
	}
	if report.Matches != 1 {
		t.Fatalf("coincidencias: got %d, want 1", report.Matches)
	}
	if report.Sends != 1 {
		t.Fatalf("envios: got %d, want 1", report.Sends)
	}
	if len(report.ItemsWithoutSend) != 2 {
		t.Fatalf("procesos_sin_envio: got %v, want the two unmatched items", report.ItemsWithoutSend)
	}
	for _, id := range report.ItemsWithoutSend {
		if id == "3" {
			t.Fatalf("the delivered item must not appear in the follow-up list")
		}
	}

	if len(sender.calls) != 1 || sender.calls[0].itemID != "3" {
		t.Fatalf("unexpected dispatches: %+v", sender.calls)
	}
	if len(sender.calls[0].matched) != 1 || sender.calls[0].matched[0] != "consultoria" {
		t.Fatalf("matched keywords not forwarded: %+v", sender.calls[0].matched)
	}

	stats := report.PerSubscriber["s1"]
	if stats == nil || stats.Matches != 1 || stats.Sends != 1 {
		t.Fatalf("per-subscriber stats wrong: %+v", stats)
	}
}

func TestRunDaySecondRunSendsNothing(t *testing.T) {
	t.Parallel()

	loc := lima(t)
	day := time.Date(2026, time.March, 15, 9, 0, 0, 0, loc)
	items := []domain.ListingItem{
		{ItemID: 1, Object: "CONSULTORÍA", PublishedAt: "15/03/2026"},
	}
	sender := &fakeSender{outcome: domain.SendOutcome{Success: true}}
	engine := NewEngine(EngineDeps{
		Dataset:     &fakeDataset{items: items},
		Ledger:      newFakeLedger(),
		Matcher:     matching.NewMatcher(),
		Attachments: &fakeResolver{},
		Dispatcher:  sender,
		Subscribers: &fakeSubscriberRepo{subs: []domain.Subscriber{fakeSubscriber{id: "s1", notifyAll: true}}},
		Location:    loc,
	})

	ctx := context.Background()
	if _, err := engine.RunDay(ctx, day); err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := engine.RunDay(ctx, day)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.TotalNew != 0 || second.AlreadySeen != 1 {
		t.Fatalf("second run must see nothing new: %+v", second)
	}
	if len(sender.calls) != 1 {
		t.Fatalf("expected no second dispatch, got %d", len(sender.calls))
	}
}

func TestRunDayFailedSendsLandInFollowUpList(t *testing.T) {
	t.Parallel()

	loc := lima(t)
	day := time.Date(2026, time.March, 15, 9, 0, 0, 0, loc)
	items := []domain.ListingItem{{ItemID: 1, Object: "CONSULTORÍA", PublishedAt: "15/03/2026"}}
	sender := &fakeSender{outcome: domain.SendOutcome{Message: "chat not found"}}
	engine := NewEngine(EngineDeps{
		Dataset:     &fakeDataset{items: items},
		Ledger:      newFakeLedger(),
		Matcher:     matching.NewMatcher(),
		Attachments: &fakeResolver{},
		Dispatcher:  sender,
		Subscribers: &fakeSubscriberRepo{subs: []domain.Subscriber{fakeSubscriber{id: "s1", notifyAll: true}}},
		Location:    loc,
	})

	report, err := engine.RunDay(context.Background(), day)
	if err != nil {
		t.Fatalf("RunDay: %v", err)
	}
	if report.Matches != 1 || report.Sends != 0 || report.Failures != 1 {
		t.Fatalf("unexpected counters: %+v", report)
	}
	if len(report.ItemsWithoutSend) != 1 || report.ItemsWithoutSend[0] != "1" {
		t.Fatalf("failed item must be flagged for follow-up: %v", report.ItemsWithoutSend)
	}
	if len(report.Errors) == 0 {
		t.Fatalf("send failure must be recorded in the error list")
	}
}

func TestRunDayHardFailures(t *testing.T) {
	t.Parallel()

	loc := lima(t)
	day := time.Date(2026, time.March, 15, 9, 0, 0, 0, loc)

	noSubs := NewEngine(EngineDeps{
		Dataset:     &fakeDataset{},
		Ledger:      newFakeLedger(),
		Matcher:     matching.NewMatcher(),
		Attachments: &fakeResolver{},
		Dispatcher:  &fakeSender{},
		Subscribers: &fakeSubscriberRepo{},
		Location:    loc,
	})
	if _, err := noSubs.RunDay(context.Background(), day); !errors.Is(err, ErrNoSubscribers) {
		t.Fatalf("expected ErrNoSubscribers, got %v", err)
	}

	noData := NewEngine(EngineDeps{
		Dataset:     &fakeDataset{err: errors.New("portal down")},
		Ledger:      newFakeLedger(),
		Matcher:     matching.NewMatcher(),
		Attachments: &fakeResolver{},
		Dispatcher:  &fakeSender{},
		Subscribers: &fakeSubscriberRepo{subs: []domain.Subscriber{fakeSubscriber{id: "s1", notifyAll: true}}},
		Location:    loc,
	})
	if _, err := noData.RunDay(context.Background(), day); !errors.Is(err, ErrNoDataset) {
		t.Fatalf("expected ErrNoDataset, got %v", err)
	}
}

func TestRunDayFiltersOtherDays(t *testing.T) {
	t.Parallel()

	loc := lima(t)
	day := time.Date(2026, time.March, 15, 9, 0, 0, 0, loc)
	items := []domain.ListingItem{
		{ItemID: 1, Object: "CONSULTORÍA", PublishedAt: "15/03/2026"},
		{ItemID: 2, Object: "CONSULTORÍA", PublishedAt: "14/03/2026"},
		{ItemID: 3, Object: "CONSULTORÍA"},
	}
	engine := NewEngine(EngineDeps{
		Dataset:     &fakeDataset{items: items},
		Ledger:      newFakeLedger(),
		Matcher:     matching.NewMatcher(),
		Attachments: &fakeResolver{},
		Dispatcher:  &fakeSender{outcome: domain.SendOutcome{Success: true}},
		Subscribers: &fakeSubscriberRepo{subs: []domain.Subscriber{fakeSubscriber{id: "s1", notifyAll: true}}},
		Location:    loc,
	})

	report, err := engine.RunDay(context.Background(), day)
	if err != nil {
		t.Fatalf("RunDay: %v", err)
	}
	if report.TotalReceived != 3 || report.TotalFiltered != 1 || report.TotalNew != 1 {
		t.Fatalf("date filter wrong: received=%d filtered=%d new=%d",
			report.TotalReceived, report.TotalFiltered, report.TotalNew)
	}
}
