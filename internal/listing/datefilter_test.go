package listing

import (
	"testing"
	"time"

	"TenderWatch/internal/domain"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestFilterByDateAcceptsKnownFormats(t *testing.T) {
	t.Parallel()

	loc := mustLocation(t, "America/Lima")
	target := time.Date(2026, time.March, 15, 10, 0, 0, 0, loc)

	items := []domain.ListingItem{
		{ItemID: 1, PublishedAt: "15/03/2026 09:30"},
		{ItemID: 2, PublishedAt: "15/03/2026"},
		{ItemID: 3, PublishedAt: "2026-03-15T08:00:00"},
		{ItemID: 4, PublishedAt: "2026-03-15 08:00:00"},
		{ItemID: 5, PublishedAt: "2026-03-15"},
		{ItemID: 6, PublishedAt: "15-03-2026"},
		{ItemID: 7, PublishedAt: "14/03/2026"},
		{ItemID: 8, PublishedAt: ""},
	}

	got := FilterByDate(items, target, loc)
	if len(got) != 6 {
		t.Fatalf("expected 6 items on target day, got %d", len(got))
	}
	for _, item := range got {
		if item.ItemID == 7 || item.ItemID == 8 {
			t.Fatalf("item %d should have been filtered out", item.ItemID)
		}
	}
}

func TestFilterByDateFallsBackToQuotationFields(t *testing.T) {
	t.Parallel()

	loc := mustLocation(t, "America/Lima")
	target := time.Date(2026, time.March, 15, 0, 0, 0, 0, loc)

	items := []domain.ListingItem{
		{ItemID: 1, PublishedAt: "garbage", QuotationStart: "15/03/2026 08:00"},
		{ItemID: 2, QuotationEnd: "15/03/2026"},
		{ItemID: 3, PublishedAt: "14/03/2026", QuotationStart: "13/03/2026"},
	}

	got := FilterByDate(items, target, loc)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
}

func TestFilterByDatePrefixFallback(t *testing.T) {
	t.Parallel()

	loc := mustLocation(t, "America/Lima")
	target := time.Date(2026, time.March, 15, 0, 0, 0, 0, loc)

	// Unparseable trailing text; the dd/mm/yyyy prefix still identifies the day.
	items := []domain.ListingItem{
		{ItemID: 1, PublishedAt: "15/03/2026 (prorrogado)"},
		{ItemID: 2, PublishedAt: "16/03/2026 (prorrogado)"},
	}

	got := FilterByDate(items, target, loc)
	if len(got) != 1 || got[0].ItemID != 1 {
		t.Fatalf("expected only item 1 via prefix fallback, got %v", got)
	}
}

func TestFilterByDateUndatedItemsExcluded(t *testing.T) {
	t.Parallel()

	loc := mustLocation(t, "America/Lima")
	target := time.Date(2026, time.March, 15, 0, 0, 0, 0, loc)

	items := []domain.ListingItem{
		{ItemID: 1},
		{ItemID: 2, PublishedAt: "sin fecha"},
	}

	if got := FilterByDate(items, target, loc); len(got) != 0 {
		t.Fatalf("undated items must be excluded, got %v", got)
	}
}
