// Package listing holds pure helpers over portal listing snapshots.
package listing

import (
	"strings"
	"time"

	"TenderWatch/internal/domain"
)

// dateLayouts is the fixed, ordered list of formats the portal has been seen
// emitting. Order matters: the most common format goes first.
var dateLayouts = []string{
	"02/01/2006 15:04",
	"02/01/2006",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-01-2006",
}

// FilterByDate keeps items whose publication or quotation-window fields fall
// on the target calendar day in the reference timezone. Items with no
// parseable date in any field are excluded without error; as a last resort
// the first ten characters of the raw text are compared against the target's
// dd/mm/yyyy rendering.
func FilterByDate(items []domain.ListingItem, target time.Time, loc *time.Location) []domain.ListingItem {
	if loc == nil {
		loc = time.UTC
	}
	targetDay := target.In(loc)
	canonical := targetDay.Format("02/01/2006")

	matched := make([]domain.ListingItem, 0, len(items))
	for _, item := range items {
		if itemOnDay(item, targetDay, canonical, loc) {
			matched = append(matched, item)
		}
	}
	return matched
}

func itemOnDay(item domain.ListingItem, target time.Time, canonical string, loc *time.Location) bool {
	for _, field := range item.DateFields() {
		text := strings.TrimSpace(field)
		if text == "" {
			continue
		}
		if parsed, ok := parseAny(text, loc); ok {
			if sameDay(parsed, target) {
				return true
			}
			continue
		}
		if len(text) >= 10 && text[:10] == canonical {
			return true
		}
	}
	return false
}

func parseAny(text string, loc *time.Location) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
