// Package matching evaluates subscriber keyword sets against listing items.
package matching

import (
	"strings"

	"TenderWatch/internal/domain"
)

// Result is the outcome of evaluating one subscriber against one item.
type Result struct {
	Pass            bool
	MatchedKeywords []string
}

// Matcher decides whether an item is relevant for a subscriber.
type Matcher struct{}

// NewMatcher constructs a stateless matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Evaluate builds the haystack from entity name, process code and object,
// normalizes it and checks every subscriber keyword as a substring.
// Notify-all subscribers pass unconditionally; subscribers with no keywords
// and no notify-all flag never pass.
func (m *Matcher) Evaluate(item domain.ListingItem, sub domain.Subscriber) Result {
	if sub.NotifyAll() {
		return Result{Pass: true}
	}

	keywords := sub.Keywords()
	if len(keywords) == 0 {
		return Result{}
	}

	haystack := Normalize(item.EntityName + " " + item.ProcessCode + " " + item.Object)

	var matched []string
	seen := map[string]struct{}{}
	for _, kw := range keywords {
		normalized := Normalize(kw)
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		if strings.Contains(haystack, normalized) {
			seen[normalized] = struct{}{}
			matched = append(matched, normalized)
		}
	}

	return Result{Pass: len(matched) > 0, MatchedKeywords: matched}
}
