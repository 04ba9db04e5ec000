package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritics and collapses runs of whitespace.
// Both haystacks and keywords pass through here so comparisons stay
// accent- and case-insensitive.
func Normalize(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		// Transform failures only happen on invalid UTF-8; fall back to the
		// input so matching degrades instead of breaking.
		folded = s
	}
	lowered := strings.ToLower(folded)
	return strings.Join(strings.Fields(lowered), " ")
}
