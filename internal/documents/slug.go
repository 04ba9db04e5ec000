package documents

import (
	"strings"

	"TenderWatch/internal/matching"
)

const maxSlugLen = 40

// Slug turns an upstream display name into a safe, length-bounded token fit
// for file paths and callback payloads.
func Slug(name string) string {
	normalized := matching.Normalize(name)

	var b strings.Builder
	lastDash := true
	for _, r := range normalized {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "documento"
	}
	return slug
}
