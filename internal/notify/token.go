package notify

import (
	"fmt"
	"strconv"
	"strings"

	"TenderWatch/internal/documents"
)

// Inline-button actions understood by the webhook listener.
const (
	ActionAnalyze  = "analyze"
	ActionDownload = "download"
)

// BuildToken encodes action, item and attachment into the callback payload
// carried by an inline button: action_itemId_attachmentId_slug.
func BuildToken(action, itemID string, attachmentID int64, name string) string {
	return strings.Join([]string{
		action,
		itemID,
		strconv.FormatInt(attachmentID, 10),
		documents.Slug(name),
	}, "_")
}

// Token is a decoded inline-button callback payload.
type Token struct {
	Action       string
	ItemID       string
	AttachmentID int64
	Slug         string
}

// ParseToken decodes a callback payload built by BuildToken. Item identifiers
// that fall back to process codes may themselves contain underscores; the slug
// and attachment id never do, so those anchor from the right.
func ParseToken(raw string) (Token, error) {
	action, rest, ok := strings.Cut(raw, "_")
	if !ok {
		return Token{}, fmt.Errorf("malformed callback token %q", raw)
	}
	if action != ActionAnalyze && action != ActionDownload {
		return Token{}, fmt.Errorf("unknown callback action %q", action)
	}

	slugIdx := strings.LastIndex(rest, "_")
	if slugIdx < 0 {
		return Token{}, fmt.Errorf("malformed callback token %q", raw)
	}
	slug := rest[slugIdx+1:]
	rest = rest[:slugIdx]

	idIdx := strings.LastIndex(rest, "_")
	if idIdx < 0 {
		return Token{}, fmt.Errorf("malformed callback token %q", raw)
	}
	attachmentID, err := strconv.ParseInt(rest[idIdx+1:], 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("invalid attachment id in token %q: %w", raw, err)
	}

	return Token{
		Action:       action,
		ItemID:       rest[:idIdx],
		AttachmentID: attachmentID,
		Slug:         slug,
	}, nil
}
