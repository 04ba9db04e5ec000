package domain

import "time"

// AttachmentMeta identifies the representative attachment chosen for an item.
// A zero AttachmentID marks the sentinel "no usable attachment" value; the
// notification still goes out, just without a working download.
type AttachmentMeta struct {
	AttachmentID int64  `json:"attachment_id"`
	Name         string `json:"name"`
}

// IsSentinel reports whether the meta carries no real attachment.
func (m AttachmentMeta) IsSentinel() bool {
	return m.AttachmentID == 0
}

// StoredDocument is the persistent record of a locally stored attachment.
// A document with a non-empty Path must point at a byte-identical,
// hash-matching file; otherwise it is purged rather than left dangling.
type StoredDocument struct {
	ID           string
	AttachmentID int64
	ItemID       string
	DisplayName  string
	Path         string
	Size         int64
	SHA256       string
	MIME         string
	FetchedAt    *time.Time
	VerifiedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasLocation reports whether the record claims a local copy exists.
func (d StoredDocument) HasLocation() bool {
	return d.Path != ""
}

// Purge clears the storage pointer and every field derived from the bytes.
func (d *StoredDocument) Purge() {
	d.Path = ""
	d.Size = 0
	d.SHA256 = ""
	d.MIME = ""
	d.FetchedAt = nil
	d.VerifiedAt = nil
}
