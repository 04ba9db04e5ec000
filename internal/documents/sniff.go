package documents

import (
	"bytes"
	"strings"
)

// signature pairs a leading magic-byte prefix with the format family it
// proves.
type signature struct {
	prefix []byte
	family string
}

var signatures = []signature{
	{[]byte("%PDF"), "pdf"},
	{[]byte{0x50, 0x4B, 0x03, 0x04}, "zip"}, // zip, docx, xlsx
	{[]byte{0xD0, 0xCF, 0x11, 0xE0}, "ole"}, // legacy doc, xls
	{[]byte("Rar!"), "rar"},
}

// mimeFamilies maps claimed MIME types onto the format family their bytes
// must prove.
var mimeFamilies = map[string]string{
	"application/pdf":              "pdf",
	"application/zip":              "zip",
	"application/x-zip-compressed": "zip",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "zip",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       "zip",
	"application/msword":           "ole",
	"application/vnd.ms-excel":     "ole",
	"application/x-rar-compressed": "rar",
	"application/vnd.rar":          "rar",
}

// sniffFamily returns the format family proven by the leading bytes, or "".
func sniffFamily(data []byte) string {
	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig.prefix) {
			return sig.family
		}
	}
	return ""
}

// verifySignature checks that the byte signature corresponds to the claimed
// MIME. Unknown MIME types and text payloads pass; a known MIME whose magic
// bytes disagree is a hard integrity failure.
func verifySignature(data []byte, claimedMIME string) bool {
	mime := strings.ToLower(strings.TrimSpace(claimedMIME))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}

	wantFamily, known := mimeFamilies[mime]
	if !known {
		return true
	}
	return sniffFamily(data) == wantFamily
}
