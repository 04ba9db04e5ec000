package documents

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"

	"TenderWatch/internal/domain"
)

// maxExtractedChars bounds the text forwarded to the analysis collaborator.
const maxExtractedChars = 20000

// ExtractText pulls plain text out of a stored document so the
// compatibility-scoring collaborator can read it. PDF and HTML payloads are
// parsed; plain text is passed through; other formats are unsupported.
func ExtractText(doc *domain.StoredDocument) (string, error) {
	if doc == nil || !doc.HasLocation() {
		return "", fmt.Errorf("document has no local file")
	}

	data, err := os.ReadFile(doc.Path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}

	switch {
	case sniffFamily(data) == "pdf":
		return extractPDF(doc.Path)
	case looksLikeHTML(data):
		return extractHTML(data)
	case isMostlyText(data):
		return truncate(string(data)), nil
	default:
		return "", fmt.Errorf("unsupported document format for %s", doc.DisplayName)
	}
}

func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return truncate(buf.String()), nil
}

func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style").Remove()
	return truncate(strings.Join(strings.Fields(doc.Text()), " ")), nil
}

func looksLikeHTML(data []byte) bool {
	head := strings.ToLower(string(data[:min(512, len(data))]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

func isMostlyText(data []byte) bool {
	sample := data[:min(512, len(data))]
	binary := 0
	for _, c := range sample {
		if c == 0 || (c < 0x09 && c != 0) {
			binary++
		}
	}
	return binary == 0
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxExtractedChars {
		return s
	}
	return string(runes[:maxExtractedChars])
}
