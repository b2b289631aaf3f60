package ingest

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Extractor converts a raw document into plain markdown-ish text for the
// chunker. Extraction failures are I/O-layer errors; the chunker itself
// never fails on well-formed text.
type Extractor interface {
	Extract(content []byte) (string, error)
}

// Compile-time interface checks.
var (
	_ Extractor = (*TextExtractor)(nil)
	_ Extractor = (*PDFExtractor)(nil)
)

// TextExtractor passes markdown and plain text through, dropping invalid
// UTF-8 and normalizing line endings.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor { return &TextExtractor{} }

func (e *TextExtractor) Extract(content []byte) (string, error) {
	s := string(content)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return s, nil
}

// ForFile returns the extractor for a file path based on its extension.
// The bool reports whether the extension is supported.
func ForFile(path string) (Extractor, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt":
		return NewTextExtractor(), true
	case ".pdf":
		return NewPDFExtractor(), true
	}
	return nil, false
}
