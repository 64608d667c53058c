// Package parser turns uploaded book files into Documents: metadata, a flat
// outline, page-ranged text, and standalone sub-document artifacts.
package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/bookgest/internal/outline"
)

// Document is a parsed book. Page numbers are 1-based. Formats without
// physical pages open one synthetic page per heading, so page math works the
// same for every format.
type Document interface {
	Title() string
	Author() string
	TotalPages() int

	// Outline returns the flat table of contents in source order.
	Outline() []outline.Entry

	// RangeText returns all text on pages [start, endExcl).
	RangeText(start, endExcl int) (string, error)

	// ExtractRange writes a standalone sub-document covering pages
	// [start, endExcl) to w.
	ExtractRange(start, endExcl int, w io.Writer) error

	// ArtifactExt is the file extension ExtractRange output should carry.
	ArtifactExt() string
}

// Parser converts raw document bytes into a Document. Parse fails with
// outline.ErrNoOutline when the file has no heading structure at all.
type Parser interface {
	Parse(r io.Reader, filename string) (Document, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".pdf":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return &PDFParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// baseName strips directory and extension from a filename.
func baseName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
