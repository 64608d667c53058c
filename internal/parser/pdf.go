package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"

	"github.com/dgallion1/bookgest/internal/outline"
)

// PDFParser handles PDF files. Page text comes from ledongthuc/pdf; the
// outline and page-range sub-documents come from pdfcpu.
type PDFParser struct{}

func (p *PDFParser) Parse(r io.Reader, filename string) (Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}

	pages, err := api.PageCount(bytes.NewReader(raw), nil)
	if err != nil {
		return nil, fmt.Errorf("page count: %w", err)
	}

	// A book without bookmarks cannot be chunked by its outline.
	bms, err := api.Bookmarks(bytes.NewReader(raw), nil)
	if err != nil || len(bms) == 0 {
		return nil, outline.ErrNoOutline
	}
	var entries []outline.Entry
	flattenBookmarks(bms, 1, &entries)

	doc := &pdfDocument{raw: raw, pages: pages, entries: entries}
	doc.title, doc.author = pdfMetadata(raw, filename)
	return doc, nil
}

func flattenBookmarks(bms []pdfcpu.Bookmark, level int, entries *[]outline.Entry) {
	for _, bm := range bms {
		*entries = append(*entries, outline.Entry{Level: level, Title: bm.Title, Page: bm.PageFrom})
		if len(bm.Kids) > 0 {
			flattenBookmarks(bm.Kids, level+1, entries)
		}
	}
}

// pdfMetadata reads Title and Author from the Info dictionary, falling back
// to the filename and "Unknown".
func pdfMetadata(raw []byte, filename string) (title, author string) {
	title = baseName(filename)
	author = "Unknown"

	r, err := pdflib.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return title, author
	}
	info := r.Trailer().Key("Info")
	if info.IsNull() {
		return title, author
	}
	if t := strings.TrimSpace(info.Key("Title").Text()); t != "" {
		title = t
	}
	if a := strings.TrimSpace(info.Key("Author").Text()); a != "" {
		author = a
	}
	return title, author
}

// pdfDocument keeps the raw file bytes and opens a fresh reader per call, so
// concurrent extractions never share reader state.
type pdfDocument struct {
	raw     []byte
	pages   int
	title   string
	author  string
	entries []outline.Entry
}

func (d *pdfDocument) Title() string            { return d.title }
func (d *pdfDocument) Author() string           { return d.author }
func (d *pdfDocument) TotalPages() int          { return d.pages }
func (d *pdfDocument) Outline() []outline.Entry { return d.entries }
func (d *pdfDocument) ArtifactExt() string      { return ".pdf" }

func (d *pdfDocument) RangeText(start, endExcl int) (string, error) {
	if err := d.checkRange(start, endExcl); err != nil {
		return "", err
	}
	r, err := pdflib.NewReader(bytes.NewReader(d.raw), int64(len(d.raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var sb strings.Builder
	for i := start; i < endExcl; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Unreadable pages are skipped, the rest of the range still counts.
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

func (d *pdfDocument) ExtractRange(start, endExcl int, w io.Writer) error {
	if err := d.checkRange(start, endExcl); err != nil {
		return err
	}
	sel := fmt.Sprintf("%d-%d", start, endExcl-1)
	if err := api.Trim(bytes.NewReader(d.raw), w, []string{sel}, nil); err != nil {
		return fmt.Errorf("trim pages %s: %w", sel, err)
	}
	return nil
}

func (d *pdfDocument) checkRange(start, endExcl int) error {
	if start < 1 || endExcl <= start || endExcl > d.pages+1 {
		return fmt.Errorf("page range [%d,%d) out of bounds (1..%d)", start, endExcl, d.pages)
	}
	return nil
}
