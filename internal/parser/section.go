package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/bookgest/internal/outline"
)

// section is one heading-delimited span of a pageless document.
type section struct {
	title string
	level int
	body  string
}

// sectionBuilder accumulates sections during a parse walk. Text seen before
// the first heading has no section to land in and is discarded, matching how
// paged documents never chunk content ahead of the first outline target.
type sectionBuilder struct {
	sections []section
	body     strings.Builder
}

func (b *sectionBuilder) startSection(level int, title string) {
	b.flush()
	b.sections = append(b.sections, section{title: title, level: level})
}

func (b *sectionBuilder) addText(t string) {
	if t == "" || len(b.sections) == 0 {
		return
	}
	if b.body.Len() > 0 {
		b.body.WriteString("\n\n")
	}
	b.body.WriteString(t)
}

func (b *sectionBuilder) flush() {
	if len(b.sections) > 0 {
		b.sections[len(b.sections)-1].body = b.body.String()
	}
	b.body.Reset()
}

func (b *sectionBuilder) done() []section {
	b.flush()
	return b.sections
}

// sectionDocument adapts heading-sectioned formats (markdown, docx, html) to
// the Document interface. Section i is synthetic page i+1, so the outline's
// page invariants hold without physical pagination. Artifacts are rebuilt as
// markdown regardless of the input format.
type sectionDocument struct {
	title    string
	author   string
	sections []section
}

func newSectionDocument(title, author string, sections []section) (*sectionDocument, error) {
	if len(sections) == 0 {
		return nil, outline.ErrNoOutline
	}
	return &sectionDocument{title: title, author: author, sections: sections}, nil
}

func (d *sectionDocument) Title() string       { return d.title }
func (d *sectionDocument) Author() string      { return d.author }
func (d *sectionDocument) TotalPages() int     { return len(d.sections) }
func (d *sectionDocument) ArtifactExt() string { return ".md" }

func (d *sectionDocument) Outline() []outline.Entry {
	entries := make([]outline.Entry, len(d.sections))
	for i, s := range d.sections {
		entries[i] = outline.Entry{Level: s.level, Title: s.title, Page: i + 1}
	}
	return entries
}

// RangeText returns the body text of the covered sections. Headings are left
// out so that a structural heading with no prose reads as empty.
func (d *sectionDocument) RangeText(start, endExcl int) (string, error) {
	if err := d.checkRange(start, endExcl); err != nil {
		return "", err
	}
	var sb strings.Builder
	for i := start; i < endExcl; i++ {
		body := d.sections[i-1].body
		if body == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(body)
	}
	return sb.String(), nil
}

func (d *sectionDocument) ExtractRange(start, endExcl int, w io.Writer) error {
	if err := d.checkRange(start, endExcl); err != nil {
		return err
	}
	for i := start; i < endExcl; i++ {
		s := d.sections[i-1]
		if i > start {
			if _, err := io.WriteString(w, "\n\n"); err != nil {
				return err
			}
		}
		level := min(s.level, 6)
		if _, err := io.WriteString(w, strings.Repeat("#", level)+" "+s.title); err != nil {
			return err
		}
		if s.body != "" {
			if _, err := io.WriteString(w, "\n\n"+s.body); err != nil {
				return err
			}
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func (d *sectionDocument) checkRange(start, endExcl int) error {
	if start < 1 || endExcl <= start || endExcl > len(d.sections)+1 {
		return fmt.Errorf("page range [%d,%d) out of bounds (1..%d)", start, endExcl, len(d.sections))
	}
	return nil
}
