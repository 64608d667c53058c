// Package ingest runs one book through the full pipeline: parse, register,
// chunk by outline leaf, upload artifacts, embed, index. Extraction and
// upload fan out with bounded workers; everything else is sequential.
package ingest

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dgallion1/bookgest/internal/outline"
	"github.com/dgallion1/bookgest/internal/parser"
)

// Chunk is one outline leaf materialized: its text, its standalone
// sub-document artifact, and after upload the artifact's URL. EndPage is
// the inclusive last page of the range.
type Chunk struct {
	Title        string
	Path         string // ancestor titles joined with " > "
	StartPage    int
	EndPage      int
	Text         string
	Artifact     []byte
	ArtifactName string
	RemoteURL    string
}

// extractLeaf materializes one leaf of the outline. A range with no text at
// all yields (nil, nil): the leaf is a structural heading and is dropped
// without counting as a failure.
func extractLeaf(document parser.Document, leaf outline.Leaf, bookID string, index int) (*Chunk, error) {
	text, err := document.RangeText(leaf.StartPage, leaf.EndPage)
	if err != nil {
		return nil, fmt.Errorf("extract text %q pages %d-%d: %w", leaf.Title, leaf.StartPage, leaf.EndPage-1, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := document.ExtractRange(leaf.StartPage, leaf.EndPage, &buf); err != nil {
		return nil, fmt.Errorf("build artifact %q pages %d-%d: %w", leaf.Title, leaf.StartPage, leaf.EndPage-1, err)
	}

	return &Chunk{
		Title:        leaf.Title,
		Path:         strings.Join(leaf.Path, " > "),
		StartPage:    leaf.StartPage,
		EndPage:      leaf.EndPage - 1,
		Text:         text,
		Artifact:     buf.Bytes(),
		ArtifactName: fmt.Sprintf("%s_%d%s", bookID, index, document.ArtifactExt()),
	}, nil
}

func artifactContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".md":
		return "text/markdown"
	default:
		return "application/octet-stream"
	}
}
