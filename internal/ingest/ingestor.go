package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dgallion1/bookgest/internal/books"
	"github.com/dgallion1/bookgest/internal/llm"
	"github.com/dgallion1/bookgest/internal/outline"
	"github.com/dgallion1/bookgest/internal/parser"
	"github.com/dgallion1/bookgest/internal/pipeline"
	"github.com/dgallion1/bookgest/internal/qdrant"
	"github.com/dgallion1/bookgest/internal/storage"
)

// StatusExisting marks an upload whose title was already in the registry.
// The uploader is attached to the existing record and nothing is reprocessed.
const StatusExisting = "existing"

// ErrDependencyUnavailable is returned by NewIngestor when a required
// collaborator is missing.
var ErrDependencyUnavailable = errors.New("ingest dependency unavailable")

// Registry is the slice of the book registry the ingestor needs.
type Registry interface {
	CreateOrAttach(ctx context.Context, title, author string, pages int, userID string) (books.Book, bool, error)
	SetStatus(ctx context.Context, bookID, status string) error
}

// Uploader stores one chunk artifact and returns its URL.
type Uploader interface {
	UploadChunk(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) (string, error)
}

// Embedder turns chunk texts into vectors, preserving order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}

// Indexer writes points to the vector store.
type Indexer interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, points []qdrant.Point) error
}

var (
	_ Registry = (*books.Registry)(nil)
	_ Uploader = (*storage.Store)(nil)
	_ Embedder = (*llm.Embedder)(nil)
	_ Indexer  = (*qdrant.Client)(nil)
)

// Options tunes the ingestion stages.
type Options struct {
	ChunkWorkers   int // fan-out width for extraction and upload
	EmbedBatchSize int
}

// Ingestor runs ingestion jobs against shared collaborator clients. It is
// safe for concurrent use; all per-job state lives on the stack.
type Ingestor struct {
	registry Registry
	uploader Uploader
	embedder Embedder
	indexer  Indexer
	opts     Options
	log      *slog.Logger
}

func NewIngestor(registry Registry, uploader Uploader, embedder Embedder, indexer Indexer, opts Options, log *slog.Logger) (*Ingestor, error) {
	switch {
	case registry == nil:
		return nil, fmt.Errorf("%w: registry", ErrDependencyUnavailable)
	case uploader == nil:
		return nil, fmt.Errorf("%w: uploader", ErrDependencyUnavailable)
	case embedder == nil:
		return nil, fmt.Errorf("%w: embedder", ErrDependencyUnavailable)
	case indexer == nil:
		return nil, fmt.Errorf("%w: indexer", ErrDependencyUnavailable)
	}
	if opts.ChunkWorkers < 1 {
		opts.ChunkWorkers = 6
	}
	if opts.EmbedBatchSize < 1 {
		opts.EmbedBatchSize = 50
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{
		registry: registry,
		uploader: uploader,
		embedder: embedder,
		indexer:  indexer,
		opts:     opts,
		log:      log,
	}, nil
}

// Result is the job result for one ingestion.
type Result struct {
	BookID     string `json:"book_id"`
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
	Chunks     int    `json:"chunks"`
	Status     string `json:"status"`
}

// Task wraps one ingestion as a runnable job.
func (ing *Ingestor) Task(raw []byte, filename, userID string) pipeline.TaskFunc {
	return func(ctx context.Context) (any, error) {
		return ing.Ingest(ctx, raw, filename, userID)
	}
}

// Ingest processes one uploaded document end to end. A title already in the
// registry short-circuits after attaching the uploader. Per-chunk extract
// and upload failures drop the chunk and continue; embedding or indexing
// failures fail the whole job, leaving the book in processing state.
func (ing *Ingestor) Ingest(ctx context.Context, raw []byte, filename, userID string) (Result, error) {
	p, err := parser.ForFile(filename)
	if err != nil {
		return Result{}, err
	}
	document, err := p.Parse(bytes.NewReader(raw), filename)
	if err != nil {
		return Result{}, fmt.Errorf("parse %s: %w", filename, err)
	}

	title := document.Title()
	author := document.Author()
	pages := document.TotalPages()

	book, existed, err := ing.registry.CreateOrAttach(ctx, title, author, pages, userID)
	if err != nil {
		return Result{}, err
	}
	log := ing.log.With("book_id", book.ID, "title", title)
	if existed {
		log.Info("title already ingested, attached uploader", "user_id", userID)
		return Result{BookID: book.ID, Title: title, AuthorName: author, Status: StatusExisting}, nil
	}

	forest, err := outline.Build(document.Outline())
	if err != nil {
		return Result{}, fmt.Errorf("build outline: %w", err)
	}
	leaves := outline.Leaves(forest, pages)
	log.Info("outline resolved", "leaves", len(leaves), "pages", pages)

	// Stage 1: per-leaf text and artifact extraction. Failed or empty
	// leaves are dropped; the rest keep document order.
	extracted, extractErrs := pipeline.Map(ctx, leaves, ing.opts.ChunkWorkers,
		func(ctx context.Context, i int, leaf outline.Leaf) (*Chunk, error) {
			return extractLeaf(document, leaf, book.ID, i)
		})
	var chunks []*Chunk
	for i, c := range extracted {
		if extractErrs[i] != nil {
			log.Warn("chunk extraction failed", "leaf", leaves[i].Title, "error", extractErrs[i])
			continue
		}
		if c == nil {
			continue
		}
		chunks = append(chunks, c)
	}

	// Stage 2: artifact upload. A failed upload excludes the chunk from
	// embedding and indexing but does not fail the job.
	meta := map[string]string{
		storage.MetaBookID:     book.ID,
		storage.MetaBookName:   title,
		storage.MetaAuthorName: author,
	}
	urls, uploadErrs := pipeline.Map(ctx, chunks, ing.opts.ChunkWorkers,
		func(ctx context.Context, i int, c *Chunk) (string, error) {
			return ing.uploader.UploadChunk(ctx, c.ArtifactName, c.Artifact, artifactContentType(c.ArtifactName), meta)
		})
	var valid []*Chunk
	for i, c := range chunks {
		if uploadErrs[i] != nil {
			log.Warn("chunk upload failed", "artifact", c.ArtifactName, "error", uploadErrs[i])
			continue
		}
		c.RemoteURL = urls[i]
		valid = append(valid, c)
	}

	// Stage 3: embed surviving chunks in document order.
	texts := make([]string, len(valid))
	for i, c := range valid {
		texts[i] = c.Text
	}
	vectors, err := ing.embedder.EmbedBatch(ctx, texts, ing.opts.EmbedBatchSize)
	if err != nil {
		return Result{}, fmt.Errorf("embed %d chunks: %w", len(texts), err)
	}
	if len(vectors) != len(valid) {
		return Result{}, fmt.Errorf("embedding count mismatch: %d texts, %d vectors", len(valid), len(vectors))
	}

	// Stage 4: index. A batch failure aborts the job; already written
	// batches stay in the collection and the deletion sweep can reclaim
	// them by book_id.
	if err := ing.indexer.EnsureCollection(ctx); err != nil {
		return Result{}, err
	}
	points := make([]qdrant.Point, len(valid))
	for i, c := range valid {
		points[i] = qdrant.Point{
			ID:     qdrant.NewPointID(),
			Vector: vectors[i],
			Payload: qdrant.Payload{
				ChunkID:    uuid.NewString(),
				BookID:     book.ID,
				BookName:   title,
				AuthorName: author,
				StartPage:  c.StartPage,
				EndPage:    c.EndPage,
				Heading:    c.Title,
				Path:       c.Path,
				Content:    c.Text,
				SourcePDF:  c.RemoteURL,
			},
		}
	}
	if err := ing.indexer.Upsert(ctx, points); err != nil {
		return Result{}, fmt.Errorf("index %d points: %w", len(points), err)
	}

	if err := ing.registry.SetStatus(ctx, book.ID, books.StatusComplete); err != nil {
		return Result{}, err
	}

	log.Info("ingestion complete", "chunks", len(points), "dropped", len(leaves)-len(points))
	return Result{
		BookID:     book.ID,
		Title:      title,
		AuthorName: author,
		Chunks:     len(points),
		Status:     books.StatusComplete,
	}, nil
}
