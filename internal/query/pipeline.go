// Package query answers questions against one ingested book in three
// stages: filtered vector search, LLM-guided context selection with a
// deterministic fallback, and answer synthesis. Every stage degrades
// instead of propagating collaborator failures to the caller.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/dgallion1/bookgest/internal/llm"
	"github.com/dgallion1/bookgest/internal/qdrant"
)

const selectionLimit = 10

// Context is one ranked candidate passage.
type Context struct {
	ID        string  `json:"id"`
	Score     float64 `json:"score"`
	Heading   string  `json:"heading"`
	Content   string  `json:"content"`
	Path      string  `json:"path"`
	StartPage int     `json:"start_page"`
	EndPage   int     `json:"end_page"`
	SourcePDF string  `json:"source_pdf"`
}

// Answer is the output of one ask request. SelectedContexts is the subset
// of candidates whose ids were selected, in candidate order.
type Answer struct {
	Answer           string    `json:"answer"`
	Reasoning        string    `json:"reasoning"`
	SelectedIDs      []string  `json:"selected_ids"`
	SelectedContexts []Context `json:"selected_contexts"`
}

// Embedder embeds the question text.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
}

// Searcher queries the vector index scoped to one book.
type Searcher interface {
	Search(ctx context.Context, vector []float32, bookID string, topK int) ([]qdrant.Hit, error)
}

// Generator is the generation collaborator used for selection and synthesis.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

var (
	_ Embedder  = (*llm.Embedder)(nil)
	_ Generator = (*llm.Generator)(nil)
	_ Searcher  = (*qdrant.Client)(nil)
)

// Pipeline runs retrieval and generation against shared clients. Safe for
// concurrent use.
type Pipeline struct {
	embedder Embedder
	searcher Searcher
	gen      Generator
	topK     int
	log      *slog.Logger
}

func NewPipeline(embedder Embedder, searcher Searcher, gen Generator, topK int, log *slog.Logger) (*Pipeline, error) {
	if embedder == nil || searcher == nil || gen == nil {
		return nil, fmt.Errorf("query pipeline: nil dependency")
	}
	if topK <= 0 {
		topK = selectionLimit
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		embedder: embedder,
		searcher: searcher,
		gen:      gen,
		topK:     topK,
		log:      log,
	}, nil
}

// Search embeds the question and returns ranked candidate contexts for one
// book. Embedding failures are errors; search backend failures collapse to
// an empty result set.
func (p *Pipeline) Search(ctx context.Context, bookID, question string, topK int) ([]Context, error) {
	vecs, err := p.embedder.EmbedBatch(ctx, []string{question}, 1)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed question: expected 1 vector, got %d", len(vecs))
	}
	if topK <= 0 {
		topK = p.topK
	}
	return p.searchVector(ctx, vecs[0], bookID, topK), nil
}

// searchVector never fails. Hits are sorted by score descending, a missing
// score counts as 0, and ties keep their arrival order.
func (p *Pipeline) searchVector(ctx context.Context, vector []float32, bookID string, topK int) []Context {
	hits, err := p.searcher.Search(ctx, vector, bookID, topK)
	if err != nil {
		p.log.Warn("vector search failed, returning no results", "book_id", bookID, "error", err)
		hits = nil
	}

	contexts := make([]Context, len(hits))
	for i, h := range hits {
		var score float64
		if h.Score != nil {
			score = *h.Score
		}
		contexts[i] = Context{
			ID:        h.Payload.ChunkID,
			Score:     score,
			Heading:   h.Payload.Heading,
			Content:   h.Payload.Content,
			Path:      h.Payload.Path,
			StartPage: h.Payload.StartPage,
			EndPage:   h.Payload.EndPage,
			SourcePDF: h.Payload.SourcePDF,
		}
	}
	sort.SliceStable(contexts, func(i, j int) bool { return contexts[i].Score > contexts[j].Score })
	return contexts
}

// SelectContexts asks the generator to pick the three most relevant
// candidate ids. Only the first ten candidates are offered. Any call
// failure, unparseable reply, or empty selection falls back to the first
// three candidates in ranked order.
func (p *Pipeline) SelectContexts(ctx context.Context, contexts []Context, question string) []string {
	if len(contexts) == 0 {
		return nil
	}
	if len(contexts) > selectionLimit {
		contexts = contexts[:selectionLimit]
	}

	reply, err := p.gen.Generate(ctx, selectionSystemPrompt, buildSelectionPrompt(contexts, question))
	if err != nil {
		p.log.Warn("context selection failed, using ranked fallback", "error", err)
		return fallbackIDs(contexts)
	}

	var parsed struct {
		SelectedIDs []string `json:"selected_ids"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(reply)), &parsed); err != nil {
		p.log.Warn("context selection reply unparseable, using ranked fallback", "error", err)
		return fallbackIDs(contexts)
	}
	if len(parsed.SelectedIDs) == 0 {
		return fallbackIDs(contexts)
	}
	if len(parsed.SelectedIDs) > 3 {
		parsed.SelectedIDs = parsed.SelectedIDs[:3]
	}
	return parsed.SelectedIDs
}

func fallbackIDs(contexts []Context) []string {
	n := min(3, len(contexts))
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = contexts[i].ID
	}
	return ids
}

// Synthesize generates the final answer from the selected contexts. A
// generation failure degrades into an answer carrying the error text; the
// collaborator exposes no reasoning trace either way.
func (p *Pipeline) Synthesize(ctx context.Context, selected []Context, question string) (answer, reasoning string) {
	out, err := p.gen.Generate(ctx, synthesisSystemPrompt, buildSynthesisPrompt(selected, question))
	if err != nil {
		p.log.Warn("answer synthesis failed, returning degraded answer", "error", err)
		return "Error: " + err.Error(), "No reasoning available"
	}
	return strings.TrimSpace(out), reasoningUnavailable
}

// Ask runs the full pipeline for one question against one book. topK <= 0
// uses the configured default.
func (p *Pipeline) Ask(ctx context.Context, bookID, question string, topK int) (Answer, error) {
	contexts, err := p.Search(ctx, bookID, question, topK)
	if err != nil {
		return Answer{}, err
	}

	ids := p.SelectContexts(ctx, contexts, question)
	selected := make([]Context, 0, len(ids))
	for _, c := range contexts {
		if slices.Contains(ids, c.ID) {
			selected = append(selected, c)
		}
	}

	answer, reasoning := p.Synthesize(ctx, selected, question)
	return Answer{
		Answer:           answer,
		Reasoning:        reasoning,
		SelectedIDs:      ids,
		SelectedContexts: selected,
	}, nil
}
