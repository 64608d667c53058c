package query

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/dgallion1/bookgest/internal/qdrant"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type fakeEmbedder struct{ err error }

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

type fakeSearcher struct {
	hits []qdrant.Hit
	err  error
	topK int
}

func (f *fakeSearcher) Search(ctx context.Context, vector []float32, bookID string, topK int) ([]qdrant.Hit, error) {
	f.topK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type fakeGenerator struct {
	replies []string
	errs    []error
	systems []string
	prompts []string
}

func (f *fakeGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	i := len(f.prompts)
	f.systems = append(f.systems, systemPrompt)
	f.prompts = append(f.prompts, userPrompt)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var reply string
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return reply, err
}

func newTestPipeline(t *testing.T, emb *fakeEmbedder, s *fakeSearcher, gen *fakeGenerator) *Pipeline {
	t.Helper()
	p, err := NewPipeline(emb, s, gen, 10, testLogger())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func score(v float64) *float64 { return &v }

func hit(id string, s *float64) qdrant.Hit {
	return qdrant.Hit{
		Score:   s,
		Payload: qdrant.Payload{ChunkID: id, Heading: "h-" + id, Content: "content of " + id},
	}
}

func contextIDs(contexts []Context) []string {
	ids := make([]string, len(contexts))
	for i, c := range contexts {
		ids[i] = c.ID
	}
	return ids
}

func TestSearchSortsByScoreMissingAsZero(t *testing.T) {
	s := &fakeSearcher{hits: []qdrant.Hit{
		hit("c1", score(0.8)),
		hit("c2", nil),
		hit("c3", score(0.9)),
		hit("c4", score(0.8)),
	}}
	p := newTestPipeline(t, &fakeEmbedder{}, s, &fakeGenerator{})

	contexts, err := p.Search(context.Background(), "b1", "question", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	got := contextIDs(contexts)
	// Ties keep arrival order, missing scores sink to the bottom as 0.
	want := []string{"c3", "c1", "c4", "c2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
	if contexts[3].Score != 0 {
		t.Errorf("expected missing score to read as 0, got %v", contexts[3].Score)
	}
	if s.topK != 10 {
		t.Errorf("expected topK 10 passed through, got %d", s.topK)
	}
}

func TestSearchBackendErrorYieldsEmpty(t *testing.T) {
	s := &fakeSearcher{err: errors.New("connection refused")}
	p := newTestPipeline(t, &fakeEmbedder{}, s, &fakeGenerator{})

	contexts, err := p.Search(context.Background(), "b1", "question", 5)
	if err != nil {
		t.Fatalf("expected backend error to be absorbed, got %v", err)
	}
	if len(contexts) != 0 {
		t.Errorf("expected 0 contexts, got %d", len(contexts))
	}
}

func TestSearchEmbedErrorPropagates(t *testing.T) {
	p := newTestPipeline(t, &fakeEmbedder{err: errors.New("quota")}, &fakeSearcher{}, &fakeGenerator{})

	if _, err := p.Search(context.Background(), "b1", "question", 5); err == nil {
		t.Fatal("expected embed failure to propagate")
	}
}

func manyContexts(n int) []Context {
	out := make([]Context, n)
	for i := range out {
		out[i] = Context{ID: "id-" + string(rune('a'+i)), Heading: "h", Content: "c"}
	}
	return out
}

func TestSelectContextsParsesFencedReply(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"```json\n{\"selected_ids\": [\"id-c\", \"id-a\", \"id-b\"]}\n```"}}
	p := newTestPipeline(t, &fakeEmbedder{}, &fakeSearcher{}, gen)

	ids := p.SelectContexts(context.Background(), manyContexts(4), "q")
	want := []string{"id-c", "id-a", "id-b"}
	if len(ids) != 3 || ids[0] != want[0] || ids[1] != want[1] || ids[2] != want[2] {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	if gen.systems[0] != selectionSystemPrompt {
		t.Errorf("unexpected system prompt %q", gen.systems[0])
	}
	if !strings.Contains(gen.prompts[0], "ID: id-a") || !strings.Contains(gen.prompts[0], "USER QUERY: q") {
		t.Errorf("selection prompt missing candidate enumeration:\n%s", gen.prompts[0])
	}
}

func TestSelectContextsOffersAtMostTen(t *testing.T) {
	gen := &fakeGenerator{replies: []string{`{"selected_ids": ["id-a"]}`}}
	p := newTestPipeline(t, &fakeEmbedder{}, &fakeSearcher{}, gen)

	p.SelectContexts(context.Background(), manyContexts(12), "q")
	if strings.Contains(gen.prompts[0], "ID: id-k") || strings.Contains(gen.prompts[0], "ID: id-l") {
		t.Errorf("expected only first 10 candidates in prompt:\n%s", gen.prompts[0])
	}
	if !strings.Contains(gen.prompts[0], "ID: id-j") {
		t.Errorf("expected tenth candidate present in prompt:\n%s", gen.prompts[0])
	}
}

func TestSelectContextsFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{"call failure", "", errors.New("rate limited")},
		{"malformed json", "sure, here are the ids!", nil},
		{"missing key", `{"ids": ["id-c"]}`, nil},
		{"empty selection", `{"selected_ids": []}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{replies: []string{tt.reply}, errs: []error{tt.err}}
			p := newTestPipeline(t, &fakeEmbedder{}, &fakeSearcher{}, gen)

			ids := p.SelectContexts(context.Background(), manyContexts(5), "q")
			want := []string{"id-a", "id-b", "id-c"}
			if len(ids) != 3 || ids[0] != want[0] || ids[1] != want[1] || ids[2] != want[2] {
				t.Fatalf("expected fallback %v, got %v", want, ids)
			}
		})
	}
}

func TestSelectContextsCapsAtThree(t *testing.T) {
	gen := &fakeGenerator{replies: []string{`{"selected_ids": ["id-a", "id-b", "id-c", "id-d", "id-e"]}`}}
	p := newTestPipeline(t, &fakeEmbedder{}, &fakeSearcher{}, gen)

	ids := p.SelectContexts(context.Background(), manyContexts(5), "q")
	if len(ids) != 3 {
		t.Fatalf("expected selection capped at 3, got %v", ids)
	}
}

func TestSelectContextsEmptyCandidates(t *testing.T) {
	gen := &fakeGenerator{}
	p := newTestPipeline(t, &fakeEmbedder{}, &fakeSearcher{}, gen)

	if ids := p.SelectContexts(context.Background(), nil, "q"); len(ids) != 0 {
		t.Fatalf("expected no ids for no candidates, got %v", ids)
	}
	if len(gen.prompts) != 0 {
		t.Error("expected no generator call for no candidates")
	}
}

func TestSynthesizeDegradesOnError(t *testing.T) {
	gen := &fakeGenerator{errs: []error{errors.New("model overloaded")}}
	p := newTestPipeline(t, &fakeEmbedder{}, &fakeSearcher{}, gen)

	answer, reasoning := p.Synthesize(context.Background(), manyContexts(2), "q")
	if answer != "Error: model overloaded" {
		t.Errorf("expected degraded answer with error text, got %q", answer)
	}
	if reasoning != "No reasoning available" {
		t.Errorf("expected placeholder reasoning, got %q", reasoning)
	}
}

func TestSynthesizePromptShape(t *testing.T) {
	gen := &fakeGenerator{replies: []string{"  The answer.\n"}}
	p := newTestPipeline(t, &fakeEmbedder{}, &fakeSearcher{}, gen)

	selected := []Context{
		{ID: "c1", Heading: "Spring", Content: "Buds and rain."},
		{ID: "c2", Heading: "Summer", Content: "Heat."},
	}
	answer, reasoning := p.Synthesize(context.Background(), selected, "What happens in spring?")
	if answer != "The answer." {
		t.Errorf("expected trimmed answer, got %q", answer)
	}
	if reasoning != reasoningUnavailable {
		t.Errorf("unexpected reasoning %q", reasoning)
	}
	if gen.systems[0] != synthesisSystemPrompt {
		t.Errorf("unexpected system prompt %q", gen.systems[0])
	}
	prompt := gen.prompts[0]
	if !strings.Contains(prompt, "### Spring\nBuds and rain.") {
		t.Errorf("expected heading block in prompt:\n%s", prompt)
	}
	if !strings.Contains(prompt, "**User Question:** What happens in spring?") {
		t.Errorf("expected question in prompt:\n%s", prompt)
	}
}

func TestAskFullFlow(t *testing.T) {
	s := &fakeSearcher{hits: []qdrant.Hit{
		hit("c1", score(0.5)),
		hit("c2", score(0.9)),
		hit("c3", score(0.7)),
	}}
	gen := &fakeGenerator{replies: []string{
		`{"selected_ids": ["c3", "c1"]}`,
		"Synthesized answer.",
	}}
	p := newTestPipeline(t, &fakeEmbedder{}, s, gen)

	ans, err := p.Ask(context.Background(), "b1", "question", 0)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	if ans.Answer != "Synthesized answer." {
		t.Errorf("unexpected answer %q", ans.Answer)
	}
	if ans.Reasoning != reasoningUnavailable {
		t.Errorf("unexpected reasoning %q", ans.Reasoning)
	}
	if len(ans.SelectedIDs) != 2 || ans.SelectedIDs[0] != "c3" || ans.SelectedIDs[1] != "c1" {
		t.Errorf("unexpected selected ids %v", ans.SelectedIDs)
	}
	// Contexts come back in ranked order (c2, c3, c1); the selected subset
	// keeps that order regardless of the id order in the reply.
	got := contextIDs(ans.SelectedContexts)
	if len(got) != 2 || got[0] != "c3" || got[1] != "c1" {
		t.Errorf("unexpected selected contexts %v", got)
	}
	if strings.Contains(gen.prompts[1], "content of c2") {
		t.Errorf("synthesis prompt leaked unselected context:\n%s", gen.prompts[1])
	}
}

func TestAskEmbedErrorPropagates(t *testing.T) {
	p := newTestPipeline(t, &fakeEmbedder{err: errors.New("quota")}, &fakeSearcher{}, &fakeGenerator{})

	if _, err := p.Ask(context.Background(), "b1", "question", 0); err == nil {
		t.Fatal("expected error when the question cannot be embedded")
	}
}
