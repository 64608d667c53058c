package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Generator produces text completions. Callers supply the system
// instruction per call, so one client serves both context selection and
// answer synthesis.
type Generator struct {
	client *genai.Client
	model  string
	stats  *Stats
}

func NewGenerator(ctx context.Context, apiKey, model string, stats *Stats) (*Generator, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if stats == nil {
		stats = NewStats(0)
	}
	return &Generator{client: cl, model: model, stats: stats}, nil
}

// Close releases the underlying client.
func (g *Generator) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Generate runs one completion. Latency is recorded even when the call
// fails.
func (g *Generator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := g.client.GenerativeModel(g.model)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	started := time.Now()
	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	g.stats.Record(CallGenerate, time.Since(started).Milliseconds())
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from gemini")
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}
