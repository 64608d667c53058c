// Package llm wraps the Gemini API for the two call shapes the service
// needs: batch embedding and single-shot generation. Both record call
// latencies for the stats endpoint.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Embedder converts ordered texts into fixed-dimension vectors in batches.
type Embedder struct {
	client *genai.Client
	model  string
	stats  *Stats
}

func NewEmbedder(ctx context.Context, apiKey, model string, stats *Stats) (*Embedder, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if stats == nil {
		stats = NewStats(0)
	}
	return &Embedder{client: cl, model: model, stats: stats}, nil
}

// Close releases the underlying client.
func (e *Embedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// EmbedBatch embeds texts in fixed-size batches. The output holds exactly
// one vector per input text, in input order; downstream zips vectors with
// chunks positionally. Rate limits and server errors are retried with
// jittered backoff before the batch fails.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if batchSize < 1 {
		batchSize = 1
	}

	em := e.client.EmbeddingModel(e.model)
	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		resp, err := e.batchWithRetry(ctx, em, batch)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end-1, err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("embed batch %d-%d: got %d embeddings for %d texts",
				start, end-1, len(resp.Embeddings), end-start)
		}
		for _, emb := range resp.Embeddings {
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

func (e *Embedder) batchWithRetry(ctx context.Context, em *genai.EmbeddingModel, batch *genai.EmbeddingBatch) (*genai.BatchEmbedContentsResponse, error) {
	var resp *genai.BatchEmbedContentsResponse
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		started := time.Now()
		resp, err = em.BatchEmbedContents(ctx, batch)
		e.stats.Record(CallEmbed, time.Since(started).Milliseconds())
		if err == nil || !isRetryable(err) {
			return resp, err
		}
		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return resp, err
}
