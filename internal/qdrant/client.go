// Package qdrant is a minimal REST client for the Qdrant vector store:
// collection lifecycle, batched upserts, filtered search and deletion.
package qdrant

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Payload is the per-point metadata stored alongside each vector.
type Payload struct {
	ChunkID    string `json:"chunk_id"`
	BookID     string `json:"book_id"`
	BookName   string `json:"book_name"`
	AuthorName string `json:"author_name"`
	StartPage  int    `json:"start_page"`
	EndPage    int    `json:"end_page"`
	Heading    string `json:"heading"`
	Path       string `json:"path"`
	Content    string `json:"content"`
	SourcePDF  string `json:"source_pdf"`
}

// Point is one vector plus its payload.
type Point struct {
	ID      uint64    `json:"id"`
	Vector  []float32 `json:"vector"`
	Payload Payload   `json:"payload"`
}

// Hit is one search result. Score is a pointer so a missing score can be
// told apart from zero.
type Hit struct {
	ID      uint64   `json:"id"`
	Score   *float64 `json:"score"`
	Payload Payload  `json:"payload"`
}

// NewPointID derives a point id from the upper 64 bits of a fresh random
// UUID. Not collision-proof, but the probability is negligible at expected
// scale.
func NewPointID() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[:8])
}

// Config holds connection settings for one collection.
type Config struct {
	BaseURL     string
	APIKey      string
	Collection  string
	Dimension   int
	UpsertBatch int
	Timeout     time.Duration
}

// Client talks to a single Qdrant collection over REST.
type Client struct {
	baseURL     string
	apiKey      string
	collection  string
	dim         int
	upsertBatch int
	httpClient  *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	batch := cfg.UpsertBatch
	if batch <= 0 {
		batch = 50
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		collection:  cfg.Collection,
		dim:         cfg.Dimension,
		upsertBatch: batch,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Collection returns the collection name the client writes to.
func (c *Client) Collection() string {
	return c.collection
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type createCollectionRequest struct {
	Vectors vectorParams `json:"vectors"`
}

// EnsureCollection creates the collection with the configured dimension and
// cosine distance unless it already exists, in which case it is reused
// unchanged.
func (c *Client) EnsureCollection(ctx context.Context) error {
	var listResp struct {
		Result struct {
			Collections []struct {
				Name string `json:"name"`
			} `json:"collections"`
		} `json:"result"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/collections", nil, &listResp); err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, col := range listResp.Result.Collections {
		if col.Name == c.collection {
			return nil
		}
	}

	body := createCollectionRequest{Vectors: vectorParams{Size: c.dim, Distance: "Cosine"}}
	if err := c.doJSON(ctx, http.MethodPut, "/collections/"+c.collection, body, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", c.collection, err)
	}
	return nil
}

type upsertRequest struct {
	Points []Point `json:"points"`
}

// Upsert writes points in fixed-size batches, waiting for each write.
// Batches are independent; a failure partway leaves earlier batches
// committed.
func (c *Client) Upsert(ctx context.Context, points []Point) error {
	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	for start := 0; start < len(points); start += c.upsertBatch {
		end := min(start+c.upsertBatch, len(points))
		if err := c.doJSON(ctx, http.MethodPut, path, upsertRequest{Points: points[start:end]}, nil); err != nil {
			return fmt.Errorf("upsert batch %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

type matchValue struct {
	Value string `json:"value"`
}

type fieldCondition struct {
	Key   string     `json:"key"`
	Match matchValue `json:"match"`
}

type searchFilter struct {
	Must []fieldCondition `json:"must"`
}

func bookFilter(bookID string) searchFilter {
	return searchFilter{
		Must: []fieldCondition{{Key: "book_id", Match: matchValue{Value: bookID}}},
	}
}

type deleteRequest struct {
	Filter searchFilter `json:"filter"`
}

// DeleteByBook removes every point whose payload book_id matches. Deleting
// an unknown book id is a no-op, which keeps cleanup sweeps idempotent.
func (c *Client) DeleteByBook(ctx context.Context, bookID string) error {
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", c.collection)
	if err := c.doJSON(ctx, http.MethodPost, path, deleteRequest{Filter: bookFilter(bookID)}, nil); err != nil {
		return fmt.Errorf("delete points for book %s: %w", bookID, err)
	}
	return nil
}

type searchRequest struct {
	Vector      []float32    `json:"vector"`
	Limit       int          `json:"limit"`
	WithPayload bool         `json:"with_payload"`
	Filter      searchFilter `json:"filter"`
}

// Search returns up to topK nearest points restricted to one book, payloads
// included.
func (c *Client) Search(ctx context.Context, vector []float32, bookID string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 10
	}
	body := searchRequest{
		Vector:      vector,
		Limit:       topK,
		WithPayload: true,
		Filter:      bookFilter(bookID),
	}
	var resp struct {
		Result []Hit `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, fmt.Errorf("search book %s: %w", bookID, err)
	}
	return resp.Result, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s: status %d: %s", method, path, resp.StatusCode, truncate(string(respBody), 200))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
