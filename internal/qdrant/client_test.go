package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, handler http.Handler, batch int) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		BaseURL:     srv.URL,
		Collection:  "book_chunks",
		Dimension:   768,
		UpsertBatch: batch,
	})
	return c, srv
}

func TestEnsureCollectionSkipsExisting(t *testing.T) {
	creates := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/collections", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"collections":[{"name":"book_chunks"}]}}`))
	})
	mux.HandleFunc("/collections/book_chunks", func(w http.ResponseWriter, r *http.Request) {
		creates++
		w.Write([]byte(`{"result":true}`))
	})

	c, _ := testClient(t, mux, 50)
	if err := c.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if creates != 0 {
		t.Errorf("expected no create for existing collection, got %d", creates)
	}
}

func TestEnsureCollectionCreatesMissing(t *testing.T) {
	var created createCollectionRequest
	creates := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/collections", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"collections":[{"name":"other"}]}}`))
	})
	mux.HandleFunc("/collections/book_chunks", func(w http.ResponseWriter, r *http.Request) {
		creates++
		if err := json.NewDecoder(r.Body).Decode(&created); err != nil {
			t.Errorf("decode create body: %v", err)
		}
		w.Write([]byte(`{"result":true}`))
	})

	c, _ := testClient(t, mux, 50)
	if err := c.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if creates != 1 {
		t.Fatalf("expected 1 create, got %d", creates)
	}
	if created.Vectors.Size != 768 {
		t.Errorf("expected dimension 768, got %d", created.Vectors.Size)
	}
	if created.Vectors.Distance != "Cosine" {
		t.Errorf("expected Cosine distance, got %q", created.Vectors.Distance)
	}
}

func TestUpsertBatches(t *testing.T) {
	var sizes []int
	mux := http.NewServeMux()
	mux.HandleFunc("/collections/book_chunks/points", func(w http.ResponseWriter, r *http.Request) {
		var req upsertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode upsert body: %v", err)
		}
		sizes = append(sizes, len(req.Points))
		w.Write([]byte(`{"result":{"status":"acknowledged"}}`))
	})

	c, _ := testClient(t, mux, 2)
	points := make([]Point, 5)
	for i := range points {
		points[i] = Point{ID: NewPointID(), Vector: []float32{0.1, 0.2}}
	}
	if err := c.Upsert(context.Background(), points); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	want := []int{2, 2, 1}
	if len(sizes) != len(want) {
		t.Fatalf("expected %d batches, got %d", len(want), len(sizes))
	}
	for i, n := range want {
		if sizes[i] != n {
			t.Errorf("batch %d: expected size %d, got %d", i, n, sizes[i])
		}
	}
}

func TestUpsertStopsOnBatchError(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/collections/book_chunks/points", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			http.Error(w, `{"status":{"error":"boom"}}`, http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"result":{"status":"acknowledged"}}`))
	})

	c, _ := testClient(t, mux, 1)
	err := c.Upsert(context.Background(), make([]Point, 3))
	if err == nil {
		t.Fatal("expected error from failing batch")
	}
	if calls != 2 {
		t.Errorf("expected upsert to stop after failing batch, got %d calls", calls)
	}
}

func TestSearchFilterAndScores(t *testing.T) {
	var req searchRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/collections/book_chunks/points/search", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode search body: %v", err)
		}
		w.Write([]byte(`{"result":[{"id":1,"score":0.9,"payload":{"chunk_id":"c1","book_id":"b1"}},{"id":2,"payload":{"chunk_id":"c2","book_id":"b1"}}]}`))
	})

	c, _ := testClient(t, mux, 50)
	hits, err := c.Search(context.Background(), []float32{0.5}, "b1", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if req.Limit != 10 {
		t.Errorf("expected limit 10, got %d", req.Limit)
	}
	if !req.WithPayload {
		t.Error("expected with_payload true")
	}
	if len(req.Filter.Must) != 1 || req.Filter.Must[0].Key != "book_id" || req.Filter.Must[0].Match.Value != "b1" {
		t.Errorf("unexpected filter: %+v", req.Filter)
	}

	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Score == nil || *hits[0].Score != 0.9 {
		t.Errorf("expected score 0.9, got %v", hits[0].Score)
	}
	if hits[1].Score != nil {
		t.Errorf("expected missing score to stay nil, got %v", *hits[1].Score)
	}
	if hits[0].Payload.ChunkID != "c1" {
		t.Errorf("expected payload chunk_id c1, got %q", hits[0].Payload.ChunkID)
	}
}

func TestDeleteByBookFilter(t *testing.T) {
	var req deleteRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/collections/book_chunks/points/delete", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode delete body: %v", err)
		}
		w.Write([]byte(`{"result":{"status":"acknowledged"}}`))
	})

	c, _ := testClient(t, mux, 50)
	if err := c.DeleteByBook(context.Background(), "b9"); err != nil {
		t.Fatalf("DeleteByBook: %v", err)
	}
	if len(req.Filter.Must) != 1 || req.Filter.Must[0].Match.Value != "b9" {
		t.Errorf("unexpected delete filter: %+v", req.Filter)
	}
}
