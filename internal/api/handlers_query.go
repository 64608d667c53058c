package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/bookgest/internal/books"
	"github.com/dgallion1/bookgest/internal/query"
)

// lookupBook resolves the bookID path parameter, writing the error response
// itself when the book is unknown.
func (s *Server) lookupBook(w http.ResponseWriter, r *http.Request) (books.Book, bool) {
	bookID := chi.URLParam(r, "bookID")
	book, err := s.registry.Get(r.Context(), bookID)
	if err != nil {
		if errors.Is(err, books.ErrNotFound) {
			jsonError(w, "book not found", http.StatusNotFound)
		} else {
			jsonError(w, err.Error(), http.StatusInternalServerError)
		}
		return books.Book{}, false
	}
	return book, true
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	book, ok := s.lookupBook(w, r)
	if !ok {
		return
	}

	var req struct {
		Question string `json:"question"`
		TopK     int    `json:"top_k"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		jsonError(w, "question is required", http.StatusBadRequest)
		return
	}

	answer, err := s.query.Ask(r.Context(), book.ID, req.Question, req.TopK)
	if err != nil {
		jsonError(w, "failed to answer question: "+err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(answer)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	book, ok := s.lookupBook(w, r)
	if !ok {
		return
	}

	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		jsonError(w, "q query parameter is required", http.StatusBadRequest)
		return
	}
	topK := 0
	if v := r.URL.Query().Get("top_k"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			topK = n
		}
	}

	contexts, err := s.query.Search(r.Context(), book.ID, q, topK)
	if err != nil {
		jsonError(w, "search failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	if contexts == nil {
		contexts = []query.Context{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"book_id": book.ID,
		"results": contexts,
	})
}
