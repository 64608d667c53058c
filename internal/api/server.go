package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/bookgest/internal/books"
	"github.com/dgallion1/bookgest/internal/config"
	"github.com/dgallion1/bookgest/internal/ingest"
	"github.com/dgallion1/bookgest/internal/llm"
	"github.com/dgallion1/bookgest/internal/pipeline"
	"github.com/dgallion1/bookgest/internal/query"
)

// Deps bundles the collaborators the server fronts.
type Deps struct {
	Runner   *pipeline.Runner
	Registry *books.Registry
	Ingestor *ingest.Ingestor
	Deleter  *books.Deleter
	Query    *query.Pipeline
	Stats    *llm.Stats
}

// Server is the HTTP API server for bookgest.
type Server struct {
	router   chi.Router
	runner   *pipeline.Runner
	registry *books.Registry
	ingestor *ingest.Ingestor
	deleter  *books.Deleter
	query    *query.Pipeline
	stats    *llm.Stats
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		runner:   deps.Runner,
		registry: deps.Registry,
		ingestor: deps.Ingestor,
		deleter:  deps.Deleter,
		query:    deps.Query,
		stats:    deps.Stats,
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/books", s.handleUploadBook)
		r.Get("/api/books", s.handleListBooks)
		r.Delete("/api/books/{bookID}", s.handleDeleteBook)
		r.Get("/api/tasks/{taskID}", s.handleTaskStatus)

		r.Post("/api/books/{bookID}/ask", s.handleAsk)
		r.Get("/api/books/{bookID}/search", s.handleSearch)

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
