package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/bookgest/internal/api"
	"github.com/dgallion1/bookgest/internal/books"
	"github.com/dgallion1/bookgest/internal/config"
	"github.com/dgallion1/bookgest/internal/ingest"
	"github.com/dgallion1/bookgest/internal/llm"
	"github.com/dgallion1/bookgest/internal/pipeline"
	"github.com/dgallion1/bookgest/internal/qdrant"
	"github.com/dgallion1/bookgest/internal/query"
	"github.com/dgallion1/bookgest/internal/storage"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	defer initCancel()

	// Initialize clients.
	registry, err := books.NewRegistry(initCtx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Error("connect book registry", "error", err)
		os.Exit(1)
	}
	if err := registry.EnsureIndexes(initCtx); err != nil {
		log.Error("ensure registry indexes", "error", err)
		os.Exit(1)
	}

	vectors := qdrant.NewClient(qdrant.Config{
		BaseURL:     cfg.QdrantURL,
		APIKey:      cfg.QdrantAPIKey,
		Collection:  cfg.QdrantCollection,
		Dimension:   cfg.EmbedDim,
		UpsertBatch: cfg.UpsertBatchSize,
	})

	store, err := storage.NewStore(initCtx, storage.Config{
		AccessKey: cfg.AWSAccessKey,
		SecretKey: cfg.AWSSecretKey,
		Region:    cfg.AWSRegion,
		Bucket:    cfg.S3Bucket,
	})
	if err != nil {
		log.Error("connect object storage", "error", err)
		os.Exit(1)
	}

	stats := llm.NewStats(cfg.StatsWindow)
	embedder, err := llm.NewEmbedder(initCtx, cfg.GeminiAPIKey, cfg.EmbedModel, stats)
	if err != nil {
		log.Error("create embedder", "error", err)
		os.Exit(1)
	}
	generator, err := llm.NewGenerator(initCtx, cfg.GeminiAPIKey, cfg.GenModel, stats)
	if err != nil {
		log.Error("create generator", "error", err)
		os.Exit(1)
	}

	// Initialize pipeline.
	runner := pipeline.NewRunner(cfg.WorkerCount, cfg.MaxQueueSize, cfg.JobTTL, log)
	runner.Start(ctx)

	ingestor, err := ingest.NewIngestor(registry, store, embedder, vectors, ingest.Options{
		ChunkWorkers:   cfg.ChunkWorkers,
		EmbedBatchSize: cfg.EmbedBatchSize,
	}, log)
	if err != nil {
		log.Error("create ingestor", "error", err)
		os.Exit(1)
	}

	deleter, err := books.NewDeleter(registry, vectors, store, runner, log)
	if err != nil {
		log.Error("create deleter", "error", err)
		os.Exit(1)
	}

	queryPipeline, err := query.NewPipeline(embedder, vectors, generator, cfg.SearchTopK, log)
	if err != nil {
		log.Error("create query pipeline", "error", err)
		os.Exit(1)
	}

	// Initialize HTTP server.
	srv := api.NewServer(api.Deps{
		Runner:   runner,
		Registry: registry,
		Ingestor: ingestor,
		Deleter:  deleter,
		Query:    queryPipeline,
		Stats:    stats,
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		runner.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		embedder.Close()
		generator.Close()
		registry.Close(shutdownCtx)
	}()

	log.Info("starting bookgest", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
