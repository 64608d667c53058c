package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Book registry (MongoDB)
	MongoURI      string
	MongoDatabase string

	// Vector store (Qdrant)
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
	EmbedDim         int

	// Gemini
	GeminiAPIKey string
	EmbedModel   string
	GenModel     string

	// Object storage (S3)
	AWSAccessKey string
	AWSSecretKey string
	AWSRegion    string
	S3Bucket     string

	// Auth
	APIKey string

	// Worker pool
	WorkerCount  int
	MaxQueueSize int
	ChunkWorkers int

	// Batch sizes
	EmbedBatchSize  int
	UpsertBatchSize int
	SearchTopK      int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// LLM latency stats window
	StatsWindow time.Duration
}

func Load() Config {
	// Optional .env for local development; deployments set the environment
	// directly.
	_ = godotenv.Load()

	cfg := Config{
		Port: envOr("PORT", "8090"),

		MongoURI:      envOr("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: envOr("MONGO_DATABASE", "bookgest"),

		QdrantURL:        envOr("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantCollection: envOr("QDRANT_COLLECTION", "book_chunks"),
		EmbedDim:         envInt("EMBED_DIM", 768),

		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		EmbedModel:   envOr("EMBED_MODEL", "text-embedding-004"),
		GenModel:     envOr("GEN_MODEL", "gemini-1.5-flash"),

		AWSAccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSRegion:    envOr("AWS_REGION", "us-east-1"),
		S3Bucket:     os.Getenv("S3_BUCKET"),

		APIKey: os.Getenv("BOOKGEST_API_KEY"),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),
		ChunkWorkers: envInt("CHUNK_WORKERS", 6),

		EmbedBatchSize:  envInt("EMBED_BATCH_SIZE", 50),
		UpsertBatchSize: envInt("UPSERT_BATCH_SIZE", 50),
		SearchTopK:      envInt("SEARCH_TOP_K", 10),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 104857600), // 100MB

		JobTTL:      envDuration("JOB_TTL", 1*time.Hour),
		StatsWindow: envDuration("LLM_STATS_WINDOW", 15*time.Minute),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.ChunkWorkers <= 0 {
		cfg.ChunkWorkers = 6
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 50
	}
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = 50
	}
	if cfg.SearchTopK <= 0 {
		cfg.SearchTopK = 10
	}
	if cfg.EmbedDim <= 0 {
		cfg.EmbedDim = 768
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 104857600
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = 15 * time.Minute
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("BOOKGEST_API_KEY is required")
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.AWSAccessKey == "" || c.AWSSecretKey == "" {
		return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required")
	}
	if c.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
