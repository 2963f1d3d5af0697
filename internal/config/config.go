package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config collects every tunable the pipeline and server read from the
// environment. A missing .env file is not an error.
type Config struct {
	DatabaseURL  string
	QdrantAddr   string
	RedisURL     string
	NatsURL      string
	EmbeddingURL string
	GeminiAPIKey string

	RegisterPath  string
	EnrichedPath  string
	CanonicalPath string

	OPACBaseURL string
	OPACShelfID string

	Source         string
	Concurrency    int
	SampleLimit    int
	CheckpointRows int

	LoaderBatchSize  int
	IndexerBatchSize int
	IndexerInterval  time.Duration

	VectorCollection  string
	SemanticPoolSize  int
	DistanceThreshold float64

	ListenAddr string
}

func Load() *Config {
	// Side effect only: populate os.Environ from .env when present.
	_ = godotenv.Load()

	return &Config{
		DatabaseURL:  getEnv("DATABASE_URL", "postgres://localhost:5432/shelfscout"),
		QdrantAddr:   getEnv("QDRANT_GRPC_URL", "localhost:6334"),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		NatsURL:      os.Getenv("NATS_URL"),
		EmbeddingURL: getEnv("EMBEDDING_URL", "http://localhost:7997/v1"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),

		RegisterPath:  getEnv("REGISTER_PATH", "data/raw/accession-register.csv"),
		EnrichedPath:  getEnv("ENRICHED_PATH", "data/processed/books_enriched.jsonl"),
		CanonicalPath: getEnv("CANONICAL_PATH", "data/processed/books_deduped.jsonl"),

		OPACBaseURL: getEnv("OPAC_BASE_URL", "https://opac.example.edu"),
		OPACShelfID: getEnv("OPAC_SHELF_ID", "393"),

		Source:         getEnv("ENRICH_SOURCE", "google"),
		Concurrency:    getEnvInt("ENRICH_CONCURRENCY", 3),
		SampleLimit:    getEnvInt("ENRICH_LIMIT", 0),
		CheckpointRows: getEnvInt("CHECKPOINT_ROWS", 20),

		LoaderBatchSize:  getEnvInt("LOADER_BATCH_SIZE", 100),
		IndexerBatchSize: getEnvInt("INDEXER_BATCH_SIZE", 100),
		IndexerInterval:  getEnvDuration("INDEXER_INTERVAL", 5*time.Second),

		VectorCollection:  getEnv("VECTOR_COLLECTION", "books"),
		SemanticPoolSize:  getEnvInt("SEMANTIC_POOL_SIZE", 300),
		DistanceThreshold: getEnvFloat("DISTANCE_THRESHOLD", 0.7),

		ListenAddr: getEnv("LISTEN_ADDR", ":8000"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
