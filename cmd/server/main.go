package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shelfscout/shelfscout/internal/api"
	"github.com/shelfscout/shelfscout/internal/config"
	"github.com/shelfscout/shelfscout/internal/database"
	"github.com/shelfscout/shelfscout/internal/llm"
	"github.com/shelfscout/shelfscout/internal/pipeline"
	"github.com/shelfscout/shelfscout/internal/search"
	"github.com/shelfscout/shelfscout/internal/store"
	"github.com/shelfscout/shelfscout/internal/vector"
	"github.com/shelfscout/shelfscout/pkg/trie"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	if err := store.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}
	books := store.NewStore(pool)

	qdb, err := vector.NewQdrantStore(ctx, cfg.QdrantAddr)
	if err != nil {
		log.Fatalf("Failed to initialize qdrant client: %v", err)
	}
	defer qdb.Close()

	embedder := vector.NewEmbedder(cfg.EmbeddingURL)

	var history *search.History
	if rdb, err := database.NewRedisClient(ctx, cfg.RedisURL); err != nil {
		log.Printf("[Server] Redis unavailable, search history disabled: %v", err)
	} else {
		defer rdb.Close()
		history = search.NewHistory(rdb)
	}

	var events *pipeline.Events
	if nt, err := database.NewNatsConnection(cfg.NatsURL); err != nil {
		log.Printf("[Server] NATS unavailable, stage events disabled: %v", err)
	} else {
		defer nt.Close()
		events = pipeline.NewEvents(nt.JS)
	}

	var describer llm.Provider = &llm.MockProvider{}
	if cfg.GeminiAPIKey != "" {
		gem, err := llm.NewGeminiProvider(ctx, cfg.GeminiAPIKey)
		if err != nil {
			log.Printf("[Server] Gemini unavailable, description backfill disabled: %v", err)
		} else {
			defer gem.Close()
			describer = gem
		}
	}

	stages, err := pipeline.BuildStages(cfg, pool, describer)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	orchestrator := pipeline.NewOrchestrator(stages, events)

	// Lazy indexer: catches the vector collection up in the background and
	// exits once converged. Semantic search reports unavailable until the
	// collection exists.
	indexer := vector.NewIndexer(books, qdb, embedder, cfg.VectorCollection, cfg.IndexerBatchSize, cfg.IndexerInterval)
	go func() {
		if err := indexer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[Server] Indexer exited: %v", err)
		}
	}()

	service := search.NewService(books, qdb, embedder, history,
		cfg.VectorCollection, cfg.SemanticPoolSize, cfg.DistanceThreshold)

	titles := trie.New()
	if all, err := books.Titles(ctx); err != nil {
		log.Printf("[Server] Title preload failed, autocomplete degraded: %v", err)
	} else {
		for _, t := range all {
			titles.Add(t)
		}
		log.Printf("[Server] Autocomplete index seeded with %d titles", titles.Len())
	}
	service.Titles = titles

	server := &api.Server{
		Books:        books,
		Search:       service,
		History:      history,
		Runner:       orchestrator,
		Indexer:      indexer,
		RegisterPath: cfg.RegisterPath,
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("Starting HTTP server on %s", cfg.ListenAddr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("HTTP server failed: %v", err)
	}
}
