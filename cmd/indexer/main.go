package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shelfscout/shelfscout/internal/config"
	"github.com/shelfscout/shelfscout/internal/database"
	"github.com/shelfscout/shelfscout/internal/store"
	"github.com/shelfscout/shelfscout/internal/vector"
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

	qdb, err := vector.NewQdrantStore(ctx, cfg.QdrantAddr)
	if err != nil {
		log.Fatalf("Failed to initialize qdrant client: %v", err)
	}
	defer qdb.Close()

	indexer := vector.NewIndexer(
		store.NewStore(pool),
		qdb,
		vector.NewEmbedder(cfg.EmbeddingURL),
		cfg.VectorCollection,
		cfg.IndexerBatchSize,
		cfg.IndexerInterval,
	)

	log.Println("Indexer active. Catching vector collection up to the books table...")
	if err := indexer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Indexer failed: %v", err)
	}
}
