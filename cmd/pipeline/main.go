package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shelfscout/shelfscout/internal/config"
	"github.com/shelfscout/shelfscout/internal/database"
	"github.com/shelfscout/shelfscout/internal/llm"
	"github.com/shelfscout/shelfscout/internal/pipeline"
	"github.com/shelfscout/shelfscout/internal/store"
)

func main() {
	skipSync := flag.Bool("skip-sync", false, "skip the OPAC sync stage")
	skipEnrich := flag.Bool("skip-enrich", false, "skip the metadata enrichment stage")
	skipTransform := flag.Bool("skip-transform", false, "skip the transform stage")
	skipLoad := flag.Bool("skip-load", false, "skip the relational load stage")
	limit := flag.Int("limit", 0, "cap the number of rows enriched this run (0 = all)")
	source := flag.String("source", "", "metadata source override (google, openlibrary, openalex)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	if *limit > 0 {
		cfg.SampleLimit = *limit
	}
	if *source != "" {
		cfg.Source = *source
	}

	var db store.DBExecutor
	if !*skipLoad {
		pool, err := database.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		defer pool.Close()
		if err := store.EnsureSchema(ctx, pool); err != nil {
			log.Fatalf("Failed to migrate schema: %v", err)
		}
		db = pool
	}

	var events *pipeline.Events
	if nt, err := database.NewNatsConnection(cfg.NatsURL); err != nil {
		log.Printf("[Pipeline] NATS unavailable, stage events disabled: %v", err)
	} else {
		defer nt.Close()
		events = pipeline.NewEvents(nt.JS)
	}

	var describer llm.Provider = &llm.MockProvider{}
	if cfg.GeminiAPIKey != "" {
		gem, err := llm.NewGeminiProvider(ctx, cfg.GeminiAPIKey)
		if err != nil {
			log.Printf("[Pipeline] Gemini unavailable, description backfill disabled: %v", err)
		} else {
			defer gem.Close()
			describer = gem
		}
	}

	stages, err := pipeline.BuildStages(cfg, db, describer)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	orchestrator := pipeline.NewOrchestrator(stages, events)
	summary, err := orchestrator.Run(ctx, pipeline.Options{
		SkipSync:      *skipSync,
		SkipEnrich:    *skipEnrich,
		SkipTransform: *skipTransform,
		SkipLoad:      *skipLoad,
	})
	if err != nil {
		log.Fatalf("Pipeline run failed: %v", err)
	}

	log.Printf("Run %s: synced=%d enriched=%d kept=%d inserted=%d",
		summary.RunID, summary.Synced, summary.Enrich.Enriched,
		summary.Transform.Kept, summary.Load.Inserted)
}
