package enrich

import (
	"context"
	"log"

	"github.com/shelfscout/shelfscout/internal/catalog"
	"github.com/shelfscout/shelfscout/internal/core"
	"github.com/shelfscout/shelfscout/internal/metadata"
)

// Options configures one enrichment pass.
type Options struct {
	OutputPath     string
	Concurrency    int
	CheckpointRows int
	// Limit caps the number of rows enriched this pass; 0 means no cap.
	Limit int
}

// Stats summarizes one enrichment pass.
type Stats struct {
	Input    int
	Resumed  int
	Enriched int
	Found    int
	Missed   int
}

// Run fans the register out against one metadata client, checkpointing as it
// goes. Re-invocation over a partially completed register skips rows already
// present in the checkpoint.
func Run(ctx context.Context, rows []catalog.Row, client metadata.Client, opts Options) (Stats, error) {
	stats := Stats{Input: len(rows)}

	acc, err := NewAccumulator(opts.OutputPath, opts.CheckpointRows)
	if err != nil {
		return stats, err
	}
	stats.Resumed = acc.Len()

	var pending []catalog.Row
	for _, row := range rows {
		if row.Title == "" {
			continue
		}
		if acc.Processed(row.Accession) {
			continue
		}
		pending = append(pending, row)
		if opts.Limit > 0 && len(pending) >= opts.Limit {
			break
		}
	}
	log.Printf("[Enrich] %d rows pending (%d already processed)", len(pending), stats.Resumed)

	if len(pending) > 0 {
		runner := core.NewPipelineRunner[catalog.Row, Record](
			&core.SliceSource[catalog.Row]{Items: pending},
			NewEnricher(client),
			acc,
			core.PipelineConfig{Concurrency: opts.Concurrency, Name: "Enrich"},
		)
		if err := runner.Run(ctx); err != nil {
			// Flush whatever completed before surfacing the failure.
			_ = acc.Close()
			return stats, err
		}
	}

	if err := acc.Close(); err != nil {
		return stats, err
	}

	acc.mu.Lock()
	for _, rec := range acc.records {
		if rec.Found {
			stats.Found++
		} else {
			stats.Missed++
		}
	}
	stats.Enriched = len(acc.records) - stats.Resumed
	acc.mu.Unlock()

	log.Printf("[Enrich] Pass complete: %d new, %d found, %d missed (total %d)",
		stats.Enriched, stats.Found, stats.Missed, stats.Found+stats.Missed)
	return stats, nil
}
