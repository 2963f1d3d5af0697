package transform

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/shelfscout/shelfscout/internal/catalog"
	"github.com/shelfscout/shelfscout/internal/enrich"
	"github.com/shelfscout/shelfscout/internal/llm"
)

// Stats are the running counters reported at the end of the stage.
type Stats struct {
	Scanned          int
	RemovedNoData    int
	RemovedDuplicate int
	Malformed        int
	Backfilled       int
	Kept             int
}

// Options configures one transform pass.
type Options struct {
	InputPath  string
	OutputPath string
	// Describer, when set, backfills empty descriptions on kept records.
	Describer llm.Provider
}

// Run converts the enriched JSONL into deduplicated canonical JSONL, merging
// register metadata by accession number. An unparseable line is counted and
// skipped; only missing files or I/O failures are fatal.
func Run(ctx context.Context, side map[string]catalog.LocalMeta, opts Options) (Stats, error) {
	var stats Stats

	in, err := os.Open(opts.InputPath)
	if err != nil {
		return stats, fmt.Errorf("opening enriched input: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(opts.OutputPath), 0o755); err != nil {
		return stats, err
	}
	out, err := os.Create(opts.OutputPath)
	if err != nil {
		return stats, fmt.Errorf("creating canonical output: %w", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	stats, err = run(ctx, in, w, side, opts.Describer)
	if err != nil {
		return stats, err
	}
	if err := w.Flush(); err != nil {
		return stats, err
	}

	log.Printf("[Transform] Scanned %d: kept %d, no-data %d, duplicate %d, malformed %d, backfilled %d",
		stats.Scanned, stats.Kept, stats.RemovedNoData, stats.RemovedDuplicate, stats.Malformed, stats.Backfilled)
	return stats, nil
}

func run(ctx context.Context, in io.Reader, out io.Writer, side map[string]catalog.LocalMeta, describer llm.Provider) (Stats, error) {
	var stats Stats

	// SetEscapeHTML(false) plus Go's native UTF-8 output keeps multilingual
	// titles and authors byte-for-byte intact.
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	dedup := NewDeduper()

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		if len(sc.Bytes()) == 0 {
			continue
		}
		stats.Scanned++

		var rec enrich.Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			stats.Malformed++
			continue
		}

		c, ok := Normalize(rec, side)
		if !ok {
			stats.RemovedNoData++
			continue
		}
		if !dedup.Admit(c) {
			stats.RemovedDuplicate++
			continue
		}

		if describer != nil && c.Description == "" {
			desc, err := describer.Describe(ctx, c.Title, strings.Join(c.Authors, ", "), strings.Join(c.Categories, ", "))
			if err != nil {
				log.Printf("[Transform] Description backfill failed for %q: %v", c.Title, err)
			} else if desc != "" {
				c.Description = desc
				stats.Backfilled++
			}
		}

		if err := enc.Encode(c); err != nil {
			return stats, fmt.Errorf("writing canonical record: %w", err)
		}
		stats.Kept++
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("reading enriched input: %w", err)
	}
	return stats, nil
}
