package vector

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shelfscout/shelfscout/internal/store"
)

type IndexerStatus int32

const (
	StatusIdle IndexerStatus = iota
	StatusCatchingUp
	StatusConverged
)

func (s IndexerStatus) String() string {
	switch s {
	case StatusCatchingUp:
		return "catching-up"
	case StatusConverged:
		return "converged"
	default:
		return "idle"
	}
}

type BookSource interface {
	FetchAfter(ctx context.Context, afterID int64, limit int) ([]*store.Book, error)
	Watermark(ctx context.Context, collection string) (int64, error)
	SetWatermark(ctx context.Context, collection string, lastBookID int64) error
}

type PointSink interface {
	EnsureCollection(ctx context.Context, name string) error
	UpsertBatch(ctx context.Context, collection string, points []Point) error
}

type BatchEmbedder interface {
	ComputeBatch(ctx context.Context, texts []string, isQuery bool) ([][]float32, error)
}

// Indexer is the lazy background loop that embeds relational rows into the
// vector collection. Progress is a row-id watermark advanced only after a
// successful batch upsert, so a crashed run resumes where it left off and
// concurrent inserts never shift the catch-up math.
type Indexer struct {
	Books      BookSource
	Vectors    PointSink
	Embedder   BatchEmbedder
	Collection string
	BatchSize  int
	Interval   time.Duration

	status atomic.Int32
}

func NewIndexer(books BookSource, vectors PointSink, embedder BatchEmbedder, collection string, batchSize int, interval time.Duration) *Indexer {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Indexer{
		Books:      books,
		Vectors:    vectors,
		Embedder:   embedder,
		Collection: collection,
		BatchSize:  batchSize,
		Interval:   interval,
	}
}

func (ix *Indexer) Status() IndexerStatus {
	return IndexerStatus(ix.status.Load())
}

// Run catches up batch by batch and returns once the table is fully indexed.
// Transient failures are logged and retried after the interval; the loop only
// exits on convergence or context cancellation.
func (ix *Indexer) Run(ctx context.Context) error {
	if err := ix.Vectors.EnsureCollection(ctx, ix.Collection); err != nil {
		return fmt.Errorf("ensure collection %q: %w", ix.Collection, err)
	}

	ix.status.Store(int32(StatusCatchingUp))
	total := 0
	for {
		n, err := ix.step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Indexer] Batch failed, retrying after %s: %v", ix.Interval, err)
			if err := sleepCtx(ctx, ix.Interval); err != nil {
				return err
			}
			continue
		}
		if n == 0 {
			ix.status.Store(int32(StatusConverged))
			log.Printf("[Indexer] Converged: %d documents indexed this run", total)
			return nil
		}
		total += n
		if err := sleepCtx(ctx, ix.Interval); err != nil {
			return err
		}
	}
}

func (ix *Indexer) step(ctx context.Context) (int, error) {
	watermark, err := ix.Books.Watermark(ctx, ix.Collection)
	if err != nil {
		return 0, err
	}

	books, err := ix.Books.FetchAfter(ctx, watermark, ix.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(books) == 0 {
		return 0, nil
	}

	texts := make([]string, len(books))
	for i, b := range books {
		texts[i] = DisplayText(b)
	}

	vectors, err := ix.Embedder.ComputeBatch(ctx, texts, false)
	if err != nil {
		return 0, err
	}

	points := make([]Point, len(books))
	for i, b := range books {
		points[i] = Point{
			DocID:  b.DocID(),
			BookID: b.ID,
			Title:  b.Title,
			ISBN13: b.ISBN13,
			Vector: vectors[i],
		}
	}

	if err := ix.Vectors.UpsertBatch(ctx, ix.Collection, points); err != nil {
		return 0, err
	}

	last := books[len(books)-1].ID
	if err := ix.Books.SetWatermark(ctx, ix.Collection, last); err != nil {
		return 0, err
	}

	log.Printf("[Indexer] Indexed %d documents, watermark now %d", len(points), last)
	return len(points), nil
}

// DisplayText builds the embedding input from the fields a book actually has.
func DisplayText(b *store.Book) string {
	parts := []string{"Title: " + b.Title}
	if b.Subtitle != "" {
		parts = append(parts, "Subtitle: "+b.Subtitle)
	}
	if len(b.Authors) > 0 {
		parts = append(parts, "Authors: "+strings.Join(b.Authors, ", "))
	}
	if len(b.Categories) > 0 {
		parts = append(parts, "Categories: "+strings.Join(b.Categories, ", "))
	}
	if b.Description != "" {
		parts = append(parts, "Description: "+b.Description)
	}
	return strings.Join(parts, " | ")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
