package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/shelfscout/shelfscout/internal/transform"
)

// Loader moves canonical records into the books table. It is safe to
// re-run over the same file: known identities are skipped up front and
// the unique indexes catch anything that slips through.
type Loader struct {
	DB        DBExecutor
	BatchSize int
}

type LoadStats struct {
	Scanned         int
	Inserted        int
	SkippedKnown    int
	SkippedConflict int
	Malformed       int
}

func NewLoader(db DBExecutor, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Loader{DB: db, BatchSize: batchSize}
}

func (l *Loader) LoadFile(ctx context.Context, path string) (LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return LoadStats{}, fmt.Errorf("open canonical file: %w", err)
	}
	defer f.Close()
	return l.Load(ctx, f)
}

func (l *Loader) Load(ctx context.Context, r io.Reader) (LoadStats, error) {
	var stats LoadStats

	isbns, extIDs, err := l.knownIdentities(ctx)
	if err != nil {
		return stats, err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	batch := make([]*transform.Canonical, 0, l.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		inserted, conflicts, err := l.insertBatch(ctx, batch)
		if err != nil {
			return err
		}
		stats.Inserted += inserted
		stats.SkippedConflict += conflicts
		batch = batch[:0]
		return nil
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		stats.Scanned++

		var c transform.Canonical
		if err := json.Unmarshal(line, &c); err != nil {
			log.Printf("[Loader] Skipping malformed line %d: %v", stats.Scanned, err)
			stats.Malformed++
			continue
		}

		if (c.ISBN13 != "" && isbns[c.ISBN13]) ||
			(c.ExternalID != "" && extIDs[c.ExternalID]) {
			stats.SkippedKnown++
			continue
		}
		if c.ISBN13 != "" {
			isbns[c.ISBN13] = true
		}
		if c.ExternalID != "" {
			extIDs[c.ExternalID] = true
		}

		batch = append(batch, &c)
		if len(batch) >= l.BatchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read canonical file: %w", err)
	}
	if err := flush(); err != nil {
		return stats, err
	}

	log.Printf("[Loader] Done: scanned=%d inserted=%d known=%d conflicts=%d malformed=%d",
		stats.Scanned, stats.Inserted, stats.SkippedKnown, stats.SkippedConflict, stats.Malformed)
	return stats, nil
}

func (l *Loader) knownIdentities(ctx context.Context) (map[string]bool, map[string]bool, error) {
	rows, err := l.DB.Query(ctx,
		`SELECT COALESCE(isbn_13, ''), COALESCE(external_id, '') FROM books
		 WHERE isbn_13 IS NOT NULL OR external_id IS NOT NULL`)
	if err != nil {
		return nil, nil, fmt.Errorf("preload identities: %w", err)
	}
	defer rows.Close()

	isbns := make(map[string]bool)
	extIDs := make(map[string]bool)
	for rows.Next() {
		var isbn, extID string
		if err := rows.Scan(&isbn, &extID); err != nil {
			return nil, nil, fmt.Errorf("scan identity row: %w", err)
		}
		if isbn != "" {
			isbns[isbn] = true
		}
		if extID != "" {
			extIDs[extID] = true
		}
	}
	return isbns, extIDs, rows.Err()
}

const insertBookSQL = `
	INSERT INTO books (title, subtitle, authors, description, isbn_13, isbn_10,
		categories, page_count, published_date, thumbnail, preview_link,
		external_id, edition_volume, publisher_info, book_no)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT DO NOTHING
`

func (l *Loader) insertBatch(ctx context.Context, batch []*transform.Canonical) (inserted, conflicts int, err error) {
	tx, err := l.DB.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range batch {
		tag, err := tx.Exec(ctx, insertBookSQL,
			c.Title, nullable(c.Subtitle), nullable(joinList(c.Authors)),
			nullable(c.Description), nullable(c.ISBN13), nullable(c.ISBN10),
			nullable(joinList(c.Categories)), c.PageCount, nullable(c.PublishedDate),
			nullable(c.Thumbnail), nullable(c.PreviewLink), nullable(c.ExternalID),
			nullable(c.EditionVolume), nullable(c.PublisherInfo), nullable(c.BookNo))
		if err != nil {
			return 0, 0, fmt.Errorf("insert %q: %w", c.Title, err)
		}
		if tag.RowsAffected() == 0 {
			conflicts++
		} else {
			inserted++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit batch: %w", err)
	}
	return inserted, conflicts, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
