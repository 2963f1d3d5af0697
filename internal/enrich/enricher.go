package enrich

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/shelfscout/shelfscout/internal/catalog"
	"github.com/shelfscout/shelfscout/internal/core"
	"github.com/shelfscout/shelfscout/internal/metadata"
)

const (
	defaultMaxRetries = 5
	backoffBase       = 1500 * time.Millisecond
	backoffCap        = 60 * time.Second
)

// Enricher resolves one catalog row against a metadata source, relaxing the
// query until something matches. Transient failures degrade the row to
// found=false rather than failing the batch.
type Enricher struct {
	Client     metadata.Client
	MaxRetries int

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewEnricher(client metadata.Client) *Enricher {
	return &Enricher{
		Client:     client,
		MaxRetries: defaultMaxRetries,
		sleep:      sleepCtx,
	}
}

type attempt struct {
	title  string
	author string
}

// queryStrategies returns fallback queries in decreasing precision: exact
// title+author, title truncated at the first colon, title-only, and for long
// titles a five-word truncation. The first strategy with a hit wins.
func queryStrategies(title, author string) []attempt {
	title = catalog.CleanText(strings.ReplaceAll(title, "...", ""))
	author = catalog.CleanText(author)
	// Surname is enough for author matching and avoids initials noise.
	if i := strings.IndexByte(author, ','); i >= 0 {
		author = strings.TrimSpace(author[:i])
	}

	var attempts []attempt
	add := func(t, a string) {
		if t == "" {
			return
		}
		for _, prev := range attempts {
			if prev.title == t && prev.author == a {
				return
			}
		}
		attempts = append(attempts, attempt{title: t, author: a})
	}

	if author != "" {
		add(title, author)
	}
	if i := strings.IndexByte(title, ':'); i >= 0 {
		short := strings.TrimSpace(title[:i])
		if author != "" {
			add(short, author)
		}
		add(short, "")
	}
	add(title, "")

	if words := strings.Fields(title); len(words) > 5 {
		short := strings.Join(words[:5], " ")
		if author != "" {
			add(short, author)
		}
		add(short, "")
	}
	return attempts
}

// Process runs the strategy ladder for one row. It only returns an error on
// context cancellation; everything else produces a Record.
func (e *Enricher) Process(ctx context.Context, row catalog.Row) (Record, error) {
	rec := Record{
		OriginalID:     row.Accession,
		OriginalTitle:  catalog.CleanText(row.Title),
		OriginalAuthor: catalog.CleanText(row.Author),
	}

	for _, att := range queryStrategies(row.Title, row.Author) {
		payload, err := e.searchWithRetry(ctx, att.title, att.author)
		if err != nil {
			if ctx.Err() != nil {
				return rec, ctx.Err()
			}
			log.Printf("[Enrich] %s (%s): %v", row.Accession, e.Client.Name(), err)
			continue
		}
		if payload != nil {
			rec.Metadata = payload
			rec.Found = true
			return rec, nil
		}
	}
	return rec, nil
}

// searchWithRetry retries a single query through bounded exponential backoff
// on rate limiting. After the retry ceiling the query counts as a miss.
func (e *Enricher) searchWithRetry(ctx context.Context, title, author string) (*metadata.Payload, error) {
	maxRetries := e.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	for retries := 0; ; retries++ {
		payload, err := e.Client.Search(ctx, title, author)
		if err == nil {
			return payload, nil
		}

		retryable, wait := core.IsRetryable(err)
		if !retryable || retries >= maxRetries {
			return nil, err
		}

		if wait <= 0 {
			wait = backoffBase << retries
		}
		if wait > backoffCap {
			wait = backoffCap
		}
		log.Printf("[Enrich] Rate limited, waiting %s (retry %d/%d)", wait, retries+1, maxRetries)
		if err := e.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
