package enrich

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shelfscout/shelfscout/internal/core"
	"github.com/shelfscout/shelfscout/internal/metadata"
)

// Record is one enriched catalog row, serialized one-per-line to the
// checkpoint file. Metadata is nil when every query strategy missed.
type Record struct {
	OriginalID     string            `json:"original_id"`
	OriginalTitle  string            `json:"original_title"`
	OriginalAuthor string            `json:"original_author"`
	Metadata       *metadata.Payload `json:"metadata"`
	Found          bool              `json:"found"`
}

// Accumulator collects enrichment results from concurrent workers and
// checkpoints them to disk so an interrupted run can resume. It is an owned
// object: all workers share one instance and every mutation holds the mutex.
type Accumulator struct {
	path       string
	checkpoint int

	mu           sync.Mutex
	records      []Record
	processedIDs map[string]struct{}
	sinceFlush   int
}

// NewAccumulator loads any previous checkpoint at path. A record line that
// fails to parse is a structural error: resuming over a corrupt checkpoint
// risks silently re-querying or dropping rows.
func NewAccumulator(path string, checkpointRows int) (*Accumulator, error) {
	if checkpointRows <= 0 {
		checkpointRows = 20
	}
	a := &Accumulator{
		path:         path,
		checkpoint:   checkpointRows,
		processedIDs: make(map[string]struct{}),
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return a, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", core.ErrCheckpointCorrupt, line, err)
		}
		a.records = append(a.records, rec)
		a.processedIDs[rec.OriginalID] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCheckpointCorrupt, err)
	}
	return a, nil
}

// Processed reports whether an accession was already enriched by a previous
// or concurrent pass.
func (a *Accumulator) Processed(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.processedIDs[id]
	return ok
}

func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Write appends one result and checkpoints after every configured number of
// completions. Append order is completion order, not input order.
func (a *Accumulator) Write(ctx context.Context, rec Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.processedIDs[rec.OriginalID]; dup {
		return nil
	}
	a.records = append(a.records, rec)
	a.processedIDs[rec.OriginalID] = struct{}{}
	a.sinceFlush++

	if a.sinceFlush >= a.checkpoint {
		if err := a.flushLocked(); err != nil {
			return err
		}
	}
	return nil
}

// Close persists whatever is buffered.
func (a *Accumulator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sinceFlush == 0 && len(a.records) == 0 {
		return nil
	}
	return a.flushLocked()
}

// flushLocked writes a full snapshot to a temp file and renames it over the
// output so a kill mid-write never leaves a torn checkpoint.
func (a *Accumulator) flushLocked() error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(a.path), ".enriched-*.tmp")
	if err != nil {
		return fmt.Errorf("creating checkpoint temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, rec := range a.records {
		if err := enc.Encode(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("encoding checkpoint record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), a.path); err != nil {
		return fmt.Errorf("replacing checkpoint: %w", err)
	}
	a.sinceFlush = 0
	return nil
}
