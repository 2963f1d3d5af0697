package search

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/shelfscout/shelfscout/internal/core"
	"github.com/shelfscout/shelfscout/internal/store"
	"github.com/shelfscout/shelfscout/internal/vector"
	"github.com/shelfscout/shelfscout/pkg/trie"
)

type mockBooks struct {
	byID     map[int64]*store.Book
	keyword  []*store.Book
	lastTerm string
}

func (m *mockBooks) KeywordSearch(_ context.Context, q string, _ int) ([]*store.Book, error) {
	m.lastTerm = q
	return m.keyword, nil
}

func (m *mockBooks) FindByIDs(_ context.Context, ids []int64) (map[int64]*store.Book, error) {
	out := make(map[int64]*store.Book)
	for _, id := range ids {
		if b, ok := m.byID[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

type mockVectors struct {
	hits []vector.Hit
	err  error
}

func (m *mockVectors) Query(context.Context, string, []float32, uint64) ([]vector.Hit, error) {
	return m.hits, m.err
}

type mockEmbedder struct{ err error }

func (m *mockEmbedder) ComputeEmbeddings(_ context.Context, _ string, isQuery bool) ([]float32, error) {
	if !isQuery {
		return nil, errors.New("query service must embed with the query task")
	}
	return []float32{0.1, 0.2, 0.3}, m.err
}

func newTestService(books BookStore, vectors VectorIndex, embedder QueryEmbedder) *Service {
	return NewService(books, vectors, embedder, nil, "books", 300, 0.7)
}

func TestSemantic_ThresholdFiltersDistantHits(t *testing.T) {
	books := &mockBooks{byID: map[int64]*store.Book{
		1: {ID: 1, Title: "Close Match"},
		2: {ID: 2, Title: "Near Match"},
		3: {ID: 3, Title: "Far Match"},
	}}
	// Scores 0.8, 0.5, 0.1 give distances 0.2, 0.5, 0.9.
	vectors := &mockVectors{hits: []vector.Hit{
		{BookID: 1, Score: 0.8},
		{BookID: 2, Score: 0.5},
		{BookID: 3, Score: 0.1},
	}}

	svc := newTestService(books, vectors, &mockEmbedder{})
	results, err := svc.Semantic(context.Background(), "quantum computing", 10)
	if err != nil {
		t.Fatalf("Semantic failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results within threshold 0.7, got %d", len(results))
	}
	if results[0].Book.ID != 1 || results[1].Book.ID != 2 {
		t.Errorf("Expected rank order [1 2], got [%d %d]", results[0].Book.ID, results[1].Book.ID)
	}
	if results[0].Distance != 1-0.8 {
		t.Errorf("Expected distance %v, got %v", 1-0.8, results[0].Distance)
	}
}

func TestSemantic_EmptyPoolIsNotAnError(t *testing.T) {
	svc := newTestService(&mockBooks{}, &mockVectors{}, &mockEmbedder{})
	results, err := svc.Semantic(context.Background(), "anything", 10)
	if err != nil {
		t.Fatalf("Semantic failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected empty results, got %d", len(results))
	}
}

func TestSemantic_MissingRelationalRowSkipped(t *testing.T) {
	books := &mockBooks{byID: map[int64]*store.Book{2: {ID: 2, Title: "Survivor"}}}
	vectors := &mockVectors{hits: []vector.Hit{
		{BookID: 1, Score: 0.9},
		{BookID: 2, Score: 0.8},
	}}

	svc := newTestService(books, vectors, &mockEmbedder{})
	results, err := svc.Semantic(context.Background(), "orphans", 10)
	if err != nil {
		t.Fatalf("Semantic failed: %v", err)
	}
	if len(results) != 1 || results[0].Book.ID != 2 {
		t.Errorf("Expected only surviving row 2, got %+v", results)
	}
}

func TestSemantic_IndexUnavailable(t *testing.T) {
	svc := newTestService(&mockBooks{}, &mockVectors{err: errors.New("connection refused")}, &mockEmbedder{})
	_, err := svc.Semantic(context.Background(), "anything", 10)
	if !errors.Is(err, core.ErrIndexUnavailable) {
		t.Fatalf("Expected ErrIndexUnavailable, got %v", err)
	}

	svc = newTestService(&mockBooks{}, &mockVectors{}, &mockEmbedder{err: errors.New("embedder down")})
	_, err = svc.Semantic(context.Background(), "anything", 10)
	if !errors.Is(err, core.ErrIndexUnavailable) {
		t.Fatalf("Expected ErrIndexUnavailable from embedder failure, got %v", err)
	}
}

func TestKeyword_EmptyQueryShortCircuits(t *testing.T) {
	books := &mockBooks{}
	svc := newTestService(books, &mockVectors{}, &mockEmbedder{})
	results, err := svc.Keyword(context.Background(), "   ", 10)
	if err != nil {
		t.Fatalf("Keyword failed: %v", err)
	}
	if len(results) != 0 || books.lastTerm != "" {
		t.Errorf("Empty query must not reach the store")
	}
}

func TestHistory_RecordAndAutocomplete(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	h := NewHistory(rdb)

	ctx := context.Background()
	h.Record(ctx, "Applied Cryptography")
	h.Record(ctx, "applied cryptography")
	h.Record(ctx, "apple farming")
	h.Record(ctx, "banana cultivation")

	suggestions, err := h.Autocomplete(ctx, "app", 5)
	if err != nil {
		t.Fatalf("Autocomplete failed: %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("Expected 2 suggestions, got %d", len(suggestions))
	}
	// Recorded twice, so it outranks the longer-prefix-neutral term.
	if suggestions[0] != "applied cryptography" {
		t.Errorf("Expected popular term first, got %q", suggestions[0])
	}

	recent, err := h.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 4 || recent[0] != "banana cultivation" {
		t.Errorf("Unexpected recent list: %v", recent)
	}
}

func TestSuggest_MergesHistoryAndTitles(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	svc := newTestService(&mockBooks{}, &mockVectors{}, &mockEmbedder{})
	svc.History = NewHistory(rdb)
	svc.Titles = trie.New()
	svc.Titles.Add("Applied Cryptography")
	svc.Titles.Add("Approximation Algorithms")

	ctx := context.Background()
	svc.History.Record(ctx, "applied cryptography")

	got, err := svc.Suggest(ctx, "app", 10)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	// History entry first, then the remaining title; the duplicate title is
	// folded away case-insensitively.
	want := []string{"applied cryptography", "Approximation Algorithms"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Suggest = %v, want %v", got, want)
	}
}

func TestSuggest_TitlesOnlyWithoutHistory(t *testing.T) {
	svc := newTestService(&mockBooks{}, &mockVectors{}, &mockEmbedder{})
	svc.Titles = trie.New()
	svc.Titles.Add("Dune")

	got, err := svc.Suggest(context.Background(), "du", 5)
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(got) != 1 || got[0] != "Dune" {
		t.Errorf("Suggest = %v, want [Dune]", got)
	}
}

func TestHistory_NilSafe(t *testing.T) {
	var h *History
	h.Record(context.Background(), "query")
	if s, err := h.Autocomplete(context.Background(), "q", 5); err != nil || s != nil {
		t.Errorf("Nil history must be inert, got %v %v", s, err)
	}
}
