package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/shelfscout/shelfscout/internal/core"
	"github.com/shelfscout/shelfscout/internal/store"
	"github.com/shelfscout/shelfscout/internal/vector"
	"github.com/shelfscout/shelfscout/pkg/trie"
)

type BookStore interface {
	KeywordSearch(ctx context.Context, q string, limit int) ([]*store.Book, error)
	FindByIDs(ctx context.Context, ids []int64) (map[int64]*store.Book, error)
}

type VectorIndex interface {
	Query(ctx context.Context, collection string, vector []float32, limit uint64) ([]vector.Hit, error)
}

type QueryEmbedder interface {
	ComputeEmbeddings(ctx context.Context, text string, isQuery bool) ([]float32, error)
}

type Service struct {
	Books    BookStore
	Vectors  VectorIndex
	Embedder QueryEmbedder
	History  *History
	// Titles, when set, contributes catalog title completions to Suggest.
	Titles *trie.Index

	Collection        string
	PoolSize          int
	DistanceThreshold float64
}

// SemanticResult pairs a book with its cosine distance to the query.
// Smaller is closer.
type SemanticResult struct {
	Book     *store.Book `json:"book"`
	Distance float64     `json:"distance"`
}

func NewService(books BookStore, vectors VectorIndex, embedder QueryEmbedder, history *History, collection string, poolSize int, threshold float64) *Service {
	if poolSize <= 0 {
		poolSize = 300
	}
	if threshold <= 0 {
		threshold = 0.7
	}
	return &Service{
		Books:             books,
		Vectors:           vectors,
		Embedder:          embedder,
		History:           history,
		Collection:        collection,
		PoolSize:          poolSize,
		DistanceThreshold: threshold,
	}
}

// Suggest merges past queries with catalog title completions for the prefix.
// Query history ranks first; titles fill the remainder.
func (s *Service) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	suggestions, err := s.History.Autocomplete(ctx, prefix, limit)
	if err != nil {
		return nil, err
	}

	if s.Titles != nil && len(suggestions) < limit {
		seen := make(map[string]bool, len(suggestions))
		for _, t := range suggestions {
			seen[strings.ToLower(t)] = true
		}
		for _, title := range s.Titles.Complete(prefix, limit) {
			if seen[strings.ToLower(title)] {
				continue
			}
			suggestions = append(suggestions, title)
			if len(suggestions) == limit {
				break
			}
		}
	}

	if suggestions == nil {
		suggestions = []string{}
	}
	return suggestions, nil
}

func (s *Service) Keyword(ctx context.Context, query string, limit int) ([]*store.Book, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*store.Book{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	s.History.Record(ctx, query)

	books, err := s.Books.KeywordSearch(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if books == nil {
		books = []*store.Book{}
	}
	return books, nil
}

// Semantic embeds the query, pulls a candidate pool from the vector index,
// keeps candidates within the distance threshold, and re-joins them against
// the books table preserving vector rank. An empty result is not an error.
func (s *Service) Semantic(ctx context.Context, query string, limit int) ([]SemanticResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SemanticResult{}, nil
	}
	if limit <= 0 || limit > s.PoolSize {
		limit = s.PoolSize
	}
	s.History.Record(ctx, query)

	queryVec, err := s.Embedder.ComputeEmbeddings(ctx, query, true)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query failed: %v", core.ErrIndexUnavailable, err)
	}

	hits, err := s.Vectors.Query(ctx, s.Collection, queryVec, uint64(s.PoolSize))
	if err != nil {
		return nil, fmt.Errorf("%w: vector query failed: %v", core.ErrIndexUnavailable, err)
	}

	// Cosine similarity from qdrant becomes a distance in [0, 2].
	type candidate struct {
		bookID   int64
		distance float64
	}
	candidates := make([]candidate, 0, len(hits))
	for _, h := range hits {
		distance := 1 - float64(h.Score)
		if distance > s.DistanceThreshold {
			continue
		}
		candidates = append(candidates, candidate{bookID: h.BookID, distance: distance})
		if len(candidates) == limit {
			break
		}
	}
	if len(candidates) == 0 {
		return []SemanticResult{}, nil
	}

	ids := make([]int64, len(candidates))
	for i, c := range candidates {
		ids[i] = c.bookID
	}
	byID, err := s.Books.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]SemanticResult, 0, len(candidates))
	for _, c := range candidates {
		book, ok := byID[c.bookID]
		if !ok {
			// Index entry with no surviving relational row; skip it.
			continue
		}
		results = append(results, SemanticResult{Book: book, Distance: c.distance})
	}
	return results, nil
}
