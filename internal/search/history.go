package search

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	AutocompleteKey = "shelfscout:autocomplete"
	SearchScoresKey = "shelfscout:search_scores"
	RecentKey       = "shelfscout:recent_searches"

	recentKeep = 50
)

// History tracks queries in redis: a lexicographic zset for prefix
// autocomplete, a score zset for popularity ranking, and a capped list of
// recent searches. A nil History disables tracking.
type History struct {
	rdb *redis.Client
}

func NewHistory(rdb *redis.Client) *History {
	return &History{rdb: rdb}
}

type scoredTerm struct {
	term  string
	score float64
}

func (h *History) Record(ctx context.Context, query string) {
	if h == nil || h.rdb == nil {
		return
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return
	}

	pipe := h.rdb.Pipeline()
	pipe.ZAdd(ctx, AutocompleteKey, redis.Z{Member: query, Score: 0})
	pipe.ZIncrBy(ctx, SearchScoresKey, 1.0, query)
	pipe.LPush(ctx, RecentKey, query)
	pipe.LTrim(ctx, RecentKey, 0, recentKeep-1)
	_, _ = pipe.Exec(ctx)
}

func (h *History) Recent(ctx context.Context, limit int) ([]string, error) {
	if h == nil || h.rdb == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	return h.rdb.LRange(ctx, RecentKey, 0, int64(limit-1)).Result()
}

// Autocomplete returns up to limit known queries starting with prefix,
// popular terms first, then shorter, then lexicographic.
func (h *History) Autocomplete(ctx context.Context, prefix string, limit int) ([]string, error) {
	if h == nil || h.rdb == nil {
		return nil, nil
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	terms, err := h.rdb.ZRangeArgs(ctx, redis.ZRangeArgs{
		Key:   AutocompleteKey,
		ByLex: true,
		Start: "[" + prefix,
		Stop:  "[" + prefix + "\xff",
		Count: int64(limit * 2),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("autocomplete range failed: %w", err)
	}
	if len(terms) == 0 {
		return []string{}, nil
	}

	pipe := h.rdb.Pipeline()
	scoreCmds := make([]*redis.FloatCmd, len(terms))
	for i, term := range terms {
		scoreCmds[i] = pipe.ZScore(ctx, SearchScoresKey, term)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("ranking pipeline failed: %w", err)
	}

	scored := make([]scoredTerm, len(terms))
	for i, term := range terms {
		score, _ := scoreCmds[i].Result()
		scored[i] = scoredTerm{term: term, score: score}
	}

	slices.SortFunc(scored, func(a, b scoredTerm) int {
		if n := cmp.Compare(b.score, a.score); n != 0 {
			return n
		}
		if n := cmp.Compare(len(a.term), len(b.term)); n != 0 {
			return n
		}
		return cmp.Compare(a.term, b.term)
	})

	suggestions := make([]string, 0, limit)
	for i := 0; i < len(scored) && i < limit; i++ {
		suggestions = append(suggestions, scored[i].term)
	}
	return suggestions, nil
}
