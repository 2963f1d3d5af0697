package trie

import (
	"sort"
	"strings"
	"sync"
)

// Index is a concurrency-safe prefix tree over book titles. Lookups are
// case-insensitive; completions return the original casing.
type Index struct {
	mu   sync.RWMutex
	root *node
	size int
}

type node struct {
	children map[rune]*node
	terminal bool
	title    string
}

func New() *Index {
	return &Index{root: newNode()}
}

func newNode() *node {
	return &node{children: make(map[rune]*node)}
}

func (x *Index) Add(title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	current := x.root
	for _, char := range strings.ToLower(title) {
		next, exists := current.children[char]
		if !exists {
			next = newNode()
			current.children[char] = next
		}
		current = next
	}
	if !current.terminal {
		x.size++
	}
	current.terminal = true
	current.title = title
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.size
}

// Complete returns up to limit titles starting with prefix, in
// lexicographic order of the folded key.
func (x *Index) Complete(prefix string, limit int) []string {
	if limit <= 0 {
		return []string{}
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	current := x.root
	for _, char := range strings.ToLower(strings.TrimSpace(prefix)) {
		next, exists := current.children[char]
		if !exists {
			return []string{}
		}
		current = next
	}

	results := make([]string, 0, limit)
	collect(current, &results, limit)
	return results
}

func collect(start *node, results *[]string, limit int) {
	stack := []*node{start}

	for len(stack) > 0 {
		if len(*results) >= limit {
			return
		}
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if curr.terminal {
			*results = append(*results, curr.title)
		}

		keys := make([]rune, 0, len(curr.children))
		for child := range curr.children {
			keys = append(keys, child)
		}

		// Descending push order so the stack pops ascending.
		sort.Slice(keys, func(i, j int) bool {
			return keys[i] > keys[j]
		})

		for _, key := range keys {
			stack = append(stack, curr.children[key])
		}
	}
}
