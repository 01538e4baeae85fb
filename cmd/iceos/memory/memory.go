// Package memory provides the in-process MemoryStore used in development
// mode. Production deployments plug in an external vector store through
// the same interface.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

type entry struct {
	key     string
	content string
}

// Store is a scope-partitioned in-memory store with token-overlap scoring
// in place of real embeddings.
type Store struct {
	mu      sync.RWMutex
	entries map[sdk.MemoryScope][]entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[sdk.MemoryScope][]entry)}
}

func (s *Store) Write(_ context.Context, scope sdk.MemoryScope, key, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries[scope] {
		if e.key == key {
			s.entries[scope][i].content = content
			return nil
		}
	}
	s.entries[scope] = append(s.entries[scope], entry{key: key, content: content})
	return nil
}

func (s *Store) SemanticSearch(_ context.Context, scope sdk.MemoryScope, query string, k int) ([]sdk.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queryTokens := tokenize(query)
	var hits []sdk.Hit
	for _, e := range s.entries[scope] {
		score := overlap(queryTokens, tokenize(e.content))
		if score > 0 {
			hits = append(hits, sdk.Hit{Key: e.key, Content: e.content, Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, t := range strings.Fields(strings.ToLower(s)) {
		tokens[strings.Trim(t, ".,!?;:")] = true
	}
	return tokens
}

// overlap is the fraction of query tokens present in the candidate.
func overlap(query, candidate map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for t := range query {
		if candidate[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}
