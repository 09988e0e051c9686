package retrieval

import (
	"context"
	"fmt"
)

// Searcher exposes raw similarity search over the library: embed the query
// and return the scored chunks without assembling them into a prompt block.
type Searcher struct {
	embedder *Embedder
	store    VectorStore
}

// NewSearcher wires a Searcher.
func NewSearcher(embedder *Embedder, store VectorStore) *Searcher {
	return &Searcher{embedder: embedder, store: store}
}

// Search returns the topK chunks most similar to query, restricted to
// fileIDs when non-nil.
func (s *Searcher) Search(ctx context.Context, query string, topK int, fileIDs []string) ([]ScoredRecord, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return s.store.Query(vec, topK, fileIDs)
}
