package embed

import (
	"context"
	"fmt"

	"github.com/project-orion/orion/internal/vector"
)

// SemanticCache catches paraphrased re-reports of already-admitted stories
// that exact fingerprinting misses. It queries the nearest neighbour among
// previously admitted embeddings; a neighbour more similar than the
// threshold is a cache hit (duplicate).
type SemanticCache struct {
	index     vector.Index
	threshold float64
	enabled   bool
}

// NewSemanticCache wraps a vector index.
func NewSemanticCache(index vector.Index, threshold float64, enabled bool) *SemanticCache {
	return &SemanticCache{index: index, threshold: threshold, enabled: enabled}
}

// Hit is a detected near-duplicate.
type Hit struct {
	ID         string
	Similarity float64
}

// Lookup returns a non-nil Hit when the nearest admitted neighbour exceeds
// the duplicate threshold. Disabled caches never hit.
func (c *SemanticCache) Lookup(ctx context.Context, vec []float32) (*Hit, error) {
	if !c.enabled {
		return nil, nil
	}

	neighbors, err := c.index.Query(ctx, vec, 1)
	if err != nil {
		return nil, fmt.Errorf("semantic cache query: %w", err)
	}
	if len(neighbors) == 0 {
		return nil, nil
	}
	if nearest := neighbors[0]; nearest.Similarity > c.threshold {
		return &Hit{ID: nearest.ID, Similarity: nearest.Similarity}, nil
	}
	return nil, nil
}

// Admit upserts an admitted item's embedding so future near-duplicates are
// caught. No-op when the cache is disabled.
func (c *SemanticCache) Admit(ctx context.Context, id string, vec []float32) error {
	if !c.enabled {
		return nil
	}
	if err := c.index.Upsert(ctx, id, vec); err != nil {
		return fmt.Errorf("semantic cache upsert: %w", err)
	}
	return nil
}
