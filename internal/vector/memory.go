package vector

import (
	"context"
	"sort"
	"sync"
)

// MemoryIndex is a brute-force in-memory index. Suitable for tests and for
// single-process runs with modest corpora.
type MemoryIndex struct {
	mu   sync.RWMutex
	vecs map[string][]float32
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vecs: make(map[string][]float32)}
}

// Upsert stores or replaces the vector for id.
func (m *MemoryIndex) Upsert(_ context.Context, id string, vec []float32) error {
	cp := make([]float32, len(vec))
	copy(cp, vec)

	m.mu.Lock()
	m.vecs[id] = cp
	m.mu.Unlock()
	return nil
}

// Query returns the k most similar stored vectors, ranked by descending
// cosine similarity.
func (m *MemoryIndex) Query(_ context.Context, vec []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	neighbors := make([]Neighbor, 0, len(m.vecs))
	for id, v := range m.vecs {
		neighbors = append(neighbors, Neighbor{ID: id, Similarity: Cosine(vec, v)})
	}
	m.mu.RUnlock()

	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Similarity > neighbors[j].Similarity })
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// Len reports the number of stored vectors.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vecs)
}
