package vector

import (
	"context"
	"fmt"
	"sort"

	"github.com/timshannon/badgerhold/v4"
)

// Record is one persisted embedding.
type Record struct {
	ID     string `badgerhold:"key"`
	Values []float32
}

// StoredIndex is a brute-force index persisted in badgerhold, so admitted
// embeddings survive across invocations. Linear scan per query; fine for
// the corpus sizes a 7-day window accumulates.
type StoredIndex struct {
	db *badgerhold.Store
}

// NewStoredIndex wraps a badgerhold store.
func NewStoredIndex(db *badgerhold.Store) *StoredIndex {
	return &StoredIndex{db: db}
}

// Upsert stores or replaces the vector for id.
func (s *StoredIndex) Upsert(_ context.Context, id string, vec []float32) error {
	cp := make([]float32, len(vec))
	copy(cp, vec)
	if err := s.db.Upsert(id, &Record{ID: id, Values: cp}); err != nil {
		return fmt.Errorf("upsert vector %s: %w", id, err)
	}
	return nil
}

// Query returns the k most similar persisted vectors, ranked by descending
// cosine similarity.
func (s *StoredIndex) Query(_ context.Context, vec []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}

	var records []Record
	if err := s.db.Find(&records, &badgerhold.Query{}); err != nil {
		return nil, fmt.Errorf("scan vectors: %w", err)
	}

	neighbors := make([]Neighbor, 0, len(records))
	for _, rec := range records {
		neighbors = append(neighbors, Neighbor{ID: rec.ID, Similarity: Cosine(vec, rec.Values)})
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].Similarity > neighbors[j].Similarity })
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}
