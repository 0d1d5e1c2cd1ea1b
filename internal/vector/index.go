// Package vector provides the nearest-neighbour index behind the semantic
// cache: a corpus of previously admitted content embeddings queried for
// near-duplicates and upserted on every admission.
package vector

import (
	"context"
	"math"
)

// Neighbor is one ranked match from an index query. Similarity is cosine
// similarity in [-1,1]; larger means more similar.
type Neighbor struct {
	ID         string
	Similarity float64
}

// Index supports upsert and k-nearest-neighbour lookup. Implementations
// must tolerate concurrent readers and writers; last write wins.
type Index interface {
	Upsert(ctx context.Context, id string, vec []float32) error
	Query(ctx context.Context, vec []float32, k int) ([]Neighbor, error)
}

// Cosine returns the cosine similarity of two vectors. Mismatched lengths
// or zero vectors yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
