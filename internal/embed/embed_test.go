package embed

import (
	"context"
	"testing"
	"time"

	"github.com/project-orion/orion/internal/vector"
)

// fakeEmbedder returns canned vectors per text and counts calls.
type fakeEmbedder struct {
	vectors map[string][]float32
	calls   map[string]int
}

func newFakeEmbedder(vectors map[string][]float32) *fakeEmbedder {
	return &fakeEmbedder{vectors: vectors, calls: make(map[string]int)}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls[text]++
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func TestGateThresholdEqualityAdmits(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float32{
		"thesis":  {1, 0, 0},
		"aligned": {1, 0, 0}, // similarity exactly 1.0
	})
	gate := NewGate(emb, NewThesisCache(time.Minute), "thesis", 1.0)

	admit, err := gate.Admit(context.Background(), "aligned")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !admit {
		t.Fatal("similarity equal to the threshold must admit")
	}
}

func TestGateRejectsBelowThreshold(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float32{
		"thesis":    {1, 0, 0},
		"unrelated": {0, 1, 0}, // similarity 0
	})
	gate := NewGate(emb, NewThesisCache(time.Minute), "thesis", 0.75)

	admit, err := gate.Admit(context.Background(), "unrelated")
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if admit {
		t.Fatal("similarity below the threshold must reject")
	}
}

func TestGateMemoisesThesisEmbedding(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float32{"thesis": {1, 0, 0}})
	cache := NewThesisCache(time.Minute)
	gate := NewGate(emb, cache, "thesis", 0.5)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := gate.Similarity(ctx, "some text"); err != nil {
			t.Fatalf("similarity: %v", err)
		}
	}
	if emb.calls["thesis"] != 1 {
		t.Fatalf("thesis must be embedded once, embedded %d times", emb.calls["thesis"])
	}

	// A refreshed thesis text gets its own embedding.
	gate2 := NewGate(emb, cache, "new thesis", 0.5)
	if _, err := gate2.Similarity(ctx, "some text"); err != nil {
		t.Fatalf("similarity: %v", err)
	}
	if emb.calls["new thesis"] != 1 {
		t.Fatal("a refreshed thesis must be re-embedded")
	}
}

func TestSemanticCacheHitPolarity(t *testing.T) {
	ctx := context.Background()
	idx := vector.NewMemoryIndex()
	if err := idx.Upsert(ctx, "admitted-1", []float32{1, 0}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	cache := NewSemanticCache(idx, 0.90, true)

	// Nearly identical vector: similarity above threshold, duplicate.
	hit, err := cache.Lookup(ctx, []float32{0.999, 0.01})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if hit == nil {
		t.Fatal("near-identical content must be a cache hit")
	}
	if hit.ID != "admitted-1" {
		t.Fatalf("unexpected hit id %q", hit.ID)
	}

	// Distinct vector: no hit.
	hit, err = cache.Lookup(ctx, []float32{0, 1})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if hit != nil {
		t.Fatal("distinct content must not be a cache hit")
	}
}

func TestSemanticCacheDisabled(t *testing.T) {
	ctx := context.Background()
	idx := vector.NewMemoryIndex()
	cache := NewSemanticCache(idx, 0.90, false)

	if err := cache.Admit(ctx, "x", []float32{1, 0}); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if idx.Len() != 0 {
		t.Fatal("disabled cache must not upsert")
	}

	hit, err := cache.Lookup(ctx, []float32{1, 0})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if hit != nil {
		t.Fatal("disabled cache must never hit")
	}
}

func TestSemanticCacheEmptyIndex(t *testing.T) {
	cache := NewSemanticCache(vector.NewMemoryIndex(), 0.90, true)
	hit, err := cache.Lookup(context.Background(), []float32{1, 0})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if hit != nil {
		t.Fatal("empty index must not produce a hit")
	}
}
