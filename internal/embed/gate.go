package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/project-orion/orion/internal/vector"
)

// ThesisCache memoises thesis embeddings across invocations, keyed by a
// hash of the thesis text so a refreshed thesis is embedded exactly once.
type ThesisCache struct {
	cache *gocache.Cache
}

// NewThesisCache creates the shared memoisation cache.
func NewThesisCache(ttl time.Duration) *ThesisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ThesisCache{cache: gocache.New(ttl, 2*ttl)}
}

func (c *ThesisCache) get(key string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	if v, ok := c.cache.Get(key); ok {
		return v.([]float32), true
	}
	return nil, false
}

func (c *ThesisCache) set(key string, vec []float32) {
	if c != nil {
		c.cache.Set(key, vec, gocache.DefaultExpiration)
	}
}

// Gate scores text against the core thesis. It is built per invocation
// from the configuration snapshot, so a thesis refresh takes effect on the
// next run without any ambient state.
type Gate struct {
	embedder  Embedder
	cache     *ThesisCache
	thesis    string
	threshold float64
}

// NewGate binds the snapshot's thesis text and threshold.
func NewGate(embedder Embedder, cache *ThesisCache, thesisText string, threshold float64) *Gate {
	return &Gate{
		embedder:  embedder,
		cache:     cache,
		thesis:    thesisText,
		threshold: threshold,
	}
}

// Similarity returns the cosine similarity between text and the thesis.
func (g *Gate) Similarity(ctx context.Context, text string) (float64, error) {
	thesisVec, err := g.thesisVector(ctx)
	if err != nil {
		return 0, err
	}
	textVec, err := g.embedder.Embed(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("embed text: %w", err)
	}
	return vector.Cosine(thesisVec, textVec), nil
}

// Admit applies the documented inequality: similarity below the threshold
// rejects; equality admits.
func (g *Gate) Admit(ctx context.Context, text string) (bool, error) {
	sim, err := g.Similarity(ctx, text)
	if err != nil {
		return false, err
	}
	return sim >= g.threshold, nil
}

// AdmitVector applies the same inequality to a precomputed embedding.
func (g *Gate) AdmitVector(ctx context.Context, vec []float32) (bool, float64, error) {
	thesisVec, err := g.thesisVector(ctx)
	if err != nil {
		return false, 0, err
	}
	sim := vector.Cosine(thesisVec, vec)
	return sim >= g.threshold, sim, nil
}

func (g *Gate) thesisVector(ctx context.Context) ([]float32, error) {
	key := thesisKey(g.thesis)
	if vec, ok := g.cache.get(key); ok {
		return vec, nil
	}
	vec, err := g.embedder.Embed(ctx, g.thesis)
	if err != nil {
		return nil, fmt.Errorf("embed core thesis: %w", err)
	}
	g.cache.set(key, vec)
	return vec, nil
}

func thesisKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
