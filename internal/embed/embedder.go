// Package embed computes semantic embeddings and hosts the two vector
// checks of the funnel: the core-thesis relevance gate and the
// near-duplicate semantic cache.
package embed

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder converts text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder calls the OpenAI embeddings API, truncating long
// documents to cap cost.
type OpenAIEmbedder struct {
	client   *openai.Client
	model    openai.EmbeddingModel
	truncate int
}

// NewOpenAIEmbedder wraps an OpenAI client. truncate bounds the number of
// characters sent per request.
func NewOpenAIEmbedder(client *openai.Client, model string, truncate int) *OpenAIEmbedder {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	if truncate <= 0 {
		truncate = 20000
	}
	return &OpenAIEmbedder{
		client:   client,
		model:    openai.EmbeddingModel(model),
		truncate: truncate,
	}
}

// Embed returns the embedding of the first truncate characters of text.
// Characters are runes; a byte cut could split a multi-byte character.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) > e.truncate {
		if runes := []rune(text); len(runes) > e.truncate {
			text = string(runes[:e.truncate])
		}
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}
	return resp.Data[0].Embedding, nil
}
