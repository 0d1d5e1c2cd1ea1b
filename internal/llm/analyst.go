package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/project-orion/orion/internal/model"
)

const analystSystem = "You are a rigorous financial analyst. " +
	"Respond with a single JSON object and nothing else."

// Analyst is the expensive second tier of the cascade. It sees the full
// normalized text and produces the structured analysis that becomes an
// Insight. Unlike the screener, a malformed response here is an error: a
// half-parsed analysis must never be persisted.
type Analyst struct {
	provider Provider
	prompt   string
	model    string
	maxChars int
}

// NewAnalyst binds a provider to the analyst tier's configuration.
func NewAnalyst(provider Provider, stage model.StageModelConfig) *Analyst {
	return &Analyst{
		provider: provider,
		prompt:   stage.Prompt,
		model:    stage.Model,
		maxChars: stage.MaxChars,
	}
}

// Analyze extracts the structured analysis from an article.
func (a *Analyst) Analyze(ctx context.Context, articleText string) (*model.Analysis, error) {
	prompt := RenderPrompt(a.prompt, truncate(articleText, a.maxChars))

	resp, err := a.provider.Generate(ctx, GenerateRequest{
		System:    analystSystem,
		Prompt:    prompt,
		Model:     a.model,
		MaxTokens: 2000,
	})
	if err != nil {
		return nil, fmt.Errorf("analyst: %w", err)
	}

	var analysis model.Analysis
	if err := json.Unmarshal([]byte(stripJSONFence(resp.Text)), &analysis); err != nil {
		return nil, fmt.Errorf("analyst: parse response: %w", err)
	}
	if err := analysis.Validate(); err != nil {
		return nil, fmt.Errorf("analyst: %w", err)
	}

	return &analysis, nil
}
