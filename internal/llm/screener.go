package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/project-orion/orion/internal/model"
)

const screenerSystem = "You are a fast financial news triage assistant. " +
	"Respond with a single JSON object and nothing else."

// Screener is the cheap first tier of the cascade. It sees only a prefix of
// the article and decides whether the expensive analyst should run.
type Screener struct {
	provider Provider
	prompt   string
	model    string
	maxChars int
	log      zerolog.Logger
}

// NewScreener binds a provider to the screener tier's configuration.
func NewScreener(provider Provider, stage model.StageModelConfig, log zerolog.Logger) *Screener {
	return &Screener{
		provider: provider,
		prompt:   stage.Prompt,
		model:    stage.Model,
		maxChars: stage.MaxChars,
		log:      log.With().Str("component", "screener").Logger(),
	}
}

// Screen triages an article. Transport and API failures surface as errors;
// an unparseable model response fails open: the item escalates to the
// analyst rather than being silently dropped on a formatting hiccup.
func (s *Screener) Screen(ctx context.Context, articleText string) (*model.ScreenerDecision, error) {
	prompt := RenderPrompt(s.prompt, truncate(articleText, s.maxChars))

	resp, err := s.provider.Generate(ctx, GenerateRequest{
		System: screenerSystem,
		Prompt: prompt,
		Model:  s.model,
	})
	if err != nil {
		return nil, fmt.Errorf("screener: %w", err)
	}

	var decision model.ScreenerDecision
	if err := json.Unmarshal([]byte(stripJSONFence(resp.Text)), &decision); err != nil {
		s.log.Warn().
			Err(err).
			Str("model", resp.Model).
			Msg("unparseable screener response, escalating to analyst")
		return &model.ScreenerDecision{
			IsHighPriority: true,
			Reason:         "screener response unparseable, escalated",
		}, nil
	}

	return &decision, nil
}
