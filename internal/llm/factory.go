package llm

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/project-orion/orion/internal/model"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai", "":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromStage converts one cascade tier's configuration into a provider
// Config. API keys come from the environment, never from config files.
func ConfigFromStage(stage model.StageModelConfig) Config {
	cfg := Config{
		Provider: stage.Provider,
		Model:    stage.Model,
		Timeout:  int(stage.Timeout / time.Second),
	}

	switch strings.ToLower(stage.Provider) {
	case "anthropic", "claude":
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "ollama":
		cfg.BaseURL = os.Getenv("OLLAMA_HOST")
	default:
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	return cfg
}
