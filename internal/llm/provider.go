// Package llm hosts the staged model cascade: a cheap screener that triages
// candidates and an expensive analyst that produces the final structured
// analysis. Both run on pluggable chat-completion providers.
package llm

import (
	"context"
	"strings"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate runs a single prompt through the model and returns its text
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// GenerateRequest contains the input for one model call
type GenerateRequest struct {
	// System sets the assistant's role (optional)
	System string

	// Prompt is the fully rendered user prompt
	Prompt string

	// Model overrides the provider's configured model (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// GenerateResponse contains the model's output
type GenerateResponse struct {
	// Text is the raw model output
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "openai",
		Timeout:   60,
		MaxTokens: 1000,
	}
}

// articlePlaceholder is the substitution point in prompt templates.
const articlePlaceholder = "{{ARTICLE_TEXT}}"

// RenderPrompt substitutes the article text into a prompt template. A
// template without the placeholder gets the text appended, so a
// misconfigured prompt still reaches the model with content.
func RenderPrompt(template, articleText string) string {
	if strings.Contains(template, articlePlaceholder) {
		return strings.ReplaceAll(template, articlePlaceholder, articleText)
	}
	return template + "\n\n" + articleText
}

// stripJSONFence unwraps ```json ... ``` fences that chat models wrap
// around structured output, and trims surrounding noise down to the
// outermost object.
func stripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// truncate bounds the article text handed to a model tier. maxChars counts
// runes; slicing bytes could cut a multi-byte character in half.
func truncate(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}
