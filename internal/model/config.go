package model

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full pipeline configuration. A snapshot of it (plus the
// dynamic core thesis) is taken once per invocation and threaded through
// every stage; stages never read ambient global state.
type Config struct {
	HTTP          HTTPConfig          `yaml:"http" mapstructure:"http"`
	Feeds         []FeedConfig        `yaml:"feeds" mapstructure:"feeds"`
	Filters       FilterConfig        `yaml:"filters" mapstructure:"filters"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	SemanticCache SemanticCacheConfig `yaml:"semantic_cache" mapstructure:"semantic_cache"`
	Cascade       CascadeConfig       `yaml:"llm_cascade" mapstructure:"llm_cascade"`
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Notify        NotifyConfig        `yaml:"notify" mapstructure:"notify"`
	Thesis        ThesisConfig        `yaml:"thesis" mapstructure:"thesis"`
	Concurrency   ConcurrencyConfig   `yaml:"concurrency" mapstructure:"concurrency"`
}

// HTTPConfig covers all outbound page and feed fetches.
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RatePerSec   float64       `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	RateBurst    int           `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// FeedConfig names one polled content source.
type FeedConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	URL  string `yaml:"url" mapstructure:"url"`
}

// FilterConfig holds the cheap rejection thresholds.
type FilterConfig struct {
	Blocklist           []string `yaml:"blocklist" mapstructure:"blocklist"`
	SimilarityThreshold float64  `yaml:"semantic_similarity_threshold" mapstructure:"semantic_similarity_threshold"`
	OrgThreshold        int      `yaml:"nlp_org_count_threshold" mapstructure:"nlp_org_count_threshold"`
	MoneyThreshold      int      `yaml:"nlp_money_count_threshold" mapstructure:"nlp_money_count_threshold"`
	MinTextLength       int      `yaml:"min_text_length" mapstructure:"min_text_length"`
}

// EmbeddingConfig selects the embedding model and the cost-capping
// truncation bound.
type EmbeddingConfig struct {
	Model         string `yaml:"model" mapstructure:"model"`
	TruncateChars int    `yaml:"truncate_chars" mapstructure:"truncate_chars"`
}

// SemanticCacheConfig tunes the near-duplicate index. Threshold is a cosine
// similarity: a nearest neighbour above it is treated as a duplicate.
type SemanticCacheConfig struct {
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
	Threshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
}

// StageModelConfig configures one tier of the model cascade.
type StageModelConfig struct {
	Provider string        `yaml:"provider" mapstructure:"provider"`
	Model    string        `yaml:"model" mapstructure:"model"`
	Prompt   string        `yaml:"prompt" mapstructure:"prompt"`
	MaxChars int           `yaml:"max_chars" mapstructure:"max_chars"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// CascadeConfig holds the cheap screener and the expensive analyst tiers.
type CascadeConfig struct {
	Screener StageModelConfig `yaml:"screener" mapstructure:"screener"`
	Analyst  StageModelConfig `yaml:"analyst" mapstructure:"analyst"`
}

// StoreConfig locates the local store and sets dedup retention.
type StoreConfig struct {
	Path      string        `yaml:"path" mapstructure:"path"`
	Retention time.Duration `yaml:"retention" mapstructure:"retention"`
	Backfill  int           `yaml:"backfill" mapstructure:"backfill"`
}

// NotifyConfig configures the insight notification publisher.
type NotifyConfig struct {
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"`
	Topic     string `yaml:"topic" mapstructure:"topic"`
}

// ThesisConfig carries the fallback thesis text used when the store holds
// no dynamic thesis document.
type ThesisConfig struct {
	Default string `yaml:"default" mapstructure:"default"`
}

// ConcurrencyConfig bounds the per-batch fan-out.
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// DefaultCoreThesis is used when the dynamic thesis document is absent or
// unreadable. Reading failure is never fatal.
const DefaultCoreThesis = "We focus on company fundamentals and macroeconomic developments, " +
	"with particular weight on news related to M&A, earnings releases, and technology partnerships."

const defaultScreenerPrompt = `You are a financial news screener. Read the article below and answer with a single JSON object and nothing else: {"is_high_priority": true|false, "reason": "<one sentence>"}. High priority means concrete, market-moving corporate or macro substance.

ARTICLE:
{{ARTICLE_TEXT}}`

const defaultAnalystPrompt = `You are a financial analyst. Read the article below and respond with a single JSON object and nothing else, with fields: "summary" (3-4 sentences), "sentiment" (one of "Positive", "Negative", "Neutral"), "sentiment_rationale" (one sentence), "relevant_tickers" (array of ticker symbols, or null), "confidence_score" (number in [0,1]).

ARTICLE:
{{ARTICLE_TEXT}}`

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:      20 * time.Second,
			UserAgent:    "Orion/1.0 (+https://github.com/project-orion/orion)",
			MaxBodyBytes: 2_000_000,
			RatePerSec:   2,
			RateBurst:    5,
		},
		Filters: FilterConfig{
			Blocklist:           []string{"sports", "entertainment", "celebrity", "fashion", "lifestyle"},
			SimilarityThreshold: 0.75,
			OrgThreshold:        3,
			MoneyThreshold:      1,
			MinTextLength:       100,
		},
		Embedding: EmbeddingConfig{
			Model:         "text-embedding-3-small",
			TruncateChars: 20000,
		},
		SemanticCache: SemanticCacheConfig{
			Enabled:   true,
			Threshold: 0.90,
		},
		Cascade: CascadeConfig{
			Screener: StageModelConfig{
				Provider: "openai",
				Model:    "gpt-4o-mini",
				Prompt:   defaultScreenerPrompt,
				MaxChars: 4000,
				Timeout:  60 * time.Second,
			},
			Analyst: StageModelConfig{
				Provider: "openai",
				Model:    "gpt-4o",
				Prompt:   defaultAnalystPrompt,
				MaxChars: 60000,
				Timeout:  120 * time.Second,
			},
		},
		Store: StoreConfig{
			Path:      "orion-data",
			Retention: 7 * 24 * time.Hour,
			Backfill:  5,
		},
		Notify: NotifyConfig{
			Topic: "new-atomic-insight-created",
		},
		Thesis: ThesisConfig{
			Default: DefaultCoreThesis,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
	}
}

// LoadConfig overlays the viper-managed sources (config file, ORION_* env,
// bound flags) onto the defaults.
func LoadConfig(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks the preconditions that are fatal to an invocation.
func (c *Config) Validate() error {
	if c.Filters.SimilarityThreshold < -1 || c.Filters.SimilarityThreshold > 1 {
		return fmt.Errorf("config: semantic_similarity_threshold %v out of [-1,1]", c.Filters.SimilarityThreshold)
	}
	if c.SemanticCache.Enabled && (c.SemanticCache.Threshold < -1 || c.SemanticCache.Threshold > 1) {
		return fmt.Errorf("config: semantic_cache threshold %v out of [-1,1]", c.SemanticCache.Threshold)
	}
	if c.Cascade.Screener.Model == "" || c.Cascade.Analyst.Model == "" {
		return fmt.Errorf("config: llm_cascade screener and analyst models are required")
	}
	if c.Store.Retention <= 0 {
		return fmt.Errorf("config: store retention must be positive")
	}
	return nil
}

// Snapshot is the per-invocation view of configuration plus the dynamic
// core thesis, fetched once and passed through all stages as a parameter.
type Snapshot struct {
	Config     *Config
	CoreThesis string
}
