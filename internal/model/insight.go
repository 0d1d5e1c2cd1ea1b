package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// ExtractorVersion is stamped on every Insight so downstream consumers can
// tell which prompt/parser generation produced it.
const ExtractorVersion = "v3.2"

// Sentiment is the analyst's classification of an item.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNegative Sentiment = "Negative"
	SentimentNeutral  Sentiment = "Neutral"
)

// Valid reports whether s is one of the three allowed values.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// InsightKind distinguishes the source modality of an insight.
type InsightKind string

const (
	KindArticleInsight InsightKind = "external_article_insight"
	KindVideoInsight   InsightKind = "video_insight"
)

// Insight is the pipeline's terminal artifact: created exactly once per
// admitted candidate, immutable after creation.
type Insight struct {
	ID               string      `json:"insight_id" badgerhold:"key"`
	SourceURL        string      `json:"source_url"`
	ExtractedAt      time.Time   `json:"extracted_at"`
	Kind             InsightKind `json:"type"`
	Summary          string      `json:"summary"`
	Sentiment        Sentiment   `json:"sentiment"`
	SentimentReason  string      `json:"sentiment_rationale,omitempty"`
	RelevantTickers  []string    `json:"relevant_tickers"`
	Confidence       float64     `json:"confidence_score"`
	ExtractorVersion string      `json:"extractor_version"`
	Embedding        []float32   `json:"-"`
}

// InsightID derives the stable document identity from the source URL.
func InsightID(sourceURL string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sourceURL)))
	return hex.EncodeToString(sum[:])
}

// ScreenerDecision is the screener model's structured output. Parsing is
// strict; a malformed response escalates to the analyst instead of dropping
// the item.
type ScreenerDecision struct {
	IsHighPriority bool   `json:"is_high_priority"`
	Reason         string `json:"reason,omitempty"`
}

// Analysis is the analyst model's structured output, validated at the
// boundary before it becomes an Insight.
type Analysis struct {
	Summary         string   `json:"summary"`
	Sentiment       string   `json:"sentiment"`
	SentimentReason string   `json:"sentiment_rationale"`
	RelevantTickers []string `json:"relevant_tickers"`
	Confidence      float64  `json:"confidence_score"`
}

// Validate checks the enum and range constraints of an analyst payload.
func (a Analysis) Validate() error {
	if strings.TrimSpace(a.Summary) == "" {
		return fmt.Errorf("analysis: empty summary")
	}
	if !Sentiment(a.Sentiment).Valid() {
		return fmt.Errorf("analysis: invalid sentiment %q", a.Sentiment)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("analysis: confidence %v out of [0,1]", a.Confidence)
	}
	return nil
}
