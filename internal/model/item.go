package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// CandidateItem is one discovered piece of content flowing through the
// funnel. It is never persisted itself; only the resulting Insight is.
type CandidateItem struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary,omitempty"`
	FeedName     string    `json:"feed_name,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at"`

	// Text is populated lazily by the normalizer.
	Text string `json:"-"`
}

// Fingerprint returns the content-derived dedup identity: a sha256 over the
// normalized concatenation of title and summary. It is independent of the
// URL since titles and links can change for the same underlying story.
func (c CandidateItem) Fingerprint() string {
	norm := normalizeForHash(c.Title) + "\n" + normalizeForHash(c.Summary)
	sum := sha256.Sum256([]byte(norm))
	return "fp:" + hex.EncodeToString(sum[:])
}

// URLKey returns the URL-based dedup identity.
func (c CandidateItem) URLKey() string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(c.URL)))
	return "url:" + hex.EncodeToString(sum[:])
}

func normalizeForHash(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Modality tags the content type of a candidate, resolved once at
// normalization entry.
type Modality string

const (
	ModalityArticle Modality = "article"
	ModalityVideo   Modality = "video"
)

// Stage identifies a step of the admission funnel. The funnel narrows
// monotonically: no stage runs after a prior stage has rejected.
type Stage string

const (
	StageDiscovered    Stage = "discovered"
	StagePreFilter     Stage = "pre_filter"
	StageFingerprint   Stage = "fingerprint"
	StageNormalize     Stage = "normalize"
	StageEmbedding     Stage = "embedding"
	StageSemanticCache Stage = "semantic_cache"
	StageEntity        Stage = "entity"
	StageScreener      Stage = "screener"
	StageAnalyst       Stage = "analyst"
	StagePersist       Stage = "persist"
)
