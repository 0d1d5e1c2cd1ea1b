// Package normalize turns a candidate URL into a single plain-text
// representation, polymorphic over content modality.
package normalize

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/project-orion/orion/internal/model"
)

// PageFetcher retrieves an HTML page. Implemented by the pipeline's
// robots-aware, rate-limited fetcher.
type PageFetcher interface {
	FetchPage(ctx context.Context, rawURL string) (string, error)
}

// RelevanceGate is the cheap similarity pre-check the video path runs on
// metadata before paying for transcription.
type RelevanceGate interface {
	Admit(ctx context.Context, text string) (bool, error)
}

// Transcriber converts a downloaded audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// AudioLocator resolves the audio stream URL for a video page.
type AudioLocator interface {
	Locate(ctx context.Context, pageURL, pageHTML string) (string, error)
}

// Result is the normalized representation of a candidate.
type Result struct {
	Text     string
	Modality model.Modality
}

// Normalizer resolves modality once at entry and dispatches to the
// per-variant handler.
type Normalizer struct {
	fetcher     PageFetcher
	gate        RelevanceGate
	transcriber Transcriber
	audio       AudioLocator
	media       *http.Client
	minText     int
	log         zerolog.Logger
}

// Options configures optional collaborators of the Normalizer.
type Options struct {
	Gate        RelevanceGate
	Transcriber Transcriber
	Audio       AudioLocator
	MediaClient *http.Client
	MinText     int
}

// New creates a Normalizer. The video path is disabled unless a gate,
// transcriber, and audio locator are all provided.
func New(fetcher PageFetcher, opts Options, log zerolog.Logger) *Normalizer {
	if opts.MinText <= 0 {
		opts.MinText = 100
	}
	if opts.MediaClient == nil {
		opts.MediaClient = http.DefaultClient
	}
	return &Normalizer{
		fetcher:     fetcher,
		gate:        opts.Gate,
		transcriber: opts.Transcriber,
		audio:       opts.Audio,
		media:       opts.MediaClient,
		minText:     opts.MinText,
		log:         log,
	}
}

// videoHosts denote the video modality by URL pattern.
var videoHosts = []string{"youtube.com", "youtu.be"}

// DetectModality resolves the content modality from the URL alone.
func DetectModality(rawURL string) model.Modality {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ModalityDefault
	}
	host := strings.ToLower(parsed.Hostname())
	for _, vh := range videoHosts {
		if host == vh || strings.HasSuffix(host, "."+vh) {
			return model.ModalityVideo
		}
	}
	return ModalityDefault
}

// ModalityDefault is what everything that is not a known video host gets.
const ModalityDefault = model.ModalityArticle

// Normalize produces the plain-text representation of the URL, or nil when
// the item is filtered out (no text, text too short, or video metadata
// below the relevance gate). A nil, nil return is an expected filtering
// outcome, not a fault.
func (n *Normalizer) Normalize(ctx context.Context, rawURL string) (*Result, error) {
	modality := DetectModality(rawURL)

	var (
		text string
		err  error
	)
	switch modality {
	case model.ModalityVideo:
		text, err = n.normalizeVideo(ctx, rawURL)
	default:
		text, err = n.normalizeArticle(ctx, rawURL)
	}
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	// Rune count, not bytes: non-ASCII text would otherwise slip past the
	// minimum at a third of the intended length.
	if length := utf8.RuneCountInString(text); length < n.minText {
		n.log.Info().Str("url", rawURL).Int("length", length).Msg("no meaningful text content, dropping item")
		return nil, nil
	}
	return &Result{Text: text, Modality: modality}, nil
}

func (n *Normalizer) normalizeArticle(ctx context.Context, rawURL string) (string, error) {
	html, err := n.fetcher.FetchPage(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return ExtractArticleText(html), nil
}
