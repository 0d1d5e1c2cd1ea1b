package normalize

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// normalizeVideo is two-phase to avoid wasted transcription cost: a cheap
// metadata-only relevance check runs first, and the audio track is only
// downloaded when it passes. The transient audio file is removed on every
// exit path.
func (n *Normalizer) normalizeVideo(ctx context.Context, rawURL string) (string, error) {
	if n.gate == nil || n.transcriber == nil || n.audio == nil {
		n.log.Info().Str("url", rawURL).Msg("video handling not configured, dropping item")
		return "", nil
	}

	pageHTML, err := n.fetcher.FetchPage(ctx, rawURL)
	if err != nil {
		return "", err
	}

	metadata := ExtractVideoMetadata(pageHTML)
	if metadata == "" {
		n.log.Info().Str("url", rawURL).Msg("could not extract video metadata, dropping item")
		return "", nil
	}

	admit, err := n.gate.Admit(ctx, metadata)
	if err != nil {
		return "", fmt.Errorf("video metadata relevance check: %w", err)
	}
	if !admit {
		n.log.Info().Str("url", rawURL).Msg("video metadata below relevance threshold, skipping transcription")
		return "", nil
	}

	audioURL, err := n.audio.Locate(ctx, rawURL, pageHTML)
	if err != nil {
		return "", fmt.Errorf("locate audio stream: %w", err)
	}
	if audioURL == "" {
		n.log.Info().Str("url", rawURL).Msg("no audio stream available, dropping item")
		return "", nil
	}

	path, err := n.downloadAudio(ctx, audioURL)
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	transcript, err := n.transcriber.Transcribe(ctx, path)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return transcript, nil
}

func (n *Normalizer) downloadAudio(ctx context.Context, audioURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return "", fmt.Errorf("create audio request: %w", err)
	}

	resp, err := n.media.Do(req)
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("download audio: unexpected status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "orion-audio-*"+audioExt(resp.Header.Get("Content-Type")))
	if err != nil {
		return "", fmt.Errorf("create temp audio file: %w", err)
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write temp audio file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp audio file: %w", err)
	}
	return tmp.Name(), nil
}

func audioExt(contentType string) string {
	switch {
	case strings.Contains(contentType, "mp4"):
		return ".mp4"
	case strings.Contains(contentType, "webm"):
		return ".webm"
	case strings.Contains(contentType, "ogg"):
		return ".ogg"
	default:
		return ".mp3"
	}
}

// ExtractVideoMetadata collects the title and description of a video page
// without touching any media: document title, OpenGraph tags, and the
// description meta.
func ExtractVideoMetadata(pageHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return ""
	}

	var parts []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			parts = append(parts, s)
		}
	}

	add(doc.Find("title").First().Text())
	for _, sel := range []string{
		`meta[property="og:title"]`,
		`meta[property="og:description"]`,
		`meta[name="description"]`,
	} {
		if content, ok := doc.Find(sel).First().Attr("content"); ok {
			add(content)
		}
	}

	return strings.Join(dedupeStrings(parts), "\n")
}

// MetaAudioLocator resolves audio from OpenGraph/media tags on the page.
type MetaAudioLocator struct{}

// Locate returns the first advertised audio or video stream URL, or empty
// when the page advertises none.
func (MetaAudioLocator) Locate(_ context.Context, _, pageHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return "", nil
	}
	for _, sel := range []string{
		`meta[property="og:audio"]`,
		`meta[property="og:audio:url"]`,
		`meta[property="og:video"]`,
		`meta[property="og:video:url"]`,
	} {
		if u, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(u) != "" {
			return strings.TrimSpace(u), nil
		}
	}
	for _, sel := range []string{"audio[src]", "audio source[src]", "video source[src]"} {
		if u, ok := doc.Find(sel).First().Attr("src"); ok && strings.TrimSpace(u) != "" {
			return strings.TrimSpace(u), nil
		}
	}
	return "", nil
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
