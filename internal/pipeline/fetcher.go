package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/project-orion/orion/internal/model"
	"github.com/project-orion/orion/internal/util"
	"github.com/project-orion/orion/internal/worker"
)

// fetchSleepFunc is replaceable in tests to skip backoff delays.
var fetchSleepFunc = time.Sleep

const fetchAttempts = 3

// Fetcher retrieves HTML pages for the normalizer. It is robots.txt-aware
// and rate-limits per host so draining a batch of items from one publisher
// does not hammer it.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *util.RobotsChecker
	limiter    *worker.Limiter
	log        zerolog.Logger
}

// NewFetcher creates a Fetcher from the HTTP configuration.
func NewFetcher(cfg model.HTTPConfig, log zerolog.Logger) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBodyBytes,
		robots:    util.NewRobotsChecker(cfg.UserAgent, timeout),
		limiter:   worker.NewLimiter(cfg.RatePerSec, cfg.RateBurst),
		log:       log.With().Str("component", "fetcher").Logger(),
	}
}

// FetchPage retrieves the page body as a string, retrying transient
// failures with linear backoff. Disallowed and persistently failing fetches
// return an error; the caller decides whether that drops the item.
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string) (string, error) {
	if !f.robots.IsAllowed(ctx, rawURL) {
		return "", fmt.Errorf("robots.txt disallows %s", rawURL)
	}

	if err := f.limiter.Wait(ctx, rawURL); err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			fetchSleepFunc(time.Duration(attempt) * time.Second)
		}

		body, retryable, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
		f.log.Debug().Err(err).Str("url", rawURL).Int("attempt", attempt+1).Msg("transient fetch failure")
	}
	return "", fmt.Errorf("fetch %s: %w", rawURL, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (body string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", ctx.Err() == nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// proceed
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", true, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	default:
		return "", false, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	maxBytes := f.maxBytes
	if maxBytes <= 0 {
		maxBytes = 2_000_000
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return "", true, fmt.Errorf("read body: %w", err)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !isTextual(ct) {
		f.log.Debug().Str("url", rawURL).Str("content_type", ct).Msg("non-HTML content type")
	}

	return string(data), false, nil
}

// MediaClient exposes the underlying HTTP client for media downloads that
// should share the same timeout budget.
func (f *Fetcher) MediaClient() *http.Client {
	return f.httpClient
}

func isTextual(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/") || strings.Contains(ct, "xml") || strings.Contains(ct, "json")
}
