// Package feed polls configured syndication endpoints and yields only the
// entries that are new since the last successful poll of each feed.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/project-orion/orion/internal/model"
	"github.com/project-orion/orion/internal/store"
)

// StateStore persists per-feed change tokens.
type StateStore interface {
	FeedState(name string) (*store.FeedState, error)
	SaveFeedState(*store.FeedState) error
}

// Detector performs conditional feed polls.
type Detector struct {
	client   *http.Client
	states   StateStore
	ua       string
	maxBytes int64
	backfill int
	log      zerolog.Logger
}

// NewDetector creates a detector. backfill bounds the number of entries
// taken on the first-ever poll of a feed.
func NewDetector(states StateStore, httpCfg model.HTTPConfig, backfill int, log zerolog.Logger) *Detector {
	if backfill <= 0 {
		backfill = 5
	}
	return &Detector{
		client:   &http.Client{Timeout: httpCfg.Timeout},
		states:   states,
		ua:       httpCfg.UserAgent,
		maxBytes: httpCfg.MaxBodyBytes,
		backfill: backfill,
		log:      log,
	}
}

// Batch is the outcome of polling one feed. Commit must be called only
// after the items have been successfully handed off; it advances the
// change token so a failed hand-off is retried on the next cycle.
type Batch struct {
	Feed   string
	Items  []model.CandidateItem
	commit func() error
}

// Commit advances the feed's change token past this batch.
func (b *Batch) Commit() error {
	if b.commit == nil {
		return nil
	}
	return b.commit()
}

// Poll checks a single feed and returns its new entries, oldest first.
// An unchanged feed (304) returns an empty batch with no token mutation
// and zero parsing cost.
func (d *Detector) Poll(ctx context.Context, endpoint model.FeedConfig) (*Batch, error) {
	state, err := d.states.FeedState(endpoint.Name)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("feed %s: create request: %w", endpoint.Name, err)
	}
	req.Header.Set("User-Agent", d.ua)
	if state != nil {
		if state.ETag != "" {
			req.Header.Set("If-None-Match", state.ETag)
		}
		if state.LastModified != "" {
			req.Header.Set("If-Modified-Since", state.LastModified)
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed %s: fetch: %w", endpoint.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		d.log.Debug().Str("feed", endpoint.Name).Msg("feed unchanged")
		return &Batch{Feed: endpoint.Name}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("feed %s: unexpected status %d", endpoint.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("feed %s: read body: %w", endpoint.Name, err)
	}

	entries, err := Parse(body)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", endpoint.Name, err)
	}

	fresh := d.delta(state, entries)
	items := make([]model.CandidateItem, 0, len(fresh))
	// Oldest first, matching publication order.
	for i := len(fresh) - 1; i >= 0; i-- {
		e := fresh[i]
		items = append(items, model.CandidateItem{
			URL:          e.Link,
			Title:        e.Title,
			Summary:      e.Summary,
			FeedName:     endpoint.Name,
			DiscoveredAt: time.Now().UTC(),
		})
	}

	next := &store.FeedState{
		Name:         endpoint.Name,
		URL:          endpoint.URL,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	if len(fresh) > 0 {
		next.LastEntryID = fresh[0].ID
	} else if state != nil {
		next.LastEntryID = state.LastEntryID
	}

	return &Batch{
		Feed:   endpoint.Name,
		Items:  items,
		commit: func() error { return d.states.SaveFeedState(next) },
	}, nil
}

// delta returns the entries newer than the stored token, newest first.
// With no history the initial backfill is bounded to avoid a flood.
func (d *Detector) delta(state *store.FeedState, entries []Entry) []Entry {
	if state == nil || state.LastEntryID == "" {
		if len(entries) > d.backfill {
			return entries[:d.backfill]
		}
		return entries
	}

	var fresh []Entry
	for _, e := range entries {
		if e.ID == state.LastEntryID {
			break
		}
		fresh = append(fresh, e)
	}
	return fresh
}

// PollAll polls every configured feed concurrently. A failing feed is
// logged and skipped; it never blocks the rest of the batch.
func (d *Detector) PollAll(ctx context.Context, feeds []model.FeedConfig) []*Batch {
	var (
		mu      sync.Mutex
		batches []*Batch
		wg      sync.WaitGroup
	)

	for _, endpoint := range feeds {
		wg.Add(1)
		go func(endpoint model.FeedConfig) {
			defer wg.Done()
			batch, err := d.Poll(ctx, endpoint)
			if err != nil {
				d.log.Warn().Err(err).Str("feed", endpoint.Name).Msg("feed poll failed, skipping this cycle")
				return
			}
			mu.Lock()
			batches = append(batches, batch)
			mu.Unlock()
		}(endpoint)
	}
	wg.Wait()
	return batches
}
