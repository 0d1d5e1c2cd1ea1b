package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/project-orion/orion/internal/embed"
	"github.com/project-orion/orion/internal/feed"
	"github.com/project-orion/orion/internal/filter"
	"github.com/project-orion/orion/internal/llm"
	"github.com/project-orion/orion/internal/model"
	"github.com/project-orion/orion/internal/normalize"
	"github.com/project-orion/orion/internal/notify"
	"github.com/project-orion/orion/internal/store"
	"github.com/project-orion/orion/internal/vector"
)

const admittedArticle = `<html><body><article>
<p>Acme Corp announced today that it will acquire Widget Holdings for $5 billion in cash,
the largest deal in the sector this year according to analysts at Sterling Bank.</p>
<p>The merger is expected to close in the fourth quarter pending regulatory approval,
and Acme Corp executives said the combined company will pursue new technology partnerships.</p>
</article></body></html>`

// fakePages serves canned HTML per URL.
type fakePages struct {
	pages map[string]string
}

func (f *fakePages) FetchPage(_ context.Context, rawURL string) (string, error) {
	page, ok := f.pages[rawURL]
	if !ok {
		return "", fmt.Errorf("no page for %s", rawURL)
	}
	return page, nil
}

// vecEmbedder maps text substrings to fixed vectors and counts calls.
type vecEmbedder struct {
	rules map[string][]float32
	calls int32
}

func (e *vecEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&e.calls, 1)
	for sub, vec := range e.rules {
		if strings.Contains(text, sub) {
			return vec, nil
		}
	}
	return []float32{1, 0}, nil
}

// cannedProvider returns screener output on the first call shape and analyst
// output otherwise, keyed by the rendered prompt content.
type cannedProvider struct {
	screenerText string
	analystText  string
	err          error
	calls        int32
}

func (p *cannedProvider) Name() string                       { return "canned" }
func (p *cannedProvider) IsAvailable(_ context.Context) bool { return true }
func (p *cannedProvider) Generate(_ context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return nil, p.err
	}
	text := p.analystText
	if strings.Contains(req.System, "triage") {
		text = p.screenerText
	}
	return &llm.GenerateResponse{Text: text, Model: "canned"}, nil
}

const validAnalysis = `{
	"summary": "Acme Corp acquires Widget Holdings for $5B.",
	"sentiment": "Positive",
	"sentiment_rationale": "Large accretive acquisition.",
	"relevant_tickers": ["ACME"],
	"confidence_score": 0.9
}`

type harness struct {
	wrangler  *Wrangler
	store     *store.Store
	publisher *notify.MemoryPublisher
	embedder  *vecEmbedder
	provider  *cannedProvider
	index     *vector.MemoryIndex
	cfg       *model.Config
}

func newHarness(t *testing.T, pages map[string]string) *harness {
	t.Helper()

	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := model.DefaultConfig()
	cfg.Concurrency.Workers = 2

	embedder := &vecEmbedder{rules: map[string][]float32{
		"company fundamentals": {1, 0}, // the thesis itself
		"astrology":            {0, 1}, // orthogonal to the thesis
	}}
	provider := &cannedProvider{
		screenerText: `{"is_high_priority": true, "reason": "market moving"}`,
		analystText:  validAnalysis,
	}
	idx := vector.NewMemoryIndex()
	pub := notify.NewMemoryPublisher()

	snap := model.Snapshot{Config: cfg, CoreThesis: model.DefaultCoreThesis}
	gate := embed.NewGate(embedder, embed.NewThesisCache(time.Minute), snap.CoreThesis, cfg.Filters.SimilarityThreshold)

	w := NewWrangler(Deps{
		Store:      st,
		Pre:        filter.NewPreFilter(cfg.Filters.Blocklist),
		Normalizer: normalize.New(&fakePages{pages: pages}, normalize.Options{Gate: gate, MinText: cfg.Filters.MinTextLength}, zerolog.Nop()),
		Embedder:   embedder,
		Gate:       gate,
		Cache:      embed.NewSemanticCache(idx, cfg.SemanticCache.Threshold, true),
		Density:    filter.NewDensityFilter(filter.NewLexicalRecognizer(), cfg.Filters.OrgThreshold, cfg.Filters.MoneyThreshold),
		Screener:   llm.NewScreener(provider, cfg.Cascade.Screener, zerolog.Nop()),
		Analyst:    llm.NewAnalyst(provider, cfg.Cascade.Analyst),
		Publisher:  pub,
		Snapshot:   snap,
		Log:        zerolog.Nop(),
	})

	return &harness{wrangler: w, store: st, publisher: pub, embedder: embedder, provider: provider, index: idx, cfg: cfg}
}

func newsItem(url, title string) model.CandidateItem {
	return model.CandidateItem{
		URL:          url,
		Title:        title,
		Summary:      "summary of " + title,
		FeedName:     "test-feed",
		DiscoveredAt: time.Now().UTC(),
	}
}

func TestProcessAdmitsAndPersists(t *testing.T) {
	url := "https://news.example.com/acme-deal"
	h := newHarness(t, map[string]string{url: admittedArticle})

	out, err := h.wrangler.Process(context.Background(), newsItem(url, "Acme acquires Widget"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !out.Admitted {
		t.Fatalf("expected admission, rejected at %s: %s", out.RejectedAt, out.Reason)
	}

	wantID := model.InsightID(url)
	if out.InsightID != wantID {
		t.Fatalf("insight id %q, want %q", out.InsightID, wantID)
	}

	insight, err := h.store.GetInsight(wantID)
	if err != nil {
		t.Fatalf("get insight: %v", err)
	}
	if insight.Sentiment != model.SentimentPositive {
		t.Errorf("unexpected sentiment %q", insight.Sentiment)
	}
	if insight.Kind != model.KindArticleInsight {
		t.Errorf("unexpected kind %q", insight.Kind)
	}
	if insight.ExtractorVersion != model.ExtractorVersion {
		t.Errorf("unexpected extractor version %q", insight.ExtractorVersion)
	}

	events := h.publisher.Events()
	if len(events) != 1 || events[0].InsightID != wantID {
		t.Fatalf("expected one notification for %s, got %v", wantID, events)
	}

	if h.index.Len() != 1 {
		t.Errorf("admitted embedding must enter the semantic cache, index has %d", h.index.Len())
	}

	// Both identities must be finalized.
	item := newsItem(url, "Acme acquires Widget")
	for _, key := range []string{item.Fingerprint(), item.URLKey()} {
		seen, err := h.store.Seen(key, h.cfg.Store.Retention)
		if err != nil {
			t.Fatalf("seen: %v", err)
		}
		if !seen {
			t.Errorf("key %s must be recorded after admission", key)
		}
	}
}

func TestProcessIsIdempotentPerIdentity(t *testing.T) {
	url := "https://news.example.com/acme-deal"
	h := newHarness(t, map[string]string{url: admittedArticle})
	ctx := context.Background()
	item := newsItem(url, "Acme acquires Widget")

	if _, err := h.wrangler.Process(ctx, item); err != nil {
		t.Fatalf("first process: %v", err)
	}
	callsAfterFirst := atomic.LoadInt32(&h.provider.calls)

	out, err := h.wrangler.Process(ctx, item)
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if out.Admitted {
		t.Fatal("redelivered item must not be admitted twice")
	}
	if out.RejectedAt != model.StageFingerprint {
		t.Fatalf("duplicate must stop at the dedup stage, stopped at %s", out.RejectedAt)
	}
	if got := atomic.LoadInt32(&h.provider.calls); got != callsAfterFirst {
		t.Fatalf("duplicate must not reach the models: %d calls after first, %d after second", callsAfterFirst, got)
	}
	if len(h.publisher.Events()) != 1 {
		t.Fatal("duplicate must not re-notify")
	}

	if n, err := h.store.CountInsights(); err != nil || n != 1 {
		t.Fatalf("expected exactly 1 insight, got %d (err %v)", n, err)
	}
}

func TestProcessRejectsBlocklistedBeforeAnyFetch(t *testing.T) {
	// No page registered: a fetch attempt would error, so a clean rejection
	// proves nothing past the pre-filter ran.
	h := newHarness(t, map[string]string{})

	out, err := h.wrangler.Process(context.Background(), newsItem("https://example.com/x", "Celebrity sports gala"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.RejectedAt != model.StagePreFilter {
		t.Fatalf("expected pre-filter rejection, got %s", out.RejectedAt)
	}
	if len(out.Trace) != 1 || out.Trace[0] != model.StagePreFilter {
		t.Fatalf("no stage may run after a rejection, trace: %v", out.Trace)
	}

	// Keyword rejections are pre-identity: no dedup record is spent.
	item := newsItem("https://example.com/x", "Celebrity sports gala")
	seen, err := h.store.Seen(item.Fingerprint(), h.cfg.Store.Retention)
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if seen {
		t.Fatal("keyword-rejected item must not consume a dedup record")
	}
}

func TestProcessRejectsOffThesisContent(t *testing.T) {
	url := "https://news.example.com/stars"
	page := `<html><body><article><p>` +
		strings.Repeat("Your weekly astrology reading says the stars favor bold decisions this month. ", 5) +
		`</p></article></body></html>`
	h := newHarness(t, map[string]string{url: page})

	out, err := h.wrangler.Process(context.Background(), newsItem(url, "Weekly horoscope update"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.Admitted {
		t.Fatal("off-thesis content must be rejected")
	}
	if out.RejectedAt != model.StageEmbedding {
		t.Fatalf("expected thesis-gate rejection, got %s", out.RejectedAt)
	}
	if atomic.LoadInt32(&h.provider.calls) != 0 {
		t.Fatal("rejected content must never reach the model cascade")
	}

	// The rejection is final: redelivery stops at dedup.
	out2, err := h.wrangler.Process(context.Background(), newsItem(url, "Weekly horoscope update"))
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if out2.RejectedAt != model.StageFingerprint {
		t.Fatalf("finalized rejection must dedup on redelivery, got %s", out2.RejectedAt)
	}
}

func TestProcessRejectsSemanticDuplicate(t *testing.T) {
	urlA := "https://alpha.example.com/deal"
	urlB := "https://beta.example.com/deal-rewrite"
	h := newHarness(t, map[string]string{urlA: admittedArticle, urlB: admittedArticle})
	ctx := context.Background()

	// Same embedding for both, but distinct fingerprints and URLs.
	if _, err := h.wrangler.Process(ctx, newsItem(urlA, "Acme buys Widget")); err != nil {
		t.Fatalf("first: %v", err)
	}
	out, err := h.wrangler.Process(ctx, newsItem(urlB, "Widget snapped up by Acme"))
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if out.Admitted {
		t.Fatal("paraphrased re-report must be caught by the semantic cache")
	}
	if out.RejectedAt != model.StageSemanticCache {
		t.Fatalf("expected semantic-cache rejection, got %s", out.RejectedAt)
	}
	if n, _ := h.store.CountInsights(); n != 1 {
		t.Fatalf("expected 1 insight, got %d", n)
	}
}

func TestProcessScreenerRejectionIsFinal(t *testing.T) {
	url := "https://news.example.com/routine"
	h := newHarness(t, map[string]string{url: admittedArticle})
	h.provider.screenerText = `{"is_high_priority": false, "reason": "routine coverage"}`

	out, err := h.wrangler.Process(context.Background(), newsItem(url, "Routine coverage"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if out.RejectedAt != model.StageScreener {
		t.Fatalf("expected screener rejection, got %s", out.RejectedAt)
	}
	if n, _ := h.store.CountInsights(); n != 0 {
		t.Fatal("screened-out item must not produce an insight")
	}

	seen, err := h.store.Seen(newsItem(url, "Routine coverage").URLKey(), h.cfg.Store.Retention)
	if err != nil || !seen {
		t.Fatalf("screener rejection must be recorded as final (seen=%v err=%v)", seen, err)
	}
}

func TestProcessModelFailureLeavesItemRetryable(t *testing.T) {
	url := "https://news.example.com/acme-deal"
	h := newHarness(t, map[string]string{url: admittedArticle})
	h.provider.err = errors.New("api down")
	item := newsItem(url, "Acme acquires Widget")

	if _, err := h.wrangler.Process(context.Background(), item); err == nil {
		t.Fatal("model API failure must surface as an error")
	}

	// No decision was final, so nothing may be recorded against the item.
	for _, key := range []string{item.Fingerprint(), item.URLKey()} {
		seen, err := h.store.Seen(key, h.cfg.Store.Retention)
		if err != nil {
			t.Fatalf("seen: %v", err)
		}
		if seen {
			t.Fatal("an errored item must stay eligible for retry")
		}
	}

	// Retry after recovery succeeds.
	h.provider.err = nil
	out, err := h.wrangler.Process(context.Background(), item)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !out.Admitted {
		t.Fatalf("retry must admit, rejected at %s", out.RejectedAt)
	}
}

func TestProcessFunnelOrderIsMonotonic(t *testing.T) {
	url := "https://news.example.com/acme-deal"
	h := newHarness(t, map[string]string{url: admittedArticle})

	out, err := h.wrangler.Process(context.Background(), newsItem(url, "Acme acquires Widget"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	want := []model.Stage{
		model.StagePreFilter,
		model.StageFingerprint,
		model.StageNormalize,
		model.StageEmbedding,
		model.StageSemanticCache,
		model.StageEntity,
		model.StageScreener,
		model.StageAnalyst,
		model.StagePersist,
	}
	if len(out.Trace) != len(want) {
		t.Fatalf("trace %v, want %v", out.Trace, want)
	}
	for i := range want {
		if out.Trace[i] != want[i] {
			t.Fatalf("stage %d = %s, want %s", i, out.Trace[i], want[i])
		}
	}
}

func TestDrainCommitsOnlyWhenAllItemsFinal(t *testing.T) {
	url := "https://news.example.com/acme-deal"
	h := newHarness(t, map[string]string{url: admittedArticle})
	ctx := context.Background()

	// A model outage means no item decision is final: the token must not move.
	h.provider.err = errors.New("api down")
	batch := &feed.Batch{Feed: "test-feed", Items: []model.CandidateItem{newsItem(url, "Acme acquires Widget")}}
	out := h.wrangler.Drain(ctx, batch)
	if out.Committed {
		t.Fatal("batch with failed items must not advance the feed token")
	}
	if len(out.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(out.Errors))
	}

	h.provider.err = nil
	out = h.wrangler.Drain(ctx, &feed.Batch{Feed: "test-feed", Items: []model.CandidateItem{newsItem(url, "Acme acquires Widget")}})
	if !out.Committed {
		t.Fatalf("clean batch must commit, errors: %v", out.Errors)
	}
	if len(out.Outcomes) != 1 || !out.Outcomes[0].Admitted {
		t.Fatalf("unexpected outcomes %v", out.Outcomes)
	}
}

func TestDrainHandlesBatchesLargerThanWorkerPool(t *testing.T) {
	h := newHarness(t, map[string]string{})

	// 30 items against 2 workers; every one is blocklisted, so each gets
	// a cheap final rejection and the batch as a whole must still commit.
	items := make([]model.CandidateItem, 30)
	for i := range items {
		items[i] = newsItem(fmt.Sprintf("https://news.example.com/story-%d", i), fmt.Sprintf("Sports roundup %d", i))
	}
	batch := &feed.Batch{Feed: "busy-feed", Items: items}

	done := make(chan *BatchOutcome, 1)
	go func() { done <- h.wrangler.Drain(context.Background(), batch) }()

	select {
	case out := <-done:
		if len(out.Errors) != 0 {
			t.Fatalf("unexpected errors: %v", out.Errors)
		}
		if len(out.Outcomes) != len(items) {
			t.Fatalf("expected %d outcomes, got %d", len(items), len(out.Outcomes))
		}
		if !out.Committed {
			t.Fatal("fully finalized batch must commit")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("drain stalled on a batch larger than the worker pool")
	}
}
