package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/project-orion/orion/internal/model"
)

// fakeProvider returns a canned response and records the last request.
type fakeProvider struct {
	text string
	err  error
	last GenerateRequest
}

func (f *fakeProvider) Name() string                        { return "fake" }
func (f *fakeProvider) IsAvailable(_ context.Context) bool  { return true }
func (f *fakeProvider) Generate(_ context.Context, req GenerateRequest) (*GenerateResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &GenerateResponse{Text: f.text, Model: "fake-model"}, nil
}

func screenerStage(maxChars int) model.StageModelConfig {
	cfg := model.DefaultConfig()
	stage := cfg.Cascade.Screener
	if maxChars > 0 {
		stage.MaxChars = maxChars
	}
	return stage
}

func TestScreenerParsesDecision(t *testing.T) {
	p := &fakeProvider{text: `{"is_high_priority": false, "reason": "routine PR"}`}
	s := NewScreener(p, screenerStage(0), zerolog.Nop())

	decision, err := s.Screen(context.Background(), "Some routine press release.")
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	if decision.IsHighPriority {
		t.Fatal("decision must follow the model output")
	}
	if decision.Reason != "routine PR" {
		t.Fatalf("unexpected reason %q", decision.Reason)
	}
}

func TestScreenerStripsCodeFence(t *testing.T) {
	p := &fakeProvider{text: "```json\n{\"is_high_priority\": true, \"reason\": \"merger\"}\n```"}
	s := NewScreener(p, screenerStage(0), zerolog.Nop())

	decision, err := s.Screen(context.Background(), "text")
	if err != nil {
		t.Fatalf("screen: %v", err)
	}
	if !decision.IsHighPriority {
		t.Fatal("fenced JSON must parse")
	}
}

func TestScreenerFailsOpenOnGarbage(t *testing.T) {
	p := &fakeProvider{text: "I think this looks quite important, actually."}
	s := NewScreener(p, screenerStage(0), zerolog.Nop())

	decision, err := s.Screen(context.Background(), "text")
	if err != nil {
		t.Fatalf("unparseable output must not be an error, got %v", err)
	}
	if !decision.IsHighPriority {
		t.Fatal("unparseable screener output must escalate to the analyst")
	}
}

func TestScreenerSurfacesProviderError(t *testing.T) {
	p := &fakeProvider{err: errors.New("rate limited")}
	s := NewScreener(p, screenerStage(0), zerolog.Nop())

	if _, err := s.Screen(context.Background(), "text"); err == nil {
		t.Fatal("transport failure must surface, not fail open")
	}
}

func TestScreenerTruncatesInput(t *testing.T) {
	p := &fakeProvider{text: `{"is_high_priority": true}`}
	s := NewScreener(p, screenerStage(100), zerolog.Nop())

	long := strings.Repeat("x", 500)
	if _, err := s.Screen(context.Background(), long); err != nil {
		t.Fatalf("screen: %v", err)
	}
	if strings.Count(p.last.Prompt, "x") != 100 {
		t.Fatalf("screener must see exactly the configured prefix, saw %d chars", strings.Count(p.last.Prompt, "x"))
	}
}

func TestAnalystParsesAndValidates(t *testing.T) {
	p := &fakeProvider{text: `{
		"summary": "Acme acquires Widget Co for $2B.",
		"sentiment": "Positive",
		"sentiment_rationale": "Accretive acquisition.",
		"relevant_tickers": ["ACME"],
		"confidence_score": 0.85
	}`}
	a := NewAnalyst(p, model.DefaultConfig().Cascade.Analyst)

	analysis, err := a.Analyze(context.Background(), "article text")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if analysis.Sentiment != string(model.SentimentPositive) {
		t.Fatalf("unexpected sentiment %q", analysis.Sentiment)
	}
	if len(analysis.RelevantTickers) != 1 || analysis.RelevantTickers[0] != "ACME" {
		t.Fatalf("unexpected tickers %v", analysis.RelevantTickers)
	}
}

func TestAnalystRejectsMalformedOutput(t *testing.T) {
	cases := map[string]string{
		"garbage":       "not json at all",
		"bad sentiment": `{"summary": "s", "sentiment": "Bullish", "confidence_score": 0.5}`,
		"bad score":     `{"summary": "s", "sentiment": "Neutral", "confidence_score": 1.5}`,
		"empty summary": `{"summary": "", "sentiment": "Neutral", "confidence_score": 0.5}`,
	}
	for name, text := range cases {
		a := NewAnalyst(&fakeProvider{text: text}, model.DefaultConfig().Cascade.Analyst)
		if _, err := a.Analyze(context.Background(), "article"); err == nil {
			t.Errorf("%s: malformed analyst output must error", name)
		}
	}
}

func TestRenderPrompt(t *testing.T) {
	got := RenderPrompt("before {{ARTICLE_TEXT}} after", "BODY")
	if got != "before BODY after" {
		t.Fatalf("unexpected render: %q", got)
	}

	// Template without the placeholder still delivers the text.
	got = RenderPrompt("just instructions", "BODY")
	if !strings.Contains(got, "BODY") {
		t.Fatal("article text must reach the model even without a placeholder")
	}
}

func TestTruncateCountsRunesNotBytes(t *testing.T) {
	long := strings.Repeat("決算発表", 50) // 200 runes, 600 bytes

	got := truncate(long, 120)
	if n := utf8.RuneCountInString(got); n != 120 {
		t.Fatalf("expected 120 runes, got %d", n)
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncation must not split a multi-byte character")
	}

	if truncate("short", 120) != "short" {
		t.Fatal("text under the bound must pass unchanged")
	}
	if truncate(long, 0) != long {
		t.Fatal("a zero bound must disable truncation")
	}
}

func TestStripJSONFence(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                        `{"a":1}`,
		"```json\n{\"a\":1}\n```":          `{"a":1}`,
		"```\n{\"a\":1}\n```":              `{"a":1}`,
		"Here you go:\n{\"a\":1}\nThanks!": `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripJSONFence(in); got != want {
			t.Errorf("stripJSONFence(%q) = %q, want %q", in, got, want)
		}
	}
}
