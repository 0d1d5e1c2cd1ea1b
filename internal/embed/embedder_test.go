package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
)

func TestOpenAIEmbedderTruncatesOnCharacterBoundary(t *testing.T) {
	var sent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Input) == 1 {
			sent = req.Input[0]
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2]}],"model":"test"}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	e := NewOpenAIEmbedder(openai.NewClientWithConfig(cfg), "", 50)

	// 88 Japanese characters, ~264 bytes. The bound counts characters and
	// must never cut through a multi-byte sequence.
	long := strings.Repeat("市場の動向を分析する。", 8)
	vec, err := e.Embed(context.Background(), long)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 2 {
		t.Fatalf("unexpected vector %v", vec)
	}
	if n := utf8.RuneCountInString(sent); n != 50 {
		t.Fatalf("expected 50 characters sent, got %d", n)
	}
	if !utf8.ValidString(sent) {
		t.Fatal("truncation must not produce invalid UTF-8")
	}
}
