package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loqalabs/audio-briefer/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staticKey(key string) KeyFunc {
	return func() (string, error) { return key, nil }
}

func messagesHandler(t *testing.T, calls *int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		*calls++
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") != messagesAPIVersion {
			t.Errorf("unexpected version header %q", r.Header.Get("anthropic-version"))
		}
		var req messagesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "model-q" || req.MaxTokens != 600 || len(req.Messages) != 1 {
			t.Errorf("unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"content":[{"type":"text","text":"A short "},{"type":"text","text":"briefing."}],"usage":{"input_tokens":10,"output_tokens":4}}`)
	}
}

func TestMessagesGenerator(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/messages", messagesHandler(t, &calls))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewMessagesGenerator(srv.URL+"/", staticKey("secret"))
	text, last, err := Complete(context.Background(), g, Request{Prompt: "p", Model: "model-q", MaxTokens: 600})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "A short briefing." {
		t.Fatalf("unexpected text %q", text)
	}
	if last.CompletionTokens != 4 {
		t.Fatalf("expected 4 completion tokens, got %d", last.CompletionTokens)
	}
}

func TestMessagesGeneratorAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer srv.Close()

	g := NewMessagesGenerator(srv.URL, staticKey("secret"))
	_, _, err := Complete(context.Background(), g, Request{Prompt: "p"})
	if err == nil || !strings.Contains(err.Error(), "slow down") {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestFallbackOnMissingRoute(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"message":"no such route","type":"not_found_error"}}`)
	})
	mux.HandleFunc("/v1/messages", messagesHandler(t, &calls))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	key := staticKey("secret")
	g := NewFallbackGenerator(NewSDKGenerator(srv.URL+"/v1", key), NewMessagesGenerator(srv.URL, key), testLogger())
	text, _, err := Complete(context.Background(), g, Request{Prompt: "p", Model: "model-q", MaxTokens: 600})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if calls != 1 || text != "A short briefing." {
		t.Fatalf("expected fallback answer, got %q after %d calls", text, calls)
	}
}

func TestNoFallbackOnOtherErrors(t *testing.T) {
	var calls int
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"authentication_error"}}`)
	})
	mux.HandleFunc("/v1/messages", messagesHandler(t, &calls))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	key := staticKey("secret")
	g := NewFallbackGenerator(NewSDKGenerator(srv.URL+"/v1", key), NewMessagesGenerator(srv.URL, key), testLogger())
	_, _, err := Complete(context.Background(), g, Request{Prompt: "p", Model: "model-q"})
	if err == nil || errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected plain failure, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("messages API should not be called, got %d calls", calls)
	}
}

func TestSDKGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("unexpected auth header")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"From the SDK."},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":3,"total_tokens":6}}`)
	}))
	defer srv.Close()

	g := NewSDKGenerator(srv.URL+"/v1", staticKey("secret"))
	text, _, err := Complete(context.Background(), g, Request{Prompt: "p", System: "s", Model: "m"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "From the SDK." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestOllamaGeneratorStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "deep-model" {
			t.Errorf("expected deep model, got %q", req.Model)
		}
		fmt.Fprintln(w, `{"response":"Hello ","done":false}`)
		fmt.Fprintln(w, `{"response":"world.","done":false}`)
		fmt.Fprintln(w, `{"response":"","done":true,"eval_count":2,"prompt_eval_count":5}`)
	}))
	defer srv.Close()

	g := NewOllamaGenerator(srv.URL, "quick-model", "deep-model")
	text, last, err := Complete(context.Background(), g, Request{Prompt: "p", Tier: TierDeep})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "Hello world." {
		t.Fatalf("unexpected text %q", text)
	}
	if last.Partial || last.CompletionTokens != 2 {
		t.Fatalf("unexpected final chunk %+v", last)
	}
}

func TestPrompt(t *testing.T) {
	p, err := Prompt(TierQuick, "Title", "https://example.com", "  body text  ")
	if err != nil {
		t.Fatalf("prompt: %v", err)
	}
	for _, want := range []string{"150 to 250 words", "Title: Title", "Source: https://example.com", "Article:\nbody text"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
	if _, err := Prompt("full", "", "", "x"); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}

func TestNewDisabled(t *testing.T) {
	s, err := New(config.Default().Summarizer, testLogger())
	if err != nil || s != nil {
		t.Fatalf("expected nil summarizer, got %v, %v", s, err)
	}
}

func TestSummarizerMissingKey(t *testing.T) {
	cfg := config.Default().Summarizer
	cfg.Enabled = true
	cfg.UseSDK = false
	cfg.APIKeyEnv = "BRIEFER_TEST_SUMMARY_KEY"
	cfg.CredentialsFile = filepath.Join(t.TempDir(), "missing.env")
	t.Setenv("BRIEFER_TEST_SUMMARY_KEY", "")

	s, err := New(cfg, testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = s.Summarize(context.Background(), "r1", TierQuick, "T", "", "text")
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestSummarizerUsesTierSettings(t *testing.T) {
	var seen Request
	gen := generatorFunc(func(ctx context.Context, req Request, consumer func(Chunk) error) error {
		seen = req
		return consumer(Chunk{Content: "  summary  "})
	})
	cfg := config.Default().Summarizer
	s := NewSummarizer(cfg, gen, testLogger())
	got, err := s.Summarize(context.Background(), "r1", TierDeep, "T", "", "text")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got != "summary" {
		t.Fatalf("unexpected summary %q", got)
	}
	if seen.Model != cfg.ModelDeep || seen.MaxTokens != cfg.MaxTokensDeep || seen.System == "" {
		t.Fatalf("unexpected request %+v", seen)
	}
}

func TestSummarizerEmptyAnswer(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, req Request, consumer func(Chunk) error) error {
		return consumer(Chunk{Content: " "})
	})
	s := NewSummarizer(config.Default().Summarizer, gen, testLogger())
	if _, err := s.Summarize(context.Background(), "r1", TierQuick, "", "", "text"); err == nil {
		t.Fatal("expected error for empty summary")
	}
}

func TestExecGenerator(t *testing.T) {
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	g, err := NewExecGenerator(fmt.Sprintf("'%s' -test.run=TestHelperProcess --", os.Args[0]))
	if err != nil {
		t.Fatalf("new exec: %v", err)
	}
	text, _, err := Complete(context.Background(), g, Request{Prompt: "hello", Tier: TierQuick})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "quick: hello" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)
	var in map[string]any
	if err := json.NewDecoder(os.Stdin).Decode(&in); err != nil {
		os.Exit(2)
	}
	_ = json.NewEncoder(os.Stdout).Encode(execResponse{Content: fmt.Sprintf("%v: %v", in["tier"], in["prompt"])})
}

type generatorFunc func(ctx context.Context, req Request, consumer func(Chunk) error) error

func (f generatorFunc) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	return f(ctx, req, consumer)
}
