package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

const (
	TierQuick = "quick"
	TierDeep  = "deep"
)

var (
	// ErrUnavailable means the backend cannot serve the call at all, as opposed
	// to failing it. Callers may try another backend.
	ErrUnavailable   = errors.New("summarizer backend unavailable")
	ErrMissingAPIKey = errors.New("summarizer API key not configured")
)

// Request describes a language model prompt.
type Request struct {
	RequestID   string
	Prompt      string
	System      string
	Tier        string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Chunk represents model output. Content is a delta; a complete answer is the
// concatenation of every chunk.
type Chunk struct {
	RequestID        string
	Content          string
	Partial          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Generator defines a pluggable LLM backend.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// Complete runs a generation and returns the whole answer.
func Complete(ctx context.Context, g Generator, req Request) (string, Chunk, error) {
	var b strings.Builder
	var last Chunk
	err := g.Generate(ctx, req, func(c Chunk) error {
		b.WriteString(c.Content)
		last = c
		return nil
	})
	if err != nil {
		return "", last, err
	}
	return strings.TrimSpace(b.String()), last, nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
