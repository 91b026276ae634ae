package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/loqalabs/audio-briefer/internal/config"
	"github.com/loqalabs/audio-briefer/internal/credentials"
)

const systemPrompt = `You write audio briefings that will be read aloud by a speech synthesizer.
Write plain flowing prose in short paragraphs separated by blank lines.
Do not use markdown, headings, bullet points, tables, links or emoji.
Spell out symbols and abbreviations the way a narrator would say them.
Do not mention that this is a summary and do not address the listener.`

type tierSpec struct {
	target string
}

var tiers = map[string]tierSpec{
	TierQuick: {target: "150 to 250 words covering only the essential points"},
	TierDeep:  {target: "500 to 800 words covering the main arguments, evidence and conclusions"},
}

// Prompt builds the user message for a tier.
func Prompt(tier, title, url, content string) (string, error) {
	spec, ok := tiers[tier]
	if !ok {
		return "", fmt.Errorf("unknown summary mode %q", tier)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Write an audio briefing of %s.\n\n", spec.target)
	if title != "" {
		fmt.Fprintf(&b, "Title: %s\n", title)
	}
	if url != "" {
		fmt.Fprintf(&b, "Source: %s\n", url)
	}
	b.WriteString("\nArticle:\n")
	b.WriteString(strings.TrimSpace(content))
	return b.String(), nil
}

// Summarizer condenses article text for the quick and deep reading modes.
type Summarizer struct {
	cfg       config.SummarizerConfig
	generator Generator
	logger    *slog.Logger
}

func NewSummarizer(cfg config.SummarizerConfig, generator Generator, logger *slog.Logger) *Summarizer {
	return &Summarizer{cfg: cfg, generator: generator, logger: logger.With(slog.String("component", "summarizer"))}
}

// New builds the summarizer for the configured mode. It returns nil when
// summarization is disabled.
func New(cfg config.SummarizerConfig, logger *slog.Logger) (*Summarizer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	var generator Generator
	switch cfg.Mode {
	case "api":
		key := keyFunc(cfg)
		direct := NewMessagesGenerator(cfg.Endpoint, key)
		if cfg.UseSDK {
			generator = NewFallbackGenerator(NewSDKGenerator(cfg.SDKBaseURL, key), direct, logger)
		} else {
			generator = direct
		}
	case "ollama":
		generator = NewOllamaGenerator(cfg.Endpoint, cfg.ModelQuick, cfg.ModelDeep)
	case "exec":
		g, err := NewExecGenerator(cfg.Command)
		if err != nil {
			return nil, err
		}
		generator = g
	case "mock":
		generator = NewMockGenerator()
	default:
		return nil, fmt.Errorf("unsupported summarizer mode %q", cfg.Mode)
	}
	return NewSummarizer(cfg, generator, logger), nil
}

func keyFunc(cfg config.SummarizerConfig) KeyFunc {
	return func() (string, error) {
		key, err := credentials.Lookup(cfg.APIKeyEnv, cfg.CredentialsFile)
		if err != nil {
			if errors.Is(err, credentials.ErrMissingKey) {
				return "", fmt.Errorf("%w: %v", ErrMissingAPIKey, err)
			}
			return "", err
		}
		return key, nil
	}
}

// Summarize returns a spoken-style condensation of content. tier must be
// TierQuick or TierDeep.
func (s *Summarizer) Summarize(ctx context.Context, requestID, tier, title, url, content string) (string, error) {
	prompt, err := Prompt(tier, title, url, content)
	if err != nil {
		return "", err
	}
	req := Request{
		RequestID:   requestID,
		Prompt:      prompt,
		System:      systemPrompt,
		Tier:        tier,
		Temperature: s.cfg.Temperature,
	}
	if tier == TierDeep {
		req.Model = s.cfg.ModelDeep
		req.MaxTokens = s.cfg.MaxTokensDeep
	} else {
		req.Model = s.cfg.ModelQuick
		req.MaxTokens = s.cfg.MaxTokensQuick
	}

	if s.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	start := time.Now()
	summary, last, err := Complete(ctx, s.generator, req)
	if err != nil {
		s.logger.Warn("summarization failed", slog.String("request_id", requestID), slogError(err))
		return "", err
	}
	if summary == "" {
		return "", errors.New("summarizer returned no text")
	}
	s.logger.Info("summarization complete",
		slog.String("request_id", requestID),
		slog.String("tier", tier),
		slog.String("model", req.Model),
		slog.Int("completion_tokens", last.CompletionTokens),
		slog.Duration("latency", time.Since(start)),
	)
	return summary, nil
}
