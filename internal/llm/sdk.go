package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// KeyFunc resolves an API key at call time so a missing key only fails the
// request that needs it.
type KeyFunc func() (string, error)

type sdkGenerator struct {
	baseURL string
	key     KeyFunc
}

// NewSDKGenerator talks to an OpenAI-compatible chat completions endpoint.
func NewSDKGenerator(baseURL string, key KeyFunc) Generator {
	return &sdkGenerator{baseURL: baseURL, key: key}
}

func (g *sdkGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	key, err := g.key()
	if err != nil {
		return err
	}
	cfg := openai.DefaultConfig(key)
	if g.baseURL != "" {
		cfg.BaseURL = g.baseURL
	}
	client := openai.NewClientWithConfig(cfg)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	start := time.Now()
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		if routeMissing(err) {
			return fmt.Errorf("%w: chat completions route not found: %v", ErrUnavailable, err)
		}
		return fmt.Errorf("summarizer request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("summarizer returned no choices")
	}
	return consumer(Chunk{
		RequestID:        req.RequestID,
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Latency:          time.Since(start),
	})
}

func routeMissing(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusNotFound
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusNotFound
	}
	return false
}
