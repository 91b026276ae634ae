package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const messagesAPIVersion = "2023-06-01"

type messagesGenerator struct {
	endpoint string
	key      KeyFunc
	client   *http.Client
}

// NewMessagesGenerator calls the Messages API directly over HTTP.
func NewMessagesGenerator(endpoint string, key KeyFunc) Generator {
	return &messagesGenerator{
		endpoint: strings.TrimRight(endpoint, "/"),
		key:      key,
		client:   &http.Client{},
	}
}

type messagesRequest struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	System      string           `json:"system,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
	Messages    []messageContent `json:"messages"`
}

type messageContent struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *messagesGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	key, err := g.key()
	if err != nil {
		return err
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	body, err := json.Marshal(messagesRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Temperature: req.Temperature,
		Messages:    []messageContent{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", key)
	httpReq.Header.Set("anthropic-version", messagesAPIVersion)

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("summarizer request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read summarizer response: %w", err)
	}
	var decoded messagesResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		if resp.StatusCode >= 300 {
			return fmt.Errorf("summarizer returned status %s", resp.Status)
		}
		return fmt.Errorf("decode summarizer response: %w", err)
	}
	if resp.StatusCode >= 300 {
		if decoded.Error != nil && decoded.Error.Message != "" {
			return fmt.Errorf("summarizer returned status %d: %s", resp.StatusCode, decoded.Error.Message)
		}
		return fmt.Errorf("summarizer returned status %s", resp.Status)
	}

	var text strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return errors.New("summarizer returned no text")
	}
	return consumer(Chunk{
		RequestID:        req.RequestID,
		Content:          text.String(),
		PromptTokens:     decoded.Usage.InputTokens,
		CompletionTokens: decoded.Usage.OutputTokens,
		Latency:          time.Since(start),
	})
}
