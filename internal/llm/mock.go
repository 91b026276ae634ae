package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type mockGenerator struct{}

func NewMockGenerator() Generator { return &mockGenerator{} }

// Generate echoes the tail of the prompt so dry runs still have something to
// read.
func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	words := strings.Fields(req.Prompt)
	if len(words) > 40 {
		words = words[len(words)-40:]
	}
	content := fmt.Sprintf("Mock %s summary. %s", req.Tier, strings.Join(words, " "))
	return consumer(Chunk{
		RequestID: req.RequestID,
		Content:   content,
		Partial:   false,
		Latency:   20 * time.Millisecond,
	})
}
