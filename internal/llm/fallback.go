package llm

import (
	"context"
	"errors"
	"log/slog"
)

type fallbackGenerator struct {
	primary   Generator
	secondary Generator
	logger    *slog.Logger
}

// NewFallbackGenerator tries primary and moves to secondary only when primary
// reports ErrUnavailable. Other failures are returned unchanged.
func NewFallbackGenerator(primary, secondary Generator, logger *slog.Logger) Generator {
	return &fallbackGenerator{primary: primary, secondary: secondary, logger: logger}
}

func (g *fallbackGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	err := g.primary.Generate(ctx, req, consumer)
	if err == nil || !errors.Is(err, ErrUnavailable) {
		return err
	}
	g.logger.Info("summarizer falling back", slog.String("request_id", req.RequestID), slogError(err))
	return g.secondary.Generate(ctx, req, consumer)
}
