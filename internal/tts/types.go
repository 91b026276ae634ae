package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/loqalabs/audio-briefer/internal/audio"
)

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	RequestID       string
	Text            string
	Voice           string
	LengthScale     float64
	SentenceSilence float64
}

// SynthChunk carries audio bytes as they come off the engine.
type SynthChunk struct {
	RequestID string
	Sequence  int
	Audio     []byte
}

// Synthesizer is the contract for producing audio. The chunk channel closes when
// synthesis ends; the error channel carries at most one error.
type Synthesizer interface {
	Format() audio.Format
	Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error)
}

var (
	ErrMissingDependency = errors.New("missing dependency")
	ErrTimeout           = errors.New("synthesis timed out")
)

// ProcessError reports a synthesis subprocess that failed to run or exited non-zero.
type ProcessError struct {
	Engine   string
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed: %s", e.Engine, e.Stderr)
	}
	if e.ExitCode != 0 {
		return fmt.Sprintf("%s failed: exit status %d", e.Engine, e.ExitCode)
	}
	return fmt.Sprintf("%s failed: %v", e.Engine, e.Cause)
}

func (e *ProcessError) Unwrap() error {
	return e.Cause
}

// Collect drains a synthesis into memory.
func Collect(ctx context.Context, synth Synthesizer, req SynthRequest) ([]byte, error) {
	chunks, errs := synth.Synthesize(ctx, req)
	var out []byte
	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			out = append(out, chunk.Audio...)
		case err, ok := <-errs:
			if ok && err != nil {
				drain(chunks)
				return nil, classify(ctx, err)
			}
			errs = nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, err)
	}
	return out, nil
}

func drain(chunks <-chan SynthChunk) {
	if chunks == nil {
		return
	}
	for range chunks {
	}
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
