package tts

import (
	"context"
	"strings"

	"github.com/loqalabs/audio-briefer/internal/audio"
)

type mockSynth struct {
	format audio.Format
}

// NewMockSynth produces a tenth of a second of silence per word.
func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{format: audio.PCM16(sampleRate, channels)}
}

func (m *mockSynth) Format() audio.Format { return m.format }

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		words := len(strings.Fields(req.Text))
		pcm := m.format.Silence(float64(words) / 10)
		half := len(pcm) / 2
		half -= half % m.format.FrameSize()
		for i, part := range [][]byte{pcm[:half], pcm[half:]} {
			if len(part) == 0 {
				continue
			}
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case chunks <- SynthChunk{RequestID: req.RequestID, Sequence: i, Audio: part}:
			}
		}
	}()
	return chunks, errs
}
