package tts

import (
	"context"
	"io"
	"log/slog"

	"github.com/loqalabs/audio-briefer/internal/audio"
)

// NarrationRequest describes a paragraph-by-paragraph reading.
type NarrationRequest struct {
	RequestID        string
	Voice            string
	Paragraphs       []string
	LengthScale      float64
	SentenceSilence  float64
	ParagraphSilence float64
}

// Narrator synthesizes paragraphs in order and writes the audio, with a pause
// between paragraphs, to a single writer.
type Narrator struct {
	synth  Synthesizer
	logger *slog.Logger
}

func NewNarrator(synth Synthesizer, logger *slog.Logger) *Narrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Narrator{synth: synth, logger: logger.With(slog.String("component", "narrator"))}
}

func (n *Narrator) Format() audio.Format { return n.synth.Format() }

// Narrate returns the number of audio bytes written to w. Encoded formats are
// concatenated without pauses.
func (n *Narrator) Narrate(ctx context.Context, req NarrationRequest, w io.Writer) (int, error) {
	format := n.synth.Format()
	silence := format.Silence(req.ParagraphSilence)
	written := 0
	for i, paragraph := range req.Paragraphs {
		chunks, errs := n.synth.Synthesize(ctx, SynthRequest{
			RequestID:       req.RequestID,
			Text:            paragraph,
			Voice:           req.Voice,
			LengthScale:     req.LengthScale,
			SentenceSilence: req.SentenceSilence,
		})
		for chunk := range chunks {
			m, err := w.Write(chunk.Audio)
			written += m
			if err != nil {
				drain(chunks)
				<-errs
				return written, err
			}
		}
		if err := <-errs; err != nil {
			n.logger.Warn("paragraph synthesis failed",
				slog.String("request_id", req.RequestID),
				slog.Int("paragraph", i+1),
			)
			return written, classify(ctx, err)
		}
		if err := ctx.Err(); err != nil {
			return written, classify(ctx, err)
		}
		n.logger.Debug("paragraph synthesized",
			slog.String("request_id", req.RequestID),
			slog.Int("paragraph", i+1),
			slog.Int("bytes", written),
		)
		if i < len(req.Paragraphs)-1 && len(silence) > 0 {
			m, err := w.Write(silence)
			written += m
			if err != nil {
				return written, err
			}
		}
	}
	return written, nil
}
