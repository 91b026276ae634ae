package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"

	"github.com/mattn/go-shellwords"

	"github.com/loqalabs/audio-briefer/internal/audio"
)

type execSynth struct {
	cmd    []string
	format audio.Format
}

type execRequest struct {
	Text            string  `json:"text"`
	Voice           string  `json:"voice"`
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	LengthScale     float64 `json:"length_scale,omitempty"`
	SentenceSilence float64 `json:"sentence_silence,omitempty"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

// NewExecSynth drives a custom engine that reads one JSON request on stdin and
// answers with JSON lines of base64 PCM.
func NewExecSynth(command string, sampleRate, channels int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args, format: audio.PCM16(sampleRate, channels)}, nil
}

func (e *execSynth) Format() audio.Format { return e.format }

func (e *execSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		data, err := json.Marshal(execRequest{
			Text:            req.Text,
			Voice:           req.Voice,
			SampleRate:      e.format.SampleRate,
			Channels:        e.format.Channels,
			LengthScale:     req.LengthScale,
			SentenceSilence: req.SentenceSilence,
		})
		if err != nil {
			errs <- err
			return
		}

		cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
		err = runStreaming(ctx, cmd, "TTS command", bytes.NewReader(data), func(stdout io.Reader) error {
			scanner := bufio.NewScanner(stdout)
			scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
			sequence := 0
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				var resp execResponse
				if err := json.Unmarshal(line, &resp); err != nil {
					return fmt.Errorf("decode tts response: %w", err)
				}
				pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
				if err != nil {
					return fmt.Errorf("decode tts audio: %w", err)
				}
				if len(pcm) > 0 {
					select {
					case chunks <- SynthChunk{RequestID: req.RequestID, Sequence: sequence, Audio: pcm}:
						sequence++
					case <-ctx.Done():
						return ctx.Err()
					}
				}
				if resp.Final {
					return nil
				}
			}
			return scanner.Err()
		})
		if err != nil {
			errs <- err
		}
	}()
	return chunks, errs
}
