package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
	"golang.org/x/sync/errgroup"

	"github.com/loqalabs/audio-briefer/internal/audio"
	"github.com/loqalabs/audio-briefer/internal/config"
)

const readSize = 4096

type piperSynth struct {
	cmd    []string
	python string
	model  string
	format audio.Format
}

// NewPiperSynth runs the piper CLI once per request with raw 16-bit output on
// stdout. Without an explicit command it runs "<python> -m piper" from the
// configured virtual environment.
func NewPiperSynth(cfg config.TTSConfig) (Synthesizer, error) {
	s := &piperSynth{
		model:  cfg.Piper.Model,
		format: audio.PCM16(cfg.SampleRate, cfg.Channels),
	}
	if strings.TrimSpace(cfg.Piper.Command) != "" {
		args, err := shellwords.NewParser().Parse(cfg.Piper.Command)
		if err != nil {
			return nil, fmt.Errorf("parse piper command: %w", err)
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("piper command empty")
		}
		s.cmd = args
	} else {
		if cfg.Piper.Python == "" {
			return nil, fmt.Errorf("piper python interpreter not configured")
		}
		s.python = cfg.Piper.Python
		s.cmd = []string{cfg.Piper.Python, "-m", "piper"}
	}
	return s, nil
}

func (s *piperSynth) Format() audio.Format { return s.format }

func (s *piperSynth) checkDependencies() error {
	if s.python != "" {
		if _, err := os.Stat(s.python); err != nil {
			return fmt.Errorf("%w: Python virtual environment not found at %s", ErrMissingDependency, s.python)
		}
	}
	if _, err := os.Stat(s.model); err != nil {
		return fmt.Errorf("%w: Piper voice model not found at %s", ErrMissingDependency, s.model)
	}
	return nil
}

func (s *piperSynth) args(req SynthRequest) []string {
	args := append([]string{}, s.cmd[1:]...)
	args = append(args, "--model", s.model, "--output_raw")
	if req.LengthScale > 0 {
		args = append(args, "--length_scale", formatFloat(req.LengthScale))
	}
	if req.SentenceSilence > 0 {
		args = append(args, "--sentence_silence", formatFloat(req.SentenceSilence))
	}
	return args
}

func (s *piperSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		if err := s.checkDependencies(); err != nil {
			errs <- err
			return
		}

		cmd := exec.CommandContext(ctx, s.cmd[0], s.args(req)...)
		if err := runStreaming(ctx, cmd, "Piper", strings.NewReader(req.Text), func(stdout io.Reader) error {
			return forwardRaw(ctx, stdout, req.RequestID, chunks)
		}); err != nil {
			errs <- err
		}
	}()
	return chunks, errs
}

// runStreaming starts cmd, feeds stdin and consumes stdout concurrently, and
// turns a failed or non-zero exit into a ProcessError carrying stderr.
func runStreaming(ctx context.Context, cmd *exec.Cmd, engine string, input io.Reader, consume func(io.Reader) error) error {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &ProcessError{Engine: engine, Cause: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ProcessError{Engine: engine, Cause: err}
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s not found: %v", ErrMissingDependency, engine, err)
		}
		return &ProcessError{Engine: engine, Cause: err}
	}

	var g errgroup.Group
	g.Go(func() error {
		defer stdin.Close()
		_, err := io.Copy(stdin, input)
		return err
	})
	g.Go(func() error {
		err := consume(stdout)
		// keep the pipe drained so the child can exit
		_, _ = io.Copy(io.Discard, stdout)
		return err
	})
	ioErr := g.Wait()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrTimeout, engine)
		}
		return ctx.Err()
	}
	if waitErr != nil {
		perr := &ProcessError{Engine: engine, Stderr: strings.TrimSpace(stderr.String()), Cause: waitErr}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			perr.ExitCode = exitErr.ExitCode()
		}
		return perr
	}
	return ioErr
}

func forwardRaw(ctx context.Context, r io.Reader, requestID string, chunks chan<- SynthChunk) error {
	buf := make([]byte, readSize)
	sequence := 0
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case chunks <- SynthChunk{RequestID: requestID, Sequence: sequence, Audio: data}:
				sequence++
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
