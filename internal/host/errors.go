package host

import (
	"errors"
	"fmt"

	"github.com/loqalabs/audio-briefer/internal/tts"
)

// ErrNotEnoughText rejects articles too short to be worth reading.
var ErrNotEnoughText = errors.New("not enough text content to read")

type unknownActionError struct {
	action string
}

func (e *unknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.action)
}

// synthesisError marks failures of the speech engine.
type synthesisError struct {
	err error
}

func (e *synthesisError) Error() string { return "audio generation failed: " + e.err.Error() }
func (e *synthesisError) Unwrap() error { return e.err }

type summaryError struct {
	err error
}

func (e *summaryError) Error() string { return "summarization failed: " + e.err.Error() }
func (e *summaryError) Unwrap() error { return e.err }

// describe renders err as the message shown in the extension.
func describe(err error) string {
	var (
		unknown *unknownActionError
		synth   *synthesisError
		summary *summaryError
	)
	switch {
	case errors.Is(err, ErrNotEnoughText):
		return "Not enough text content to read"
	case errors.As(err, &unknown):
		return "Unknown action: " + unknown.action
	case errors.Is(err, tts.ErrTimeout):
		return "Audio generation timed out (article may be too long)"
	case errors.As(err, &synth):
		return "Audio generation failed: " + synth.err.Error()
	case errors.As(err, &summary):
		return "Summarization failed: " + summary.err.Error()
	default:
		return err.Error()
	}
}
