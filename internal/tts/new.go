package tts

import (
	"fmt"

	"github.com/loqalabs/audio-briefer/internal/config"
)

// New builds the synthesizer selected by tts.mode.
func New(cfg config.Config) (Synthesizer, error) {
	switch cfg.TTS.Mode {
	case "piper":
		return NewPiperSynth(cfg.TTS)
	case "exec":
		return NewExecSynth(cfg.TTS.Exec.Command, cfg.TTS.SampleRate, cfg.TTS.Channels)
	case "openai":
		return NewOpenAISynth(cfg.TTS.OpenAI, cfg.Output.Format, cfg.Summarizer.CredentialsFile), nil
	case "mock":
		return NewMockSynth(cfg.TTS.SampleRate, cfg.TTS.Channels), nil
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.TTS.Mode)
	}
}
