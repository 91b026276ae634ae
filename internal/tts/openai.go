package tts

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/sashabaranov/go-openai"

	"github.com/loqalabs/audio-briefer/internal/audio"
	"github.com/loqalabs/audio-briefer/internal/config"
	"github.com/loqalabs/audio-briefer/internal/credentials"
)

// Cloud speech returns raw PCM at a fixed rate regardless of local settings.
const openAIPCMSampleRate = 24000

type openAISynth struct {
	cfg             config.OpenAIConfig
	credentialsFile string
	format          audio.Format
	responseFormat  openai.SpeechResponseFormat
}

// NewOpenAISynth returns a cloud synthesizer. When outputFormat is "mp3" the
// engine answers with mp3 frames, otherwise with 24 kHz mono PCM.
func NewOpenAISynth(cfg config.OpenAIConfig, outputFormat, credentialsFile string) Synthesizer {
	s := &openAISynth{cfg: cfg, credentialsFile: credentialsFile}
	if outputFormat == "mp3" {
		s.format = audio.Format{Encoding: audio.EncodingMP3, SampleRate: openAIPCMSampleRate, Channels: 1}
		s.responseFormat = openai.SpeechResponseFormatMp3
	} else {
		s.format = audio.PCM16(openAIPCMSampleRate, 1)
		s.responseFormat = openai.SpeechResponseFormat("pcm")
	}
	return s
}

func (s *openAISynth) Format() audio.Format { return s.format }

func (s *openAISynth) client() (*openai.Client, error) {
	key, err := credentials.Lookup(s.cfg.APIKeyEnv, s.credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("cloud tts: %w", err)
	}
	clientCfg := openai.DefaultConfig(key)
	if s.cfg.BaseURL != "" {
		clientCfg.BaseURL = s.cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg), nil
}

func (s *openAISynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		client, err := s.client()
		if err != nil {
			errs <- err
			return
		}
		resp, err := client.CreateSpeech(ctx, openai.CreateSpeechRequest{
			Model:          openai.SpeechModel(s.cfg.Model),
			Input:          req.Text,
			Voice:          openai.SpeechVoice(s.cfg.Voice),
			ResponseFormat: s.responseFormat,
			Speed:          speechSpeed(req.LengthScale),
		})
		if err != nil {
			errs <- classify(ctx, s.processError(err))
			return
		}
		defer resp.Close()

		if err := forwardRaw(ctx, resp, req.RequestID, chunks); err != nil {
			errs <- classify(ctx, err)
		}
	}()
	return chunks, errs
}

func (s *openAISynth) processError(err error) error {
	perr := &ProcessError{Engine: "Cloud TTS", Stderr: err.Error(), Cause: err}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		perr.ExitCode = apiErr.HTTPStatusCode
		perr.Stderr = apiErr.Message
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		perr.ExitCode = reqErr.HTTPStatusCode
	}
	return perr
}

// speechSpeed maps a piper length scale (larger is slower) onto the cloud
// speed multiplier.
func speechSpeed(lengthScale float64) float64 {
	if lengthScale <= 0 {
		return 1
	}
	return math.Max(0.25, math.Min(4, 1/lengthScale))
}
