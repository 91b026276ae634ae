package host

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/audio-briefer/internal/audio"
	"github.com/loqalabs/audio-briefer/internal/llm"
	"github.com/loqalabs/audio-briefer/internal/protocol"
	"github.com/loqalabs/audio-briefer/internal/segment"
	"github.com/loqalabs/audio-briefer/internal/tts"
)

// Chunk sizes are clamped so a base64 audioChunk frame stays under the
// browser's 1 MiB limit for messages to the extension.
const (
	MinChunkSize = 1024
	MaxChunkSize = 512 * 1024
)

type speechParams struct {
	lengthScale      float64
	sentenceSilence  float64
	paragraphSilence float64
	chunkSize        int
}

func (s *Service) speechParams(c protocol.SpeechConfig) speechParams {
	p := speechParams{
		lengthScale:      s.cfg.TTS.LengthScale,
		sentenceSilence:  s.cfg.TTS.SentenceSilence,
		paragraphSilence: s.cfg.TTS.ParagraphSilence,
		chunkSize:        s.cfg.TTS.ChunkSize,
	}
	if c.LengthScale > 0 {
		p.lengthScale = c.LengthScale
	}
	if c.SentenceSilence > 0 {
		p.sentenceSilence = c.SentenceSilence
	}
	if c.ParagraphSilence > 0 {
		p.paragraphSilence = c.ParagraphSilence
	}
	if c.ChunkSize > 0 {
		p.chunkSize = c.ChunkSize
	}
	p.chunkSize = min(max(p.chunkSize, MinChunkSize), MaxChunkSize)
	return p
}

// spoken is the text that will actually be read, after optional summarizing.
type spoken struct {
	text    string
	summary string
	mode    string
}

func (s *Service) articleText(req protocol.Request) (string, error) {
	text := strings.TrimSpace(req.Article.Content)
	if utf8.RuneCountInString(text) < s.cfg.Host.MinTextChars {
		return "", ErrNotEnoughText
	}
	return text, nil
}

// prepare summarizes text when a quick or deep mode was requested.
func (s *Service) prepare(ctx context.Context, rsp *responder, req protocol.Request, text string) (spoken, error) {
	out := spoken{text: text, mode: protocol.ModeFull}
	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	switch mode {
	case "", protocol.ModeFull:
		return out, nil
	case protocol.ModeQuick, protocol.ModeDeep:
	default:
		return out, fmt.Errorf("unknown mode %q", req.Mode)
	}

	if s.summarizer == nil {
		return out, rsp.progress("Summaries are not configured, reading the full article")
	}

	words := segment.WordCount(text)
	if err := rsp.progress(fmt.Sprintf("Summarizing %s words (%s)...", humanize.Comma(int64(words)), mode)); err != nil {
		return out, err
	}
	ctx, span := s.tracer.Start(ctx, "host.summarize", trace.WithAttributes(attribute.String("mode", mode)))
	defer span.End()

	tier := llm.TierQuick
	if mode == protocol.ModeDeep {
		tier = llm.TierDeep
	}
	summary, err := s.summarizer.Summarize(ctx, rsp.requestID, tier, req.Article.Title, req.Article.URL, text)
	if err != nil {
		span.RecordError(err)
		return out, &summaryError{err: err}
	}
	return spoken{text: summary, summary: summary, mode: mode}, nil
}

// generate reads the whole text in one engine call and saves the result.
func (s *Service) generate(ctx context.Context, rsp *responder, req protocol.Request) error {
	text, err := s.articleText(req)
	if err != nil {
		return err
	}
	content, err := s.prepare(ctx, rsp, req, text)
	if err != nil {
		return err
	}
	params := s.speechParams(req.Config)
	words := segment.WordCount(content.text)
	if err := rsp.progress(fmt.Sprintf("Generating audio for %s words...", humanize.Comma(int64(words)))); err != nil {
		return err
	}

	ctx, cancel := s.synthesisTimeout(ctx)
	defer cancel()
	data, err := tts.Collect(ctx, s.synth, tts.SynthRequest{
		RequestID:       rsp.requestID,
		Text:            content.text,
		Voice:           s.cfg.TTS.Voice,
		LengthScale:     params.lengthScale,
		SentenceSilence: params.sentenceSilence,
	})
	if err != nil {
		return &synthesisError{err: err}
	}
	path, _, err := s.save(ctx, req.Article.Title, data)
	if err != nil {
		return &synthesisError{err: err}
	}

	return rsp.send(protocol.Response{
		Status:    protocol.StatusSuccess,
		AudioPath: path,
		Duration:  audio.FormatDuration(audio.EstimateSeconds(words, params.lengthScale)),
		WordCount: words,
		Summary:   content.summary,
		Mode:      content.mode,
	})
}

// stream reads paragraph by paragraph and sends the audio as it is produced.
func (s *Service) stream(ctx context.Context, rsp *responder, req protocol.Request) error {
	text, err := s.articleText(req)
	if err != nil {
		return err
	}
	content, err := s.prepare(ctx, rsp, req, text)
	if err != nil {
		return err
	}
	params := s.speechParams(req.Config)
	paragraphs := segment.Paragraphs(content.text)
	words := segment.WordCount(content.text)
	if err := rsp.progress(fmt.Sprintf("Streaming %d paragraphs (%s words)...", len(paragraphs), humanize.Comma(int64(words)))); err != nil {
		return err
	}

	format := s.synth.Format()
	if err := rsp.send(protocol.Response{
		Status:      protocol.StatusAudioFormat,
		Format:      format.Encoding,
		SampleRate:  format.SampleRate,
		Channels:    format.Channels,
		SampleWidth: format.SampleWidth,
		Paragraphs:  len(paragraphs),
	}); err != nil {
		return err
	}

	index := 0
	chunker := audio.NewChunker(params.chunkSize, func(b []byte) error {
		index++
		return rsp.send(protocol.Response{
			Status: protocol.StatusAudioChunk,
			Index:  index,
			Data:   base64.StdEncoding.EncodeToString(b),
		})
	})
	if _, err := s.narrator.Narrate(ctx, s.narration(rsp.requestID, paragraphs, params), chunker); err != nil {
		if rsp.emitErr != nil {
			return err
		}
		return &synthesisError{err: err}
	}
	if err := chunker.Flush(); err != nil {
		return err
	}
	total := chunker.Total()
	s.metrics.audioBytes.Add(ctx, int64(total))

	return rsp.send(protocol.Response{
		Status:      protocol.StatusStreamComplete,
		TotalChunks: index,
		TotalBytes:  total,
		Duration:    durationOf(format, total, words, params.lengthScale),
		WordCount:   words,
		Summary:     content.summary,
		Mode:        content.mode,
	})
}

// download reads paragraph by paragraph into memory and saves one file.
func (s *Service) download(ctx context.Context, rsp *responder, req protocol.Request) error {
	text, err := s.articleText(req)
	if err != nil {
		return err
	}
	content, err := s.prepare(ctx, rsp, req, text)
	if err != nil {
		return err
	}
	params := s.speechParams(req.Config)
	paragraphs := segment.Paragraphs(content.text)
	words := segment.WordCount(content.text)
	if err := rsp.progress(fmt.Sprintf("Generating audio for %d paragraphs (%s words)...", len(paragraphs), humanize.Comma(int64(words)))); err != nil {
		return err
	}

	ctx, cancel := s.synthesisTimeout(ctx)
	defer cancel()
	var buf bytes.Buffer
	if _, err := s.narrator.Narrate(ctx, s.narration(rsp.requestID, paragraphs, params), &buf); err != nil {
		return &synthesisError{err: err}
	}
	path, size, err := s.save(ctx, req.Article.Title, buf.Bytes())
	if err != nil {
		return &synthesisError{err: err}
	}

	return rsp.send(protocol.Response{
		Status:    protocol.StatusDownloadComplete,
		AudioPath: path,
		Duration:  durationOf(s.synth.Format(), buf.Len(), words, params.lengthScale),
		WordCount: words,
		FileSize:  humanize.Bytes(uint64(size)),
		Summary:   content.summary,
		Mode:      content.mode,
	})
}

func (s *Service) narration(requestID string, paragraphs []string, p speechParams) tts.NarrationRequest {
	return tts.NarrationRequest{
		RequestID:        requestID,
		Voice:            s.cfg.TTS.Voice,
		Paragraphs:       paragraphs,
		LengthScale:      p.lengthScale,
		SentenceSilence:  p.sentenceSilence,
		ParagraphSilence: p.paragraphSilence,
	}
}

func (s *Service) synthesisTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.TTS.TimeoutSeconds <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(s.cfg.TTS.TimeoutSeconds)*time.Second)
}

// save writes the audio in the container matching the engine's output.
func (s *Service) save(ctx context.Context, title string, data []byte) (string, int64, error) {
	format := s.synth.Format()
	var (
		path string
		size int64
		err  error
	)
	if format.Encoding == audio.EncodingPCM {
		path, size, err = s.store.SaveWAV(title, data, format)
	} else {
		path, size, err = s.store.SaveEncoded(title, format.Encoding, data)
	}
	if err != nil {
		return "", 0, err
	}
	s.metrics.audioBytes.Add(ctx, int64(len(data)))
	s.logger.Info("audio saved", slog.String("path", path), slog.String("size", humanize.Bytes(uint64(size))))
	return path, size, nil
}

// durationOf is exact for PCM and falls back to the speaking-rate estimate for
// encoded audio.
func durationOf(format audio.Format, n, words int, lengthScale float64) string {
	if format.BytesPerSecond() > 0 {
		return audio.FormatDuration(format.Seconds(n))
	}
	return audio.FormatDuration(audio.EstimateSeconds(words, lengthScale))
}
