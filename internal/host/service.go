// Package host serves native-messaging requests from the browser extension:
// it reads one request at a time, runs it to completion and writes the
// response sequence back on the same pipe.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/loqalabs/audio-briefer/internal/audio"
	"github.com/loqalabs/audio-briefer/internal/bus"
	"github.com/loqalabs/audio-briefer/internal/config"
	"github.com/loqalabs/audio-briefer/internal/journal"
	"github.com/loqalabs/audio-briefer/internal/nativemsg"
	"github.com/loqalabs/audio-briefer/internal/protocol"
	"github.com/loqalabs/audio-briefer/internal/tts"
)

// Summarizer condenses article text for the quick and deep modes.
type Summarizer interface {
	Summarize(ctx context.Context, requestID, tier, title, url, content string) (string, error)
}

// Options wires a Service. Summarizer, Journal and Bus are optional.
type Options struct {
	Config     config.Config
	Synth      tts.Synthesizer
	Summarizer Summarizer
	Journal    *journal.Journal
	Bus        *bus.Client
	Logger     *slog.Logger
	ErrorLog   *slog.Logger
	// Origin is the extension origin Chrome passes on the command line.
	Origin string
}

type Service struct {
	cfg        config.Config
	synth      tts.Synthesizer
	narrator   *tts.Narrator
	summarizer Summarizer
	store      *audio.FileStore
	journal    *journal.Journal
	bus        *bus.Client
	logger     *slog.Logger
	errLog     *slog.Logger
	origin     string
	tracer     trace.Tracer
	metrics    *metrics
	newID      func() string
}

func NewService(opts Options) (*Service, error) {
	if opts.Synth == nil {
		return nil, errors.New("host needs a synthesizer")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errLog := opts.ErrorLog
	if errLog == nil {
		errLog = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	m, err := newMetrics(otel.Meter("github.com/loqalabs/audio-briefer/internal/host"))
	if err != nil {
		return nil, fmt.Errorf("create host metrics: %w", err)
	}
	return &Service{
		cfg:        opts.Config,
		synth:      opts.Synth,
		narrator:   tts.NewNarrator(opts.Synth, logger),
		summarizer: opts.Summarizer,
		store:      audio.NewFileStore(opts.Config.Output.Directory),
		journal:    opts.Journal,
		bus:        opts.Bus,
		logger:     logger.With(slog.String("component", "host")),
		errLog:     errLog,
		origin:     opts.Origin,
		tracer:     otel.Tracer("github.com/loqalabs/audio-briefer/internal/host"),
		metrics:    m,
		newID:      uuid.NewString,
	}, nil
}

type readResult struct {
	req protocol.Request
	err error
}

// Serve handles requests from r until the peer closes the pipe, which returns
// nil. Framing and decoding failures, response write failures and panics are
// fatal and returned.
func (s *Service) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := nativemsg.NewReader(r, s.cfg.Host.MaxMessageBytes)
	writer := nativemsg.NewWriter(w)
	emit := func(resp protocol.Response) error { return writer.Write(resp) }

	s.logger.Info("host ready", slog.String("origin", s.origin))
	for {
		// The read blocks on the pipe, so it runs aside and is abandoned on
		// cancellation; the pipe closes when the process exits.
		next := make(chan readResult, 1)
		go func() {
			var req protocol.Request
			err := reader.Read(&req)
			next <- readResult{req: req, err: err}
		}()

		var res readResult
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res = <-next:
		}

		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				s.logger.Info("input closed, host stopping")
				return nil
			}
			s.logger.Error("failed to read request", slogError(res.err))
			s.errLog.Error("failed to read request", slogError(res.err))
			return fmt.Errorf("read request: %w", res.err)
		}
		if err := s.Handle(ctx, res.req, emit); err != nil {
			return err
		}
	}
}

// Handle runs one request and sends its response sequence through emit. Errors
// of the request itself become an error response; the returned error is
// reserved for failures that should stop the host.
func (s *Service) Handle(ctx context.Context, req protocol.Request, emit func(protocol.Response) error) (fatal error) {
	requestID := s.newID()
	start := time.Now()
	attrs := []attribute.KeyValue{
		attribute.String("request_id", requestID),
		attribute.String("action", req.Action),
		attribute.String("mode", req.Mode),
	}
	ctx, span := s.tracer.Start(ctx, "host.request", trace.WithAttributes(attrs...))
	defer span.End()

	rsp := &responder{
		ctx:       ctx,
		service:   s,
		requestID: requestID,
		action:    req.Action,
		emit:      emit,
	}
	logger := s.logger.With(slog.String("request_id", requestID), slog.String("action", req.Action))
	logger.Info("request received", slog.String("title", req.Article.Title), slog.String("mode", req.Mode))
	s.journalStart(ctx, requestID, req)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic handling request: %v", r)
			logger.Error("request panicked", slogError(err))
			s.errLog.Error("request panicked",
				slog.String("request_id", requestID),
				slog.String("action", req.Action),
				slogError(err),
				slog.String("stack", string(debug.Stack())),
			)
			span.SetStatus(codes.Error, err.Error())
			if !rsp.terminal && rsp.emitErr == nil {
				_ = rsp.send(protocol.Response{Status: protocol.StatusError, Message: err.Error()})
			}
			fatal = err
		}
		status := rsp.lastStatus
		if status == "" {
			status = "none"
		}
		metricAttrs := metric.WithAttributes(attribute.String("action", req.Action), attribute.String("status", status))
		s.metrics.requests.Add(ctx, 1, metricAttrs)
		s.metrics.latency.Record(ctx, time.Since(start).Seconds(), metricAttrs)
	}()

	var err error
	switch req.Action {
	case protocol.ActionGenerate:
		err = s.generate(ctx, rsp, req)
	case protocol.ActionStream:
		err = s.stream(ctx, rsp, req)
	case protocol.ActionDownload:
		err = s.download(ctx, rsp, req)
	default:
		err = &unknownActionError{action: req.Action}
	}

	if rsp.emitErr != nil {
		logger.Error("failed to write response", slogError(rsp.emitErr))
		return fmt.Errorf("write response: %w", rsp.emitErr)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("request failed", slogError(err), slog.Duration("elapsed", time.Since(start)))
		s.errLog.Error("request failed",
			slog.String("request_id", requestID),
			slog.String("action", req.Action),
			slog.String("title", req.Article.Title),
			slogError(err),
		)
		if rsp.terminal {
			return nil
		}
		if sendErr := rsp.send(protocol.Response{Status: protocol.StatusError, Message: describe(err)}); sendErr != nil {
			return fmt.Errorf("write response: %w", sendErr)
		}
		return nil
	}
	if !rsp.terminal {
		// handlers are expected to finish with a terminal response
		if sendErr := rsp.send(protocol.Response{Status: protocol.StatusError, Message: "request ended without a result"}); sendErr != nil {
			return fmt.Errorf("write response: %w", sendErr)
		}
	}
	logger.Info("request complete", slog.String("status", rsp.lastStatus), slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Service) journalStart(ctx context.Context, requestID string, req protocol.Request) {
	if s.journal == nil {
		return
	}
	err := s.journal.StartRequest(ctx, journal.Request{
		ID:     requestID,
		Action: req.Action,
		Mode:   req.Mode,
		Title:  req.Article.Title,
		URL:    req.Article.URL,
		Origin: s.origin,
	})
	if err != nil {
		s.logger.Warn("journal start failed", slog.String("request_id", requestID), slogError(err))
	}
}

// responder stamps, records and forwards one request's responses, and tracks
// whether the terminal response has gone out.
type responder struct {
	ctx        context.Context
	service    *Service
	requestID  string
	action     string
	emit       func(protocol.Response) error
	terminal   bool
	lastStatus string
	emitErr    error
}

func (r *responder) send(resp protocol.Response) error {
	if r.terminal {
		return fmt.Errorf("response after terminal %s", r.lastStatus)
	}
	resp.RequestID = r.requestID
	if err := r.emit(resp); err != nil {
		r.emitErr = err
		return err
	}
	r.lastStatus = resp.Status
	r.terminal = resp.Terminal()
	if resp.Status != protocol.StatusAudioChunk {
		r.record(resp)
	}
	return nil
}

func (r *responder) progress(message string) error {
	return r.send(protocol.Response{Status: protocol.StatusProgress, Message: message})
}

func (r *responder) record(resp protocol.Response) {
	s := r.service
	if s.journal != nil {
		if err := s.journal.AppendEvent(r.ctx, journal.Event{RequestID: r.requestID, Status: resp.Status, Message: resp.Message}); err != nil {
			s.logger.Warn("journal event failed", slog.String("request_id", r.requestID), slogError(err))
		}
		if resp.Terminal() {
			err := s.journal.FinishRequest(r.ctx, r.requestID, journal.Outcome{
				Status:    resp.Status,
				Message:   resp.Message,
				Duration:  resp.Duration,
				WordCount: resp.WordCount,
			})
			if err != nil {
				s.logger.Warn("journal finish failed", slog.String("request_id", r.requestID), slogError(err))
			}
		}
	}
	if s.bus != nil {
		err := s.bus.PublishStatus(protocol.StatusEvent{
			RequestID: r.requestID,
			Action:    statusAction(r.action),
			Status:    resp.Status,
			Message:   resp.Message,
			AudioPath: resp.AudioPath,
			Duration:  resp.Duration,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			s.logger.Warn("status publish failed", slog.String("request_id", r.requestID), slogError(err))
		}
	}
}

// statusAction keeps caller-supplied action names out of bus subjects.
func statusAction(action string) string {
	switch action {
	case protocol.ActionGenerate, protocol.ActionStream, protocol.ActionDownload:
		return action
	default:
		return "unknown"
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
