package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/audio-briefer/internal/bus"
	"github.com/loqalabs/audio-briefer/internal/config"
	"github.com/loqalabs/audio-briefer/internal/host"
	"github.com/loqalabs/audio-briefer/internal/journal"
	"github.com/loqalabs/audio-briefer/internal/llm"
	"github.com/loqalabs/audio-briefer/internal/natsserver"
	"github.com/loqalabs/audio-briefer/internal/tts"
)

// Runtime owns the host's collaborators for the life of one browser
// connection.
type Runtime struct {
	cfg           config.Config
	logger        *slog.Logger
	origin        string
	httpServer    *http.Server
	metrics       http.Handler
	telemetryStop func(context.Context) error
	journal       *journal.Journal
	nats          *natsserver.EmbeddedServer
	bus           *bus.Client
	errLogCloser  io.Closer
	ready         atomic.Bool
	wg            sync.WaitGroup
}

func New(cfg config.Config, origin string, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		origin: origin,
		logger: logger,
	}
}

// Run serves native messages from in to out until in is closed or ctx ends.
func (r *Runtime) Run(ctx context.Context, in io.Reader, out io.Writer) (err error) {
	defer func() {
		if closeErr := r.close(); closeErr != nil {
			r.logger.Error("runtime shutdown error", slog.String("error", closeErr.Error()))
		}
	}()

	svc, err := r.start(ctx)
	if err != nil {
		return err
	}
	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("origin", r.origin))

	err = svc.Serve(ctx, in, out)
	r.ready.Store(false)
	if errors.Is(err, context.Canceled) {
		r.logger.Info("runtime stopping")
		return nil
	}
	return err
}

func (r *Runtime) start(ctx context.Context) (*host.Service, error) {
	stopTelemetry, metricsHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryStop = stopTelemetry
	r.metrics = metricsHandler

	if r.cfg.HTTP.Enabled {
		if err := r.startHTTP(); err != nil {
			return nil, err
		}
	}

	j, err := journal.Open(ctx, r.cfg.Journal, r.logger.With(slog.String("component", "journal")))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	r.journal = j

	if r.cfg.Bus.Enabled {
		r.startBus(ctx)
	}

	synth, err := tts.New(r.cfg)
	if err != nil {
		return nil, fmt.Errorf("create synthesizer: %w", err)
	}

	opts := host.Options{
		Config:  r.cfg,
		Synth:   synth,
		Journal: r.journal,
		Bus:     r.bus,
		Logger:  r.logger,
		Origin:  r.origin,
	}
	summarizer, err := llm.New(r.cfg.Summarizer, r.logger)
	if err != nil {
		return nil, fmt.Errorf("create summarizer: %w", err)
	}
	if summarizer != nil {
		opts.Summarizer = summarizer
	}

	errLog, closer, err := host.OpenErrorLog(r.cfg.ErrorLogPath())
	if err != nil {
		return nil, err
	}
	opts.ErrorLog = errLog
	r.errLogCloser = closer

	svc, err := host.NewService(opts)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// startBus is best effort: without NATS the host still serves the browser.
func (r *Runtime) startBus(ctx context.Context) {
	var servers []string
	if r.cfg.Bus.Embedded {
		ns, err := natsserver.Start(r.cfg.Bus, r.logger.With(slog.String("component", "nats")))
		if err != nil {
			r.logger.Warn("embedded NATS unavailable", slog.String("error", err.Error()))
			return
		}
		r.nats = ns
		servers = []string{ns.ClientURL()}
	}
	client, err := bus.Connect(ctx, r.cfg.Bus, servers, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		r.logger.Warn("status bus unavailable", slog.String("error", err.Error()))
		return
	}
	r.bus = client
}

func (r *Runtime) startHTTP() error {
	addr := net.JoinHostPort(r.cfg.HTTP.Bind, strconv.Itoa(r.cfg.HTTP.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	r.httpServer = &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
	r.logger.Info("http server started", slog.String("addr", listener.Addr().String()))
	return nil
}

// Handler serves the health, readiness and metrics endpoints.
func (r *Runtime) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if r.metrics != nil {
		mux.Handle("/metrics", r.metrics)
	}
	return mux
}

func (r *Runtime) close() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		r.wg.Wait()
	}
	r.bus.Close()
	r.nats.Shutdown()
	if r.journal != nil {
		if err := r.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if r.errLogCloser != nil {
		if err := r.errLogCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close error log: %w", err))
		}
	}
	if r.telemetryStop != nil {
		if err := r.telemetryStop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (!r.cfg.Bus.Enabled || r.bus.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
