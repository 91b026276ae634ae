package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/loqalabs/audio-briefer/internal/config"
	"github.com/loqalabs/audio-briefer/internal/host"
	"github.com/loqalabs/audio-briefer/internal/journal"
	"github.com/loqalabs/audio-briefer/internal/llm"
	"github.com/loqalabs/audio-briefer/internal/protocol"
	"github.com/loqalabs/audio-briefer/internal/tts"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'validate', 'history', 'say' or 'version'")
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "validate":
		err = runValidate(os.Args[2:], os.Stdout)
	case "history":
		err = runHistory(os.Args[2:], os.Stdout)
	case "say":
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		err = runSay(ctx, os.Args[2:], os.Stdout)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runValidate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "config valid (tts=%s, summarizer=%t, output=%s)\n", cfg.TTS.Mode, cfg.Summarizer.Enabled, cfg.Output.Directory)
	return nil
}

func runHistory(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", 20, "Number of requests to show")
	asJSON := fs.Bool("json", false, "Print one JSON object per line")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	j, err := journal.Open(ctx, cfg.Journal, quietLogger())
	if err != nil {
		return err
	}
	defer j.Close()

	requests, err := j.ListRecent(ctx, *limit)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(out)
		for _, r := range requests {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tACTION\tMODE\tSTATUS\tDURATION\tTITLE")
	for _, r := range requests {
		status := r.Status
		if status == "" {
			status = "pending"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(r.CreatedAt), r.Action, orDash(r.Mode), status, orDash(r.Duration), r.Title)
	}
	return tw.Flush()
}

// runSay reads a text file through the host as if the extension had asked
// for a download, and prints each response as a JSON line.
func runSay(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("say", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	file := fs.String("file", "", "Text file to read, or - for stdin")
	title := fs.String("title", "", "Title used for the output file name")
	mode := fs.String("mode", protocol.ModeFull, "full, quick or deep")
	action := fs.String("action", protocol.ActionDownload, "generate or download")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("say needs -file")
	}
	if *action != protocol.ActionGenerate && *action != protocol.ActionDownload {
		return fmt.Errorf("say supports generate or download, not %q", *action)
	}
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return err
	}
	content, err := readArticle(*file)
	if err != nil {
		return err
	}
	if *title == "" {
		*title = strings.TrimSuffix(filepath.Base(*file), filepath.Ext(*file))
	}

	logger := quietLogger()
	synth, err := tts.New(cfg)
	if err != nil {
		return err
	}
	opts := host.Options{Config: cfg, Synth: synth, Logger: logger, Origin: "cli"}
	summarizer, err := llm.New(cfg.Summarizer, logger)
	if err != nil {
		return err
	}
	if summarizer != nil {
		opts.Summarizer = summarizer
	}
	j, err := journal.Open(ctx, cfg.Journal, logger)
	if err != nil {
		return err
	}
	defer j.Close()
	opts.Journal = j

	svc, err := host.NewService(opts)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	var last protocol.Response
	err = svc.Handle(ctx, protocol.Request{
		Action:  *action,
		Mode:    *mode,
		Article: protocol.Article{Title: *title, Content: content},
	}, func(resp protocol.Response) error {
		last = resp
		return enc.Encode(resp)
	})
	if err != nil {
		return err
	}
	if last.Status == protocol.StatusError {
		return fmt.Errorf("request failed: %s", last.Message)
	}
	return nil
}

func readArticle(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
