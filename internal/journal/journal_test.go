package journal

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/audio-briefer/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTemp(t *testing.T, cfg config.JournalConfig) *Journal {
	t.Helper()
	cfg.Path = filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestOpenEphemeral(t *testing.T) {
	j, err := Open(context.Background(), config.JournalConfig{RetentionMode: "ephemeral"}, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	if err := j.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if err := j.StartRequest(context.Background(), Request{ID: "r1", Action: "generate"}); err != nil {
		t.Fatalf("start request: %v", err)
	}
	list, err := j.ListRecent(context.Background(), 10)
	if err != nil || list != nil {
		t.Fatalf("expected empty history, got %v, %v", list, err)
	}
}

func TestRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t, config.JournalConfig{RetentionMode: "persistent"})

	if err := j.StartRequest(ctx, Request{ID: "r1", Action: "download", Mode: "full", Title: "Hello", Origin: "chrome-extension://abc/"}); err != nil {
		t.Fatalf("start request: %v", err)
	}
	for _, status := range []string{"progress", "downloadComplete"} {
		if err := j.AppendEvent(ctx, Event{RequestID: "r1", Status: status}); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}
	if err := j.FinishRequest(ctx, "r1", Outcome{Status: "downloadComplete", Duration: "1:05", WordCount: 160}); err != nil {
		t.Fatalf("finish request: %v", err)
	}

	list, err := j.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 request, got %d", len(list))
	}
	got := list[0]
	if got.Status != "downloadComplete" || got.Duration != "1:05" || got.WordCount != 160 || got.Origin != "chrome-extension://abc/" {
		t.Fatalf("unexpected request %+v", got)
	}
	if got.CreatedAt.IsZero() || got.CompletedAt.IsZero() {
		t.Fatalf("expected timestamps, got %+v", got)
	}

	events, err := j.ListEvents(ctx, "r1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || events[0].Status != "progress" || events[1].Status != "downloadComplete" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestFinishUnknownRequest(t *testing.T) {
	j := openTemp(t, config.JournalConfig{RetentionMode: "persistent"})
	if err := j.FinishRequest(context.Background(), "missing", Outcome{Status: "error"}); err == nil {
		t.Fatal("expected error for unknown request")
	}
}

func TestPruneByDaysAndCount(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t, config.JournalConfig{RetentionMode: "persistent", RetentionDays: 1, MaxRequests: 2})

	j.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := j.StartRequest(ctx, Request{ID: "old", Action: "generate"}); err != nil {
		t.Fatalf("start request: %v", err)
	}
	if err := j.AppendEvent(ctx, Event{RequestID: "old", Status: "progress"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	j.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	for _, id := range []string{"a", "b", "c"} {
		if err := j.StartRequest(ctx, Request{ID: id, Action: "stream"}); err != nil {
			t.Fatalf("start request: %v", err)
		}
	}
	if err := j.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	list, err := j.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		t.Fatalf("unexpected requests after prune: %+v", list)
	}
	events, err := j.ListEvents(ctx, "old", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected events of pruned request to cascade")
	}
}

func TestRequestsTableHoldsNoAudioLocation(t *testing.T) {
	j := openTemp(t, config.JournalConfig{RetentionMode: "persistent"})
	rows, err := j.db.QueryContext(context.Background(), `SELECT name FROM pragma_table_info('requests')`)
	if err != nil {
		t.Fatalf("table info: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if strings.Contains(name, "path") {
			t.Fatalf("requests table should not track audio files, found column %q", name)
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
}
