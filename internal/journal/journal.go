// Package journal keeps an append-only SQLite record of the requests the host
// has served and the status responses each one produced.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/loqalabs/audio-briefer/internal/config"
	_ "modernc.org/sqlite"
)

// Fixed width keeps stored timestamps lexically ordered.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Request is one line of history.
type Request struct {
	ID          string
	Action      string
	Mode        string
	Title       string
	URL         string
	Origin      string
	WordCount   int
	Status      string
	Message     string
	Duration    string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Event is a status response recorded against a request.
type Event struct {
	ID        int64
	RequestID string
	Status    string
	Message   string
	CreatedAt time.Time
}

// Outcome closes a request.
type Outcome struct {
	Status    string
	Message   string
	Duration  string
	WordCount int
}

// Journal wraps the SQLite database. With retention_mode=ephemeral every method
// is a no-op.
type Journal struct {
	db    *sql.DB
	cfg   config.JournalConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the journal according to config.
func Open(ctx context.Context, cfg config.JournalConfig, log *slog.Logger) (*Journal, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Journal{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	j := &Journal{db: db, cfg: cfg, log: log, clock: time.Now}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := j.vacuum(ctx); err != nil {
			log.Warn("journal vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := j.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slog.String("error", err.Error()))
	}
	return j, nil
}

func (j *Journal) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS requests (
    request_id TEXT PRIMARY KEY,
    action TEXT NOT NULL,
    mode TEXT,
    title TEXT,
    url TEXT,
    origin TEXT,
    word_count INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'pending',
    message TEXT,
    duration TEXT,
    created_at TEXT NOT NULL,
    completed_at TEXT
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    status TEXT NOT NULL,
    message TEXT,
    created_at TEXT NOT NULL,
    FOREIGN KEY(request_id) REFERENCES requests(request_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_requests_created ON requests(created_at);
CREATE INDEX IF NOT EXISTS idx_events_request ON events(request_id, id);
`
	_, err := j.db.ExecContext(ctx, ddl)
	return err
}

func (j *Journal) vacuum(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, "VACUUM")
	return err
}

func (j *Journal) disabled() bool {
	return j.cfg.RetentionMode == "ephemeral" || j.db == nil
}

func (j *Journal) now() string {
	return j.clock().UTC().Format(timeLayout)
}

// Close releases underlying resources.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// StartRequest records a request as pending.
func (j *Journal) StartRequest(ctx context.Context, r Request) error {
	if j.disabled() {
		return nil
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO requests(request_id, action, mode, title, url, origin, word_count, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Action, r.Mode, r.Title, r.URL, r.Origin, r.WordCount, j.now())
	return err
}

// AppendEvent writes a status response for a request.
func (j *Journal) AppendEvent(ctx context.Context, evt Event) error {
	if j.disabled() {
		return nil
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events(request_id, status, message, created_at) VALUES(?, ?, ?, ?)`,
		evt.RequestID, evt.Status, evt.Message, j.now())
	return err
}

// FinishRequest stores the terminal outcome of a request.
func (j *Journal) FinishRequest(ctx context.Context, requestID string, out Outcome) error {
	if j.disabled() {
		return nil
	}
	res, err := j.db.ExecContext(ctx,
		`UPDATE requests SET status = ?, message = ?, duration = ?,
		 word_count = CASE WHEN ? > 0 THEN ? ELSE word_count END, completed_at = ?
		 WHERE request_id = ?`,
		out.Status, out.Message, out.Duration, out.WordCount, out.WordCount, j.now(), requestID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("request %s not found", requestID)
	}
	return nil
}

// ListRecent returns up to limit requests, newest first.
func (j *Journal) ListRecent(ctx context.Context, limit int) ([]Request, error) {
	if j.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT request_id, action, COALESCE(mode, ''), COALESCE(title, ''), COALESCE(url, ''), COALESCE(origin, ''),
		        word_count, status, COALESCE(message, ''), COALESCE(duration, ''),
		        created_at, COALESCE(completed_at, '')
		 FROM requests ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		var r Request
		var created, completed string
		if err := rows.Scan(&r.ID, &r.Action, &r.Mode, &r.Title, &r.URL, &r.Origin,
			&r.WordCount, &r.Status, &r.Message, &r.Duration, &created, &completed); err != nil {
			return nil, err
		}
		r.CreatedAt = parseTime(created)
		r.CompletedAt = parseTime(completed)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListEvents retrieves up to limit events for a request in the order written.
func (j *Journal) ListEvents(ctx context.Context, requestID string, limit int) ([]Event, error) {
	if j.disabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, request_id, status, COALESCE(message, ''), created_at
		 FROM events WHERE request_id = ? ORDER BY id ASC LIMIT ?`, requestID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var created string
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Status, &e.Message, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(created)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies configured retention (called on startup and can be scheduled).
func (j *Journal) Prune(ctx context.Context) (err error) {
	if j.disabled() {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if j.cfg.RetentionDays > 0 {
		cutoff := j.clock().Add(-time.Duration(j.cfg.RetentionDays) * 24 * time.Hour).UTC().Format(timeLayout)
		if _, err = tx.ExecContext(ctx, `DELETE FROM requests WHERE created_at < ?`, cutoff); err != nil {
			return err
		}
	}
	if j.cfg.MaxRequests > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM requests WHERE request_id IN (
			SELECT request_id FROM requests ORDER BY created_at DESC, rowid DESC LIMIT -1 OFFSET ?
		)`, j.cfg.MaxRequests)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Ensure checks that an ephemeral journal holds no database.
func (j *Journal) Ensure() error {
	if j.cfg.RetentionMode == "ephemeral" && j.db != nil {
		return errors.New("ephemeral journal should not have database connection")
	}
	return nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ts, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}
