// Package framelog keeps a SQLite record of capture pipeline outcomes:
// which cycles were loaded, which produced frames and which were
// suppressed, skipped, dropped as stale or failed.
//
// Log implements bridge.Recorder. Record only enqueues; a single writer
// goroutine does the inserts so the pipeline never waits on the disk.
package framelog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/webtex/bridge"
	"github.com/hazyhaar/webtex/dbopen"
	"github.com/hazyhaar/webtex/idgen"
)

// Schema is the capture log DDL.
const Schema = `
CREATE TABLE IF NOT EXISTS capture_events (
	event_id   TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	cycle      INTEGER NOT NULL,
	url        TEXT NOT NULL DEFAULT '',
	frame_id   TEXT NOT NULL DEFAULT '',
	bytes      INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_capture_events_cycle ON capture_events(cycle);
CREATE INDEX IF NOT EXISTS idx_capture_events_created ON capture_events(created_at);
`

// DefaultQueue is the number of events buffered ahead of the writer.
const DefaultQueue = 256

// ErrQueueFull is returned by Record when the writer is behind.
var ErrQueueFull = errors.New("framelog: queue full")

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("framelog: closed")

// Entry is a stored event.
type Entry struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	Cycle   uint64    `json:"cycle"`
	URL     string    `json:"url,omitempty"`
	FrameID string    `json:"frame_id,omitempty"`
	Bytes   int       `json:"bytes,omitempty"`
	Err     string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Log is a bridge.Recorder backed by SQLite.
type Log struct {
	db     *sql.DB
	ownsDB bool
	newID  idgen.Generator
	logger *slog.Logger
	queue  chan bridge.Event

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Log.
type Option func(*Log)

// WithIDGenerator sets the event id generator.
func WithIDGenerator(g idgen.Generator) Option { return func(l *Log) { l.newID = g } }

// WithLogger sets the logger used for write failures.
func WithLogger(lg *slog.Logger) Option { return func(l *Log) { l.logger = lg } }

// WithQueue sets the queue capacity.
func WithQueue(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.queue = make(chan bridge.Event, n)
		}
	}
}

// Open opens (creating if needed) the capture log at path.
func Open(path string, opts ...Option) (*Log, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("framelog: %w", err)
	}
	// Pragmas are per connection; keep the one Open configured.
	db.SetMaxOpenConns(1)
	l := New(db, opts...)
	l.ownsDB = true
	return l, nil
}

// New starts a Log on an open database. The schema must already exist.
// Close does not close db.
func New(db *sql.DB, opts ...Option) *Log {
	l := &Log{
		db:     db,
		newID:  idgen.Prefixed("cev_", idgen.Default),
		logger: slog.Default(),
		queue:  make(chan bridge.Event, DefaultQueue),
	}
	for _, o := range opts {
		o(l)
	}
	l.wg.Add(1)
	go l.writer()
	return l
}

// Record enqueues ev. It never blocks.
func (l *Log) Record(_ context.Context, ev bridge.Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	select {
	case l.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

func (l *Log) writer() {
	defer l.wg.Done()
	for ev := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := dbopen.Exec(ctx, l.db, `
			INSERT INTO capture_events (event_id, kind, cycle, url, frame_id, bytes, error, created_at)
			VALUES (?,?,?,?,?,?,?,?)`,
			l.newID(), ev.Kind, int64(ev.Cycle), ev.URL, ev.FrameID, ev.Bytes, ev.Err, ev.At.UnixMilli())
		cancel()
		if err != nil {
			l.logger.Error("framelog: insert failed", "error", err, "kind", ev.Kind, "cycle", ev.Cycle)
		}
	}
}

// Close drains the queue and stops the writer.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()
	if l.ownsDB {
		return l.db.Close()
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, kind, cycle, url, frame_id, bytes, error, created_at
		FROM capture_events ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("framelog: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e     Entry
			cycle int64
			ms    int64
		)
		if err := rows.Scan(&e.ID, &e.Kind, &cycle, &e.URL, &e.FrameID, &e.Bytes, &e.Err, &ms); err != nil {
			return nil, fmt.Errorf("framelog: scan: %w", err)
		}
		e.Cycle = uint64(cycle)
		e.At = time.UnixMilli(ms)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts returns the number of stored events per kind.
func (l *Log) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM capture_events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("framelog: counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[kind] = n
	}
	return out, rows.Err()
}

// Prune deletes events older than retention and returns how many went.
// A non-positive retention keeps everything.
func (l *Log) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := dbopen.Exec(ctx, l.db, `DELETE FROM capture_events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("framelog: prune: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		l.logger.Info("framelog: pruned", "rows", n, "retention", retention)
	}
	return n, nil
}
