// Package journal keeps a SQLite history of every routed item.
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

	_ "modernc.org/sqlite"

	"github.com/mattjoyce/intake/internal/outcome"
)

// DefaultLimit caps Recent when no limit is given.
const DefaultLimit = 100

// timeLayout is fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS outcomes (
  id              TEXT PRIMARY KEY,
  monitor         TEXT NOT NULL,
  item            TEXT NOT NULL,
  kind            TEXT NOT NULL,
  path            TEXT,
  diagnostic_path TEXT,
  detail          TEXT,
  size            INTEGER NOT NULL DEFAULT 0,
  digest          TEXT,
  retained        INTEGER NOT NULL DEFAULT 0,
  at              TEXT NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS outcomes_monitor_at_idx ON outcomes(monitor, at);`,
	`CREATE INDEX IF NOT EXISTS outcomes_at_idx ON outcomes(at);`,
}

// Journal is an outcome.Sink backed by SQLite.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ outcome.Sink = (*Journal)(nil)

// Option customises a Journal.
type Option func(*Journal)

func WithLogger(l *slog.Logger) Option { return func(j *Journal) { j.logger = l } }

// WithClock replaces time.Now for pruning.
func WithClock(now func() time.Time) Option { return func(j *Journal) { j.now = now } }

// Open opens, creating if needed, the journal database at path.
func Open(ctx context.Context, path string, opts ...Option) (*Journal, error) {
	return open(ctx, path, detectFilesystemType, opts...)
}

func open(ctx context.Context, path string, detect func(string) (string, error), opts ...Option) (*Journal, error) {
	if err := checkLocalFilesystem(path, detect); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// One writer; SQLite serialises anyway.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{"PRAGMA busy_timeout = 5000;", "PRAGMA journal_mode = WAL;"} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(pctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap journal: %w", err)
		}
	}

	j := &Journal{db: db, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(j)
	}
	return j, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Accept stores rec. A record with an id already stored is ignored.
func (j *Journal) Accept(ctx context.Context, rec outcome.Record) error {
	_, err := j.db.ExecContext(ctx, `INSERT OR IGNORE INTO outcomes
  (id, monitor, item, kind, path, diagnostic_path, detail, size, digest, retained, at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.ID, rec.Monitor, rec.Item, string(rec.Kind), rec.Path, rec.DiagnosticPath,
		rec.Detail, rec.Size, rec.Digest, rec.Retained, rec.At.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("journal outcome %s: %w", rec.ID, err)
	}
	return nil
}

// Query filters Recent. Empty fields match everything.
type Query struct {
	Monitor string
	Kind    outcome.Kind
	Limit   int
}

// Recent returns the newest matching records first.
func (j *Journal) Recent(ctx context.Context, q Query) ([]outcome.Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := j.db.QueryContext(ctx, `SELECT id, monitor, item, kind, path, diagnostic_path, detail, size, digest, retained, at
FROM outcomes
WHERE (? = '' OR monitor = ?) AND (? = '' OR kind = ?)
ORDER BY at DESC, id DESC
LIMIT ?;`, q.Monitor, q.Monitor, string(q.Kind), string(q.Kind), limit)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	out := []outcome.Record{}
	for rows.Next() {
		var (
			rec                        outcome.Record
			kind, at                   string
			path, diag, detail, digest sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Monitor, &rec.Item, &kind, &path, &diag, &detail, &rec.Size, &digest, &rec.Retained, &at); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		rec.Kind = outcome.Kind(kind)
		rec.Path = path.String
		rec.DiagnosticPath = diag.String
		rec.Detail = detail.String
		rec.Digest = digest.String
		if rec.At, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parse outcome time %q: %w", at, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Counts returns the number of records per kind for monitor, or for every
// monitor when monitor is empty.
func (j *Journal) Counts(ctx context.Context, monitor string) (map[outcome.Kind]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM outcomes WHERE (? = '' OR monitor = ?) GROUP BY kind;`, monitor, monitor)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()

	out := map[outcome.Kind]int{}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[outcome.Kind(kind)] = n
	}
	return out, rows.Err()
}

// Prune deletes records older than keepFor and returns how many went.
func (j *Journal) Prune(ctx context.Context, keepFor time.Duration) (int64, error) {
	if keepFor <= 0 {
		return 0, errors.New("journal prune: retention must be positive")
	}
	cutoff := j.now().Add(-keepFor).UTC().Format(timeLayout)
	res, err := j.db.ExecContext(ctx, `DELETE FROM outcomes WHERE at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune outcomes: %w", err)
	}
	return res.RowsAffected()
}

// Pruner runs Prune as a scheduler job.
type Pruner struct {
	Journal *Journal
	KeepFor time.Duration
}

func (p Pruner) Name() string { return "journal-prune" }

func (p Pruner) Validate() error {
	if p.Journal == nil {
		return errors.New("journal is required")
	}
	if p.KeepFor <= 0 {
		return errors.New("keep_for must be positive")
	}
	return nil
}

func (p Pruner) Run(ctx context.Context) {
	n, err := p.Journal.Prune(ctx, p.KeepFor)
	if err != nil {
		p.Journal.logger.Error("Failed to prune journal", "error", err)
		return
	}
	if n > 0 {
		p.Journal.logger.Info("Pruned journal", "deleted", n, "keep_for", p.KeepFor)
	}
}
