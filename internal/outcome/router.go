package outcome

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/mattjoyce/intake/internal/fsutil"
	"github.com/mattjoyce/intake/internal/layout"
)

// Options configures a Router.
type Options struct {
	Monitor     string
	ArchiveRoot string
	ErrorRoot   string
	// Archiving false deletes successful items instead of archiving them.
	Archiving bool
	// Digest adds a BLAKE3 content hash to every record.
	Digest bool
}

// Router moves items into date-partitioned archive and error areas.
type Router struct {
	opts    Options
	handler Handler
	sinks   []Sink
	logger  *slog.Logger
	now     func() time.Time
	retry   fsutil.Policy
}

// Option customises a Router.
type Option func(*Router)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithSinks appends record sinks.
func WithSinks(sinks ...Sink) Option {
	return func(r *Router) { r.sinks = append(r.sinks, sinks...) }
}

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithRetry overrides the rename/remove retry policy.
func WithRetry(p fsutil.Policy) Option {
	return func(r *Router) { r.retry = p }
}

// NewRouter returns a router. A nil handler logs and retains.
func NewRouter(opts Options, handler Handler, options ...Option) *Router {
	r := &Router{
		opts:   opts,
		logger: slog.Default(),
		now:    time.Now,
		retry:  fsutil.DefaultPolicy,
	}
	for _, o := range options {
		o(r)
	}
	if handler == nil {
		handler = LogHandler{Logger: r.logger}
	}
	r.handler = handler
	return r
}

// Archive places a successfully processed item. With archiving disabled the
// item is deleted instead.
func (r *Router) Archive(ctx context.Context, path string) (Record, error) {
	rec := r.newRecord(path)

	if !r.opts.Archiving {
		if err := r.retry.Remove(ctx, path); err != nil {
			r.handler.OnDeleteFailure(path, err)
			return rec, err
		}
		rec.Kind = KindDeleted
		r.emit(ctx, rec)
		return rec, nil
	}

	dst, err := r.place(ctx, path, r.opts.ArchiveRoot)
	if err != nil {
		return rec, err
	}
	rec.Kind = KindArchived
	rec.Path = dst
	r.emit(ctx, rec)
	return rec, nil
}

// Error places a failed item with a diagnostic sidecar describing cause.
func (r *Router) Error(ctx context.Context, path string, cause error) (Record, error) {
	rec := r.newRecord(path)
	rec.Kind = KindError
	if cause != nil {
		rec.Detail = cause.Error()
	}

	dst, err := r.place(ctx, path, r.opts.ErrorRoot)
	if err != nil {
		return rec, err
	}
	rec.Path = dst

	diag := dst + layout.DiagnosticSuffix
	if err := writeExclusive(diag, []byte(r.diagnostic(rec, cause))); err != nil {
		r.logger.Error("Failed to write diagnostic", "path", diag, "error", err)
	} else {
		rec.DiagnosticPath = diag
	}

	rec.Retained = r.handler.RetainError(dst, diag, cause)
	if !rec.Retained {
		written := []string{dst}
		if rec.DiagnosticPath != "" {
			written = append(written, diag)
		}
		for _, p := range written {
			if err := r.retry.Remove(ctx, p); err != nil {
				r.handler.OnDeleteFailure(p, err)
			}
		}
		rec.Path = ""
		rec.DiagnosticPath = ""
	}
	r.emit(ctx, rec)
	return rec, nil
}

// place moves path into root/<date>/, prefixing the name with a timestamp when
// the plain name is taken.
func (r *Router) place(ctx context.Context, path, root string) (string, error) {
	now := r.now()
	dir := layout.Dated(root, now)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.handler.OnMoveFailure(path, dir, err)
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	dst := Destination(dir, filepath.Base(path), now)
	if err := r.retry.Rename(ctx, path, dst); err != nil {
		r.handler.OnMoveFailure(path, dst, err)
		return "", err
	}
	return dst, nil
}

// Destination is dir/name, or dir/<yyyyMMdd_HHmmssSSS_>name when dir/name or
// its diagnostic sidecar is already taken.
func Destination(dir, name string, now time.Time) string {
	dst := filepath.Join(dir, name)
	if !fsutil.Exists(dst) && !fsutil.Exists(dst+layout.DiagnosticSuffix) {
		return dst
	}
	return filepath.Join(dir, layout.CollisionPrefix(now)+name)
}

// writeExclusive creates path with data and fails if path exists.
func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (r *Router) newRecord(path string) Record {
	rec := Record{
		ID:      uuid.NewString(),
		Monitor: r.opts.Monitor,
		Item:    filepath.Base(path),
		At:      r.now(),
	}
	if fi, err := os.Stat(path); err == nil {
		rec.Size = fi.Size()
	}
	if r.opts.Digest {
		sum, err := Digest(path)
		if err != nil {
			r.logger.Warn("Failed to hash item", "path", path, "error", err)
		}
		rec.Digest = sum
	}
	return rec
}

func (r *Router) diagnostic(rec Record, cause error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "monitor: %s\n", rec.Monitor)
	fmt.Fprintf(&b, "item: %s\n", rec.Item)
	fmt.Fprintf(&b, "time: %s\n", rec.At.Format(time.RFC3339Nano))
	if cause == nil {
		return b.String()
	}
	fmt.Fprintf(&b, "error: %s\n", cause.Error())
	var d Diagnoser
	if errors.As(cause, &d) {
		if detail := d.Diagnostic(); detail != "" {
			b.WriteString("\n")
			b.WriteString(detail)
			if !strings.HasSuffix(detail, "\n") {
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

func (r *Router) emit(ctx context.Context, rec Record) {
	r.logger.Info("Item routed", "item", rec.Item, "kind", rec.Kind, "path", rec.Path)
	for _, s := range r.sinks {
		if err := s.Accept(ctx, rec); err != nil {
			r.logger.Warn("Outcome sink failed", "item", rec.Item, "kind", rec.Kind, "error", err)
		}
	}
}

// Digest returns the hex BLAKE3-256 of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
