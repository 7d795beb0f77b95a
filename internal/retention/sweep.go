// Package retention deletes old content from a directory tree.
//
// A sweep walks depth first, visiting the entries of each directory oldest
// first. Plain files older than the retention age are deleted, and a
// subdirectory left empty after its walk is removed. The sweep stops when its
// wall-clock budget runs out or a delete fails; whatever is left is picked up
// by the next run.
package retention

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mattjoyce/intake/internal/fsutil"
)

// ErrInvalidOptions is wrapped by every validation failure.
var ErrInvalidOptions = errors.New("invalid retention options")

var (
	errBudget = errors.New("sweep budget exhausted")
	errDelete = errors.New("delete failed")
)

// Unbounded disables the depth limit.
const Unbounded = -1

// Options configure one sweep. MaxDepth 0 only looks at files directly in
// Directory.
type Options struct {
	Name            string
	Directory       string
	KeepFor         time.Duration
	MaxDepth        int
	MaxDuration     time.Duration
	DeleteEmptyDirs bool
}

// Handler is notified of delete failures.
type Handler interface {
	OnDeleteFailure(path string, err error)
}

// LogHandler logs delete failures.
type LogHandler struct {
	Logger *slog.Logger
}

func (h LogHandler) OnDeleteFailure(path string, err error) {
	l := h.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Error("Failed to delete expired content", "path", path, "error", err)
}

// Observer receives the progress of every completed sweep.
type Observer interface {
	SweepCompleted(name string, p Progress)
}

// Progress counts what one sweep did.
type Progress struct {
	Started      time.Time     `json:"started"`
	FilesDeleted int           `json:"files_deleted"`
	DirsDeleted  int           `json:"dirs_deleted"`
	BytesFreed   int64         `json:"bytes_freed"`
	Elapsed      time.Duration `json:"elapsed"`
	Aborted      bool          `json:"aborted"`
	Reason       string        `json:"reason,omitempty"`
}

// Sweep is a retention job over one directory tree.
type Sweep struct {
	opts      Options
	handler   Handler
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time
	retry     fsutil.Policy

	mu   sync.Mutex
	last Progress
}

// Option customises a Sweep.
type Option func(*Sweep)

func WithHandler(h Handler) Option { return func(s *Sweep) { s.handler = h } }

func WithLogger(l *slog.Logger) Option { return func(s *Sweep) { s.logger = l } }

// WithClock replaces time.Now for the cutoff and the budget.
func WithClock(now func() time.Time) Option { return func(s *Sweep) { s.now = now } }

func WithObservers(o ...Observer) Option {
	return func(s *Sweep) { s.observers = append(s.observers, o...) }
}

func WithRetry(p fsutil.Policy) Option { return func(s *Sweep) { s.retry = p } }

// New validates opts and returns the sweep.
func New(opts Options, options ...Option) (*Sweep, error) {
	s := &Sweep{
		opts:   opts,
		logger: slog.Default(),
		now:    time.Now,
		retry:  fsutil.DefaultPolicy,
	}
	for _, o := range options {
		o(s)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.logger = s.logger.With("sweep", opts.Name)
	if s.handler == nil {
		s.handler = LogHandler{Logger: s.logger}
	}
	return s, nil
}

func (s *Sweep) Name() string { return s.opts.Name }

// Validate checks the options.
func (s *Sweep) Validate() error {
	o := s.opts
	switch {
	case o.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidOptions)
	case o.Directory == "":
		return fmt.Errorf("%w: %s: directory is required", ErrInvalidOptions, o.Name)
	case o.KeepFor <= 0:
		return fmt.Errorf("%w: %s: retention age must be positive", ErrInvalidOptions, o.Name)
	case o.MaxDepth < Unbounded:
		return fmt.Errorf("%w: %s: max depth %d is below %d", ErrInvalidOptions, o.Name, o.MaxDepth, Unbounded)
	case o.MaxDuration < 0:
		return fmt.Errorf("%w: %s: max duration must not be negative", ErrInvalidOptions, o.Name)
	}
	return nil
}

// Last returns the progress of the most recent sweep.
func (s *Sweep) Last() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run performs one sweep and logs the outcome. Failures have already been
// reported to the handler.
func (s *Sweep) Run(ctx context.Context) {
	p, err := s.Sweep(ctx)
	attrs := []any{
		"files_deleted", p.FilesDeleted,
		"dirs_deleted", p.DirsDeleted,
		"bytes_freed", p.BytesFreed,
		"elapsed", p.Elapsed,
	}
	switch {
	case err != nil:
		s.logger.Error("Sweep failed", append(attrs, "error", err)...)
	case p.Aborted:
		s.logger.Warn("Sweep aborted", append(attrs, "reason", p.Reason)...)
	case p.FilesDeleted+p.DirsDeleted > 0:
		s.logger.Info("Sweep completed", attrs...)
	default:
		s.logger.Debug("Sweep completed", attrs...)
	}
}

// Sweep walks the tree once. The returned error is non-nil only when a
// directory could not be read; budget and delete aborts show in Progress.
func (s *Sweep) Sweep(ctx context.Context) (Progress, error) {
	w := walker{
		Sweep:  s,
		ctx:    ctx,
		start:  s.now(),
		cutoff: s.now().Add(-s.opts.KeepFor),
	}
	w.progress.Started = w.start

	var err error
	if _, statErr := os.Stat(s.opts.Directory); errors.Is(statErr, fs.ErrNotExist) {
		s.logger.Debug("Sweep directory does not exist yet", "directory", s.opts.Directory)
	} else {
		err = w.walk(s.opts.Directory, 0)
	}

	switch {
	case errors.Is(err, errBudget), errors.Is(err, errDelete), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		w.progress.Aborted = true
		w.progress.Reason = err.Error()
		err = nil
	case err != nil:
		w.progress.Aborted = true
		w.progress.Reason = err.Error()
	}
	w.progress.Elapsed = s.now().Sub(w.start)

	s.mu.Lock()
	s.last = w.progress
	s.mu.Unlock()
	for _, o := range s.observers {
		o.SweepCompleted(s.opts.Name, w.progress)
	}
	return w.progress, err
}

type walker struct {
	*Sweep
	ctx      context.Context
	start    time.Time
	cutoff   time.Time
	progress Progress
}

type entry struct {
	path    string
	modTime time.Time
	size    int64
	dir     bool
}

func (w *walker) check() error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	if w.opts.MaxDuration > 0 && w.now().Sub(w.start) >= w.opts.MaxDuration {
		return errBudget
	}
	return nil
}

func (w *walker) walk(dir string, depth int) error {
	entries, err := w.list(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := w.check(); err != nil {
			return err
		}
		if !e.dir {
			if !e.modTime.Before(w.cutoff) {
				continue
			}
			if err := w.remove(e.path); err != nil {
				return err
			}
			w.progress.FilesDeleted++
			w.progress.BytesFreed += e.size
			continue
		}

		if w.opts.MaxDepth != Unbounded && depth >= w.opts.MaxDepth {
			continue
		}
		if err := w.walk(e.path, depth+1); err != nil {
			return err
		}
		if !w.opts.DeleteEmptyDirs {
			continue
		}
		empty, err := isEmpty(e.path)
		if err != nil || !empty {
			continue
		}
		if err := w.remove(e.path); err != nil {
			return err
		}
		w.progress.DirsDeleted++
	}
	return nil
}

// list returns the plain files and directories of dir, oldest first.
// Symlinks and special files are never touched.
func (w *walker) list(dir string) ([]entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	out := make([]entry, 0, len(des))
	for _, de := range des {
		if !de.Type().IsRegular() && !de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Gone since the listing.
			continue
		}
		out = append(out, entry{
			path:    filepath.Join(dir, de.Name()),
			modTime: info.ModTime(),
			size:    info.Size(),
			dir:     de.IsDir(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].modTime.Equal(out[j].modTime) {
			return out[i].modTime.Before(out[j].modTime)
		}
		return out[i].path < out[j].path
	})
	return out, nil
}

func (w *walker) remove(path string) error {
	if err := w.retry.Remove(w.ctx, path); err != nil {
		w.handler.OnDeleteFailure(path, err)
		return fmt.Errorf("%w: %s", errDelete, path)
	}
	return nil
}

func isEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
