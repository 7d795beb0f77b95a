// Package monitor runs the detect, monitor and process cycle for one source.
//
// Detect registers new items, monitor promotes items whose metadata has been
// quiet for the stable time into the processing area, and process runs the
// processor against every item there that is not guarded by a lock sentinel.
// The registry is written only by the goroutine calling Run; Snapshot and
// Status hand out copies for concurrent readers.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mattjoyce/intake/internal/fsutil"
	"github.com/mattjoyce/intake/internal/layout"
	"github.com/mattjoyce/intake/internal/outcome"
	"github.com/mattjoyce/intake/internal/source"
	"github.com/mattjoyce/intake/internal/stability"
)

// Observer is told about cycle progress. Implementations must not block.
type Observer interface {
	ItemPromoted(monitor, item string)
	CycleCompleted(monitor string, stats CycleStats, tracked int)
}

// CycleStats counts what one Run did.
type CycleStats struct {
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Detected  int           `json:"detected"`
	Promoted  int           `json:"promoted"`
	Vanished  int           `json:"vanished"`
	TimedOut  int           `json:"timed_out"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Expired   int           `json:"expired_locks"`
	Aborted   bool          `json:"aborted"`
	Error     string        `json:"error,omitempty"`
}

// Task is one monitored source.
type Task[H any] struct {
	opts      Options
	dirs      layout.Dirs
	adapter   source.Adapter[H]
	model     *stability.Model[H]
	processor Processor
	router    *outcome.Router
	handler   outcome.Handler
	locks     source.LockProbe
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time
	retry     fsutil.Policy

	mu        sync.RWMutex
	registry  map[string]stability.TrackedItem[H]
	lastCycle CycleStats
}

// Option customises a Task.
type Option func(*config)

type config struct {
	logger    *slog.Logger
	now       func() time.Time
	handler   outcome.Handler
	locks     source.LockProbe
	observers []Observer
	sinks     []outcome.Sink
	retry     *fsutil.Policy
}

// WithLogger sets the task logger.
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// WithClock replaces time.Now for every timestamp the task takes.
func WithClock(now func() time.Time) Option { return func(c *config) { c.now = now } }

// WithHandler sets the local failure handler.
func WithHandler(h outcome.Handler) Option { return func(c *config) { c.handler = h } }

// WithLockProbe replaces the OS lock probe used in the processing area.
func WithLockProbe(p source.LockProbe) Option { return func(c *config) { c.locks = p } }

// WithObservers adds cycle observers.
func WithObservers(o ...Observer) Option {
	return func(c *config) { c.observers = append(c.observers, o...) }
}

// WithSinks adds outcome record sinks.
func WithSinks(s ...outcome.Sink) Option {
	return func(c *config) { c.sinks = append(c.sinks, s...) }
}

// WithRetry overrides the filesystem retry policy.
func WithRetry(p fsutil.Policy) Option { return func(c *config) { c.retry = &p } }

// New validates the task, prepares the working areas under dir and reconciles
// whatever a previous run left in the processing area.
func New[H any](opts Options, dir string, adapter source.Adapter[H], processor Processor, options ...Option) (*Task[H], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if adapter == nil {
		return nil, fmt.Errorf("%w: %s: source adapter is required", ErrInvalidOptions, opts.Name)
	}
	if processor == nil {
		return nil, fmt.Errorf("%w: %s: processor is required", ErrInvalidOptions, opts.Name)
	}
	if err := processor.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: processor: %v", ErrInvalidOptions, opts.Name, err)
	}

	cfg := config{logger: slog.Default(), now: time.Now, locks: source.FlockProbe{}}
	for _, o := range options {
		o(&cfg)
	}
	logger := cfg.logger.With("monitor", opts.Name)
	if cfg.handler == nil {
		cfg.handler = outcome.LogHandler{Logger: logger}
	}
	retry := fsutil.DefaultPolicy
	if cfg.retry != nil {
		retry = *cfg.retry
	}

	dirs, err := layout.For(dir)
	if err != nil {
		return nil, err
	}
	if err := dirs.Ensure(); err != nil {
		return nil, err
	}

	t := &Task[H]{
		opts:      opts,
		dirs:      dirs,
		adapter:   adapter,
		model:     stability.NewModel[H](adapter, cfg.now),
		processor: processor,
		handler:   cfg.handler,
		locks:     cfg.locks,
		observers: cfg.observers,
		logger:    logger,
		now:       cfg.now,
		retry:     retry,
		registry:  make(map[string]stability.TrackedItem[H]),
	}
	t.router = outcome.NewRouter(outcome.Options{
		Monitor:     opts.Name,
		ArchiveRoot: dirs.Archive,
		ErrorRoot:   dirs.Error,
		Archiving:   opts.Archiving,
		Digest:      opts.Digest,
	}, cfg.handler,
		outcome.WithClock(cfg.now),
		outcome.WithLogger(logger),
		outcome.WithRetry(retry),
		outcome.WithSinks(cfg.sinks...),
	)

	t.restore(context.Background())
	return t, nil
}

// Name identifies the task in the scheduler and the API.
func (t *Task[H]) Name() string { return t.opts.Name }

// Dirs are the working areas of the task.
func (t *Task[H]) Dirs() layout.Dirs { return t.dirs }

// Validate re-checks the options and the processor.
func (t *Task[H]) Validate() error {
	if err := t.opts.Validate(); err != nil {
		return err
	}
	return t.processor.Validate()
}

// Run executes one detect, monitor, process cycle. Per-item failures are
// handled inside the cycle and never returned.
func (t *Task[H]) Run(ctx context.Context) {
	stats := CycleStats{Started: t.now()}
	defer func() {
		stats.Duration = t.now().Sub(stats.Started)
		t.finish(stats)
	}()

	// An empty-directory sweep may have removed the working areas.
	if err := t.dirs.Ensure(); err != nil {
		t.abort(&stats, "prepare", err)
		return
	}
	if c, ok := t.adapter.(source.Connector); ok {
		if err := c.Connect(ctx); err != nil {
			t.abort(&stats, "connect", err)
			return
		}
		defer func() {
			if err := c.Disconnect(); err != nil {
				t.logger.Warn("Failed to disconnect from source", "error", err)
			}
		}()
	}

	if err := t.detect(ctx, &stats); err != nil {
		t.abort(&stats, "detect", err)
		return
	}
	if err := t.monitor(ctx, &stats); err != nil {
		t.abort(&stats, "monitor", err)
		return
	}
	t.process(ctx, &stats)
}

func (t *Task[H]) abort(stats *CycleStats, phase string, err error) {
	stats.Aborted = true
	stats.Error = err.Error()
	t.logger.Error("Cycle aborted", "phase", phase, "error", err)
}

func (t *Task[H]) finish(stats CycleStats) {
	t.mu.Lock()
	t.lastCycle = stats
	tracked := len(t.registry)
	t.mu.Unlock()

	for _, o := range t.observers {
		o.CycleCompleted(t.opts.Name, stats, tracked)
	}
	t.logger.Debug("Cycle completed",
		"detected", stats.Detected,
		"promoted", stats.Promoted,
		"processed", stats.Processed,
		"failed", stats.Failed,
		"tracked", tracked,
		"duration", stats.Duration,
	)
}

// detect registers items the registry does not know yet, oldest first, up to
// the per-cycle budget. Only remote failures abort the cycle; a local listing
// error still lets the processing area drain.
func (t *Task[H]) detect(ctx context.Context, stats *CycleStats) error {
	handles, err := t.adapter.List(ctx)
	if err != nil {
		if errors.Is(err, source.ErrRemote) {
			return err
		}
		t.logger.Error("Failed to list source", "error", err)
		return nil
	}
	for _, h := range handles {
		if t.opts.MaxItemsPerCycle > 0 && stats.Detected >= t.opts.MaxItemsPerCycle {
			t.logger.Debug("Detect budget reached", "budget", t.opts.MaxItemsPerCycle, "listed", len(handles))
			break
		}
		if t.tracked(t.adapter.Name(h)) {
			continue
		}
		item, err := t.model.Capture(ctx, h)
		if err != nil {
			if errors.Is(err, source.ErrRemote) {
				return err
			}
			t.logger.Warn("Failed to capture item", "item", t.adapter.Name(h), "error", err)
			continue
		}
		if !item.Exists {
			continue
		}
		t.put(item)
		stats.Detected++
		t.logger.Debug("Item detected", "item", item.Name, "size", item.Size)
	}
	return nil
}

// monitor evolves every tracked item and acts on the result.
func (t *Task[H]) monitor(ctx context.Context, stats *CycleStats) error {
	for _, prev := range t.ordered() {
		cur, err := t.model.Evolve(ctx, prev)
		if err != nil {
			if errors.Is(err, source.ErrRemote) {
				return err
			}
			t.logger.Warn("Failed to re-check item", "item", prev.Name, "error", err)
			continue
		}
		now := t.now()
		switch {
		case cur.IsStableFor(prev, t.opts.StableTime, now):
			if t.promote(ctx, cur) {
				stats.Promoted++
			}
		case !cur.Exists:
			t.drop(cur.Name)
			stats.Vanished++
			t.logger.Info("Item vanished before becoming stable", "item", cur.Name)
		case t.opts.MonitorTimeout > 0 && cur.Age(now) > t.opts.MonitorTimeout:
			t.expire(ctx, cur, now)
			stats.TimedOut++
		default:
			t.put(cur)
		}
	}
	return nil
}

// promote claims a stable item into the processing area. On failure the
// evolved snapshot stays tracked and the claim is retried next cycle.
func (t *Task[H]) promote(ctx context.Context, item stability.TrackedItem[H]) bool {
	dst := filepath.Join(t.dirs.Process, item.Name)
	if err := t.claim(ctx, item, dst); err != nil {
		t.put(item)
		return false
	}
	t.drop(item.Name)
	t.logger.Info("Item promoted", "item", item.Name, "size", item.Size, "quiet", item.Quiet(t.now()))
	for _, o := range t.observers {
		o.ItemPromoted(t.opts.Name, item.Name)
	}
	return true
}

// expire routes an item that never settled to the error area.
func (t *Task[H]) expire(ctx context.Context, item stability.TrackedItem[H], now time.Time) {
	t.drop(item.Name)
	cause := &TimeoutError{Item: item.Name, Watched: item.Age(now), Limit: t.opts.MonitorTimeout}
	t.logger.Warn("Monitor timeout exceeded", "item", item.Name, "error", cause)

	dst := filepath.Join(t.dirs.Process, item.Name)
	if err := t.claim(ctx, item, dst); err != nil {
		return
	}
	_, _ = t.router.Error(ctx, dst, cause)
}

func (t *Task[H]) claim(ctx context.Context, item stability.TrackedItem[H], dst string) error {
	err := t.adapter.Claim(ctx, item.Handle, dst)
	if err == nil {
		return nil
	}
	// Remote adapters report transfer failures to their own handler.
	if !errors.Is(err, source.ErrRemote) {
		t.handler.OnMoveFailure(item.Name, dst, err)
	}
	t.logger.Warn("Failed to claim item", "item", item.Name, "error", err)
	return err
}

func (t *Task[H]) tracked(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.registry[name]
	return ok
}

func (t *Task[H]) put(item stability.TrackedItem[H]) {
	t.mu.Lock()
	t.registry[item.Name] = item
	t.mu.Unlock()
}

func (t *Task[H]) drop(name string) {
	t.mu.Lock()
	delete(t.registry, name)
	t.mu.Unlock()
}

// ordered returns the tracked items oldest modification first.
func (t *Task[H]) ordered() []stability.TrackedItem[H] {
	t.mu.RLock()
	items := make([]stability.TrackedItem[H], 0, len(t.registry))
	for _, it := range t.registry {
		items = append(items, it)
	}
	t.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].ModTime.Equal(items[j].ModTime) {
			return items[i].ModTime.Before(items[j].ModTime)
		}
		return items[i].Name < items[j].Name
	})
	return items
}
