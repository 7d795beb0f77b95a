package monitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/mattjoyce/intake/internal/fsutil"
	"github.com/mattjoyce/intake/internal/layout"
	"github.com/mattjoyce/intake/internal/source"
)

// Scratch keys set for every item before the processor runs.
const (
	ScratchMonitor = "monitor"
	ScratchStarted = "started"
)

// process runs the processor over the processing area. Items guarded by a
// live sentinel are skipped; expired sentinels are reconciled.
func (t *Task[H]) process(ctx context.Context, stats *CycleStats) {
	paths, err := source.ListFiles(t.dirs.Process)
	if err != nil {
		t.logger.Error("Failed to list processing area", "error", err)
		return
	}

	started := t.now()
	next := true
	for _, p := range paths {
		lock := layout.LockPath(p)
		if !fsutil.Exists(lock) {
			if !next {
				continue
			}
			ok, processed := t.processOne(ctx, p, stats)
			if processed {
				stats.Processed++
			}
			next = ok && t.withinBudget(started)
			if !next {
				t.logger.Info("Stopping processing for this cycle", "remaining_budget", t.remaining(started))
			}
			continue
		}
		if t.reconcile(ctx, p, lock) {
			stats.Expired++
		}
	}
}

func (t *Task[H]) withinBudget(started time.Time) bool {
	if t.opts.MaxProcessingTime <= 0 {
		return true
	}
	return t.now().Sub(started) < t.opts.MaxProcessingTime
}

func (t *Task[H]) remaining(started time.Time) time.Duration {
	if t.opts.MaxProcessingTime <= 0 {
		return 0
	}
	return t.opts.MaxProcessingTime - t.now().Sub(started)
}

// processOne holds the sentinel for path while the processor runs and the
// item is routed. It returns whether to continue and whether the processor ran.
func (t *Task[H]) processOne(ctx context.Context, path string, stats *CycleStats) (bool, bool) {
	lock := layout.LockPath(path)
	if err := t.createSentinel(lock); err != nil {
		if errors.Is(err, fs.ErrExist) {
			t.logger.Debug("Item claimed by another worker", "item", filepath.Base(path))
		} else {
			t.logger.Error("Failed to create lock sentinel", "lock", lock, "error", err)
		}
		return true, false
	}
	defer func() {
		if err := t.retry.Remove(ctx, lock); err != nil {
			t.handler.OnDeleteFailure(lock, err)
		}
	}()

	item := &Item{
		Monitor: t.opts.Name,
		Name:    filepath.Base(path),
		Path:    path,
		Scratch: map[string]any{ScratchMonitor: t.opts.Name},
	}
	start := t.now()
	item.Scratch[ScratchStarted] = start

	err := t.invoke(ctx, item)
	if err == nil {
		_, _ = t.router.Archive(ctx, path)
		return t.hook(item, func() bool { return t.processor.OnSuccess(ctx, item, start) }), true
	}

	stats.Failed++
	t.logger.Warn("Processing failed", "item", item.Name, "error", err)
	_, _ = t.router.Error(ctx, path, err)
	return t.hook(item, func() bool { return t.processor.OnError(ctx, item, start, err) }), true
}

func (t *Task[H]) createSentinel(lock string) error {
	f, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	_, werr := fmt.Fprintf(f, "pid=%d\nmonitor=%s\ncreated=%s\n", os.Getpid(), t.opts.Name, t.now().Format(time.RFC3339Nano))
	cerr := f.Close()
	return errors.Join(werr, cerr)
}

// invoke runs the pre-hook and the main hook, turning a panic into a
// ProcessingError carrying the stack.
func (t *Task[H]) invoke(ctx context.Context, item *Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ProcessingError{Err: fmt.Errorf("processor panic: %v", r), Stack: debug.Stack()}
		}
	}()
	t.processor.BeforeProcess(ctx, item)
	return t.processor.Process(ctx, item)
}

// hook runs a continue-or-stop hook. A panicking hook continues the cycle.
func (t *Task[H]) hook(item *Item, fn func() bool) (next bool) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Processor hook panicked", "item", item.Name, "panic", r)
			next = true
		}
	}()
	return fn()
}

// reconcile looks at an item whose sentinel exists. A sentinel older than the
// lock timeout, on an item no process holds, is discarded and the item goes
// to error. It reports whether the item was routed.
func (t *Task[H]) reconcile(ctx context.Context, path, lock string) bool {
	if t.opts.LockTimeout <= 0 {
		return false
	}
	fi, err := os.Stat(lock)
	if err != nil {
		return false
	}
	age := t.now().Sub(fi.ModTime())
	if age <= t.opts.LockTimeout {
		return false
	}
	name := filepath.Base(path)
	if t.locks.Locked(path) {
		t.logger.Info("Lock sentinel expired but item is still locked", "item", name, "age", age)
		return false
	}
	if err := t.retry.Remove(ctx, lock); err != nil {
		t.handler.OnDeleteFailure(lock, err)
		return false
	}
	cause := &LockExpiredError{Lock: lock, Item: path, Age: age, Timeout: t.opts.LockTimeout}
	t.logger.Warn("Abandoned lock sentinel discarded", "item", name, "age", age)
	_, _ = t.router.Error(ctx, path, cause)
	return true
}
