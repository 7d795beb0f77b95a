package monitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattjoyce/intake/internal/layout"
	"github.com/mattjoyce/intake/internal/outcome"
	"github.com/mattjoyce/intake/internal/source"
)

// restore reconciles the processing area left by a previous run. Sentinels
// are discarded. For local sources every item goes back to the input
// directory so detect starts from scratch; items claimed from a remote
// source have nowhere to go back to and are processed in place. A name
// already taken in the target directory gets a timestamp prefix.
func (t *Task[H]) restore(ctx context.Context) {
	entries, err := os.ReadDir(t.dirs.Process)
	if err != nil {
		t.logger.Error("Failed to read processing area", "error", err)
		return
	}
	_, remote := t.adapter.(source.Connector)

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		p := filepath.Join(t.dirs.Process, name)

		switch {
		case strings.HasSuffix(name, layout.LockSuffix):
			if err := t.retry.Remove(ctx, p); err != nil {
				t.handler.OnDeleteFailure(p, err)
				continue
			}
			t.logger.Info("Discarded lock sentinel from previous run", "lock", name)
		case strings.HasSuffix(name, layout.PartialSuffix):
			t.recoverPartial(ctx, p)
		case remote:
			t.logger.Info("Remote item left in processing area", "item", name)
		default:
			dst := outcome.Destination(t.dirs.Input, name, t.now())
			if err := t.retry.Rename(ctx, p, dst); err != nil {
				t.handler.OnMoveFailure(p, dst, err)
				continue
			}
			t.logger.Info("Returned item to input directory", "item", name, "path", dst)
		}
	}
}

// recoverPartial routes a download that was never renamed into place to the
// error area under its visible name. The remote copy may already be gone and
// the content may be incomplete.
func (t *Task[H]) recoverPartial(ctx context.Context, p string) {
	name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(p), "."), layout.PartialSuffix)
	if name == "" {
		t.logger.Warn("Partial download left in processing area", "path", p)
		return
	}
	dst := outcome.Destination(t.dirs.Process, name, t.now())
	if err := t.retry.Rename(ctx, p, dst); err != nil {
		t.handler.OnMoveFailure(p, dst, err)
		return
	}
	t.logger.Warn("Recovered partial download", "item", name, "path", dst)
	_, _ = t.router.Error(ctx, dst, &PartialError{Item: name})
}
