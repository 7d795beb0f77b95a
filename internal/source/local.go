package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattjoyce/intake/internal/fsutil"
	"github.com/mattjoyce/intake/internal/layout"
	"github.com/mattjoyce/intake/internal/stability"
)

// Local watches regular files directly inside one directory. Handles are
// absolute paths.
type Local struct {
	dir    string
	filter Filter
	probe  LockProbe
	retry  fsutil.Policy
	skip   reserved
}

var _ Adapter[string] = (*Local)(nil)

// NewLocal returns an adapter over dir. A nil filter accepts every file and a
// nil probe defaults to FlockProbe.
func NewLocal(dir string, filter Filter, probe LockProbe) *Local {
	if filter == nil {
		filter = AcceptAll{}
	}
	if probe == nil {
		probe = FlockProbe{}
	}
	return &Local{dir: dir, filter: filter, probe: probe, retry: fsutil.DefaultPolicy}
}

// SetLogger receives debug lines about files List ignores.
func (l *Local) SetLogger(logger *slog.Logger) { l.skip.setLogger(logger) }

// Dir is the watched directory.
func (l *Local) Dir() string { return l.dir }

func (l *Local) Name(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

func (l *Local) Stat(_ context.Context, path string) (stability.Metadata, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return stability.Metadata{}, nil
	}
	if err != nil {
		return stability.Metadata{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return stability.Metadata{}, nil
	}
	return stability.Metadata{
		Exists:  true,
		ModTime: fi.ModTime(),
		Size:    fi.Size(),
		Locked:  l.probe.Locked(path),
	}, nil
}

func (l *Local) List(_ context.Context) ([]string, error) {
	var skipped []string
	files, err := listFiles(l.dir, l.filter, func(name string) { skipped = append(skipped, name) })
	if err != nil {
		return nil, err
	}
	l.skip.report(l.dir, skipped)
	return files, nil
}

func (l *Local) Claim(ctx context.Context, path, dst string) error {
	return l.retry.Rename(ctx, path, dst)
}

// listFiles returns the regular, non-hidden, non-sidecar files in dir that
// match filter, oldest first. Visible sidecar names are passed to sidecar
// when it is set.
func listFiles(dir string, filter Filter, sidecar func(string)) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}
	var ls []Listing[string]
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || layout.IsHidden(name) {
			continue
		}
		if layout.IsSidecar(name) {
			if sidecar != nil {
				sidecar(name)
			}
			continue
		}
		if filter != nil && !filter.Match(name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		ls = append(ls, Listing[string]{
			Handle:  filepath.Join(dir, name),
			Name:    name,
			ModTime: info.ModTime(),
		})
	}
	return OldestFirst(ls), nil
}

// ListFiles exposes the local listing rules for other working areas.
func ListFiles(dir string) ([]string, error) {
	return listFiles(dir, nil, nil)
}
