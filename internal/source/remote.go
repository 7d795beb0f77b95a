package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/mattjoyce/intake/internal/fsutil"
	"github.com/mattjoyce/intake/internal/layout"
	"github.com/mattjoyce/intake/internal/stability"
)

// ErrRemote marks connection, listing and transfer failures against a remote
// server. The cycle that hit one aborts and the next scheduled run retries.
var ErrRemote = errors.New("remote protocol failure")

// RemoteError wraps a failed remote operation.
type RemoteError struct {
	Op   string
	Path string
	Err  error
}

func (e *RemoteError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// RemoteEntry describes one file on a remote server.
type RemoteEntry struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// RemoteClient is what a transport has to offer for a remote directory to be
// monitored. Stat returns an error wrapping fs.ErrNotExist for missing entries.
type RemoteClient interface {
	Connect(ctx context.Context) error
	Disconnect() error
	List(ctx context.Context, dir string) ([]RemoteEntry, error)
	Stat(ctx context.Context, remotePath string) (RemoteEntry, error)
	Fetch(ctx context.Context, remotePath string, w io.Writer) error
	Delete(ctx context.Context, remotePath string) error
}

// RemoteHandler is told about transfer failures during a claim.
type RemoteHandler interface {
	OnFetchFailure(remotePath, localPath string, err error)
	OnDeleteFailure(remotePath string, err error)
}

// LogRemoteHandler reports remote failures to a logger.
type LogRemoteHandler struct {
	Logger *slog.Logger
}

func (h LogRemoteHandler) OnFetchFailure(remotePath, localPath string, err error) {
	h.logger().Error("Failed to fetch remote file", "remote_path", remotePath, "local_path", localPath, "error", err)
}

func (h LogRemoteHandler) OnDeleteFailure(remotePath string, err error) {
	h.logger().Error("Failed to delete remote file", "remote_path", remotePath, "error", err)
}

func (h LogRemoteHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// Remote adapts a RemoteClient to the monitor. Handles are remote paths.
type Remote struct {
	client  RemoteClient
	dir     string
	filter  Filter
	handler RemoteHandler
	retry   fsutil.Policy
	now     func() time.Time
	skip    reserved
}

var (
	_ Adapter[string] = (*Remote)(nil)
	_ Connector       = (*Remote)(nil)
)

// NewRemote watches dir on the server behind client.
func NewRemote(client RemoteClient, dir string, filter Filter, handler RemoteHandler) *Remote {
	if filter == nil {
		filter = AcceptAll{}
	}
	if handler == nil {
		handler = LogRemoteHandler{}
	}
	return &Remote{client: client, dir: dir, filter: filter, handler: handler, retry: fsutil.DefaultPolicy, now: time.Now}
}

// SetLogger receives debug lines about files List ignores.
func (r *Remote) SetLogger(logger *slog.Logger) { r.skip.setLogger(logger) }

func (r *Remote) Connect(ctx context.Context) error {
	if err := r.client.Connect(ctx); err != nil {
		return &RemoteError{Op: "connect", Err: err}
	}
	return nil
}

func (r *Remote) Disconnect() error {
	return r.client.Disconnect()
}

func (r *Remote) Name(remotePath string) string {
	if remotePath == "" {
		return ""
	}
	return path.Base(remotePath)
}

func (r *Remote) Stat(ctx context.Context, remotePath string) (stability.Metadata, error) {
	e, err := r.client.Stat(ctx, remotePath)
	if errors.Is(err, fs.ErrNotExist) {
		return stability.Metadata{}, nil
	}
	if err != nil {
		return stability.Metadata{}, &RemoteError{Op: "stat", Path: remotePath, Err: err}
	}
	return stability.Metadata{Exists: true, ModTime: e.ModTime, Size: e.Size}, nil
}

func (r *Remote) List(ctx context.Context) ([]string, error) {
	entries, err := r.client.List(ctx, r.dir)
	if err != nil {
		return nil, &RemoteError{Op: "list", Path: r.dir, Err: err}
	}
	ls := make([]Listing[string], 0, len(entries))
	var skipped []string
	for _, e := range entries {
		if layout.IsHidden(e.Name) {
			continue
		}
		if layout.IsSidecar(e.Name) {
			skipped = append(skipped, e.Name)
			continue
		}
		if !r.filter.Match(e.Name) {
			continue
		}
		p := e.Path
		if p == "" {
			p = path.Join(r.dir, e.Name)
		}
		ls = append(ls, Listing[string]{Handle: p, Name: e.Name, ModTime: e.ModTime})
	}
	r.skip.report(r.dir, skipped)
	return OldestFirst(ls), nil
}

// Claim downloads the entry into a hidden partial file next to dst, deletes
// the remote entry, then renames the partial file to dst. Local state only
// changes once both remote steps have succeeded. If dst was taken meanwhile
// the file lands beside it under a timestamp prefix.
func (r *Remote) Claim(ctx context.Context, remotePath, dst string) error {
	if fsutil.Exists(dst) {
		return fmt.Errorf("claim %s: destination %s: %w", remotePath, dst, fs.ErrExist)
	}
	partial := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+layout.PartialSuffix)

	if err := r.fetch(ctx, remotePath, partial); err != nil {
		_ = os.Remove(partial)
		r.handler.OnFetchFailure(remotePath, dst, err)
		return &RemoteError{Op: "fetch", Path: remotePath, Err: err}
	}
	if err := r.client.Delete(ctx, remotePath); err != nil {
		_ = os.Remove(partial)
		r.handler.OnDeleteFailure(remotePath, err)
		return &RemoteError{Op: "delete", Path: remotePath, Err: err}
	}
	err := r.retry.Rename(ctx, partial, dst)
	if errors.Is(err, fs.ErrExist) {
		// Something took dst during the transfer. The remote copy is gone, so
		// keep the download visible under a prefixed name.
		alt := filepath.Join(filepath.Dir(dst), layout.CollisionPrefix(r.now())+filepath.Base(dst))
		if err = r.retry.Rename(ctx, partial, alt); err == nil {
			r.skip.log().Warn("Claimed remote file under a prefixed name", "remote_path", remotePath, "path", alt)
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("remote file %s was kept at %s: %w", remotePath, partial, err)
	}
	return nil
}

func (r *Remote) fetch(ctx context.Context, remotePath, local string) error {
	// A partial file left by an interrupted run is stale.
	_ = os.Remove(local)
	f, err := os.OpenFile(local, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if err := r.client.Fetch(ctx, remotePath, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
