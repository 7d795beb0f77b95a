// Package source defines how the monitor talks to the place items arrive:
// listing, stat'ing and claiming them. Local directories are handled here;
// FTP and SFTP plug in through RemoteClient.
package source

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mattjoyce/intake/internal/stability"
)

// Adapter is the capability set the monitor needs from a transport.
type Adapter[H any] interface {
	stability.Probe[H]
	// List returns the items currently at the source, oldest modification
	// time first with ties broken by name.
	List(ctx context.Context) ([]H, error)
	// Claim moves the item out of the source so it exists at the local path
	// dst. On error the source still holds the item and dst does not exist.
	Claim(ctx context.Context, handle H, dst string) error
}

// Connector is implemented by adapters that hold a session per cycle.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect() error
}

// Listing is a handle with the attributes List orders by.
type Listing[H any] struct {
	Handle  H
	Name    string
	ModTime time.Time
}

// OldestFirst sorts ls by ModTime, then Name, and returns the handles.
func OldestFirst[H any](ls []Listing[H]) []H {
	sort.SliceStable(ls, func(i, j int) bool {
		if !ls[i].ModTime.Equal(ls[j].ModTime) {
			return ls[i].ModTime.Before(ls[j].ModTime)
		}
		return ls[i].Name < ls[j].Name
	})
	out := make([]H, len(ls))
	for i, l := range ls {
		out[i] = l.Handle
	}
	return out
}

// reserved reports source files whose names end in a working-area suffix.
// Such files are never listed, so each one is logged once while it stays at
// the source.
type reserved struct {
	mu     sync.Mutex
	logger *slog.Logger
	seen   map[string]struct{}
}

func (r *reserved) setLogger(l *slog.Logger) {
	r.mu.Lock()
	r.logger = l
	r.mu.Unlock()
}

func (r *reserved) log() *slog.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.logger == nil {
		return slog.Default()
	}
	return r.logger
}

func (r *reserved) report(dir string, names []string) {
	logger := r.log()
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[string]struct{}, len(names))
	for _, n := range names {
		next[n] = struct{}{}
		if _, ok := r.seen[n]; ok {
			continue
		}
		logger.Debug("Ignoring source file with a reserved suffix", "dir", dir, "file", n)
	}
	r.seen = next
}
