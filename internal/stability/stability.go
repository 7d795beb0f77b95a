// Package stability tracks per-item metadata snapshots and decides when an
// item has stopped changing long enough to be handed to processing.
package stability

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidHandle is returned when a snapshot is requested for an empty handle.
var ErrInvalidHandle = errors.New("stability: invalid item handle")

// Metadata is the raw state a source reports for one item.
type Metadata struct {
	Exists  bool
	ModTime time.Time
	Size    int64
	// Locked is best effort. Remote sources always report false and the local
	// probe cannot see every condition under which another process holds a file.
	Locked bool
}

// Equal reports whether two raw observations are indistinguishable.
func (m Metadata) Equal(o Metadata) bool {
	return m.Exists == o.Exists &&
		m.ModTime.Equal(o.ModTime) &&
		m.Size == o.Size &&
		m.Locked == o.Locked
}

// Probe reads item metadata from a source. Implementations report a missing
// item as Metadata{Exists: false} with a nil error; a non-nil error means the
// source could not be asked at all.
type Probe[H any] interface {
	Name(handle H) string
	Stat(ctx context.Context, handle H) (Metadata, error)
}

// TrackedItem is one snapshot of an item under observation. Identity is Name.
type TrackedItem[H any] struct {
	Name          string
	Handle        H
	CreatedAt     time.Time
	LastCheckedAt time.Time
	Metadata
}

// IsStable reports whether the item exists, is unlocked and carries the same
// modification time and size as prev.
func (it TrackedItem[H]) IsStable(prev TrackedItem[H]) bool {
	return it.Exists &&
		!it.Locked &&
		it.ModTime.Equal(prev.ModTime) &&
		it.Size == prev.Size
}

// IsStableFor is IsStable plus a quiet period: more than threshold must have
// passed between prev.LastCheckedAt and now. Exactly threshold is not enough.
func (it TrackedItem[H]) IsStableFor(prev TrackedItem[H], threshold time.Duration, now time.Time) bool {
	return it.IsStable(prev) && now.Sub(prev.LastCheckedAt) > threshold
}

// Age is how long the item has been observed, measured from its first capture.
func (it TrackedItem[H]) Age(now time.Time) time.Duration {
	return now.Sub(it.CreatedAt)
}

// Quiet is the settle clock: time since the metadata last changed.
func (it TrackedItem[H]) Quiet(now time.Time) time.Duration {
	return now.Sub(it.LastCheckedAt)
}

// Model captures and evolves snapshots through a probe.
type Model[H any] struct {
	probe Probe[H]
	now   func() time.Time
}

// NewModel returns a Model that reads through probe and timestamps with now.
// A nil now uses time.Now.
func NewModel[H any](probe Probe[H], now func() time.Time) *Model[H] {
	if now == nil {
		now = time.Now
	}
	return &Model[H]{probe: probe, now: now}
}

// Capture takes the first snapshot of handle.
func (m *Model[H]) Capture(ctx context.Context, handle H) (TrackedItem[H], error) {
	name, err := m.name(handle)
	if err != nil {
		return TrackedItem[H]{}, err
	}
	md, err := m.probe.Stat(ctx, handle)
	if err != nil {
		return TrackedItem[H]{}, err
	}
	now := m.now()
	return TrackedItem[H]{
		Name:          name,
		Handle:        handle,
		CreatedAt:     now,
		LastCheckedAt: now,
		Metadata:      md,
	}, nil
}

// Evolve re-reads the item behind prev. CreatedAt carries over unchanged. If the
// raw metadata equals prev's, LastCheckedAt carries over too so the settle clock
// keeps running; any change restarts it at the capture instant.
func (m *Model[H]) Evolve(ctx context.Context, prev TrackedItem[H]) (TrackedItem[H], error) {
	md, err := m.probe.Stat(ctx, prev.Handle)
	if err != nil {
		return prev, err
	}
	next := TrackedItem[H]{
		Name:          prev.Name,
		Handle:        prev.Handle,
		CreatedAt:     prev.CreatedAt,
		LastCheckedAt: m.now(),
		Metadata:      md,
	}
	if md.Equal(prev.Metadata) {
		next.LastCheckedAt = prev.LastCheckedAt
	}
	return next, nil
}

func (m *Model[H]) name(handle H) (string, error) {
	if any(handle) == nil {
		return "", ErrInvalidHandle
	}
	name := m.probe.Name(handle)
	if name == "" {
		return "", ErrInvalidHandle
	}
	return name, nil
}
