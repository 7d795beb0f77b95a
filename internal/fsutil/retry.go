// Package fsutil holds the filesystem moves shared by the monitor, the outcome
// router and the retention sweep. Every mutation is retried a few times with
// a short backoff before the error is handed back.
package fsutil

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/sethvargo/go-retry"
)

// Policy bounds how often a failing filesystem call is retried.
type Policy struct {
	Attempts uint64
	Backoff  time.Duration
}

// DefaultPolicy makes three attempts with 50ms then 100ms pauses.
var DefaultPolicy = Policy{Attempts: 3, Backoff: 50 * time.Millisecond}

func (p Policy) backoff() retry.Backoff {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	wait := p.Backoff
	if wait <= 0 {
		wait = time.Millisecond
	}
	return retry.WithMaxRetries(attempts-1, retry.NewExponential(wait))
}

// Do runs fn until it succeeds, fails permanently, or the policy is exhausted.
// Errors for missing sources or occupied destinations are permanent.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}
		if permanent(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}

func permanent(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrExist)
}

// Rename moves src to dst without replacing an existing dst. The existence
// check and the rename are two steps, so a writer racing on dst can still lose.
func (p Policy) Rename(ctx context.Context, src, dst string) error {
	return p.Do(ctx, func() error {
		if _, err := os.Lstat(dst); err == nil {
			return fmt.Errorf("rename %s: destination %s: %w", src, dst, fs.ErrExist)
		}
		return os.Rename(src, dst)
	})
}

// Remove deletes path. A path that is already gone is not an error.
func (p Policy) Remove(ctx context.Context, path string) error {
	err := p.Do(ctx, func() error {
		return os.Remove(path)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Rename uses DefaultPolicy.
func Rename(ctx context.Context, src, dst string) error {
	return DefaultPolicy.Rename(ctx, src, dst)
}

// Remove uses DefaultPolicy.
func Remove(ctx context.Context, path string) error {
	return DefaultPolicy.Remove(ctx, path)
}

// Exists reports whether path can be stat'ed.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
