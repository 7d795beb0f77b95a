// Package lock keeps a second daemon from running against the same
// configuration.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("another intake instance holds the lock")

// PIDLock is an advisory lock file holding the owner's PID. The lock lives as
// long as the process keeps it.
type PIDLock struct {
	path string
	fl   *flock.Flock
}

// AcquirePIDLock takes the lock at lockPath without blocking and writes the
// current PID into it.
func AcquirePIDLock(lockPath string) (*PIDLock, error) {
	if lockPath == "" {
		return nil, errors.New("lock path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	if !ok {
		if pid, perr := HolderPID(lockPath); perr == nil {
			return nil, fmt.Errorf("%w (pid %d, lock %s)", ErrLocked, pid, lockPath)
		}
		return nil, fmt.Errorf("%w (lock %s)", ErrLocked, lockPath)
	}

	// The flock is on the inode, so rewriting the content keeps it.
	if err := os.WriteFile(lockPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("write pid: %w", err)
	}
	return &PIDLock{path: lockPath, fl: fl}, nil
}

func (l *PIDLock) Path() string { return l.path }

// Release drops the lock. The file stays so the PID of the last owner can
// still be read.
func (l *PIDLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	err := l.fl.Unlock()
	l.fl = nil
	return err
}

// HolderPID reads the PID recorded in the lock file.
func HolderPID(lockPath string) (int, error) {
	b, err := os.ReadFile(lockPath)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse pid in %s: %w", lockPath, err)
	}
	return pid, nil
}
