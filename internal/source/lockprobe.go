package source

import (
	"os"

	"github.com/gofrs/flock"
)

// LockProbe reports whether another process holds an item open exclusively.
type LockProbe interface {
	Locked(path string) bool
}

// FlockProbe tries a non-blocking advisory lock on the file. It only sees
// writers that take flock(2) locks themselves; a writer holding a plain open
// descriptor is invisible to it. Any probe failure reports unlocked.
type FlockProbe struct{}

func (FlockProbe) Locked(path string) bool {
	fl := flock.New(path, flock.SetFlag(os.O_RDONLY))
	ok, err := fl.TryLock()
	if err != nil {
		return false
	}
	if !ok {
		return true
	}
	_ = fl.Unlock()
	return false
}

// NoLocks is the probe for sources without a lock concept.
type NoLocks struct{}

func (NoLocks) Locked(string) bool { return false }
