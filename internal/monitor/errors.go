package monitor

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidOptions is wrapped by every Options validation failure.
var ErrInvalidOptions = errors.New("invalid monitor options")

// TimeoutError is recorded when an item never settles within the monitor timeout.
type TimeoutError struct {
	Item    string
	Watched time.Duration
	Limit   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("item %s was monitored for %s without becoming stable, monitor timeout is %s",
		e.Item, e.Watched.Round(time.Millisecond), e.Limit)
}

// LockExpiredError is recorded when a lock sentinel outlives the lock timeout
// and nothing holds the item.
type LockExpiredError struct {
	Lock    string
	Item    string
	Age     time.Duration
	Timeout time.Duration
}

func (e *LockExpiredError) Error() string {
	return fmt.Sprintf("lock sentinel %s for %s is %s old, older than the lock timeout of %s",
		e.Lock, e.Item, e.Age.Round(time.Millisecond), e.Timeout)
}

// PartialError is recorded for a download found unfinished at startup.
type PartialError struct {
	Item string
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("download of %s was interrupted before it could be processed, the content may be incomplete", e.Item)
}

// ProcessingError wraps a processor panic together with its stack.
type ProcessingError struct {
	Err   error
	Stack []byte
}

func (e *ProcessingError) Error() string { return e.Err.Error() }

func (e *ProcessingError) Unwrap() error { return e.Err }

// Diagnostic is written to the error sidecar.
func (e *ProcessingError) Diagnostic() string { return string(e.Stack) }
