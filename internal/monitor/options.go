package monitor

import (
	"fmt"
	"time"
)

// MinStableTime is the shortest quiet period a monitor accepts.
const MinStableTime = 100 * time.Millisecond

// Options tune one monitor task. Zero budgets and timeouts disable them.
type Options struct {
	Name              string
	StableTime        time.Duration
	Archiving         bool
	MaxItemsPerCycle  int
	MaxProcessingTime time.Duration
	MonitorTimeout    time.Duration
	LockTimeout       time.Duration
	Digest            bool
}

// Validate checks the options on their own.
func (o Options) Validate() error {
	switch {
	case o.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidOptions)
	case o.StableTime < MinStableTime:
		return fmt.Errorf("%w: %s: stable time %s is below %s", ErrInvalidOptions, o.Name, o.StableTime, MinStableTime)
	case o.MaxItemsPerCycle < 0:
		return fmt.Errorf("%w: %s: max items per cycle must not be negative", ErrInvalidOptions, o.Name)
	case o.MaxProcessingTime < 0, o.MonitorTimeout < 0, o.LockTimeout < 0:
		return fmt.Errorf("%w: %s: budgets and timeouts must not be negative", ErrInvalidOptions, o.Name)
	}
	return nil
}
