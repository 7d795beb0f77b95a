package monitor

import (
	"sort"
	"time"
)

// ItemView is a read-only copy of one registry entry.
type ItemView struct {
	Name          string        `json:"name"`
	Size          int64         `json:"size"`
	ModTime       time.Time     `json:"mod_time"`
	Locked        bool          `json:"locked"`
	CreatedAt     time.Time     `json:"created_at"`
	LastCheckedAt time.Time     `json:"last_checked_at"`
	Quiet         time.Duration `json:"quiet"`
	Age           time.Duration `json:"age"`
}

// Inspector is the read-only side of a Task, whatever its handle type.
type Inspector interface {
	Name() string
	Status() Status
	Snapshot() []ItemView
}

var _ Inspector = (*Task[string])(nil)

// Status summarises a task for introspection.
type Status struct {
	Name      string     `json:"name"`
	Directory string     `json:"directory"`
	Tracked   int        `json:"tracked"`
	LastCycle CycleStats `json:"last_cycle"`
}

// Snapshot copies the registry, sorted by name.
func (t *Task[H]) Snapshot() []ItemView {
	now := t.now()
	t.mu.RLock()
	out := make([]ItemView, 0, len(t.registry))
	for _, it := range t.registry {
		out = append(out, ItemView{
			Name:          it.Name,
			Size:          it.Size,
			ModTime:       it.ModTime,
			Locked:        it.Locked,
			CreatedAt:     it.CreatedAt,
			LastCheckedAt: it.LastCheckedAt,
			Quiet:         it.Quiet(now),
			Age:           it.Age(now),
		})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Status reports the registry size and the last cycle's counters.
func (t *Task[H]) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Status{
		Name:      t.opts.Name,
		Directory: t.dirs.Input,
		Tracked:   len(t.registry),
		LastCycle: t.lastCycle,
	}
}
