// Package scheduler runs periodic jobs on one timeline.
//
// Every job has a start delay and a period. Only one job runs at a time; a
// run that overshoots its period pushes the next run back instead of
// overlapping it, and missed runs are not made up. Stop lets the running job
// finish.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// ErrInvalidJob is wrapped by every registration failure.
var ErrInvalidJob = errors.New("invalid job")

// Job is a periodic unit of work.
type Job interface {
	Name() string
	// Validate is called once at registration.
	Validate() error
	Run(ctx context.Context)
}

// Publisher receives job lifecycle events.
type Publisher interface {
	Publish(eventType string, data any)
}

// JobStatus describes one registered job.
type JobStatus struct {
	Name         string        `json:"name"`
	Period       time.Duration `json:"period"`
	Runs         int           `json:"runs"`
	Running      bool          `json:"running"`
	NextRun      time.Time     `json:"next_run"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
}

type entry struct {
	job    Job
	delay  time.Duration
	period time.Duration
	order  int
	status JobStatus
}

// Scheduler owns the timeline.
type Scheduler struct {
	logger *slog.Logger
	events Publisher

	mu      sync.Mutex
	entries []*entry
	started bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Scheduler. events may be nil.
func New(logger *slog.Logger, events Publisher) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		logger: logger.With("component", "scheduler"),
		events: events,
		stopCh: make(chan struct{}),
	}
}

// Register validates job and adds it to the timeline. Jobs cannot be added
// once the scheduler has started.
func (s *Scheduler) Register(job Job, delay, period time.Duration) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}
	name := job.Name()
	switch {
	case name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidJob)
	case delay < 0:
		return fmt.Errorf("%w: %s: start delay must not be negative", ErrInvalidJob, name)
	case period <= 0:
		return fmt.Errorf("%w: %s: period must be positive", ErrInvalidJob, name)
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidJob, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("%w: %s: scheduler already started", ErrInvalidJob, name)
	}
	for _, e := range s.entries {
		if e.job.Name() == name {
			return fmt.Errorf("%w: %s: already registered", ErrInvalidJob, name)
		}
	}
	s.entries = append(s.entries, &entry{
		job:    job,
		delay:  delay,
		period: period,
		order:  len(s.entries),
		status: JobStatus{Name: name, Period: period},
	})
	s.logger.Debug("Job registered", "job", name, "start_delay", delay, "period", period)
	return nil
}

// Start launches the timeline. Jobs run with a context that is never
// cancelled, so a cancelled ctx stops the timeline without cutting a run short.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	s.started = true
	now := time.Now()
	for _, e := range s.entries {
		e.status.NextRun = now.Add(e.delay)
	}
	n := len(s.entries)
	s.mu.Unlock()

	s.logger.Info("Starting scheduler", "jobs", n)
	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop ends the timeline and waits for a running job to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping scheduler")
		close(s.stopCh)
	})
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// Jobs returns the status of every job in registration order.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.status
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	jobCtx := context.WithoutCancel(ctx)

	for {
		e := s.due()
		if e == nil {
			select {
			case <-s.stopCh:
			case <-ctx.Done():
			}
			return
		}

		timer := time.NewTimer(time.Until(e.status.NextRun))
		select {
		case <-timer.C:
		case <-s.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			s.logger.Warn("Scheduler context cancelled, stopping timeline")
			return
		}

		// A stop that raced the timer wins.
		select {
		case <-s.stopCh:
			return
		default:
		}
		s.run(jobCtx, e)
	}
}

// due returns the entry with the earliest next run. Ties go to the job
// registered first.
func (s *Scheduler) due() *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return nil
	}
	sorted := append([]*entry(nil), s.entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].status.NextRun, sorted[j].status.NextRun
		if !a.Equal(b) {
			return a.Before(b)
		}
		return sorted[i].order < sorted[j].order
	})
	return sorted[0]
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	name := e.job.Name()
	start := time.Now()

	s.mu.Lock()
	e.status.Running = true
	e.status.LastRun = start
	s.mu.Unlock()
	s.publish("job.started", map[string]any{"job": name, "at": start.UTC()})

	s.invoke(ctx, e.job)
	elapsed := time.Since(start)

	s.mu.Lock()
	e.status.Running = false
	e.status.Runs++
	e.status.LastDuration = elapsed
	// Fixed delay from the start of this run, never in the past.
	next := start.Add(e.period)
	if now := time.Now(); next.Before(now) {
		s.logger.Debug("Job overran its period", "job", name, "elapsed", elapsed, "period", e.period)
		next = now
	}
	e.status.NextRun = next
	s.mu.Unlock()
	s.publish("job.finished", map[string]any{"job": name, "duration_ms": elapsed.Milliseconds()})
}

func (s *Scheduler) invoke(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Job panicked", "job", job.Name(), "panic", r, "stack", string(debug.Stack()))
		}
	}()
	job.Run(ctx)
}

func (s *Scheduler) publish(eventType string, data any) {
	if s.events != nil {
		s.events.Publish(eventType, data)
	}
}
