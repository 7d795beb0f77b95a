package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mattjoyce/intake/internal/api"
	"github.com/mattjoyce/intake/internal/config"
	"github.com/mattjoyce/intake/internal/events"
	"github.com/mattjoyce/intake/internal/journal"
	"github.com/mattjoyce/intake/internal/lock"
	"github.com/mattjoyce/intake/internal/log"
	"github.com/mattjoyce/intake/internal/metrics"
	"github.com/mattjoyce/intake/internal/monitor"
	"github.com/mattjoyce/intake/internal/notify"
	"github.com/mattjoyce/intake/internal/outcome"
	"github.com/mattjoyce/intake/internal/retention"
	"github.com/mattjoyce/intake/internal/scheduler"
)

// Journal pruning runs on its own fixed cadence.
const (
	PruneStartDelay = time.Minute
	PrunePeriod     = time.Hour
)

// Daemon owns every long-lived part of a running service.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	pid     *lock.PIDLock
	hub     *events.Hub
	metrics *metrics.Metrics
	journal *journal.Journal
	nats    *nats.Conn
	sched   *scheduler.Scheduler

	monitors []monitor.Inspector
	sweeps   []*retention.Sweep

	closeOnce sync.Once
}

// New takes the PID lock and builds every component of cfg. On error the
// parts built so far are released.
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	d := &Daemon{
		cfg:     cfg,
		logger:  log.WithComponent("daemon"),
		hub:     events.NewHub(events.DefaultCapacity),
		metrics: metrics.New(),
	}
	built := false
	defer func() {
		if !built {
			_ = d.Close()
		}
	}()

	var err error
	d.pid, err = lock.AcquirePIDLock(cfg.Service.LockPath)
	if err != nil {
		return nil, fmt.Errorf("another instance may be running: %w", err)
	}
	d.logger.Info("Acquired PID lock", "path", d.pid.Path())

	d.sched = scheduler.New(log.WithComponent("scheduler"), d.hub)
	bridge := events.Bridge{Hub: d.hub}
	sinks := []outcome.Sink{d.metrics, bridge}

	if cfg.Journal.Enabled {
		d.journal, err = journal.Open(ctx, cfg.Journal.Path, journal.WithLogger(log.WithComponent("journal")))
		if err != nil {
			return nil, err
		}
		d.logger.Info("Journal opened", "path", cfg.Journal.Path)
		sinks = append(sinks, d.journal)
		if cfg.Journal.KeepFor > 0 {
			pruner := journal.Pruner{Journal: d.journal, KeepFor: cfg.Journal.KeepFor}
			if err = d.sched.Register(pruner, PruneStartDelay, PrunePeriod); err != nil {
				return nil, err
			}
		}
	}

	if cfg.Notify.Enabled {
		d.nats, err = notify.Connect(cfg.Notify.URL, cfg.Service.Name, log.WithComponent("notify"))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, notify.NewPublisher(d.nats, cfg.Notify.Subject))
	}

	observers := []monitor.Observer{d.metrics, bridge}
	for _, m := range cfg.Monitors {
		task, err := buildMonitor(m, cfg.Journal.Digest, sinks, observers)
		if err != nil {
			return nil, err
		}
		if err := d.sched.Register(task, m.Schedule.StartDelay, m.Schedule.Period); err != nil {
			return nil, err
		}
		d.monitors = append(d.monitors, task)
		d.logger.Info("Monitor registered", "monitor", m.Name, "type", m.Type, "directory", m.Directory)
	}

	d.sweeps, err = buildSweeps(cfg.Cleanups, d.metrics, bridge)
	if err != nil {
		return nil, err
	}
	cleanups := enabledCleanups(cfg.Cleanups)
	for i, s := range d.sweeps {
		c := cleanups[i]
		if err = d.sched.Register(s, c.Schedule.StartDelay, c.Schedule.Period); err != nil {
			return nil, err
		}
		d.logger.Info("Cleanup registered", "sweep", s.Name(), "directory", c.Directory)
	}
	built = true
	return d, nil
}

func enabledCleanups(cleanups []config.CleanupConfig) []config.CleanupConfig {
	out := make([]config.CleanupConfig, 0, len(cleanups))
	for _, c := range cleanups {
		if c.IsEnabled() {
			out = append(out, c)
		}
	}
	return out
}

// Monitors returns the built monitor tasks in configuration order.
func (d *Daemon) Monitors() []monitor.Inspector { return d.monitors }

// Sweeps returns the built retention sweeps in configuration order.
func (d *Daemon) Sweeps() []*retention.Sweep { return d.sweeps }

// Scheduler returns the job timeline.
func (d *Daemon) Scheduler() *scheduler.Scheduler { return d.sched }

// Hub returns the event hub.
func (d *Daemon) Hub() *events.Hub { return d.hub }

// API builds the HTTP server over the daemon's state.
func (d *Daemon) API() *api.Server {
	deps := api.Deps{
		Monitors: d.monitors,
		Jobs:     d.sched,
		Events:   d.hub,
		Metrics:  d.metrics.Handler(),
	}
	if d.journal != nil {
		deps.Outcomes = d.journal
	}
	return api.New(api.Config{Listen: d.cfg.API.Listen, APIKey: d.cfg.API.APIKey}, deps, log.WithComponent("api"))
}

// Run starts the scheduler and, when enabled, the API, and blocks until ctx
// is done or the API fails. Running jobs finish before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := d.sched.Start(ctx); err != nil {
		return err
	}
	defer d.sched.Stop()
	d.hub.Publish(events.TypeServiceStatus, map[string]any{
		"status":   "running",
		"monitors": len(d.monitors),
		"sweeps":   len(d.sweeps),
	})

	errCh := make(chan error, 1)
	if d.cfg.API.Enabled {
		srv := d.API()
		go func() {
			if err := srv.Start(ctx); err != nil {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
	}

	d.logger.Info("intake running", "monitors", len(d.monitors), "sweeps", len(d.sweeps))
	select {
	case <-ctx.Done():
		d.logger.Info("Shutting down")
		return nil
	case err := <-errCh:
		d.logger.Error("Component failed", "error", err)
		return err
	}
}

// Close releases the journal, the NATS connection and the PID lock.
func (d *Daemon) Close() error {
	var errs []error
	d.closeOnce.Do(func() {
		if d.nats != nil {
			if err := d.nats.Drain(); err != nil {
				errs = append(errs, fmt.Errorf("drain nats: %w", err))
			}
		}
		if d.journal != nil {
			if err := d.journal.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close journal: %w", err))
			}
		}
		if d.pid != nil {
			if err := d.pid.Release(); err != nil {
				errs = append(errs, fmt.Errorf("release pid lock: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}
