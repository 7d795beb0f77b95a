// Package daemon wires a loaded configuration into scheduled monitor, sweep
// and journal jobs and runs them next to the API.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/intake/internal/config"
	"github.com/mattjoyce/intake/internal/log"
	"github.com/mattjoyce/intake/internal/monitor"
	"github.com/mattjoyce/intake/internal/outcome"
	"github.com/mattjoyce/intake/internal/processor"
	"github.com/mattjoyce/intake/internal/retention"
	"github.com/mattjoyce/intake/internal/source"
	"github.com/mattjoyce/intake/internal/source/ftpsource"
	"github.com/mattjoyce/intake/internal/source/sftpsource"
)

// monitorOptions maps a monitor block onto task options.
func monitorOptions(m config.MonitorConfig, digest bool) monitor.Options {
	return monitor.Options{
		Name:              m.Name,
		StableTime:        m.StableTime,
		Archiving:         m.ArchivingEnabled(),
		MaxItemsPerCycle:  m.MaxItemsPerCycle,
		MaxProcessingTime: m.MaxProcessingTime,
		MonitorTimeout:    m.MonitorTimeout,
		LockTimeout:       m.LockTimeout,
		Digest:            digest,
	}
}

func filterFor(m config.MonitorConfig) source.Filter {
	if len(m.Include) == 0 {
		return source.AcceptAll{}
	}
	if m.CaseSensitive {
		return source.NewCaseSensitiveSuffixFilter(m.Include...)
	}
	return source.NewSuffixFilter(m.Include...)
}

// adapterFor builds the source adapter of m. Nothing is dialled here.
func adapterFor(m config.MonitorConfig, logger *slog.Logger) (source.Adapter[string], error) {
	switch m.Type {
	case config.SourceLocal, "":
		l := source.NewLocal(m.Directory, filterFor(m), source.FlockProbe{})
		l.SetLogger(logger)
		return l, nil
	case config.SourceFTP, config.SourceSFTP:
		if m.Remote == nil {
			return nil, fmt.Errorf("monitor %s: remote block is required for type %s", m.Name, m.Type)
		}
		r := m.Remote
		var client source.RemoteClient
		if m.Type == config.SourceFTP {
			client = ftpsource.New(ftpsource.Config{
				Host:     r.Host,
				Port:     r.Port,
				Username: r.Username,
				Password: r.Password,
				Timeout:  r.Timeout,
			})
		} else {
			client = sftpsource.New(sftpsource.Config{
				Host:           r.Host,
				Port:           r.Port,
				Username:       r.Username,
				Password:       r.Password,
				PrivateKeyPath: r.PrivateKeyPath,
				KnownHostsPath: r.KnownHostsPath,
				Timeout:        r.Timeout,
			})
		}
		rs := source.NewRemote(client, r.Directory, filterFor(m), source.LogRemoteHandler{Logger: logger})
		rs.SetLogger(logger)
		return rs, nil
	default:
		return nil, fmt.Errorf("monitor %s: unknown source type %q", m.Name, m.Type)
	}
}

func sweepOptions(c config.CleanupConfig) retention.Options {
	return retention.Options{
		Name:            c.Name,
		Directory:       c.Directory,
		KeepFor:         c.KeepFor,
		MaxDepth:        c.Depth(),
		MaxDuration:     c.MaxDuration,
		DeleteEmptyDirs: c.PruneEmptyDirs(),
	}
}

// buildMonitor creates the task of m. The task prepares its working areas and
// reconciles the processing area before it is returned.
func buildMonitor(m config.MonitorConfig, digest bool, sinks []outcome.Sink, observers []monitor.Observer) (*monitor.Task[string], error) {
	logger := log.WithMonitor(m.Name)
	adapter, err := adapterFor(m, logger)
	if err != nil {
		return nil, err
	}
	proc, err := processor.New(m.Processor, logger)
	if err != nil {
		return nil, fmt.Errorf("monitor %s: %w", m.Name, err)
	}
	return monitor.New[string](monitorOptions(m, digest), m.Directory, adapter, proc,
		monitor.WithLogger(logger),
		monitor.WithSinks(sinks...),
		monitor.WithObservers(observers...),
	)
}

// buildSweeps creates one sweep per enabled cleanup.
func buildSweeps(cleanups []config.CleanupConfig, observers ...retention.Observer) ([]*retention.Sweep, error) {
	var sweeps []*retention.Sweep
	for _, c := range cleanups {
		if !c.IsEnabled() {
			continue
		}
		logger := log.WithSweep(c.Name)
		s, err := retention.New(sweepOptions(c),
			retention.WithLogger(logger),
			retention.WithHandler(retention.LogHandler{Logger: logger}),
			retention.WithObservers(observers...),
		)
		if err != nil {
			return nil, err
		}
		sweeps = append(sweeps, s)
	}
	return sweeps, nil
}

// Check builds every job of cfg on paper: options, processors, adapters and
// sweeps are validated but no directory is touched and nothing is dialled.
func Check(cfg *config.Config) error {
	var errs []error
	for _, m := range cfg.Monitors {
		if err := monitorOptions(m, cfg.Journal.Digest).Validate(); err != nil {
			errs = append(errs, err)
		}
		if _, err := adapterFor(m, slog.Default()); err != nil {
			errs = append(errs, err)
		}
		proc, err := processor.New(m.Processor, slog.Default())
		if err != nil {
			errs = append(errs, fmt.Errorf("monitor %s: %w", m.Name, err))
			continue
		}
		if err := proc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("monitor %s: processor: %w", m.Name, err))
		}
	}
	if _, err := buildSweeps(cfg.Cleanups); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SweepResult is the outcome of one sweep run by SweepOnce.
type SweepResult struct {
	Name     string             `json:"name"`
	Progress retention.Progress `json:"progress"`
	Error    string             `json:"error,omitempty"`
}

// SweepOnce runs every enabled cleanup of cfg once, in order.
func SweepOnce(ctx context.Context, cfg *config.Config) ([]SweepResult, error) {
	sweeps, err := buildSweeps(cfg.Cleanups)
	if err != nil {
		return nil, err
	}
	results := make([]SweepResult, 0, len(sweeps))
	for _, s := range sweeps {
		p, err := s.Sweep(ctx)
		r := SweepResult{Name: s.Name(), Progress: p}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
	}
	return results, nil
}
