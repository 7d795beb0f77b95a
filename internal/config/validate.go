package config

import (
	"fmt"
	"strings"
)

// validate returns the first problem found in cfg.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return invalid("service.log_level", "must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := strings.ToLower(cfg.Service.LogFormat); f != "json" && f != "text" {
		return invalid("service.log_format", "must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if cfg.API.Enabled {
		if err := unresolved("api.api_key", cfg.API.APIKey); err != nil {
			return err
		}
	}
	if cfg.Journal.Enabled && cfg.Journal.KeepFor < 0 {
		return invalid("journal.keep_for", "must not be negative")
	}
	if cfg.Notify.Enabled && !strings.HasPrefix(cfg.Notify.URL, "nats://") && !strings.HasPrefix(cfg.Notify.URL, "tls://") {
		return invalid("notify.url", "must be a nats:// or tls:// URL (got %q)", cfg.Notify.URL)
	}

	if len(cfg.Monitors) == 0 && len(cfg.Cleanups) == 0 {
		return invalid("monitors", "at least one monitor or cleanup is required")
	}

	names := make(map[string]bool)
	for i, m := range cfg.Monitors {
		if err := validateMonitor(fmt.Sprintf("monitors[%d]", i), m); err != nil {
			return err
		}
		if names[m.Name] {
			return invalid(fmt.Sprintf("monitors[%d].name", i), "%q is used twice", m.Name)
		}
		names[m.Name] = true
	}
	for i, c := range cfg.Cleanups {
		if err := validateCleanup(fmt.Sprintf("cleanups[%d]", i), c); err != nil {
			return err
		}
		if names[c.Name] {
			return invalid(fmt.Sprintf("cleanups[%d].name", i), "%q is already used by another job", c.Name)
		}
		names[c.Name] = true
	}
	return nil
}

func validateMonitor(at string, m MonitorConfig) error {
	switch {
	case m.Name == "":
		return invalid(at+".name", "is required")
	case m.Directory == "":
		return invalid(at+".directory", "is required")
	case m.Type != SourceLocal && m.Type != SourceFTP && m.Type != SourceSFTP:
		return invalid(at+".type", "must be one of: local, ftp, sftp (got %q)", m.Type)
	case m.StableTime < MinStableTime:
		return invalid(at+".stable_time", "must be at least %s (got %s)", MinStableTime, m.StableTime)
	case m.MaxItemsPerCycle < 1:
		return invalid(at+".max_items_per_cycle", "must be positive")
	case m.MaxProcessingTime <= 0:
		return invalid(at+".max_processing_time", "must be positive")
	case m.MonitorTimeout < MinMonitorTimeout:
		return invalid(at+".monitor_timeout", "must be at least %s (got %s)", MinMonitorTimeout, m.MonitorTimeout)
	case m.LockTimeout < MinLockTimeout:
		return invalid(at+".lock_timeout", "must be at least %s (got %s)", MinLockTimeout, m.LockTimeout)
	case m.Schedule.StartDelay < 0:
		return invalid(at+".schedule.start_delay", "must not be negative")
	case m.Schedule.Period < MinMonitorPeriod:
		return invalid(at+".schedule.period", "must be at least %s (got %s)", MinMonitorPeriod, m.Schedule.Period)
	}

	switch m.Processor.Type {
	case ProcessorNoop:
	case ProcessorExec:
		if len(m.Processor.Command) == 0 || strings.TrimSpace(m.Processor.Command[0]) == "" {
			return invalid(at+".processor.command", "is required for exec processors")
		}
		if m.Processor.Timeout <= 0 {
			return invalid(at+".processor.timeout", "must be positive")
		}
	default:
		return invalid(at+".processor.type", "must be one of: noop, exec (got %q)", m.Processor.Type)
	}

	if !m.IsRemote() {
		if m.Remote != nil {
			return invalid(at+".remote", "is only valid for ftp and sftp monitors")
		}
		return nil
	}
	r := m.Remote
	switch {
	case r == nil:
		return invalid(at+".remote", "is required for %s monitors", m.Type)
	case r.Host == "":
		return invalid(at+".remote.host", "is required")
	case r.Username == "":
		return invalid(at+".remote.username", "is required")
	case r.Directory == "":
		return invalid(at+".remote.directory", "is required")
	case r.Port < 1 || r.Port > 65535:
		return invalid(at+".remote.port", "must be between 1 and 65535 (got %d)", r.Port)
	case r.Timeout <= 0:
		return invalid(at+".remote.timeout", "must be positive")
	case m.Type == SourceFTP && r.PrivateKeyPath != "":
		return invalid(at+".remote.private_key_path", "is only supported for sftp")
	}
	return unresolved(at+".remote.password", r.Password)
}

func validateCleanup(at string, c CleanupConfig) error {
	switch {
	case c.Name == "":
		return invalid(at+".name", "is required")
	case c.Directory == "":
		return invalid(at+".directory", "is required")
	case c.KeepFor <= 0:
		return invalid(at+".keep_for", "must be positive")
	case c.Depth() < -1:
		return invalid(at+".max_depth", "must be -1 (unbounded) or at least 0 (got %d)", c.Depth())
	case c.MaxDuration < MinCleanupMaxDuration:
		return invalid(at+".max_duration", "must be at least %s (got %s)", MinCleanupMaxDuration, c.MaxDuration)
	case c.Schedule.StartDelay < MinCleanupStartDelay:
		return invalid(at+".schedule.start_delay", "must be at least %s (got %s)", MinCleanupStartDelay, c.Schedule.StartDelay)
	case c.Schedule.Period < MinCleanupPeriod:
		return invalid(at+".schedule.period", "must be at least %s (got %s)", MinCleanupPeriod, c.Schedule.Period)
	}
	return nil
}
