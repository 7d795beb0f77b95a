package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ValidationError reports one malformed configuration value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Resolve turns configPath into the absolute path of the config file. A
// directory is taken to contain config.yaml.
func Resolve(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

// Load reads, interpolates, defaults and validates the configuration file at
// configPath. The file must match its checksum manifest when one exists.
func Load(configPath string) (*Config, error) {
	absPath, err := Resolve(configPath)
	if err != nil {
		return nil, err
	}

	if err := VerifyChecksum(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.SourcePath = absPath
	return cfg, nil
}

// Parse decodes YAML configuration, applies defaults, and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	applyConfigDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyConfigDefaults fills every value left unset.
func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.LockPath == "" {
		cfg.Service.LockPath = defaults.Service.LockPath
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = defaults.Journal.Path
	}
	if cfg.Journal.KeepFor == 0 {
		cfg.Journal.KeepFor = defaults.Journal.KeepFor
	}
	if cfg.Notify.URL == "" {
		cfg.Notify.URL = defaults.Notify.URL
	}
	if cfg.Notify.Subject == "" {
		cfg.Notify.Subject = defaults.Notify.Subject
	}

	for i := range cfg.Monitors {
		applyMonitorDefaults(&cfg.Monitors[i])
	}
	for i := range cfg.Cleanups {
		applyCleanupDefaults(&cfg.Cleanups[i])
	}
}

func applyMonitorDefaults(m *MonitorConfig) {
	if m.Type == "" {
		m.Type = SourceLocal
	}
	if m.StableTime == 0 {
		m.StableTime = DefaultStableTime
	}
	if m.MaxItemsPerCycle == 0 {
		m.MaxItemsPerCycle = DefaultMaxItemsPerCycle
	}
	if m.MaxProcessingTime == 0 {
		m.MaxProcessingTime = DefaultMaxProcessingTime
	}
	if m.MonitorTimeout == 0 {
		m.MonitorTimeout = DefaultMonitorTimeout
	}
	if m.LockTimeout == 0 {
		m.LockTimeout = DefaultLockTimeout
	}
	if m.Schedule.StartDelay == 0 {
		m.Schedule.StartDelay = DefaultMonitorStartDelay
	}
	if m.Schedule.Period == 0 {
		m.Schedule.Period = DefaultMonitorPeriod
	}
	if m.Processor.Type == "" {
		m.Processor.Type = ProcessorNoop
	}
	if m.Processor.Type == ProcessorExec && m.Processor.Timeout == 0 {
		m.Processor.Timeout = DefaultExecTimeout
	}
	if m.Remote != nil {
		if m.Remote.Port == 0 {
			m.Remote.Port = DefaultFTPPort
			if m.Type == SourceSFTP {
				m.Remote.Port = DefaultSFTPPort
			}
		}
		if m.Remote.Timeout == 0 {
			m.Remote.Timeout = DefaultRemoteTimeout
		}
	}
}

func applyCleanupDefaults(c *CleanupConfig) {
	if c.KeepFor == 0 {
		c.KeepFor = DefaultCleanupKeepFor
	}
	if c.MaxDuration == 0 {
		c.MaxDuration = DefaultCleanupMaxDuration
	}
	if c.Schedule.StartDelay == 0 {
		c.Schedule.StartDelay = DefaultCleanupStartDelay
	}
	if c.Schedule.Period == 0 {
		c.Schedule.Period = DefaultCleanupPeriod
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// unresolved reports a ${VAR} placeholder whose variable was not set.
func unresolved(field, value string) error {
	if m := envVarPattern.FindStringSubmatch(value); len(m) > 1 {
		return invalid(field, "references environment variable ${%s} which is not set", m[1])
	}
	return nil
}
