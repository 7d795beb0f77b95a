package config

import "time"

// Config represents the complete intake configuration.
type Config struct {
	Service  ServiceConfig   `yaml:"service"`
	API      APIConfig       `yaml:"api"`
	Journal  JournalConfig   `yaml:"journal"`
	Notify   NotifyConfig    `yaml:"notify"`
	Monitors []MonitorConfig `yaml:"monitors"`
	Cleanups []CleanupConfig `yaml:"cleanups"`

	// SourcePath is the file the configuration was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LockPath  string `yaml:"lock_path"`
}

// APIConfig defines HTTP API server settings. An empty APIKey disables auth.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
}

// JournalConfig defines the SQLite outcome journal.
type JournalConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"`
	KeepFor time.Duration `yaml:"keep_for"`
	Digest  bool          `yaml:"digest"`
}

// NotifyConfig defines NATS outcome notifications.
type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Monitor source types.
const (
	SourceLocal = "local"
	SourceFTP   = "ftp"
	SourceSFTP  = "sftp"
)

// MonitorConfig defines one monitored input.
type MonitorConfig struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Directory string `yaml:"directory"`
	// Include lists accepted file name suffixes. Empty accepts everything.
	Include       []string `yaml:"include"`
	CaseSensitive bool     `yaml:"case_sensitive"`

	StableTime        time.Duration `yaml:"stable_time"`
	Archiving         *bool         `yaml:"archiving"`
	MaxItemsPerCycle  int           `yaml:"max_items_per_cycle"`
	MaxProcessingTime time.Duration `yaml:"max_processing_time"`
	MonitorTimeout    time.Duration `yaml:"monitor_timeout"`
	LockTimeout       time.Duration `yaml:"lock_timeout"`

	Schedule  ScheduleConfig  `yaml:"schedule"`
	Processor ProcessorConfig `yaml:"processor"`
	Remote    *RemoteConfig   `yaml:"remote,omitempty"`
}

// ArchivingEnabled reports the effective archiving flag.
func (m MonitorConfig) ArchivingEnabled() bool {
	return m.Archiving == nil || *m.Archiving
}

// IsRemote reports whether the monitor pulls from FTP or SFTP.
func (m MonitorConfig) IsRemote() bool {
	return m.Type == SourceFTP || m.Type == SourceSFTP
}

// ScheduleConfig places a job on the scheduler timeline.
type ScheduleConfig struct {
	StartDelay time.Duration `yaml:"start_delay"`
	Period     time.Duration `yaml:"period"`
}

// Processor types.
const (
	ProcessorNoop = "noop"
	ProcessorExec = "exec"
)

// ProcessorConfig selects and configures the processor of a monitor.
type ProcessorConfig struct {
	Type    string            `yaml:"type"`
	Command []string          `yaml:"command"`
	Timeout time.Duration     `yaml:"timeout"`
	Env     map[string]string `yaml:"env"`
}

// RemoteConfig defines the FTP or SFTP server of a remote monitor.
type RemoteConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	Directory      string        `yaml:"directory"`
	Timeout        time.Duration `yaml:"timeout"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	KnownHostsPath string        `yaml:"known_hosts_path"`
}

// CleanupConfig defines one retention sweep.
type CleanupConfig struct {
	Name            string         `yaml:"name"`
	Enabled         *bool          `yaml:"enabled"`
	Directory       string         `yaml:"directory"`
	KeepFor         time.Duration  `yaml:"keep_for"`
	MaxDepth        *int           `yaml:"max_depth"`
	MaxDuration     time.Duration  `yaml:"max_duration"`
	DeleteEmptyDirs *bool          `yaml:"delete_empty_dirs"`
	Schedule        ScheduleConfig `yaml:"schedule"`
}

// IsEnabled reports the effective enabled flag.
func (c CleanupConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Depth is the effective max depth; -1 is unbounded.
func (c CleanupConfig) Depth() int {
	if c.MaxDepth == nil {
		return -1
	}
	return *c.MaxDepth
}

// PruneEmptyDirs reports the effective delete_empty_dirs flag.
func (c CleanupConfig) PruneEmptyDirs() bool {
	return c.DeleteEmptyDirs == nil || *c.DeleteEmptyDirs
}

// Defaults returns a Config with the service-level defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "intake",
			LogLevel:  "info",
			LogFormat: "json",
			LockPath:  "./data/intake.lock",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8089",
		},
		Journal: JournalConfig{
			Path:    "./data/journal.db",
			KeepFor: 30 * 24 * time.Hour,
		},
		Notify: NotifyConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "intake.outcomes",
		},
	}
}

// Monitor defaults and floors.
const (
	DefaultStableTime        = 1500 * time.Millisecond
	DefaultMaxItemsPerCycle  = 1000
	DefaultMaxProcessingTime = 5 * time.Minute
	DefaultMonitorTimeout    = time.Hour
	DefaultLockTimeout       = 20 * time.Minute
	DefaultMonitorStartDelay = time.Second
	DefaultMonitorPeriod     = time.Second
	DefaultExecTimeout       = 5 * time.Minute
	DefaultRemoteTimeout     = 2 * time.Second
	DefaultFTPPort           = 21
	DefaultSFTPPort          = 22

	MinStableTime     = 100 * time.Millisecond
	MinMonitorTimeout = time.Minute
	MinLockTimeout    = 5 * time.Minute
	MinMonitorPeriod  = 10 * time.Millisecond
)

// Cleanup defaults and floors.
const (
	DefaultCleanupKeepFor     = 14 * 24 * time.Hour
	DefaultCleanupMaxDuration = 30 * time.Minute
	DefaultCleanupStartDelay  = 5 * time.Minute
	DefaultCleanupPeriod      = 6 * time.Hour

	MinCleanupMaxDuration = time.Minute
	MinCleanupStartDelay  = 5 * time.Second
	MinCleanupPeriod      = 5 * time.Minute
)
