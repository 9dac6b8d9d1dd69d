package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete teamwork configuration
type Config struct {
	Storage      StorageConfig      `mapstructure:"storage"`
	Lock         LockConfig         `mapstructure:"lock"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Execution    ExecutionConfig    `mapstructure:"execution"`
	Events       EventsConfig       `mapstructure:"events"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Presentation PresentationConfig `mapstructure:"presentation"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// StorageConfig controls where durable state lives
type StorageConfig struct {
	// TeamsRoot holds one directory per team (config, inboxes, work items).
	// Empty means <config dir>/teams.
	TeamsRoot string `mapstructure:"teams_root"`
	// TasksRoot holds one directory per team board.
	// Empty means <config dir>/tasks.
	TasksRoot string `mapstructure:"tasks_root"`
}

// LockConfig controls directory lock acquisition
type LockConfig struct {
	// TimeoutMs is how long an acquirer waits before failing with a timeout
	TimeoutMs int `mapstructure:"timeout_ms"`
	// StaleAfterMs is the age after which an existing lock directory is reclaimed
	StaleAfterMs int `mapstructure:"stale_after_ms"`
	// RetryIntervalMs is the sleep between acquisition attempts
	RetryIntervalMs int `mapstructure:"retry_interval_ms"`
}

// WorkerConfig controls teammate worker cadence
type WorkerConfig struct {
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	// IdleTimeoutMs is how long an idle worker lingers before retiring (0 = never)
	IdleTimeoutMs int `mapstructure:"idle_timeout_ms"`
	// JoinTimeoutMs bounds how long team deletion waits for workers to exit
	JoinTimeoutMs int `mapstructure:"join_timeout_ms"`
}

// ExecutionConfig controls work item execution
type ExecutionConfig struct {
	// MaxConcurrency caps simultaneous executor invocations across all teammates
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// MaxAttempts is the number of tries for transient failures
	MaxAttempts int `mapstructure:"max_attempts"`
	// BackoffBaseMs is the first retry delay; each retry doubles it
	BackoffBaseMs int `mapstructure:"backoff_base_ms"`
	// MaxSteps bounds the fallback tool loop
	MaxSteps int `mapstructure:"max_steps"`
	// Command is the shell command that performs a work item (instruction on
	// stdin, output on stdout). Empty leaves the CLI without an executor.
	Command string `mapstructure:"command"`
}

// EventsConfig controls the in-memory event queues
type EventsConfig struct {
	// MaxQueue is the per-team queue bound; the oldest events are dropped beyond it
	MaxQueue int `mapstructure:"max_queue"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// Dir is the directory for teamwork.log; empty logs to stderr
	Dir string `mapstructure:"dir"`
	// MaxSizeMB rotates teamwork.log once it reaches this size (0 = never)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is how many rotated logs are kept
	MaxBackups int `mapstructure:"max_backups"`
}

// PresentationConfig controls the optional terminal presentation adapter
type PresentationConfig struct {
	// Tmux opens one tmux session per team and one window per teammate
	Tmux bool `mapstructure:"tmux"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address for /metrics served by `teamwork serve` (empty = disabled)
	Addr string `mapstructure:"addr"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			TeamsRoot: "",
			TasksRoot: "",
		},
		Lock: LockConfig{
			TimeoutMs:       3000,
			StaleAfterMs:    30000,
			RetryIntervalMs: 10,
		},
		Worker: WorkerConfig{
			PollIntervalMs: 50,
			IdleTimeoutMs:  60000,
			JoinTimeoutMs:  5000,
		},
		Execution: ExecutionConfig{
			MaxConcurrency: 4,
			MaxAttempts:    3,
			BackoffBaseMs:  500,
			MaxSteps:       8,
		},
		Events: EventsConfig{
			MaxQueue: 1000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Presentation: PresentationConfig{
			Tmux: false,
		},
		Metrics: MetricsConfig{
			Addr: "",
		},
	}
}

// ResolveTeamsRoot returns the configured teams root or the default under ConfigDir.
func (s *StorageConfig) ResolveTeamsRoot() string {
	if s.TeamsRoot != "" {
		return expandHome(s.TeamsRoot)
	}
	return filepath.Join(ConfigDir(), "teams")
}

// ResolveTasksRoot returns the configured tasks root or the default under ConfigDir.
func (s *StorageConfig) ResolveTasksRoot() string {
	if s.TasksRoot != "" {
		return expandHome(s.TasksRoot)
	}
	return filepath.Join(ConfigDir(), "tasks")
}

// Timeout returns the lock timeout as a time.Duration
func (c *LockConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// StaleAfter returns the lock staleness threshold as a time.Duration
func (c *LockConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMs) * time.Millisecond
}

// RetryInterval returns the lock retry interval as a time.Duration
func (c *LockConfig) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalMs) * time.Millisecond
}

// PollInterval returns the worker poll interval as a time.Duration
func (c *WorkerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// IdleTimeout returns the worker idle timeout as a time.Duration
func (c *WorkerConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMs) * time.Millisecond
}

// JoinTimeout returns the worker join timeout as a time.Duration
func (c *WorkerConfig) JoinTimeout() time.Duration {
	return time.Duration(c.JoinTimeoutMs) * time.Millisecond
}

// BackoffBase returns the first retry delay as a time.Duration
func (c *ExecutionConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Storage defaults
	viper.SetDefault("storage.teams_root", defaults.Storage.TeamsRoot)
	viper.SetDefault("storage.tasks_root", defaults.Storage.TasksRoot)

	// Lock defaults
	viper.SetDefault("lock.timeout_ms", defaults.Lock.TimeoutMs)
	viper.SetDefault("lock.stale_after_ms", defaults.Lock.StaleAfterMs)
	viper.SetDefault("lock.retry_interval_ms", defaults.Lock.RetryIntervalMs)

	// Worker defaults
	viper.SetDefault("worker.poll_interval_ms", defaults.Worker.PollIntervalMs)
	viper.SetDefault("worker.idle_timeout_ms", defaults.Worker.IdleTimeoutMs)
	viper.SetDefault("worker.join_timeout_ms", defaults.Worker.JoinTimeoutMs)

	// Execution defaults
	viper.SetDefault("execution.max_concurrency", defaults.Execution.MaxConcurrency)
	viper.SetDefault("execution.max_attempts", defaults.Execution.MaxAttempts)
	viper.SetDefault("execution.backoff_base_ms", defaults.Execution.BackoffBaseMs)
	viper.SetDefault("execution.max_steps", defaults.Execution.MaxSteps)
	viper.SetDefault("execution.command", defaults.Execution.Command)

	// Events defaults
	viper.SetDefault("events.max_queue", defaults.Events.MaxQueue)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Presentation defaults
	viper.SetDefault("presentation.tmux", defaults.Presentation.Tmux)

	// Metrics defaults
	viper.SetDefault("metrics.addr", defaults.Metrics.Addr)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "teamwork")
	}
	// Fall back to ~/.config/teamwork
	home, err := os.UserHomeDir()
	if err != nil {
		return ".teamwork"
	}
	return filepath.Join(home, ".config", "teamwork")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
