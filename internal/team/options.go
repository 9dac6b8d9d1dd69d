package team

import (
	"time"

	"github.com/Iron-Ham/teamwork/internal/config"
	"github.com/Iron-Ham/teamwork/internal/execution"
	"github.com/Iron-Ham/teamwork/internal/logging"
	"github.com/Iron-Ham/teamwork/internal/metrics"
	"github.com/Iron-Ham/teamwork/internal/worker"
)

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig)

// managerConfig holds optional settings for the Manager.
type managerConfig struct {
	lock        config.LockConfig
	worker      worker.Config
	execution   execution.Config
	joinTimeout time.Duration
	maxEvents   int
	noWorkers   bool

	executor  execution.Executor
	model     execution.Model
	tools     execution.ToolRunner
	presenter Presenter
	logger    *logging.Logger
	metrics   *metrics.Collector
}

func defaultManagerConfig() *managerConfig {
	def := config.Default()
	return &managerConfig{
		lock:        def.Lock,
		worker:      worker.Config{PollInterval: def.Worker.PollInterval(), IdleTimeout: def.Worker.IdleTimeout()},
		execution:   execution.DefaultConfig(),
		joinTimeout: def.Worker.JoinTimeout(),
		maxEvents:   def.Events.MaxQueue,
	}
}

// WithConfig applies the lock, worker, execution and event settings of cfg.
func WithConfig(cfg *config.Config) ManagerOption {
	return func(c *managerConfig) {
		c.lock = cfg.Lock
		c.worker = worker.Config{
			PollInterval: cfg.Worker.PollInterval(),
			IdleTimeout:  cfg.Worker.IdleTimeout(),
		}
		c.execution = execution.Config{
			MaxConcurrency: cfg.Execution.MaxConcurrency,
			MaxAttempts:    cfg.Execution.MaxAttempts,
			BackoffBase:    cfg.Execution.BackoffBase(),
			MaxSteps:       cfg.Execution.MaxSteps,
		}
		c.joinTimeout = cfg.Worker.JoinTimeout()
		c.maxEvents = cfg.Events.MaxQueue
	}
}

// WithLockConfig overrides the directory lock timings.
func WithLockConfig(lock config.LockConfig) ManagerOption {
	return func(c *managerConfig) {
		c.lock = lock
	}
}

// WithWorkerConfig overrides the worker cadence.
func WithWorkerConfig(wc worker.Config) ManagerOption {
	return func(c *managerConfig) {
		c.worker = wc
	}
}

// WithExecutionConfig overrides the execution bounds.
func WithExecutionConfig(ec execution.Config) ManagerOption {
	return func(c *managerConfig) {
		c.execution = ec
	}
}

// WithJoinTimeout bounds how long DeleteTeam and Close wait for workers.
func WithJoinTimeout(d time.Duration) ManagerOption {
	return func(c *managerConfig) {
		c.joinTimeout = d
	}
}

// WithExecutor injects the work executor.
func WithExecutor(e execution.Executor) ManagerOption {
	return func(c *managerConfig) {
		c.executor = e
	}
}

// WithModel sets the model and tools used when no executor is injected.
func WithModel(m execution.Model, tools execution.ToolRunner) ManagerOption {
	return func(c *managerConfig) {
		c.model = m
		c.tools = tools
	}
}

// WithPresenter sets the presentation adapter.
func WithPresenter(p Presenter) ManagerOption {
	return func(c *managerConfig) {
		c.presenter = p
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *logging.Logger) ManagerOption {
	return func(c *managerConfig) {
		c.logger = l
	}
}

// WithMetrics sets the collector shared by every component.
func WithMetrics(m *metrics.Collector) ManagerOption {
	return func(c *managerConfig) {
		c.metrics = m
	}
}

// WithoutWorkers makes the Manager record state without ever starting a
// worker. One-shot CLI commands use it and leave execution to a long-running
// `teamwork serve`.
func WithoutWorkers() ManagerOption {
	return func(c *managerConfig) {
		c.noWorkers = true
	}
}
