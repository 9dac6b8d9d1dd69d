package execution

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Iron-Ham/teamwork/internal/errors"
	"github.com/Iron-Ham/teamwork/internal/logging"
	"github.com/Iron-Ham/teamwork/internal/protocol"
)

// Config bounds execution.
type Config struct {
	// MaxConcurrency caps simultaneous executions across every teammate.
	MaxConcurrency int
	// MaxAttempts is the number of tries for a transient failure.
	MaxAttempts int
	// BackoffBase is the delay before the second attempt; it doubles after each retry.
	BackoffBase time.Duration
	// MaxSteps bounds the fallback step loop.
	MaxSteps int
}

// DefaultConfig returns the default execution bounds.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		MaxAttempts:    3,
		BackoffBase:    500 * time.Millisecond,
		MaxSteps:       DefaultMaxSteps,
	}
}

// Runner executes work items under a concurrency bound with transient retries.
type Runner struct {
	cfg      Config
	executor Executor
	model    Model
	tools    ToolRunner
	sem      *semaphore.Weighted
	logger   *logging.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithExecutor sets the injected work executor.
func WithExecutor(e Executor) Option {
	return func(r *Runner) {
		r.executor = e
	}
}

// WithModel sets the model and tools used when no executor is configured.
func WithModel(m Model, tools ToolRunner) Option {
	return func(r *Runner) {
		r.model = m
		r.tools = tools
	}
}

// WithLogger sets the runner's logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a Runner. Non-positive bounds fall back to DefaultConfig.
func NewRunner(cfg Config, opts ...Option) *Runner {
	def := DefaultConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BackoffBase < 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = def.MaxSteps
	}

	r := &Runner{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrNop(r.logger).WithComponent("execution")
	return r
}

// Configured reports whether the runner can execute anything at all.
func (r *Runner) Configured() bool {
	return r.executor != nil || r.model != nil
}

// Run executes item for a teammate with the given tool policy.
// Transient failures are retried up to MaxAttempts with exponential backoff;
// the last error is returned once attempts run out.
func (r *Runner) Run(ctx context.Context, item protocol.WorkItem, policy protocol.ToolPolicy) (Result, error) {
	exec, err := r.executorFor(policy)
	if err != nil {
		return Result{}, err
	}
	logger := r.logger.WithTeam(item.TeamName).WithTeammate(item.Owner).With("work_id", item.WorkID)

	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.backoff(attempt)
			logger.Info("retrying work item", "attempt", attempt, "delay", delay.String(), "error", lastErr)
			select {
			case <-ctx.Done():
				return Result{}, fmt.Errorf("retry canceled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		res, err := r.once(ctx, exec, item)
		if err == nil {
			return res, nil
		}
		lastErr = err

		// Our own cancellation is never worth retrying.
		if ctx.Err() != nil || !errors.IsTransient(err) {
			return Result{}, err
		}
	}

	logger.Warn("work item attempts exhausted", "attempts", r.cfg.MaxAttempts, "error", lastErr)
	return Result{}, fmt.Errorf("failed after %d attempts: %w", r.cfg.MaxAttempts, lastErr)
}

// once runs a single attempt while holding one slot of the semaphore.
func (r *Runner) once(ctx context.Context, exec Executor, item protocol.WorkItem) (Result, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("wait for execution slot: %w", err)
	}
	defer r.sem.Release(1)
	return exec.Execute(ctx, item)
}

func (r *Runner) executorFor(policy protocol.ToolPolicy) (Executor, error) {
	if r.executor != nil {
		return r.executor, nil
	}
	if r.model != nil {
		return &StepLoop{
			Model:    r.model,
			Tools:    r.tools,
			Policy:   policy,
			MaxSteps: r.cfg.MaxSteps,
			Logger:   r.logger,
		}, nil
	}
	return nil, errors.NewValidationError("no work executor or model configured")
}

// backoff returns BackoffBase * 2^(attempt-2) for attempt >= 2.
func (r *Runner) backoff(attempt int) time.Duration {
	return r.cfg.BackoffBase << (attempt - 2)
}
