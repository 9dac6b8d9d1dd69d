package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "lock.timeout_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLock()...)
	errors = append(errors, c.validateWorker()...)
	errors = append(errors, c.validateExecution()...)
	errors = append(errors, c.validateEvents()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func positive(field string, v int) []ValidationError {
	if v > 0 {
		return nil
	}
	return []ValidationError{{Field: field, Value: v, Message: "must be positive"}}
}

func nonNegative(field string, v int) []ValidationError {
	if v >= 0 {
		return nil
	}
	return []ValidationError{{Field: field, Value: v, Message: "must be non-negative"}}
}

// validateLock validates the LockConfig
func (c *Config) validateLock() []ValidationError {
	var errors []ValidationError

	errors = append(errors, positive("lock.timeout_ms", c.Lock.TimeoutMs)...)
	errors = append(errors, positive("lock.stale_after_ms", c.Lock.StaleAfterMs)...)
	errors = append(errors, positive("lock.retry_interval_ms", c.Lock.RetryIntervalMs)...)

	// A retry interval longer than the timeout means at most one attempt
	if c.Lock.RetryIntervalMs > 0 && c.Lock.TimeoutMs > 0 && c.Lock.RetryIntervalMs > c.Lock.TimeoutMs {
		errors = append(errors, ValidationError{
			Field:   "lock.retry_interval_ms",
			Value:   c.Lock.RetryIntervalMs,
			Message: fmt.Sprintf("must not exceed lock.timeout_ms (%d)", c.Lock.TimeoutMs),
		})
	}
	errors = append(errors, nonNegative("logging.max_size_mb", c.Logging.MaxSizeMB)...)
	errors = append(errors, nonNegative("logging.max_backups", c.Logging.MaxBackups)...)

	return errors
}

// validateWorker validates the WorkerConfig
func (c *Config) validateWorker() []ValidationError {
	var errors []ValidationError

	errors = append(errors, positive("worker.poll_interval_ms", c.Worker.PollIntervalMs)...)
	errors = append(errors, nonNegative("worker.idle_timeout_ms", c.Worker.IdleTimeoutMs)...)
	errors = append(errors, positive("worker.join_timeout_ms", c.Worker.JoinTimeoutMs)...)

	return errors
}

// validateExecution validates the ExecutionConfig
func (c *Config) validateExecution() []ValidationError {
	var errors []ValidationError

	errors = append(errors, positive("execution.max_concurrency", c.Execution.MaxConcurrency)...)
	errors = append(errors, positive("execution.max_attempts", c.Execution.MaxAttempts)...)
	errors = append(errors, nonNegative("execution.backoff_base_ms", c.Execution.BackoffBaseMs)...)
	errors = append(errors, positive("execution.max_steps", c.Execution.MaxSteps)...)

	return errors
}

// validateEvents validates the EventsConfig
func (c *Config) validateEvents() []ValidationError {
	return positive("events.max_queue", c.Events.MaxQueue)
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	errors = append(errors, nonNegative("logging.max_size_mb", c.Logging.MaxSizeMB)...)
	errors = append(errors, nonNegative("logging.max_backups", c.Logging.MaxBackups)...)

	return errors
}
