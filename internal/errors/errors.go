// Package errors provides the error taxonomy shared by every teamwork package.
//
// Callers (CLI commands, tools, tests) branch on a stable [Code] rather than on
// message text or low-level causes:
//
//   - INVALID_PARAM: malformed or missing fields, bad enum values, duplicate names ([ValidationError])
//   - NOT_FOUND: unknown team, teammate, task, work item, message or request ([NotFoundError])
//   - CONFLICT: team already exists, delete blocked by live workers ([ConflictError])
//   - TIMEOUT: a lock could not be acquired before its deadline ([TimeoutError])
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewNotFoundError("team", "demo")
//	err := errors.NewValidationError("summary is required").WithField("summary")
//	err := errors.NewTimeoutError("acquire lock "+path, 3*time.Second)
//
// Checking errors:
//
//	if errors.CodeOf(err) == errors.CodeNotFound { ... }
//
//	var nf *errors.NotFoundError
//	if errors.As(err, &nf) { ... }
//
//	if errors.IsTransient(err) { ... retry ... }
package errors

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Code is the stable, machine-readable classification of an error.
type Code string

const (
	// CodeInvalidParam marks malformed input, bad enum values and duplicate names.
	CodeInvalidParam Code = "INVALID_PARAM"
	// CodeNotFound marks an unknown team, teammate, task, work item or message.
	CodeNotFound Code = "NOT_FOUND"
	// CodeConflict marks a resource that already exists or an operation blocked by live state.
	CodeConflict Code = "CONFLICT"
	// CodeTimeout marks a lock acquisition that exceeded its deadline.
	CodeTimeout Code = "TIMEOUT"
	// CodeInternal is reported for errors outside the taxonomy.
	CodeInternal Code = "INTERNAL"
)

// String returns the string representation of the code.
func (c Code) String() string {
	return string(c)
}

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrNotFound indicates that a resource does not exist.
	ErrNotFound = New("not found")
	// ErrConflict indicates that a resource exists or is busy.
	ErrConflict = New("conflict")
)

// TeamworkError is implemented by every error in the taxonomy.
type TeamworkError interface {
	error

	// Code returns the stable classification of the error.
	Code() Code

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// IsRetryable returns true if the operation may succeed on retry.
	IsRetryable() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message   string
	cause     error
	retryable bool
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// is matches the cause chain.
func (e *baseError) is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// -----------------------------------------------------------------------------
// NotFoundError
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("work item", "w-123")
//	fmt.Println(err) // "work item 'w-123' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message: fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Code returns CodeNotFound.
func (e *NotFoundError) Code() Code { return CodeNotFound }

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if target == ErrNotFound {
		return true
	}
	return e.is(target)
}

// -----------------------------------------------------------------------------
// ConflictError
// -----------------------------------------------------------------------------

// ConflictError represents a resource that already exists, or an operation
// that cannot proceed because of live state.
//
// Example:
//
//	err := errors.NewConflictError("team", "demo", "already exists")
//	fmt.Println(err) // "team 'demo' already exists"
type ConflictError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewConflictError creates a new ConflictError. reason completes the sentence
// "<type> '<id>' <reason>".
func NewConflictError(resourceType, resourceID, reason string) *ConflictError {
	return &ConflictError{
		baseError: baseError{
			message: fmt.Sprintf("%s '%s' %s", resourceType, resourceID, reason),
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// NewAlreadyExistsError is shorthand for a ConflictError with reason "already exists".
func NewAlreadyExistsError(resourceType, resourceID string) *ConflictError {
	return NewConflictError(resourceType, resourceID, "already exists")
}

// WithCause adds a cause to the error.
func (e *ConflictError) WithCause(cause error) *ConflictError {
	e.cause = cause
	return e
}

// Code returns CodeConflict.
func (e *ConflictError) Code() Code { return CodeConflict }

// Error returns the formatted error message.
func (e *ConflictError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Is checks if this error matches the target.
func (e *ConflictError) Is(target error) bool {
	if _, ok := target.(*ConflictError); ok {
		return true
	}
	if target == ErrConflict {
		return true
	}
	return e.is(target)
}

// -----------------------------------------------------------------------------
// ValidationError
// -----------------------------------------------------------------------------

// ValidationError represents invalid input.
//
// Example:
//
//	err := errors.NewValidationError("summary is required for message").WithField("summary")
//	fmt.Println(err) // "validation error [field=summary]: summary is required for message"
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{message: message},
	}
}

// NewValidationErrorf creates a ValidationError with a formatted message.
func NewValidationErrorf(format string, args ...any) *ValidationError {
	return NewValidationError(fmt.Sprintf(format, args...))
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Code returns CodeInvalidParam.
func (e *ValidationError) Code() Code { return CodeInvalidParam }

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}

	prefix := "validation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("validation error [%s]", strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.is(target)
}

// -----------------------------------------------------------------------------
// TimeoutError
// -----------------------------------------------------------------------------

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("acquire lock /teams/demo/.config.lock", 3*time.Second)
//	fmt.Println(err) // "timeout error: acquire lock /teams/demo/.config.lock (timeout: 3s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:   operation,
			retryable: true, // Timeouts are generally retryable
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Code returns CodeTimeout.
func (e *TimeoutError) Code() Code { return CodeTimeout }

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// CodeOf returns the taxonomy code of err, looking through wrapping.
// nil yields "" and errors outside the taxonomy yield CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var te TeamworkError
	if As(err, &te) {
		return te.Code()
	}
	switch {
	case Is(err, ErrTimeout):
		return CodeTimeout
	case Is(err, ErrNotFound):
		return CodeNotFound
	case Is(err, ErrInvalidInput):
		return CodeInvalidParam
	case Is(err, ErrConflict):
		return CodeConflict
	}
	return CodeInternal
}

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry. This checks for:
//   - Errors implementing TeamworkError with IsRetryable() returning true
//   - Errors wrapping ErrTimeout
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te TeamworkError
	if As(err, &te) {
		return te.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// transientSignatures are lower-cased fragments that executor errors carry when
// the failure is rate limiting, overload or a timeout on the far side.
var transientSignatures = []string{
	"rate limit",
	"rate_limit",
	"ratelimit",
	"too many requests",
	"timeout",
	"timed out",
	"deadline exceeded",
	"temporarily unavailable",
	"overloaded",
	"service unavailable",
	"connection reset",
}

// transientStatus matches 429 and 503 only where they read as an HTTP status,
// so line numbers, sizes and ids in executor output are not mistaken for one.
var transientStatus = regexp.MustCompile(`\b(?:https?(?:/\d(?:\.\d)?)?|status(?: code)?|code|error)[\s:=]*(?:429|503)\b`)

// IsTransient reports whether an execution error should be retried locally.
// It is true for retryable taxonomy errors and for any error whose message
// carries a rate-limit, overload or timeout signature.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRetryable(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return transientStatus.MatchString(msg)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
// Unlike replacing the error, this preserves the TeamworkError in the chain.
//
// Example:
//
//	err := errors.Wrap(baseErr, "append inbox")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
//
// Example:
//
//	err := errors.Wrapf(baseErr, "update work item %s", workID)
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
