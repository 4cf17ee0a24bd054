// Package errors provides centralized error definitions and error handling utilities
// for corefork. It defines the supervisor's domain errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures from the launch pipeline:
//   - TopologyError: the usable core count could not be determined
//   - SpawnError: the OS refused to create a worker process for a core
//   - SinkError: a log sink could not be opened or written
//   - AffinityBindError: a worker could not be pinned to its core
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input or configuration
//
// # Usage
//
//	err := errors.NewSpawnError("failed to start worker", cause).WithCore(3).WithApp("api")
//
//	var spawnErr *errors.SpawnError
//	if errors.As(err, &spawnErr) { ... }
//
//	if errors.Is(err, errors.ErrNoCores) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
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

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Topology sentinel errors
var (
	// ErrNoCores indicates the topology query resolved to zero usable cores.
	ErrNoCores = New("no usable cores identified")
	// ErrTopologyUnparsable indicates the topology query output had no usable core count.
	ErrTopologyUnparsable = New("topology output unparsable")
	// ErrTopologyQueryFailed indicates the topology query process itself failed.
	ErrTopologyQueryFailed = New("topology query failed")
)

// Worker sentinel errors
var (
	// ErrSpawnFailed indicates that the OS failed to create a worker process.
	ErrSpawnFailed = New("worker spawn failed")
	// ErrBindFailed indicates that a worker could not be bound to its core.
	ErrBindFailed = New("affinity bind failed")
	// ErrInvalidTransition indicates an illegal lifecycle state change.
	ErrInvalidTransition = New("invalid lifecycle transition")
	// ErrNotRunning indicates that a worker is not running.
	ErrNotRunning = New("worker not running")
)

// Sink sentinel errors
var (
	// ErrSinkClosed indicates a write was attempted against a closed sink.
	ErrSinkClosed = New("sink is closed")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ForkError is the base interface for all corefork errors.
type ForkError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error        { return e.cause }
func (e *baseError) Severity() Severity   { return e.severity }
func (e *baseError) IsRetryable() bool    { return e.retryable }
func (e *baseError) IsUserFacing() bool   { return e.userFacing }
func (e *baseError) is(target error) bool { return e.cause != nil && errors.Is(e.cause, target) }

// format renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// TopologyError reports that the usable core count could not be determined.
// It is never retryable: callers fall back to a non-affinity execution mode.
//
// Example:
//
//	err := errors.NewTopologyError("cannot optimize, run in fork mode", errors.ErrNoCores)
//	fmt.Println(err) // "topology error: cannot optimize, run in fork mode: no usable cores identified"
type TopologyError struct {
	baseError
	Command string
}

// NewTopologyError creates a new TopologyError.
func NewTopologyError(message string, cause error) *TopologyError {
	return &TopologyError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			userFacing: true,
		},
	}
}

// WithCommand records the topology query command that was run.
func (e *TopologyError) WithCommand(cmd string) *TopologyError {
	e.Command = cmd
	return e
}

func (e *TopologyError) Error() string {
	var parts []string
	if e.Command != "" {
		parts = append(parts, fmt.Sprintf("command=%s", e.Command))
	}
	return e.format("topology error", parts)
}

// Is checks if this error matches the target.
func (e *TopologyError) Is(target error) bool {
	if _, ok := target.(*TopologyError); ok {
		return true
	}
	return e.is(target)
}

// SpawnError reports that a worker process could not be created for one core.
// Sibling workers are unaffected.
//
// Example:
//
//	err := errors.NewSpawnError("exec failed", cause).WithCore(2).WithApp("api")
//	fmt.Println(err) // "spawn error [app=api, core=2]: exec failed: ..."
type SpawnError struct {
	baseError
	App  string
	Core int
}

// NewSpawnError creates a new SpawnError.
func NewSpawnError(message string, cause error) *SpawnError {
	return &SpawnError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
		Core: -1,
	}
}

// WithCore adds the core index to the error context.
func (e *SpawnError) WithCore(core int) *SpawnError {
	e.Core = core
	return e
}

// WithApp adds the application name to the error context.
func (e *SpawnError) WithApp(app string) *SpawnError {
	e.App = app
	return e
}

func (e *SpawnError) Error() string {
	var parts []string
	if e.App != "" {
		parts = append(parts, fmt.Sprintf("app=%s", e.App))
	}
	if e.Core >= 0 {
		parts = append(parts, fmt.Sprintf("core=%d", e.Core))
	}
	return e.format("spawn error", parts)
}

// Is checks if this error matches the target.
func (e *SpawnError) Is(target error) bool {
	if _, ok := target.(*SpawnError); ok {
		return true
	}
	if target == ErrSpawnFailed {
		return true
	}
	return e.is(target)
}

// SinkError reports a log sink open or write failure. The affected sink is
// skipped afterwards; the other sinks and the bus event are unaffected.
type SinkError struct {
	baseError
	Stream string
	Path   string
}

// NewSinkError creates a new SinkError.
func NewSinkError(message string, cause error) *SinkError {
	return &SinkError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityWarning,
		},
	}
}

// WithStream adds the stream name ("out", "err", "combined") to the error context.
func (e *SinkError) WithStream(stream string) *SinkError {
	e.Stream = stream
	return e
}

// WithPath adds the sink file path to the error context.
func (e *SinkError) WithPath(path string) *SinkError {
	e.Path = path
	return e
}

func (e *SinkError) Error() string {
	var parts []string
	if e.Stream != "" {
		parts = append(parts, fmt.Sprintf("stream=%s", e.Stream))
	}
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return e.format("sink error", parts)
}

// Is checks if this error matches the target.
func (e *SinkError) Is(target error) bool {
	if _, ok := target.(*SinkError); ok {
		return true
	}
	return e.is(target)
}

// AffinityBindError reports that a running worker could not be pinned to its
// core. The worker keeps running unpinned.
type AffinityBindError struct {
	baseError
	Core   int
	PID    int
	Output string
}

// NewAffinityBindError creates a new AffinityBindError.
func NewAffinityBindError(message string, cause error) *AffinityBindError {
	return &AffinityBindError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithCore adds the core index to the error context.
func (e *AffinityBindError) WithCore(core int) *AffinityBindError {
	e.Core = core
	return e
}

// WithPID adds the worker pid to the error context.
func (e *AffinityBindError) WithPID(pid int) *AffinityBindError {
	e.PID = pid
	return e
}

// WithOutput attaches the binding tool's combined output.
func (e *AffinityBindError) WithOutput(output string) *AffinityBindError {
	e.Output = strings.TrimSpace(output)
	return e
}

func (e *AffinityBindError) Error() string {
	parts := []string{
		fmt.Sprintf("core=%d", e.Core),
		fmt.Sprintf("pid=%d", e.PID),
	}
	msg := e.format("affinity bind error", parts)
	if e.Output != "" {
		msg += " (" + e.Output + ")"
	}
	return msg
}

// Is checks if this error matches the target.
func (e *AffinityBindError) Is(target error) bool {
	if _, ok := target.(*AffinityBindError); ok {
		return true
	}
	if target == ErrBindFailed {
		return true
	}
	return e.is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("exec path cannot be empty").WithField("app.exec_path")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
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

func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
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
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition.
// Topology errors are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var forkErr ForkError
	if As(err, &forkErr) {
		return forkErr.IsRetryable()
	}
	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var forkErr ForkError
	if As(err, &forkErr) {
		return forkErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ForkError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var forkErr ForkError
	if As(err, &forkErr) {
		return forkErr.Severity()
	}
	return SeverityError
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
