package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/corefork/internal/errors"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "launch.on_spawn_error")
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

// Is lets errors.Is match ValidationErrors against errors.ErrInvalidInput.
func (e ValidationErrors) Is(target error) bool {
	return target == errors.ErrInvalidInput
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidBinders returns the list of valid affinity binders
func ValidBinders() []string {
	return []string{"taskset", "syscall", "none"}
}

// ValidSpawnErrorPolicies returns the list of valid spawn error policies
func ValidSpawnErrorPolicies() []string {
	return []string{"continue", "abort"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	errs = append(errs, c.validateTopology()...)
	errs = append(errs, c.validateAffinity()...)
	errs = append(errs, c.validateLaunch()...)
	errs = append(errs, c.validateLogging()...)

	return errs
}

// ValidateApp checks the fields required to launch the application. It is
// separate from Validate so commands that never launch accept an empty app.
func (c *Config) ValidateApp() []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(c.App.ExecPath) == "" {
		errs = append(errs, ValidationError{
			Field:   "app.exec_path",
			Value:   c.App.ExecPath,
			Message: "must be set",
		})
	}
	if strings.TrimSpace(c.App.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "app.name",
			Value:   c.App.Name,
			Message: "must not be empty",
		})
	}

	return errs
}

// validateTopology validates the TopologyConfig
func (c *Config) validateTopology() []ValidationError {
	var errs []ValidationError

	if c.Topology.Cores <= 0 && strings.TrimSpace(c.Topology.Command) == "" {
		errs = append(errs, ValidationError{
			Field:   "topology.command",
			Value:   c.Topology.Command,
			Message: "must be set when topology.cores is not",
		})
	}
	if c.Topology.TimeoutSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "topology.timeout_seconds",
			Value:   c.Topology.TimeoutSeconds,
			Message: "must be non-negative",
		})
	}
	if c.Topology.Cores < 0 {
		errs = append(errs, ValidationError{
			Field:   "topology.cores",
			Value:   c.Topology.Cores,
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateAffinity validates the AffinityConfig
func (c *Config) validateAffinity() []ValidationError {
	var errs []ValidationError

	if c.Affinity.Binder != "" && !slices.Contains(ValidBinders(), c.Affinity.Binder) {
		errs = append(errs, ValidationError{
			Field:   "affinity.binder",
			Value:   c.Affinity.Binder,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBinders(), ", ")),
		})
	}

	return errs
}

// validateLaunch validates the LaunchConfig
func (c *Config) validateLaunch() []ValidationError {
	var errs []ValidationError

	if c.Launch.OnSpawnError != "" && !slices.Contains(ValidSpawnErrorPolicies(), c.Launch.OnSpawnError) {
		errs = append(errs, ValidationError{
			Field:   "launch.on_spawn_error",
			Value:   c.Launch.OnSpawnError,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidSpawnErrorPolicies(), ", ")),
		})
	}
	if c.Launch.StopTimeoutSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "launch.stop_timeout_seconds",
			Value:   c.Launch.StopTimeoutSeconds,
			Message: "must be non-negative",
		})
	}

	return errs
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errs []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	for _, f := range []struct {
		field string
		value int
	}{
		{"logging.max_size_mb", c.Logging.MaxSizeMB},
		{"logging.max_backups", c.Logging.MaxBackups},
		{"logging.sink_max_size_mb", c.Logging.SinkMaxSizeMB},
		{"logging.sink_max_backups", c.Logging.SinkMaxBackups},
	} {
		if f.value < 0 {
			errs = append(errs, ValidationError{
				Field:   f.field,
				Value:   f.value,
				Message: "must be non-negative",
			})
		}
	}

	return errs
}
