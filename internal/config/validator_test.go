package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default config should be valid, got: %v", ValidationErrors(errs))
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{
			name:      "unknown binder",
			modify:    func(c *Config) { c.Affinity.Binder = "cgroups" },
			wantField: "affinity.binder",
		},
		{
			name:      "unknown spawn policy",
			modify:    func(c *Config) { c.Launch.OnSpawnError = "retry" },
			wantField: "launch.on_spawn_error",
		},
		{
			name:      "negative stop timeout",
			modify:    func(c *Config) { c.Launch.StopTimeoutSeconds = -1 },
			wantField: "launch.stop_timeout_seconds",
		},
		{
			name:      "no topology source",
			modify:    func(c *Config) { c.Topology.Command = "" },
			wantField: "topology.command",
		},
		{
			name:      "negative cores",
			modify:    func(c *Config) { c.Topology.Cores = -2 },
			wantField: "topology.cores",
		},
		{
			name:      "negative timeout",
			modify:    func(c *Config) { c.Topology.TimeoutSeconds = -1 },
			wantField: "topology.timeout_seconds",
		},
		{
			name:      "bad log level",
			modify:    func(c *Config) { c.Logging.Level = "verbose" },
			wantField: "logging.level",
		},
		{
			name:      "negative sink size",
			modify:    func(c *Config) { c.Logging.SinkMaxSizeMB = -5 },
			wantField: "logging.sink_max_size_mb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() returned %d errors, want 1: %v", len(errs), ValidationErrors(errs))
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.wantField)
			}
		})
	}
}

func TestConfig_Validate_FixedCoresNeedsNoCommand(t *testing.T) {
	cfg := Default()
	cfg.Topology.Command = ""
	cfg.Topology.Cores = 2
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", ValidationErrors(errs))
	}
}

func TestConfig_Validate_LogLevelCaseInsensitive(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "DEBUG"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", ValidationErrors(errs))
	}
}

func TestConfig_ValidateApp(t *testing.T) {
	cfg := Default()
	errs := cfg.ValidateApp()
	if len(errs) != 1 || errs[0].Field != "app.exec_path" {
		t.Fatalf("ValidateApp() = %v, want app.exec_path error", ValidationErrors(errs))
	}

	cfg.App.ExecPath = "/app/server.js"
	if errs := cfg.ValidateApp(); len(errs) != 0 {
		t.Errorf("ValidateApp() = %v, want no errors", ValidationErrors(errs))
	}

	cfg.App.Name = " "
	if errs := cfg.ValidateApp(); len(errs) != 1 || errs[0].Field != "app.name" {
		t.Errorf("ValidateApp() = %v, want app.name error", ValidationErrors(errs))
	}
}
