package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete corefork configuration
type Config struct {
	App      AppConfig      `mapstructure:"app" yaml:"app"`
	Topology TopologyConfig `mapstructure:"topology" yaml:"topology"`
	Affinity AffinityConfig `mapstructure:"affinity" yaml:"affinity"`
	Launch   LaunchConfig   `mapstructure:"launch" yaml:"launch"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

// AppConfig describes the application launched on every core
type AppConfig struct {
	Name  string `mapstructure:"name" yaml:"name"`
	AppID string `mapstructure:"app_id" yaml:"app_id"`
	// Interpreter runs ExecPath. "none" (or empty) executes ExecPath directly.
	Interpreter     string   `mapstructure:"interpreter" yaml:"interpreter"`
	InterpreterArgs []string `mapstructure:"interpreter_args" yaml:"interpreter_args"`
	ExecPath        string   `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string `mapstructure:"args" yaml:"args"`
	// Env holds KEY=VALUE entries applied on top of the supervisor's
	// environment. A list keeps key case, which viper folds for map keys.
	Env []string `mapstructure:"env" yaml:"env"`
	Cwd string            `mapstructure:"cwd" yaml:"cwd"`
	// OutLog and ErrLog receive stdout and stderr. CombinedLog, when set,
	// receives both.
	OutLog      string `mapstructure:"out_log" yaml:"out_log"`
	ErrLog      string `mapstructure:"err_log" yaml:"err_log"`
	CombinedLog string `mapstructure:"combined_log" yaml:"combined_log"`
	// LogDateFormat is a Go time layout prefixed to every log chunk. Empty
	// disables the prefix.
	LogDateFormat string `mapstructure:"log_date_format" yaml:"log_date_format"`
	PIDFile       string `mapstructure:"pid_file" yaml:"pid_file"`
}

// TopologyConfig controls core discovery
type TopologyConfig struct {
	// Command prints "key: value" lines with a CPU(s) key (default: lscpu)
	Command string   `mapstructure:"command" yaml:"command"`
	Args    []string `mapstructure:"args" yaml:"args"`
	// TimeoutSeconds bounds the topology query (0 = no timeout)
	TimeoutSeconds int `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	// Cores skips discovery and uses a fixed core count when positive
	Cores int `mapstructure:"cores" yaml:"cores"`
}

// Timeout returns the topology query timeout as a Duration
func (c *TopologyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AffinityConfig controls how workers are pinned to cores
type AffinityConfig struct {
	// Binder is one of "taskset", "syscall" or "none"
	Binder string `mapstructure:"binder" yaml:"binder"`
	// TasksetPath is the taskset binary used by the taskset binder
	TasksetPath string `mapstructure:"taskset_path" yaml:"taskset_path"`
}

// LaunchConfig controls the fan-out launch
type LaunchConfig struct {
	// OnSpawnError is "continue" (launch remaining cores) or "abort"
	OnSpawnError string `mapstructure:"on_spawn_error" yaml:"on_spawn_error"`
	// ExtraOptionsEnv names the environment variable holding extra
	// interpreter options, split on whitespace
	ExtraOptionsEnv string `mapstructure:"extra_options_env" yaml:"extra_options_env"`
	// StopTimeoutSeconds is the grace period between SIGTERM and SIGKILL
	StopTimeoutSeconds int `mapstructure:"stop_timeout_seconds" yaml:"stop_timeout_seconds"`
}

// StopTimeout returns the stop grace period as a Duration
func (c *LaunchConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutSeconds) * time.Second
}

// LoggingConfig controls the supervisor log and worker sinks
type LoggingConfig struct {
	// Enabled writes the supervisor log to Dir instead of stderr
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
	// Level is one of "debug", "info", "warn", "error"
	Level      string `mapstructure:"level" yaml:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
	// SinkMaxSizeMB enables size-based rotation of worker sinks (0 = off)
	SinkMaxSizeMB  int `mapstructure:"sink_max_size_mb" yaml:"sink_max_size_mb"`
	SinkMaxBackups int `mapstructure:"sink_max_backups" yaml:"sink_max_backups"`
	// WatchSinks reopens worker sinks renamed or removed by an external tool
	WatchSinks bool `mapstructure:"watch_sinks" yaml:"watch_sinks"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:        "app",
			AppID:       "0",
			Interpreter: "node",
		},
		Topology: TopologyConfig{
			Command:        "lscpu",
			TimeoutSeconds: 10,
		},
		Affinity: AffinityConfig{
			Binder:      "taskset",
			TasksetPath: "taskset",
		},
		Launch: LaunchConfig{
			OnSpawnError:       "continue",
			ExtraOptionsEnv:    "COREFORK_NODE_OPTIONS",
			StopTimeoutSeconds: 10,
		},
		Logging: LoggingConfig{
			Enabled:        false,
			Level:          "info",
			MaxSizeMB:      10,
			MaxBackups:     3,
			SinkMaxBackups: 3,
			WatchSinks:     true,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// App defaults
	viper.SetDefault("app.name", defaults.App.Name)
	viper.SetDefault("app.app_id", defaults.App.AppID)
	viper.SetDefault("app.interpreter", defaults.App.Interpreter)
	viper.SetDefault("app.interpreter_args", []string{})
	viper.SetDefault("app.exec_path", "")
	viper.SetDefault("app.args", []string{})
	viper.SetDefault("app.env", []string{})
	viper.SetDefault("app.cwd", "")
	viper.SetDefault("app.out_log", "")
	viper.SetDefault("app.err_log", "")
	viper.SetDefault("app.combined_log", "")
	viper.SetDefault("app.log_date_format", "")
	viper.SetDefault("app.pid_file", "")

	// Topology defaults
	viper.SetDefault("topology.command", defaults.Topology.Command)
	viper.SetDefault("topology.args", []string{})
	viper.SetDefault("topology.timeout_seconds", defaults.Topology.TimeoutSeconds)
	viper.SetDefault("topology.cores", defaults.Topology.Cores)

	// Affinity defaults
	viper.SetDefault("affinity.binder", defaults.Affinity.Binder)
	viper.SetDefault("affinity.taskset_path", defaults.Affinity.TasksetPath)

	// Launch defaults
	viper.SetDefault("launch.on_spawn_error", defaults.Launch.OnSpawnError)
	viper.SetDefault("launch.extra_options_env", defaults.Launch.ExtraOptionsEnv)
	viper.SetDefault("launch.stop_timeout_seconds", defaults.Launch.StopTimeoutSeconds)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)
	viper.SetDefault("logging.sink_max_size_mb", defaults.Logging.SinkMaxSizeMB)
	viper.SetDefault("logging.sink_max_backups", defaults.Logging.SinkMaxBackups)
	viper.SetDefault("logging.watch_sinks", defaults.Logging.WatchSinks)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the directory where config files are stored
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "corefork")
	}
	// Fall back to ~/.config/corefork
	home, err := os.UserHomeDir()
	if err != nil {
		return ".corefork"
	}
	return filepath.Join(home, ".config", "corefork")
}

// ConfigFile returns the path to the main config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// EnvMap returns App.Env as a map. Entries without "=" are ignored.
func (c *AppConfig) EnvMap() map[string]string {
	env := make(map[string]string, len(c.Env))
	for _, kv := range c.Env {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}

// LogDir returns the supervisor log directory, defaulting to a logs folder
// next to the config file
func (c *Config) LogDir() string {
	if c.Logging.Dir != "" {
		return c.Logging.Dir
	}
	return filepath.Join(ConfigDir(), "logs")
}
