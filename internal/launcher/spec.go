package launcher

import (
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/Iron-Ham/corefork/internal/stream"
)

// InterpreterNone runs the executable path directly.
const InterpreterNone = "none"

// IPC environment understood by Node's child_process channel.
const (
	EnvChannelFD            = "NODE_CHANNEL_FD"
	EnvChannelSerialization = "NODE_CHANNEL_SERIALIZATION_MODE"
	ChannelFD               = 3
)

// ProcessSpec describes the application launched on every core.
type ProcessSpec struct {
	Name  string `mapstructure:"name" yaml:"name"`
	AppID string `mapstructure:"app_id" yaml:"app_id"`

	// Interpreter runs ExecPath. Empty or "none" executes ExecPath directly.
	Interpreter     string   `mapstructure:"interpreter" yaml:"interpreter"`
	InterpreterArgs []string `mapstructure:"interpreter_args" yaml:"interpreter_args"`

	ExecPath string            `mapstructure:"exec_path" yaml:"exec_path"`
	Args     []string          `mapstructure:"args" yaml:"args"`
	Env      map[string]string `mapstructure:"env" yaml:"env"`
	Cwd      string            `mapstructure:"cwd" yaml:"cwd"`

	OutLogPath      string `mapstructure:"out_log" yaml:"out_log"`
	ErrLogPath      string `mapstructure:"err_log" yaml:"err_log"`
	CombinedLogPath string `mapstructure:"combined_log" yaml:"combined_log"`

	// LogDateFormat is a Go time layout. When set every chunk written to the
	// sinks is prefixed with "<time>: ".
	LogDateFormat string `mapstructure:"log_date_format" yaml:"log_date_format"`

	PIDFile string `mapstructure:"pid_file" yaml:"pid_file"`
}

// Clone returns a deep copy, so a launch never observes later edits.
func (s ProcessSpec) Clone() ProcessSpec {
	s.InterpreterArgs = slices.Clone(s.InterpreterArgs)
	s.Args = slices.Clone(s.Args)
	s.Env = maps.Clone(s.Env)
	return s
}

// Paths returns the sink paths of s.
func (s ProcessSpec) Paths() stream.Paths {
	return stream.Paths{Out: s.OutLogPath, Err: s.ErrLogPath, Combined: s.CombinedLogPath}
}

// UsesInterpreter reports whether ExecPath is run through an interpreter.
func (s ProcessSpec) UsesInterpreter() bool {
	return s.Interpreter != "" && s.Interpreter != InterpreterNone
}

// ResolveCommand returns the binary and arguments for spec. With an
// interpreter the arguments are interpreter args, extra runtime options, the
// executable path and the user arguments, in that order. Without one the
// executable runs with only the user arguments.
func ResolveCommand(spec ProcessSpec, extraOptions []string) (string, []string) {
	if !spec.UsesInterpreter() {
		return spec.ExecPath, slices.Clone(spec.Args)
	}
	args := make([]string, 0, len(spec.InterpreterArgs)+len(extraOptions)+1+len(spec.Args))
	args = append(args, spec.InterpreterArgs...)
	args = append(args, extraOptions...)
	args = append(args, spec.ExecPath)
	args = append(args, spec.Args...)
	return spec.Interpreter, args
}

// ExtraOptionsFromEnv splits the value of the environment variable name on
// whitespace. An empty name or unset variable yields no options.
func ExtraOptionsFromEnv(name string) []string {
	if name == "" {
		return nil
	}
	return strings.Fields(os.Getenv(name))
}

// BuildEnv returns base overlaid with spec.Env and the IPC channel variables.
// Later entries win, and spec.Env keys are applied in sorted order.
func BuildEnv(base []string, spec ProcessSpec) []string {
	env := make([]string, 0, len(base)+len(spec.Env)+2)
	env = append(env, base...)
	for _, k := range slices.Sorted(maps.Keys(spec.Env)) {
		env = append(env, k+"="+spec.Env[k])
	}
	env = append(env,
		EnvChannelFD+"=3",
		EnvChannelSerialization+"=json",
	)
	return env
}
