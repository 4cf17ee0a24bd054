// Package affinity pins worker processes to a single logical core.
//
// The default [TasksetBinder] runs the external taskset tool with a
// hexadecimal mask. [SyscallBinder] calls sched_setaffinity directly on Linux.
// Binding failures are returned as *errors.AffinityBindError so the launcher
// can surface them per core instead of leaving a worker silently unpinned.
package affinity

import (
	"context"
	"fmt"
	"math/big"
	"os/exec"

	"github.com/Iron-Ham/corefork/internal/errors"
)

// Binder kinds accepted by New.
const (
	KindTaskset = "taskset"
	KindSyscall = "syscall"
	KindNone    = "none"
)

// DefaultTasksetPath is the taskset binary used when none is configured.
const DefaultTasksetPath = "taskset"

// Mask returns the affinity mask selecting only core. Exactly one bit is set.
func Mask(core int) *big.Int {
	if core < 0 {
		return new(big.Int)
	}
	return new(big.Int).Lsh(big.NewInt(1), uint(core))
}

// HexMask renders the mask for core the way taskset expects it, e.g. "0x4"
// for core 2.
func HexMask(core int) string {
	return "0x" + Mask(core).Text(16)
}

// Binder pins a running process to one core.
type Binder interface {
	Bind(ctx context.Context, pid, core int) error
}

// CommandRunner runs a command and returns its combined output.
type CommandRunner interface {
	CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// TasksetBinder binds with "taskset -p <hexmask> <pid>".
type TasksetBinder struct {
	Path   string
	Runner CommandRunner
}

// NewTasksetBinder returns a TasksetBinder using path, or taskset from PATH.
func NewTasksetBinder(path string) *TasksetBinder {
	if path == "" {
		path = DefaultTasksetPath
	}
	return &TasksetBinder{Path: path, Runner: execRunner{}}
}

// Args returns the taskset arguments used to bind pid to core.
func (b *TasksetBinder) Args(pid, core int) []string {
	return []string{"-p", HexMask(core), fmt.Sprint(pid)}
}

// Bind implements Binder.
func (b *TasksetBinder) Bind(ctx context.Context, pid, core int) error {
	if core < 0 {
		return errors.NewAffinityBindError("negative core index", errors.ErrInvalidInput).WithCore(core).WithPID(pid)
	}
	runner := b.Runner
	if runner == nil {
		runner = execRunner{}
	}
	out, err := runner.CombinedOutput(ctx, b.Path, b.Args(pid, core)...)
	if err != nil {
		return errors.NewAffinityBindError("taskset failed", err).
			WithCore(core).
			WithPID(pid).
			WithOutput(string(out))
	}
	return nil
}

// NopBinder leaves processes unpinned.
type NopBinder struct{}

// Bind implements Binder.
func (NopBinder) Bind(context.Context, int, int) error { return nil }

// BinderFunc adapts a function to Binder.
type BinderFunc func(ctx context.Context, pid, core int) error

// Bind calls f.
func (f BinderFunc) Bind(ctx context.Context, pid, core int) error { return f(ctx, pid, core) }

// New returns the binder for kind. tasksetPath only applies to KindTaskset.
func New(kind, tasksetPath string) (Binder, error) {
	switch kind {
	case "", KindTaskset:
		return NewTasksetBinder(tasksetPath), nil
	case KindSyscall:
		return SyscallBinder{}, nil
	case KindNone:
		return NopBinder{}, nil
	default:
		return nil, errors.NewValidationError("unknown affinity binder").WithField("affinity.binder").WithValue(kind)
	}
}
