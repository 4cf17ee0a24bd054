//go:build !linux

package affinity

import (
	"context"

	"github.com/Iron-Ham/corefork/internal/errors"
)

// SyscallBinder is unavailable outside Linux.
type SyscallBinder struct{}

// Bind always fails with an AffinityBindError.
func (SyscallBinder) Bind(_ context.Context, pid, core int) error {
	return errors.NewAffinityBindError("sched_setaffinity is only available on linux", errors.ErrBindFailed).
		WithCore(core).
		WithPID(pid)
}

// Current is unavailable outside Linux.
func Current(int) ([]int, error) {
	return nil, errors.ErrBindFailed
}
