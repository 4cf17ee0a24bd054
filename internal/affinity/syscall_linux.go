//go:build linux

package affinity

import (
	"context"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/Iron-Ham/corefork/internal/errors"
)

// cpuSetBits is the number of cores a unix.CPUSet can address, whatever the
// word size of the platform.
const cpuSetBits = int(unsafe.Sizeof(unix.CPUSet{})) * 8

// SyscallBinder binds with sched_setaffinity(2), without an external tool.
type SyscallBinder struct{}

// Bind implements Binder.
func (SyscallBinder) Bind(_ context.Context, pid, core int) error {
	var set unix.CPUSet
	if core < 0 || core >= cpuSetBits {
		return errors.NewAffinityBindError("core index out of range", errors.ErrInvalidInput).WithCore(core).WithPID(pid)
	}
	set.Zero()
	set.Set(core)
	if err := unix.SchedSetaffinity(pid, &set); err != nil {
		return errors.NewAffinityBindError("sched_setaffinity failed", err).WithCore(core).WithPID(pid)
	}
	return nil
}

// Current returns the cores pid may currently run on.
func Current(pid int) ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(pid, &set); err != nil {
		return nil, err
	}
	var cores []int
	for i := 0; i < cpuSetBits; i++ {
		if set.IsSet(i) {
			cores = append(cores, i)
		}
	}
	return cores, nil
}
