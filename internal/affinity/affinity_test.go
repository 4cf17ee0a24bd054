package affinity

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Iron-Ham/corefork/internal/errors"
)

func TestMask_SingleBit(t *testing.T) {
	seen := make(map[string]bool)
	for core := 0; core < 130; core++ {
		m := Mask(core)
		require.Equal(t, 1, popCount(m.Bits()), "core %d", core)
		assert.Equal(t, core, m.BitLen()-1, "core %d", core)

		hex := HexMask(core)
		assert.False(t, seen[hex], "mask %s repeated", hex)
		seen[hex] = true
	}
}

func popCount(words []big.Word) int {
	n := 0
	for _, w := range words {
		n += bits.OnesCount(uint(w))
	}
	return n
}

func TestHexMask(t *testing.T) {
	tests := []struct {
		core int
		want string
	}{
		{0, "0x1"},
		{1, "0x2"},
		{2, "0x4"},
		{7, "0x80"},
		{63, "0x8000000000000000"},
		{64, "0x10000000000000000"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.core), func(t *testing.T) {
			assert.Equal(t, tt.want, HexMask(tt.core))
		})
	}
}

type fakeRunner struct {
	name string
	args []string
	out  []byte
	err  error
}

func (f *fakeRunner) CombinedOutput(_ context.Context, name string, args ...string) ([]byte, error) {
	f.name = name
	f.args = args
	return f.out, f.err
}

func TestTasksetBinder_Bind(t *testing.T) {
	runner := &fakeRunner{out: []byte("pid 4242's new affinity mask: 4\n")}
	b := NewTasksetBinder("")
	b.Runner = runner

	require.NoError(t, b.Bind(context.Background(), 4242, 2))
	assert.Equal(t, DefaultTasksetPath, runner.name)
	assert.Equal(t, []string{"-p", "0x4", "4242"}, runner.args)
}

func TestTasksetBinder_Failure(t *testing.T) {
	runner := &fakeRunner{
		out: []byte("taskset: failed to set pid 4242's affinity: Invalid argument\n"),
		err: errors.New("exit status 1"),
	}
	b := &TasksetBinder{Path: "/usr/bin/taskset", Runner: runner}

	err := b.Bind(context.Background(), 4242, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ferrors.ErrBindFailed)

	var bindErr *ferrors.AffinityBindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, 5, bindErr.Core)
	assert.Equal(t, 4242, bindErr.PID)
	assert.Contains(t, bindErr.Output, "Invalid argument")
	assert.Equal(t, "/usr/bin/taskset", runner.name)
}

func TestTasksetBinder_NegativeCore(t *testing.T) {
	runner := &fakeRunner{}
	b := &TasksetBinder{Path: "taskset", Runner: runner}

	err := b.Bind(context.Background(), 1, -1)
	assert.ErrorIs(t, err, ferrors.ErrBindFailed)
	assert.Empty(t, runner.name, "taskset must not run for an invalid core")
}

func TestNew(t *testing.T) {
	tests := []struct {
		kind    string
		want    any
		wantErr bool
	}{
		{"", &TasksetBinder{}, false},
		{KindTaskset, &TasksetBinder{}, false},
		{KindSyscall, SyscallBinder{}, false},
		{KindNone, NopBinder{}, false},
		{"cgroup", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			b, err := New(tt.kind, "")
			if tt.wantErr {
				assert.ErrorIs(t, err, ferrors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, b)
		})
	}
}

func TestBinderFunc(t *testing.T) {
	var gotPID, gotCore int
	b := BinderFunc(func(_ context.Context, pid, core int) error {
		gotPID, gotCore = pid, core
		return nil
	})
	require.NoError(t, b.Bind(context.Background(), 10, 3))
	assert.Equal(t, 10, gotPID)
	assert.Equal(t, 3, gotCore)
	assert.NoError(t, NopBinder{}.Bind(context.Background(), 1, 1))
}
