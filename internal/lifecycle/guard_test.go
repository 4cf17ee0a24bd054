package lifecycle

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/Iron-Ham/corefork/internal/errors"
	"github.com/Iron-Ham/corefork/internal/event"
)

type countingCloser struct{ n int }

func (c *countingCloser) Close() error {
	c.n++
	return nil
}

func newGuard(t *testing.T) (*Guard, afero.Fs, *event.Recorder) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/run", 0o755))
	bus := &event.Recorder{}
	g := New(Config{
		Fs:       fs,
		PIDFile:  "/run/api.pid",
		Bus:      bus,
		Identity: event.ProcessRecord{Name: "api", AppID: "0", Core: 1},
	})
	return g, fs, bus
}

func TestGuard_HappyPath(t *testing.T) {
	g, fs, bus := newGuard(t)
	assert.Equal(t, Spawning, g.State())

	require.NoError(t, g.Online(4242))
	assert.Equal(t, Online, g.State())
	assert.Equal(t, 4242, g.PID())

	pid, err := afero.ReadFile(fs, "/run/api.pid")
	require.NoError(t, err)
	assert.Equal(t, "4242", string(pid))

	sinks := &countingCloser{}
	require.NoError(t, g.Attach(sinks))
	require.NoError(t, g.Stopped(3, nil))
	assert.Equal(t, Stopped, g.State())
	assert.Equal(t, 3, g.ExitCode())
	assert.Equal(t, 1, sinks.n)

	online := bus.OfType(event.TypeProcessOnline)
	require.Len(t, online, 1)
	rec := online[0].(event.ProcessOnlineEvent).Process
	assert.Equal(t, "online", rec.Status)
	assert.Equal(t, 4242, rec.PID)
	assert.Equal(t, "api", rec.Name)

	exits := bus.OfType(event.TypeProcessExit)
	require.Len(t, exits, 1)
	exit := exits[0].(event.ProcessExitEvent)
	assert.Equal(t, 3, exit.ExitCode)
	assert.Equal(t, "stopped", exit.Process.Status)
}

func TestGuard_SinksClosedExactlyOnce(t *testing.T) {
	g, _, _ := newGuard(t)
	sinks := &countingCloser{}
	require.NoError(t, g.Online(1))
	require.NoError(t, g.Attach(sinks))

	require.NoError(t, g.Stopped(0, nil))
	err := g.Stopped(0, nil)
	assert.ErrorIs(t, err, ferrors.ErrInvalidTransition)
	assert.Equal(t, 1, sinks.n)
}

func TestGuard_PIDFileLastWriterWins(t *testing.T) {
	fs := afero.NewMemMapFs()
	first := New(Config{Fs: fs, PIDFile: "/api.pid"})
	second := New(Config{Fs: fs, PIDFile: "/api.pid"})

	require.NoError(t, first.Online(100000))
	require.NoError(t, second.Online(7))

	pid, err := afero.ReadFile(fs, "/api.pid")
	require.NoError(t, err)
	assert.Equal(t, "7", string(pid))
}

func TestGuard_Errored(t *testing.T) {
	g, _, bus := newGuard(t)
	cause := errors.New("exec: not found")

	require.NoError(t, g.Errored(cause))
	assert.Equal(t, Errored, g.State())
	assert.Equal(t, cause, g.Err())

	events := bus.OfType(event.TypeProcessError)
	require.Len(t, events, 1)
	assert.Equal(t, "exec: not found", events[0].(event.ProcessErrorEvent).Error)
}

func TestGuard_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(g *Guard)
		step  func(g *Guard) error
		want  State
	}{
		{
			name:  "stop before online",
			setup: func(*Guard) {},
			step:  func(g *Guard) error { return g.Stopped(0, nil) },
			want:  Spawning,
		},
		{
			name:  "error after online",
			setup: func(g *Guard) { _ = g.Online(1) },
			step:  func(g *Guard) error { return g.Errored(errors.New("late")) },
			want:  Online,
		},
		{
			name:  "online twice",
			setup: func(g *Guard) { _ = g.Online(1) },
			step:  func(g *Guard) error { return g.Online(2) },
			want:  Online,
		},
		{
			name:  "online after error",
			setup: func(g *Guard) { _ = g.Errored(nil) },
			step:  func(g *Guard) error { return g.Online(1) },
			want:  Errored,
		},
		{
			name:  "attach while spawning",
			setup: func(*Guard) {},
			step:  func(g *Guard) error { return g.Attach(&countingCloser{}) },
			want:  Spawning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(Config{Fs: afero.NewMemMapFs()})
			tt.setup(g)
			err := tt.step(g)
			assert.ErrorIs(t, err, ferrors.ErrInvalidTransition)
			assert.Equal(t, tt.want, g.State())
		})
	}
}

func TestGuard_PIDFileFailureKeepsOnline(t *testing.T) {
	g := New(Config{Fs: afero.NewReadOnlyFs(afero.NewMemMapFs()), PIDFile: "/api.pid"})

	err := g.Online(5)
	assert.Error(t, err)
	assert.Equal(t, Online, g.State())
}

func TestGuard_CustomRecord(t *testing.T) {
	bus := &event.Recorder{}
	g := New(Config{
		Fs:     afero.NewMemMapFs(),
		Bus:    bus,
		Record: func() event.ProcessRecord { return event.ProcessRecord{Name: "custom"} },
	})
	require.NoError(t, g.Online(1))
	assert.Equal(t, "custom", bus.Events()[0].(event.ProcessOnlineEvent).Process.Name)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "spawning", Spawning.String())
	assert.Equal(t, "online", Online.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "errored", Errored.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, Stopped.Terminal())
	assert.False(t, Online.Terminal())
}
