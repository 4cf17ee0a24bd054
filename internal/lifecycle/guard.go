// Package lifecycle tracks the state of one worker process.
//
// A Guard moves through SPAWNING → ONLINE → STOPPED, with ERRORED reachable
// only from SPAWNING. Entering ONLINE records the pid in the pid file;
// entering STOPPED closes the worker's sinks exactly once. Every other
// transition fails with errors.ErrInvalidTransition and leaves the state
// unchanged.
package lifecycle

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/corefork/internal/errors"
	"github.com/Iron-Ham/corefork/internal/event"
)

// State is a worker lifecycle state.
type State int

const (
	Spawning State = iota
	Online
	Stopped
	Errored
)

// String returns the status name used in process records.
func (s State) String() string {
	switch s {
	case Spawning:
		return "spawning"
	case Online:
		return "online"
	case Stopped:
		return "stopped"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Stopped || s == Errored
}

// Config configures a Guard.
type Config struct {
	// Fs is where the pid file is written. Nil means the OS filesystem.
	Fs afero.Fs
	// PIDFile is overwritten with the pid on ONLINE. Empty disables it.
	PIDFile string
	// Bus receives process.online, process.exit and process.error.
	Bus event.Publisher
	// Record returns the identity attached to published events. When nil the
	// guard builds one from Identity, its pid and its state.
	Record func() event.ProcessRecord
	// Identity is the base record used when Record is nil.
	Identity event.ProcessRecord
}

// Guard is the state machine of one worker. It is safe for concurrent use.
type Guard struct {
	cfg Config

	mu       sync.Mutex
	state    State
	pid      int
	exitCode int
	err      error
	sinks    io.Closer
}

// New returns a Guard in SPAWNING.
func New(cfg Config) *Guard {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	return &Guard{cfg: cfg, state: Spawning}
}

func (g *Guard) transition(to State, allowed ...State) error {
	for _, from := range allowed {
		if g.state == from {
			g.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", errors.ErrInvalidTransition, g.state, to)
}

// Online records pid and moves SPAWNING to ONLINE. The pid file is
// overwritten, so when several workers share one path the last one wins. A
// pid file failure is returned but the worker stays ONLINE.
func (g *Guard) Online(pid int) error {
	g.mu.Lock()
	if err := g.transition(Online, Spawning); err != nil {
		g.mu.Unlock()
		return err
	}
	g.pid = pid
	g.mu.Unlock()

	var pidErr error
	if g.cfg.PIDFile != "" {
		if err := afero.WriteFile(g.cfg.Fs, g.cfg.PIDFile, []byte(strconv.Itoa(pid)), 0o644); err != nil {
			pidErr = errors.Wrapf(err, "failed to write pid file %s", g.cfg.PIDFile)
		}
	}

	g.publish(event.NewProcessOnlineEvent(g.Record()))
	return pidErr
}

// Attach hands the worker's sinks to the guard, which closes them on STOPPED.
// It is only valid while ONLINE.
func (g *Guard) Attach(sinks io.Closer) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != Online {
		return fmt.Errorf("%w: attach sinks while %s", errors.ErrInvalidTransition, g.state)
	}
	g.sinks = sinks
	return nil
}

// Stopped moves ONLINE to STOPPED after the process closed, closes the sinks
// and publishes process.exit. cause is the wait error, if any.
func (g *Guard) Stopped(exitCode int, cause error) error {
	g.mu.Lock()
	if err := g.transition(Stopped, Online); err != nil {
		g.mu.Unlock()
		return err
	}
	g.exitCode = exitCode
	g.err = cause
	sinks := g.sinks
	g.sinks = nil
	g.mu.Unlock()

	var closeErr error
	if sinks != nil {
		closeErr = sinks.Close()
	}

	g.publish(event.NewProcessExitEvent(exitCode, cause, g.Record()))
	return closeErr
}

// Errored moves SPAWNING to ERRORED after a failed spawn and publishes
// process.error.
func (g *Guard) Errored(cause error) error {
	g.mu.Lock()
	if err := g.transition(Errored, Spawning); err != nil {
		g.mu.Unlock()
		return err
	}
	g.err = cause
	g.mu.Unlock()

	g.publish(event.NewProcessErrorEvent(cause, g.Record()))
	return nil
}

// State returns the current state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// PID returns the recorded pid, 0 before ONLINE.
func (g *Guard) PID() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pid
}

// ExitCode returns the exit code recorded on STOPPED.
func (g *Guard) ExitCode() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exitCode
}

// Err returns the spawn error (ERRORED) or wait error (STOPPED).
func (g *Guard) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Record returns the identity attached to events.
func (g *Guard) Record() event.ProcessRecord {
	if g.cfg.Record != nil {
		return g.cfg.Record()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	rec := g.cfg.Identity
	rec.PID = g.pid
	rec.Status = g.state.String()
	return rec
}

func (g *Guard) publish(e event.Event) {
	if g.cfg.Bus != nil {
		g.cfg.Bus.Publish(e)
	}
}
