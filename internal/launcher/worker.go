package launcher

import (
	"context"
	"io"
	"syscall"
	"time"

	"github.com/Iron-Ham/corefork/internal/errors"
	"github.com/Iron-Ham/corefork/internal/event"
	"github.com/Iron-Ham/corefork/internal/lifecycle"
	"github.com/Iron-Ham/corefork/internal/relay"
	"github.com/Iron-Ham/corefork/internal/stream"
)

// DefaultStopTimeout is how long Stop waits after SIGTERM before SIGKILL.
const DefaultStopTimeout = 10 * time.Second

// RecordFormatter builds the process record attached to every event a worker
// publishes.
type RecordFormatter func(w *Worker) event.ProcessRecord

// DefaultRecord formats a worker as name, app id, batch, core, pid and
// lifecycle status.
func DefaultRecord(w *Worker) event.ProcessRecord {
	return event.ProcessRecord{
		Name:    w.spec.Name,
		AppID:   w.spec.AppID,
		BatchID: w.batchID,
		Core:    w.core,
		PID:     w.PID(),
		Status:  w.State().String(),
	}
}

// Worker is the handle of one process pinned to one core. It stays readable
// after the process exits.
type Worker struct {
	spec    ProcessSpec
	core    int
	batchID string

	guard     *lifecycle.Guard
	proc      Process
	sinks     *stream.SinkSet
	channel   *relay.Channel
	bus       event.Publisher
	formatter RecordFormatter
	bindErr   error

	stopTimeout time.Duration
	done        chan struct{}
}

// PID returns the process id, 0 if the worker never came online.
func (w *Worker) PID() int { return w.guard.PID() }

// Core returns the core index the worker is bound to.
func (w *Worker) Core() int { return w.core }

// BatchID returns the id of the launch that created the worker.
func (w *Worker) BatchID() string { return w.batchID }

// State returns the lifecycle state.
func (w *Worker) State() lifecycle.State { return w.guard.State() }

// Spec returns the ProcessSpec the worker was launched from.
func (w *Worker) Spec() ProcessSpec { return w.spec.Clone() }

// Sinks returns the worker's log sinks.
func (w *Worker) Sinks() *stream.SinkSet { return w.sinks }

// BindErr returns the affinity binding failure, if binding failed.
func (w *Worker) BindErr() error { return w.bindErr }

// ExitCode returns the exit code once the worker stopped.
func (w *Worker) ExitCode() int { return w.guard.ExitCode() }

// Done is closed after the worker stopped and its sinks were closed.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Record returns the worker's process record.
func (w *Worker) Record() event.ProcessRecord { return w.formatter(w) }

// Stdin returns the write end of the worker's standard input.
func (w *Worker) Stdin() io.WriteCloser { return w.proc.Stdin() }

// Send writes v to the worker over the IPC channel as one JSON message.
func (w *Worker) Send(v any) error {
	if w.State() != lifecycle.Online {
		return errors.ErrNotRunning
	}
	return w.channel.Send(v)
}

// ReloadLogs closes and reopens the worker's sinks at the same paths and
// publishes log.rotated. A worker that already stopped keeps its sinks closed
// and gets errors.ErrNotRunning.
func (w *Worker) ReloadLogs() error {
	if w.State().Terminal() {
		return errors.ErrNotRunning
	}
	err := w.sinks.Rotate()
	if errors.Is(err, errors.ErrSinkClosed) {
		return errors.ErrNotRunning
	}
	if w.bus != nil {
		w.bus.Publish(event.NewLogsRotatedEvent(w.sinks.Paths().List(), w.Record()))
	}
	return err
}

// Stop sends SIGTERM to the worker's process group and SIGKILL if it has not
// exited after the stop timeout. It returns once the worker stopped or ctx is
// done. Stopping a stopped worker is a no-op.
func (w *Worker) Stop(ctx context.Context) error {
	if w.State().Terminal() {
		return nil
	}
	if err := w.proc.Signal(syscall.SIGTERM); err != nil {
		return errors.Wrapf(err, "failed to signal worker %d", w.PID())
	}

	timer := time.NewTimer(w.stopTimeout)
	defer timer.Stop()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if err := w.proc.Signal(syscall.SIGKILL); err != nil {
		return errors.Wrapf(err, "failed to kill worker %d", w.PID())
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
