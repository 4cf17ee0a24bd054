// Package launcher fans one application out across every usable core.
//
// LaunchAll resolves the core count, then spawns one worker per core index in
// ascending order. Each worker is pinned to its core, gets its own log sinks,
// stream pipeline, message relay and lifecycle guard, and runs its stream
// pumps in a conc.WaitGroup joined by a reaper goroutine. A failed spawn only
// affects its own core unless the abort policy is configured.
package launcher

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/corefork/internal/affinity"
	"github.com/Iron-Ham/corefork/internal/errors"
	"github.com/Iron-Ham/corefork/internal/event"
	"github.com/Iron-Ham/corefork/internal/lifecycle"
	"github.com/Iron-Ham/corefork/internal/logging"
	"github.com/Iron-Ham/corefork/internal/relay"
	"github.com/Iron-Ham/corefork/internal/stream"
	"github.com/Iron-Ham/corefork/internal/topology"
)

// SpawnErrorPolicy decides what LaunchAll does after a core failed to spawn.
type SpawnErrorPolicy string

const (
	// PolicyContinue launches the remaining cores.
	PolicyContinue SpawnErrorPolicy = "continue"
	// PolicyAbort skips the remaining cores. Running workers are untouched.
	PolicyAbort SpawnErrorPolicy = "abort"
)

// ErrSkipped marks cores not attempted because an earlier core failed under
// PolicyAbort or the context was cancelled.
var ErrSkipped = errors.New("launch skipped")

// Options are the collaborators of a Launcher. Zero fields get defaults.
type Options struct {
	Topology topology.Discoverer
	Starter  Starter
	Binder   affinity.Binder
	Bus      event.Publisher
	Reporter errors.Reporter
	Logger   *logging.Logger
	Fs       afero.Fs
	Clock    stream.Clock

	// SinkRotation sets size-based rotation for worker sinks.
	SinkRotation logging.RotationConfig
	// Watcher, when set, reopens sinks moved by an external tool.
	Watcher *stream.Watcher
	// RecordFormatter defaults to DefaultRecord.
	RecordFormatter RecordFormatter

	// ExtraOptions are inserted before the executable path when an
	// interpreter is used.
	ExtraOptions []string
	// BaseEnv is the environment spec.Env is applied on. Nil means os.Environ().
	BaseEnv []string

	OnSpawnError SpawnErrorPolicy
	StopTimeout  time.Duration
}

// Launcher spawns workers. It holds no per-worker state.
type Launcher struct {
	opts Options
}

// New creates a Launcher.
func New(opts Options) *Launcher {
	if opts.Starter == nil {
		opts.Starter = ExecStarter{}
	}
	if opts.Binder == nil {
		opts.Binder = affinity.NewTasksetBinder("")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	if opts.Topology == nil {
		opts.Topology = topology.NewProbe(topology.WithLogger(opts.Logger))
	}
	if opts.Reporter == nil {
		opts.Reporter = errors.LogReporter{Logger: opts.Logger}
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.RecordFormatter == nil {
		opts.RecordFormatter = DefaultRecord
	}
	if opts.BaseEnv == nil {
		opts.BaseEnv = os.Environ()
	}
	if opts.OnSpawnError == "" {
		opts.OnSpawnError = PolicyContinue
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	return &Launcher{opts: opts}
}

// CoreStatus is the outcome of one core's launch.
type CoreStatus struct {
	Core   int
	Worker *Worker
	// Err is the SpawnError, or ErrSkipped.
	Err error
	// BindErr is set when the worker runs unpinned.
	BindErr error
}

// OK reports whether the worker is running and pinned.
func (s CoreStatus) OK() bool {
	return s.Err == nil && s.BindErr == nil
}

// LaunchResult is the outcome of LaunchAll. Statuses has one entry per core
// index, in order; Workers holds the workers that were spawned.
type LaunchResult struct {
	BatchID  string
	Topology topology.Topology
	Workers  []*Worker
	Statuses []CoreStatus
}

// Failed returns the statuses with a spawn or bind error.
func (r *LaunchResult) Failed() []CoreStatus {
	var out []CoreStatus
	for _, s := range r.Statuses {
		if !s.OK() {
			out = append(out, s)
		}
	}
	return out
}

// Wait blocks until every worker stopped or ctx is done.
func (r *LaunchResult) Wait(ctx context.Context) error {
	for _, w := range r.Workers {
		select {
		case <-w.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// LaunchAll resolves the topology and spawns one worker per core. A
// TopologyError is returned as is and nothing is launched; the caller should
// fall back to a non-affinity mode. Spawn and bind failures are reported and
// recorded in the per-core statuses.
func (l *Launcher) LaunchAll(ctx context.Context, spec ProcessSpec) (*LaunchResult, error) {
	spec = spec.Clone()
	log := l.opts.Logger.WithApp(spec.Name)
	log.Info("starting execution sequence in affinity mode", "app_id", spec.AppID)

	topo, err := l.opts.Topology.Discover(ctx)
	if err != nil {
		l.opts.Reporter.Report(err)
		return nil, err
	}
	n := topo.Resolved()
	if n <= 0 {
		err := errors.NewTopologyError("cannot optimize", errors.ErrNoCores)
		l.opts.Reporter.Report(err)
		return nil, err
	}
	l.publish(event.NewTopologyResolvedEvent(topo.Physical, topo.Virtual, n))

	result := &LaunchResult{
		BatchID:  uuid.NewString(),
		Topology: topo,
		Statuses: make([]CoreStatus, n),
	}
	log = log.WithBatch(result.BatchID)
	log.Info("topology resolved", "physical", topo.Physical, "virtual", topo.Virtual, "cores", n)

	var stop error
	for core := 0; core < n; core++ {
		status := CoreStatus{Core: core}
		if stop == nil && ctx.Err() != nil {
			stop = ctx.Err()
		}
		if stop != nil {
			status.Err = errors.Join(ErrSkipped, stop)
			result.Statuses[core] = status
			continue
		}

		w, err := l.spawn(ctx, spec, core, result.BatchID)
		if err != nil {
			status.Err = err
			if l.opts.OnSpawnError == PolicyAbort {
				stop = err
			}
		} else {
			status.Worker = w
			status.BindErr = w.bindErr
			result.Workers = append(result.Workers, w)
		}
		result.Statuses[core] = status
	}

	log.Info("launch finished", "workers", len(result.Workers), "failed", len(result.Failed()))
	return result, nil
}

// Spawn starts one worker bound to core, outside of any batch.
func (l *Launcher) Spawn(ctx context.Context, spec ProcessSpec, core int) (*Worker, error) {
	return l.spawn(ctx, spec.Clone(), core, "")
}

func (l *Launcher) spawn(ctx context.Context, spec ProcessSpec, core int, batchID string) (*Worker, error) {
	w := &Worker{
		spec:        spec,
		core:        core,
		batchID:     batchID,
		bus:         l.opts.Bus,
		formatter:   l.opts.RecordFormatter,
		stopTimeout: l.opts.StopTimeout,
		done:        make(chan struct{}),
	}
	w.guard = lifecycle.New(lifecycle.Config{
		Fs:      l.opts.Fs,
		PIDFile: spec.PIDFile,
		Bus:     l.opts.Bus,
		Record:  w.Record,
	})
	log := l.opts.Logger.WithApp(spec.Name).WithCore(core)
	if batchID != "" {
		log = log.WithBatch(batchID)
	}

	path, args := ResolveCommand(spec, l.opts.ExtraOptions)
	cmd := Command{
		Path: path,
		Args: args,
		Env:  BuildEnv(l.opts.BaseEnv, spec),
		Dir:  spec.Cwd,
	}
	log.Debug("spawning worker", "command", path, "args", args)

	proc, err := l.opts.Starter.Start(ctx, cmd)
	if err != nil {
		spawnErr := errors.NewSpawnError("failed to start worker", err).WithCore(core).WithApp(spec.Name)
		_ = w.guard.Errored(spawnErr)
		l.opts.Reporter.Report(spawnErr)
		close(w.done)
		return nil, spawnErr
	}
	w.proc = proc
	pid := proc.PID()
	log = log.WithWorker(pid)

	if err := l.opts.Binder.Bind(ctx, pid, core); err != nil {
		w.bindErr = err
		l.opts.Reporter.Report(err)
		l.publish(event.NewAffinityFailedEvent(err, event.ProcessRecord{
			Name: spec.Name, AppID: spec.AppID, BatchID: batchID, Core: core, PID: pid, Status: lifecycle.Spawning.String(),
		}))
	}

	if err := w.guard.Online(pid); err != nil {
		l.opts.Reporter.Report(err)
	}

	w.sinks = stream.Open(l.opts.Fs, spec.Paths(),
		stream.WithRotation(l.opts.SinkRotation),
		stream.WithReporter(l.opts.Reporter),
	)
	_ = w.guard.Attach(w.sinks)
	if l.opts.Watcher != nil {
		if err := l.opts.Watcher.Add(w.sinks); err != nil {
			log.Warn("failed to watch sinks", "error", err)
		}
	}

	pipeline := stream.NewPipeline(w.sinks, l.opts.Bus,
		stream.WithClock(l.opts.Clock),
		stream.WithTimestampLayout(spec.LogDateFormat),
	)
	w.channel = relay.NewChannel(proc.IPC())
	rel := relay.New(l.opts.Bus, l.opts.Clock)

	stdio := conc.NewWaitGroup()
	stdio.Go(func() {
		if err := pipeline.Pump(event.StreamOut, proc.Stdout(), w.Record); err != nil {
			log.Debug("stdout pump ended", "error", err)
		}
	})
	stdio.Go(func() {
		if err := pipeline.Pump(event.StreamErr, proc.Stderr(), w.Record); err != nil {
			log.Debug("stderr pump ended", "error", err)
		}
	})
	ipc := conc.NewWaitGroup()
	ipc.Go(func() {
		if err := w.channel.Pump(rel, w.Record); err != nil {
			log.Debug("ipc pump ended", "error", err)
		}
	})

	go l.reap(w, stdio, ipc, log)

	log.Info("worker online")
	return w, nil
}

// reap waits for the stream pumps and the process, then moves the worker to
// STOPPED. The IPC channel is closed only after the process exited since a
// worker may keep it open until then.
func (l *Launcher) reap(w *Worker, stdio, ipc *conc.WaitGroup, log *logging.Logger) {
	defer close(w.done)

	if r := stdio.WaitAndRecover(); r != nil {
		l.opts.Reporter.Report(r.AsError())
	}
	code, waitErr := w.proc.Wait()
	_ = w.channel.Close()
	if r := ipc.WaitAndRecover(); r != nil {
		l.opts.Reporter.Report(r.AsError())
	}

	if l.opts.Watcher != nil {
		l.opts.Watcher.Remove(w.sinks)
	}
	if err := w.guard.Stopped(code, waitErr); err != nil {
		l.opts.Reporter.Report(err)
	}
	log.Info("worker stopped", "exit_code", code)
}

func (l *Launcher) publish(e event.Event) {
	if l.opts.Bus != nil {
		l.opts.Bus.Publish(e)
	}
}
