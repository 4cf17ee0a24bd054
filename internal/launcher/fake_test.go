package launcher

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"
)

type fakeProcess struct {
	pid int

	stdoutR, stderrR *io.PipeReader
	stdoutW, stderrW *io.PipeWriter
	stdinR           *io.PipeReader
	stdinW           *io.PipeWriter
	ipcSupervisor    net.Conn
	ipcWorker        net.Conn

	exitOnTerm bool
	exit       chan int
	exitOnce   sync.Once

	mu      sync.Mutex
	signals []syscall.Signal
}

func newFakeProcess(pid int) *fakeProcess {
	p := &fakeProcess{pid: pid, exit: make(chan int, 1)}
	p.stdoutR, p.stdoutW = io.Pipe()
	p.stderrR, p.stderrW = io.Pipe()
	p.stdinR, p.stdinW = io.Pipe()
	p.ipcSupervisor, p.ipcWorker = net.Pipe()
	return p
}

func (p *fakeProcess) PID() int                { return p.pid }
func (p *fakeProcess) Stdin() io.WriteCloser   { return p.stdinW }
func (p *fakeProcess) Stdout() io.Reader       { return p.stdoutR }
func (p *fakeProcess) Stderr() io.Reader       { return p.stderrR }
func (p *fakeProcess) IPC() io.ReadWriteCloser { return p.ipcSupervisor }

func (p *fakeProcess) Wait() (int, error) {
	return <-p.exit, nil
}

func (p *fakeProcess) Signal(sig syscall.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()
	if sig == syscall.SIGKILL || (sig == syscall.SIGTERM && p.exitOnTerm) {
		go p.exitWith(128 + int(sig))
	}
	return nil
}

func (p *fakeProcess) received() []syscall.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]syscall.Signal(nil), p.signals...)
}

// exitWith closes the worker's ends of every stream and reports code.
func (p *fakeProcess) exitWith(code int) {
	p.exitOnce.Do(func() {
		_ = p.stdoutW.Close()
		_ = p.stderrW.Close()
		_ = p.ipcWorker.Close()
		_ = p.stdinR.Close()
		p.exit <- code
	})
}

type fakeStarter struct {
	mu      sync.Mutex
	nextPID int
	failOn  map[int]error
	calls   int
	cmds    []Command
	procs   []*fakeProcess

	exitOnTerm bool
}

func newFakeStarter() *fakeStarter {
	return &fakeStarter{nextPID: 1000, failOn: make(map[int]error)}
}

func (s *fakeStarter) Start(_ context.Context, cmd Command) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	call := s.calls
	s.calls++
	s.cmds = append(s.cmds, cmd)
	if err, ok := s.failOn[call]; ok {
		return nil, err
	}
	s.nextPID++
	p := newFakeProcess(s.nextPID)
	p.exitOnTerm = s.exitOnTerm
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeStarter) started() []*fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeProcess(nil), s.procs...)
}

type bindCall struct{ pid, core int }

type fakeBinder struct {
	mu    sync.Mutex
	calls []bindCall
	fail  map[int]error
}

func (b *fakeBinder) Bind(_ context.Context, pid, core int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, bindCall{pid, core})
	if err := b.fail[core]; err != nil {
		return err
	}
	return nil
}

type errorRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *errorRecorder) Report(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *errorRecorder) matching(target error) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, err := range r.errs {
		if errors.Is(err, target) {
			n++
		}
	}
	return n
}

func waitDone(t *testing.T, w *Worker) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("worker on core %d did not stop", w.Core())
	}
}

// stopAll exits every fake process and waits for the workers to be reaped.
func stopAll(t *testing.T, s *fakeStarter, workers []*Worker) {
	t.Helper()
	for _, p := range s.started() {
		p.exitWith(0)
	}
	for _, w := range workers {
		waitDone(t, w)
	}
}
