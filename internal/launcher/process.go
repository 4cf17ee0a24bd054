package launcher

import (
	"context"
	"io"
	"net"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/Iron-Ham/corefork/internal/errors"
)

// Command is a fully resolved process invocation.
type Command struct {
	Path string
	Args []string
	Env  []string
	Dir  string
}

// Process is a started worker process with its four streams.
type Process interface {
	PID() int
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	// IPC is the supervisor's end of the message channel.
	IPC() io.ReadWriteCloser
	// Wait blocks until the process exits. Stdout and Stderr must be drained
	// first.
	Wait() (exitCode int, err error)
	Signal(sig syscall.Signal) error
}

// Starter starts worker processes.
type Starter interface {
	Start(ctx context.Context, cmd Command) (Process, error)
}

// ExecStarter starts detached processes with os/exec. The child runs in its
// own session and receives one end of a unix socketpair as fd 3.
type ExecStarter struct{}

// Start implements Starter. ctx is not bound to the process lifetime: the
// worker outlives the launch call.
func (ExecStarter) Start(_ context.Context, c Command) (Process, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create ipc socketpair")
	}
	parentFile := os.NewFile(uintptr(fds[0]), "ipc-parent")
	childFile := os.NewFile(uintptr(fds[1]), "ipc-child")
	defer func() { _ = childFile.Close() }()

	conn, err := net.FileConn(parentFile)
	_ = parentFile.Close()
	if err != nil {
		return nil, errors.Wrap(err, "failed to wrap ipc socket")
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	cmd.ExtraFiles = []*os.File{childFile}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	p := &execProcess{cmd: cmd, ipc: conn}
	if p.stdin, err = cmd.StdinPipe(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if p.stdout, err = cmd.StdoutPipe(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if p.stderr, err = cmd.StderrPipe(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
	ipc    net.Conn
}

func (p *execProcess) PID() int                { return p.cmd.Process.Pid }
func (p *execProcess) Stdin() io.WriteCloser   { return p.stdin }
func (p *execProcess) Stdout() io.Reader       { return p.stdout }
func (p *execProcess) Stderr() io.Reader       { return p.stderr }
func (p *execProcess) IPC() io.ReadWriteCloser { return p.ipc }

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	return code, err
}

// Signal delivers sig to the worker's process group, which it leads since it
// was started in a new session.
func (p *execProcess) Signal(sig syscall.Signal) error {
	pid := p.cmd.Process.Pid
	if err := unix.Kill(-pid, sig); err != nil {
		return p.cmd.Process.Signal(sig)
	}
	return nil
}
