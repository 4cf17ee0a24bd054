package topology

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/corefork/internal/errors"
	"github.com/Iron-Ham/corefork/internal/logging"
)

// Keys read from the query output.
const (
	KeyPhysical = "CPU(s)"
	KeyNUMANode = "NUMA node0 CPU(s)"
)

// DefaultCommand is the topology query run when none is configured.
const DefaultCommand = "lscpu"

// Topology is the result of a topology query.
type Topology struct {
	// Physical is the value of the "CPU(s)" key.
	Physical int
	// Virtual is the number of CPUs listed for NUMA node 0, or 0 when absent.
	Virtual int
	// NUMARange is the raw NUMA node-0 CPU list, e.g. "0-7".
	NUMARange string
}

// Resolved returns max(Physical, Virtual).
func (t Topology) Resolved() int {
	return max(t.Physical, t.Virtual)
}

// Discoverer resolves the machine topology.
type Discoverer interface {
	Discover(ctx context.Context) (Topology, error)
}

// Runner runs a command to completion and returns its full stdout.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec under the C locale so that lscpu keys
// are not translated.
type ExecRunner struct{}

// Output implements Runner.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	return cmd.Output()
}

// Probe is the Discoverer backed by an external topology query.
type Probe struct {
	command string
	args    []string
	timeout time.Duration
	runner  Runner
	logger  *logging.Logger
}

// Option configures a Probe.
type Option func(*Probe)

// WithCommand overrides the query command and its arguments.
func WithCommand(name string, args ...string) Option {
	return func(p *Probe) {
		if name != "" {
			p.command = name
			p.args = args
		}
	}
}

// WithTimeout bounds how long the query may run. Zero means no bound.
func WithTimeout(d time.Duration) Option {
	return func(p *Probe) { p.timeout = d }
}

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(p *Probe) { p.runner = r }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Probe) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProbe creates a Probe running lscpu unless configured otherwise.
func NewProbe(opts ...Option) *Probe {
	p := &Probe{
		command: DefaultCommand,
		runner:  ExecRunner{},
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Discover runs the query, waits for it to exit and parses its output.
func (p *Probe) Discover(ctx context.Context) (Topology, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	out, err := p.runner.Output(ctx, p.command, p.args...)
	if err != nil {
		return Topology{}, errors.NewTopologyError("topology query failed",
			errors.Join(errors.ErrTopologyQueryFailed, err)).WithCommand(p.command)
	}

	topo, err := Parse(out)
	if err != nil {
		var topoErr *errors.TopologyError
		if errors.As(err, &topoErr) {
			topoErr.WithCommand(p.command)
		}
		return Topology{}, err
	}

	p.logger.Debug("topology resolved",
		"physical", topo.Physical,
		"virtual", topo.Virtual,
		"cores", topo.Resolved())
	return topo, nil
}

// Parse reads complete topology query output.
func Parse(out []byte) (Topology, error) {
	values := parseKeyValues(out)

	var topo Topology
	physicalSeen := false
	if raw, ok := values[KeyPhysical]; ok {
		n, err := strconv.Atoi(raw)
		if err == nil && n >= 0 {
			topo.Physical = n
			physicalSeen = true
		}
	}
	if raw, ok := values[KeyNUMANode]; ok {
		topo.NUMARange = raw
		if n, err := CountCPUList(raw); err == nil {
			topo.Virtual = n
		}
	}

	// Equality test on purpose: a zero count means discovery failed.
	if topo.Resolved() == 0 {
		cause := errors.ErrNoCores
		if !physicalSeen && topo.Virtual == 0 {
			cause = errors.ErrTopologyUnparsable
		}
		return topo, errors.NewTopologyError(
			"failed to identify system cores, cannot pin workers; run without affinity", cause)
	}
	return topo, nil
}

// parseKeyValues splits "key: value" lines on the first colon.
func parseKeyValues(out []byte) map[string]string {
	values := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return values
}

// CountCPUList counts the CPUs in a list such as "0-7", "0-3,8-11" or "0,2,4".
// For a single range "a-b" the count is b-a+1.
func CountCPUList(list string) (int, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return 0, fmt.Errorf("empty cpu list")
	}

	total := 0
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return 0, fmt.Errorf("invalid cpu list %q: %w", list, err)
		}
		if !isRange {
			total++
			continue
		}
		b, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return 0, fmt.Errorf("invalid cpu list %q: %w", list, err)
		}
		if b < a {
			return 0, fmt.Errorf("invalid cpu range %q", part)
		}
		total += b - a + 1
	}
	return total, nil
}

// Static is a Discoverer returning a fixed topology. It backs the
// topology.cores configuration override.
type Static struct {
	Cores int
}

// Discover implements Discoverer.
func (s Static) Discover(context.Context) (Topology, error) {
	if s.Cores <= 0 {
		return Topology{}, errors.NewTopologyError("configured core count is zero", errors.ErrNoCores)
	}
	return Topology{Physical: s.Cores}, nil
}
