package stream

import (
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/corefork/internal/errors"
	"github.com/Iron-Ham/corefork/internal/event"
	"github.com/Iron-Ham/corefork/internal/logging"
)

// Kind names one sink of a SinkSet.
type Kind string

const (
	KindOut      Kind = "out"
	KindErr      Kind = "err"
	KindCombined Kind = "combined"
)

var kinds = [...]Kind{KindOut, KindErr, KindCombined}

// Paths holds the file each sink is bound to. An empty path means the sink is
// absent and writes to it are skipped.
type Paths struct {
	Out      string `json:"out,omitempty" yaml:"out,omitempty"`
	Err      string `json:"err,omitempty" yaml:"err,omitempty"`
	Combined string `json:"combined,omitempty" yaml:"combined,omitempty"`
}

func (p Paths) path(k Kind) string {
	switch k {
	case KindOut:
		return p.Out
	case KindErr:
		return p.Err
	case KindCombined:
		return p.Combined
	}
	return ""
}

// List returns the configured paths in out, err, combined order.
func (p Paths) List() []string {
	var out []string
	for _, k := range kinds {
		if path := p.path(k); path != "" {
			out = append(out, path)
		}
	}
	return out
}

// State is the state of one sink.
type State int

const (
	// StateClosed sinks keep their path and reject writes.
	StateClosed State = iota
	// StateOpen sinks hold a file handle.
	StateOpen
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

// sink is Open when w is non-nil, Closed(path) otherwise.
type sink struct {
	kind Kind
	path string
	w    *logging.RotatingWriter
}

func (s *sink) state() State {
	if s.w == nil || !s.w.IsOpen() {
		return StateClosed
	}
	return StateOpen
}

// SinkSet is the set of log sinks owned by one worker. It is safe for
// concurrent use; stdout and stderr pumps share the combined sink.
type SinkSet struct {
	mu       sync.Mutex
	fs       afero.Fs
	paths    Paths
	rotation logging.RotationConfig
	reporter errors.Reporter
	sinks    [len(kinds)]*sink
	closed   bool
}

// SinkOption configures a SinkSet.
type SinkOption func(*SinkSet)

// WithRotation sets the size-based rotation of every sink. Rotation is
// disabled by default.
func WithRotation(cfg logging.RotationConfig) SinkOption {
	return func(s *SinkSet) { s.rotation = cfg }
}

// WithReporter sets where SinkErrors are reported.
func WithReporter(r errors.Reporter) SinkOption {
	return func(s *SinkSet) {
		if r != nil {
			s.reporter = r
		}
	}
}

// Open opens an append-only sink for every non-empty path on fs. A sink that
// cannot be opened is reported as a SinkError and stays Closed; the other
// sinks are unaffected.
func Open(fs afero.Fs, paths Paths, opts ...SinkOption) *SinkSet {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	s := &SinkSet{
		fs:       fs,
		paths:    paths,
		reporter: errors.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rotation.Fs = fs

	for i, k := range kinds {
		path := paths.path(k)
		if path == "" {
			continue
		}
		s.sinks[i] = &sink{kind: k, path: path}
		s.openSink(s.sinks[i])
	}
	return s
}

// openSink moves sk to Open, reporting a failure. The caller must hold the
// mutex (or own s exclusively).
func (s *SinkSet) openSink(sk *sink) error {
	if sk.w != nil {
		if err := sk.w.Reopen(); err != nil {
			sk.w = nil
			return s.fail(sk, "failed to reopen sink", err)
		}
		return nil
	}
	w, err := logging.NewRotatingWriter(sk.path, s.rotation)
	if err != nil {
		return s.fail(sk, "failed to open sink", err)
	}
	sk.w = w
	return nil
}

func (s *SinkSet) fail(sk *sink, msg string, cause error) error {
	err := errors.NewSinkError(msg, cause).WithStream(string(sk.kind)).WithPath(sk.path)
	s.reporter.Report(err)
	return err
}

// Write appends data to the sink of stream and to the combined sink. Absent
// and closed sinks are skipped. A failed write is reported and moves that sink
// to Closed.
func (s *SinkSet) Write(stream event.Stream, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := KindOut
	if stream == event.StreamErr {
		k = KindErr
	}
	s.write(s.sink(k), data)
	s.write(s.sink(KindCombined), data)
}

func (s *SinkSet) write(sk *sink, data []byte) {
	if sk == nil || sk.state() == StateClosed {
		return
	}
	if _, err := sk.w.Write(data); err != nil {
		_ = sk.w.Close()
		sk.w = nil
		_ = s.fail(sk, "write failed", err)
	}
}

func (s *SinkSet) sink(k Kind) *sink {
	for i, kk := range kinds {
		if kk == k {
			return s.sinks[i]
		}
	}
	return nil
}

// Rotate flushes and closes every open sink, then reopens all configured sinks
// at the same paths. Writes issued during Rotate wait for it and land in the
// reopened files. A closed set stays closed and Rotate returns
// errors.ErrSinkClosed.
func (s *SinkSet) Rotate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrSinkClosed
	}
	var errs []error
	for _, sk := range s.sinks {
		if sk == nil {
			continue
		}
		if err := s.openSink(sk); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reopen reopens only the sink bound to path. It reports whether path belongs
// to this set.
func (s *SinkSet) Reopen(path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, nil
	}
	for _, sk := range s.sinks {
		if sk != nil && filepath.Clean(sk.path) == filepath.Clean(path) {
			return true, s.openSink(sk)
		}
	}
	return false, nil
}

// Close flushes and closes every sink. Closing a closed set is a no-op.
func (s *SinkSet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, sk := range s.sinks {
		if sk == nil || sk.w == nil {
			continue
		}
		if err := sk.w.Close(); err != nil {
			errs = append(errs, errors.NewSinkError("failed to close sink", err).
				WithStream(string(sk.kind)).
				WithPath(sk.path))
		}
		sk.w = nil
	}
	return errors.Join(errs...)
}

// Closed reports whether Close was called.
func (s *SinkSet) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// State returns the state of sink k. Absent sinks are Closed.
func (s *SinkSet) State(k Kind) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sk := s.sink(k); sk != nil {
		return sk.state()
	}
	return StateClosed
}

// Paths returns the paths the set was opened with.
func (s *SinkSet) Paths() Paths {
	return s.paths
}
