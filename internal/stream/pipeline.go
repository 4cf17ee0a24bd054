package stream

import (
	"io"
	"time"

	"github.com/Iron-Ham/corefork/internal/event"
)

// ReadChunkSize is the buffer size Pump reads with. Each read is one chunk.
const ReadChunkSize = 32 * 1024

// Clock returns the current time.
type Clock func() time.Time

// Pipeline routes output chunks of one worker into its sinks and onto the bus.
type Pipeline struct {
	sinks  *SinkSet
	bus    event.Publisher
	now    Clock
	layout string
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithClock sets the clock used for prefixes and event timestamps.
func WithClock(c Clock) PipelineOption {
	return func(p *Pipeline) {
		if c != nil {
			p.now = c
		}
	}
}

// WithTimestampLayout enables the "<time>: " prefix on every chunk written to
// the sinks, formatted with the Go time layout. An empty layout disables it.
func WithTimestampLayout(layout string) PipelineOption {
	return func(p *Pipeline) { p.layout = layout }
}

// NewPipeline creates a Pipeline writing into sinks and publishing on bus.
// Either may be nil.
func NewPipeline(sinks *SinkSet, bus event.Publisher, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{sinks: sinks, bus: bus, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sinks returns the sink set the pipeline writes into.
func (p *Pipeline) Sinks() *SinkSet {
	return p.sinks
}

// Handle processes one chunk read from stream. The sinks receive the chunk
// with the optional timestamp prefix; the single published LogEvent carries
// the chunk as received.
func (p *Pipeline) Handle(stream event.Stream, chunk []byte, rec event.ProcessRecord) {
	if len(chunk) == 0 {
		return
	}
	at := p.now()

	if p.sinks != nil {
		data := chunk
		if p.layout != "" {
			prefix := at.Format(p.layout) + ": "
			data = make([]byte, 0, len(prefix)+len(chunk))
			data = append(data, prefix...)
			data = append(data, chunk...)
		}
		p.sinks.Write(stream, data)
	}

	if p.bus != nil {
		p.bus.Publish(event.NewLogEvent(stream, at, chunk, rec))
	}
}

// Pump reads r until EOF, handing every read to Handle. rec is called per
// chunk so events carry the worker's current status. It returns nil on EOF.
func (p *Pipeline) Pump(stream event.Stream, r io.Reader, rec func() event.ProcessRecord) error {
	buf := make([]byte, ReadChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.Handle(stream, chunk, rec())
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
