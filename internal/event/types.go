// Package event defines the events corefork publishes while it launches and
// supervises workers.
package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "log.out", "process.online").
	// Structured worker messages use the type tag the worker chose.
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Well-known event types.
const (
	TypeLogOut            = "log.out"
	TypeLogErr            = "log.err"
	TypeProcessMessage    = "process.msg"
	TypeProcessOnline     = "process.online"
	TypeProcessExit       = "process.exit"
	TypeProcessError      = "process.error"
	TypeLogsRotated       = "log.rotated"
	TypeTopologyResolved  = "topology.resolved"
	TypeAffinityBindError = "affinity.failed"
)

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

func newBaseEventAt(eventType string, at time.Time) baseEvent {
	if at.IsZero() {
		at = time.Now()
	}
	return baseEvent{eventType: eventType, timestamp: at}
}

// ProcessRecord identifies the worker an event came from. It is attached to
// every worker event as Process.
type ProcessRecord struct {
	Name    string `json:"name" yaml:"name"`
	AppID   string `json:"app_id" yaml:"app_id"`
	BatchID string `json:"batch_id,omitempty" yaml:"batch_id,omitempty"`
	Core    int    `json:"core" yaml:"core"`
	PID     int    `json:"pid" yaml:"pid"`
	Status  string `json:"status" yaml:"status"`
}

// -----------------------------------------------------------------------------
// Log Events
// -----------------------------------------------------------------------------

// Stream names a worker output stream.
type Stream string

const (
	StreamOut Stream = "out"
	StreamErr Stream = "err"
)

// LogEvent is emitted once per chunk read from a worker's stdout or stderr.
// Payload is the chunk as received, without any timestamp prefix.
type LogEvent struct {
	baseEvent
	Stream  Stream
	Payload string
	Process ProcessRecord
}

// NewLogEvent creates a LogEvent of type log.out or log.err.
func NewLogEvent(stream Stream, at time.Time, payload []byte, rec ProcessRecord) LogEvent {
	eventType := TypeLogOut
	if stream == StreamErr {
		eventType = TypeLogErr
	}
	return LogEvent{
		baseEvent: newBaseEventAt(eventType, at),
		Stream:    stream,
		Payload:   string(payload),
		Process:   rec,
	}
}

// LogsRotatedEvent is emitted after a worker's sinks were reopened.
type LogsRotatedEvent struct {
	baseEvent
	Paths   []string
	Process ProcessRecord
}

// NewLogsRotatedEvent creates a LogsRotatedEvent.
func NewLogsRotatedEvent(paths []string, rec ProcessRecord) LogsRotatedEvent {
	return LogsRotatedEvent{
		baseEvent: newBaseEvent(TypeLogsRotated),
		Paths:     paths,
		Process:   rec,
	}
}

// -----------------------------------------------------------------------------
// Message Events
// -----------------------------------------------------------------------------

// MessageEvent republishes a structured worker message under the worker's own
// type tag.
type MessageEvent struct {
	baseEvent
	Data    any
	Process ProcessRecord
}

// NewMessageEvent creates a MessageEvent published as eventType.
func NewMessageEvent(eventType string, at time.Time, data any, rec ProcessRecord) MessageEvent {
	return MessageEvent{
		baseEvent: newBaseEventAt(eventType, at),
		Data:      data,
		Process:   rec,
	}
}

// RawMessageEvent republishes an unclassified worker message under
// process.msg. Payload is passed through unmodified.
type RawMessageEvent struct {
	baseEvent
	Payload any
	Process ProcessRecord
}

// NewRawMessageEvent creates a RawMessageEvent.
func NewRawMessageEvent(payload any, rec ProcessRecord) RawMessageEvent {
	return RawMessageEvent{
		baseEvent: newBaseEvent(TypeProcessMessage),
		Payload:   payload,
		Process:   rec,
	}
}

// -----------------------------------------------------------------------------
// Lifecycle Events
// -----------------------------------------------------------------------------

// ProcessOnlineEvent is emitted when a worker was spawned and its pid recorded.
type ProcessOnlineEvent struct {
	baseEvent
	Process ProcessRecord
}

// NewProcessOnlineEvent creates a ProcessOnlineEvent.
func NewProcessOnlineEvent(rec ProcessRecord) ProcessOnlineEvent {
	return ProcessOnlineEvent{baseEvent: newBaseEvent(TypeProcessOnline), Process: rec}
}

// ProcessExitEvent is emitted when a worker's close signal was received.
type ProcessExitEvent struct {
	baseEvent
	ExitCode int
	Error    string
	Process  ProcessRecord
}

// NewProcessExitEvent creates a ProcessExitEvent.
func NewProcessExitEvent(exitCode int, err error, rec ProcessRecord) ProcessExitEvent {
	e := ProcessExitEvent{
		baseEvent: newBaseEvent(TypeProcessExit),
		ExitCode:  exitCode,
		Process:   rec,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// ProcessErrorEvent is emitted when a worker could not be spawned.
type ProcessErrorEvent struct {
	baseEvent
	Error   string
	Process ProcessRecord
}

// NewProcessErrorEvent creates a ProcessErrorEvent.
func NewProcessErrorEvent(err error, rec ProcessRecord) ProcessErrorEvent {
	e := ProcessErrorEvent{baseEvent: newBaseEvent(TypeProcessError), Process: rec}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// AffinityFailedEvent is emitted when a worker keeps running unpinned because
// binding it to its core failed.
type AffinityFailedEvent struct {
	baseEvent
	Error   string
	Process ProcessRecord
}

// NewAffinityFailedEvent creates an AffinityFailedEvent.
func NewAffinityFailedEvent(err error, rec ProcessRecord) AffinityFailedEvent {
	e := AffinityFailedEvent{baseEvent: newBaseEvent(TypeAffinityBindError), Process: rec}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// -----------------------------------------------------------------------------
// Topology Events
// -----------------------------------------------------------------------------

// TopologyResolvedEvent is emitted once the usable core count is known and
// before any worker is launched.
type TopologyResolvedEvent struct {
	baseEvent
	Physical int
	Virtual  int
	Cores    int
}

// NewTopologyResolvedEvent creates a TopologyResolvedEvent.
func NewTopologyResolvedEvent(physical, virtual, cores int) TopologyResolvedEvent {
	return TopologyResolvedEvent{
		baseEvent: newBaseEvent(TypeTopologyResolved),
		Physical:  physical,
		Virtual:   virtual,
		Cores:     cores,
	}
}
