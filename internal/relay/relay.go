// Package relay classifies messages workers send over their IPC channel and
// republishes them on the event bus.
//
// A message is decoded and classified exactly once, by [Classify], into one of
// two variants: [Structured] when it carries a type tag and a data payload,
// [Raw] otherwise. Downstream code switches on the variant and never inspects
// the payload shape again.
package relay

import (
	"bytes"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/Iron-Ham/corefork/internal/event"
)

// Message is a classified worker message: Structured or Raw.
type Message interface {
	message()
}

// Structured is a message with an explicit type tag and payload.
type Structured struct {
	Type string
	Data any
}

// Raw is any other message. Payload is the decoded JSON value, or the
// message text when it was not valid JSON.
type Raw struct {
	Payload any
}

func (Structured) message() {}
func (Raw) message()        {}

// Classify decodes one message received from a worker.
func Classify(raw []byte) Message {
	raw = bytes.TrimSpace(raw)

	var v any
	if err := sonnet.Unmarshal(raw, &v); err != nil {
		return Raw{Payload: string(raw)}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return Raw{Payload: v}
	}
	tag, _ := obj["type"].(string)
	data, hasData := obj["data"]
	if tag == "" || !hasData || data == nil {
		return Raw{Payload: v}
	}
	return Structured{Type: tag, Data: data}
}

// Relay republishes classified messages on a bus.
type Relay struct {
	bus event.Publisher
	now func() time.Time
}

// New creates a Relay publishing on bus. now may be nil.
func New(bus event.Publisher, now func() time.Time) *Relay {
	if now == nil {
		now = time.Now
	}
	return &Relay{bus: bus, now: now}
}

// Relay publishes msg with the worker identity rec attached. Structured
// messages are published under their own type tag, Raw messages under
// process.msg with the payload unchanged.
func (r *Relay) Relay(msg Message, rec event.ProcessRecord) {
	if r.bus == nil {
		return
	}
	switch m := msg.(type) {
	case Structured:
		r.bus.Publish(event.NewMessageEvent(m.Type, r.now(), m.Data, rec))
	case Raw:
		r.bus.Publish(event.NewRawMessageEvent(m.Payload, rec))
	}
}

// Ingest classifies raw and relays the result.
func (r *Relay) Ingest(raw []byte, rec event.ProcessRecord) Message {
	msg := Classify(raw)
	r.Relay(msg, rec)
	return msg
}
