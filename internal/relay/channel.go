package relay

import (
	"bufio"
	"bytes"
	"io"
	"sync"

	"github.com/sugawarayuuta/sonnet"

	"github.com/Iron-Ham/corefork/internal/errors"
	"github.com/Iron-Ham/corefork/internal/event"
)

// Channel is the supervisor's end of a worker IPC channel. Messages are JSON
// values, one per line, the framing Node uses with NODE_CHANNEL_SERIALIZATION_MODE=json.
type Channel struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewChannel wraps conn.
func NewChannel(conn io.ReadWriteCloser) *Channel {
	return &Channel{conn: conn, reader: bufio.NewReader(conn)}
}

// Send writes v as one JSON line.
func (c *Channel) Send(v any) error {
	data, err := sonnet.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to encode message")
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return errors.Wrap(err, "failed to send message")
	}
	return nil
}

// Receive returns the next non-empty line, without its newline. It returns
// io.EOF once the worker closed its end.
func (c *Channel) Receive() ([]byte, error) {
	for {
		line, err := c.reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Pump relays every received message until the channel reaches EOF. rec is
// called per message so events carry the worker's current status.
func (c *Channel) Pump(r *Relay, rec func() event.ProcessRecord) error {
	for {
		line, err := c.Receive()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		r.Ingest(line, rec())
	}
}

// Close closes the channel. It is safe to call more than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
	return c.closeErr
}
