package evio

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/evdev-transformer/evdev-transformer/internal/ievent"
	"github.com/evdev-transformer/evdev-transformer/pkg/wire"
)

// SocketReader turns one IPC connection's newline-delimited JSON stream
// into the Reader contract SourceDevice expects (§4.6 IPC Listener, §6
// wire format). The first line (the descriptor envelope) has already been
// consumed by the caller before constructing a SourceDevice; every line
// after that is a batch message.
type SocketReader struct {
	conn   net.Conn
	reader *bufio.Reader
	queue  []ievent.Event
}

// ReadDescriptorEnvelope reads and decodes the first line on conn.
func ReadDescriptorEnvelope(conn net.Conn) (wire.DescriptorEnvelope, *bufio.Reader, error) {
	r := bufio.NewReaderSize(conn, 64*1024)
	line, err := r.ReadString('\n')
	if err != nil && len(line) == 0 {
		return wire.DescriptorEnvelope{}, nil, fmt.Errorf("read descriptor envelope: %w", err)
	}
	var env wire.DescriptorEnvelope
	if err := json.Unmarshal([]byte(line), &env); err != nil {
		return wire.DescriptorEnvelope{}, nil, fmt.Errorf("malformed descriptor envelope: %w", err)
	}
	return env, r, nil
}

// NewSocketReader wraps conn using a reader positioned just after the
// descriptor envelope line (as returned by ReadDescriptorEnvelope).
func NewSocketReader(conn net.Conn, r *bufio.Reader) *SocketReader {
	return &SocketReader{conn: conn, reader: r}
}

func (s *SocketReader) ReadEvent() (ievent.Event, error) {
	for len(s.queue) == 0 {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF && len(line) == 0 {
				return ievent.Event{}, io.EOF
			}
			if err != io.EOF {
				return ievent.Event{}, fmt.Errorf("ipc read: %w", err)
			}
		}
		if len(line) == 0 {
			continue
		}
		var msg wire.BatchMessage
		if jerr := json.Unmarshal([]byte(line), &msg); jerr != nil {
			return ievent.Event{}, fmt.Errorf("ipc malformed frame: %w", jerr)
		}
		for _, e := range msg.Events {
			s.queue = append(s.queue, ievent.Event{Type: e.Type, Code: e.Code, Value: e.Value})
		}
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, nil
}

// Resync is never invoked for a socket source; the wire protocol has no
// drop-notification frame.
func (s *SocketReader) Resync() ([]ievent.Event, error) {
	return nil, errors.New("evio: socket source has no resync mechanism")
}

// Grab/Ungrab are no-ops: an IPC peer is responsible for its own exclusivity.
func (s *SocketReader) Grab() error   { return nil }
func (s *SocketReader) Ungrab() error { return nil }

func (s *SocketReader) Close() error {
	return s.conn.Close()
}
