// Package protocol implements the Server-Sent Events framing used by the
// /api/events stream, for both the server and the CLI watcher.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// EventType names an event in the stream
type EventType string

const (
	EventChange EventType = "change"
	EventStatus EventType = "status"
	EventError  EventType = "error"
)

// MaxEventSize bounds a single decoded event
const MaxEventSize = 1 << 20

// Event is one frame of the stream
type Event struct {
	ID   string
	Type EventType
	Data []byte
}

// ErrEventTooLarge is returned when an event exceeds MaxEventSize
var ErrEventTooLarge = errors.New("event exceeds maximum size")

// EncodeEvent renders an event frame. Multi-line data is split across data fields.
func EncodeEvent(ev Event) ([]byte, error) {
	if len(ev.Data) > MaxEventSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrEventTooLarge, len(ev.Data))
	}
	if strings.ContainsAny(ev.ID, "\r\n") || strings.ContainsAny(string(ev.Type), "\r\n") {
		return nil, fmt.Errorf("event id and type must be single-line")
	}

	var buf bytes.Buffer
	if ev.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", ev.ID)
	}
	if ev.Type != "" {
		fmt.Fprintf(&buf, "event: %s\n", ev.Type)
	}
	for _, line := range bytes.Split(ev.Data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// WriteEvent JSON-encodes data and writes it as a single event
func WriteEvent(w io.Writer, id string, typ EventType, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}

	frame, err := EncodeEvent(Event{ID: id, Type: typ, Data: payload})
	if err != nil {
		return err
	}

	_, err = w.Write(frame)
	return err
}

// WriteComment writes a comment line, used as a keep-alive
func WriteComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}

// Reader decodes events from a stream
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader wraps r for event decoding
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), MaxEventSize+64)
	return &Reader{scanner: scanner}
}

// ReadEvent returns the next event, skipping comments. It returns io.EOF
// when the stream ends between events.
func (r *Reader) ReadEvent() (*Event, error) {
	var (
		ev      Event
		data    [][]byte
		hasData bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if !hasData && ev.Type == "" && ev.ID == "" {
				continue
			}
			ev.Data = bytes.Join(data, []byte("\n"))
			return &ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "id":
			ev.ID = value
		case "event":
			ev.Type = EventType(value)
		case "data":
			data = append(data, []byte(value))
			hasData = true
		}
	}

	if err := r.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, ErrEventTooLarge
		}
		return nil, fmt.Errorf("failed to read event: %w", err)
	}
	if hasData {
		ev.Data = bytes.Join(data, []byte("\n"))
		return &ev, nil
	}
	return nil, io.EOF
}
