package logstore

import (
	"bufio"
	"encoding/json"
	"io"
	"time"
)

// Event is one entry of a run's structured event log.
type Event struct {
	Time    time.Time
	Level   string
	Message string

	// Fields holds every other key of the entry.
	Fields map[string]any
}

// Stage returns the "stage" field, or "".
func (e Event) Stage() string {
	s, _ := e.Fields["stage"].(string)
	return s
}

// EventParser reads the JSON lines written by [JSONLogger].
//
// The channel returned by Parse is closed when the reader is exhausted or a
// read error occurs. Malformed lines are skipped, since the last line of an
// interrupted run may be partial.
type EventParser struct {
	// BufferSize is the maximum size in bytes of a single line.
	// Defaults to 1MB if not set or <= 0.
	BufferSize int
}

// NewEventParser creates an [EventParser] with default settings.
func NewEventParser() *EventParser {
	return &EventParser{BufferSize: 1024 * 1024}
}

// Parse reads events from r and emits them in order.
func (p *EventParser) Parse(r io.Reader) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		bufSize := p.BufferSize
		if bufSize <= 0 {
			bufSize = 1024 * 1024
		}
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), bufSize)

		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			event, err := ParseEvent(line)
			if err != nil {
				continue
			}
			events <- event
		}
	}()

	return events
}

// ParseEvent parses a single log line. Unlike [EventParser.Parse] it
// reports malformed input.
func ParseEvent(line []byte) (Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return Event{}, err
	}

	e := Event{Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		switch k {
		case "time":
			if s, ok := v.(string); ok {
				e.Time, _ = time.Parse(time.RFC3339, s)
			}
		case "level":
			e.Level, _ = v.(string)
		case "msg":
			e.Message, _ = v.(string)
		default:
			e.Fields[k] = v
		}
	}
	return e, nil
}
