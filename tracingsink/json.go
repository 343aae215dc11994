package tracingsink

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/jasongin/tracing"
)

// JSONSink writes events as a Trace Event Format JSON array: one object
// per line, comma-delimited. Close terminates the array; a trace truncated
// before Close is still accepted by most viewers, which tolerate a missing
// closing bracket by design of the format.
type JSONSink struct {
	mtx        sync.Mutex
	w          io.Writer
	wroteFirst bool
	closed     bool
}

// NewJSONSink returns a sink writing the JSON array to w.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w}
}

// WriteChunk implements tracing.Sink.
func (s *JSONSink) WriteChunk(events []tracing.Event) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.closed {
		return fmt.Errorf("sink closed")
	}

	for i := range events {
		delim := ",\n"
		if !s.wroteFirst {
			delim = "[\n"
			s.wroteFirst = true
		}

		data, err := json.Marshal(events[i])
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := io.WriteString(s.w, delim); err != nil {
			return fmt.Errorf("write delimiter: %w", err)
		}
		if _, err := s.w.Write(data); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}

	return nil
}

// Close terminates the JSON array. The sink accepts no chunks afterward.
func (s *JSONSink) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	terminator := "\n]\n"
	if !s.wroteFirst {
		terminator = "[]\n"
	}
	if _, err := io.WriteString(s.w, terminator); err != nil {
		return fmt.Errorf("write terminator: %w", err)
	}
	return nil
}
