package tracing

import "sync"

// Sink receives flushed chunks of events. The core does not mandate a wire
// format: implementations serialize the events however the embedder needs.
// A sink is only ever invoked from the agent's writer goroutine, never from
// a producer, and a write error never propagates past the writer.
type Sink interface {
	WriteChunk(events []Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(events []Event) error

// WriteChunk implements Sink.
func (f SinkFunc) WriteChunk(events []Event) error { return f(events) }

// SliceSink collects flushed chunks in memory. It exists for tests and for
// embedders that post-process a bounded trace after Stop.
type SliceSink struct {
	mtx    sync.Mutex
	chunks [][]Event
}

// NewSliceSink returns an empty SliceSink.
func NewSliceSink() *SliceSink {
	return &SliceSink{}
}

// WriteChunk implements Sink.
func (s *SliceSink) WriteChunk(events []Event) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.chunks = append(s.chunks, append([]Event(nil), events...))
	return nil
}

// Chunks returns the flushed chunks, in flush order.
func (s *SliceSink) Chunks() [][]Event {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	out := make([][]Event, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Events returns every flushed event, in flush order.
func (s *SliceSink) Events() []Event {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var out []Event
	for _, chunk := range s.chunks {
		out = append(out, chunk...)
	}
	return out
}
