package tracingsink

import (
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/jasongin/tracing"
)

// CBORSink streams events as consecutive CBOR maps, one per event.
// Consumers decode with a cbor.Decoder loop until EOF.
type CBORSink struct {
	mtx sync.Mutex
	enc *cbor.Encoder
}

// NewCBORSink returns a sink encoding events to w.
func NewCBORSink(w io.Writer) *CBORSink {
	return &CBORSink{enc: cbor.NewEncoder(w)}
}

// WriteChunk implements tracing.Sink.
func (s *CBORSink) WriteChunk(events []tracing.Event) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for i := range events {
		if err := s.enc.Encode(wireEventFrom(&events[i])); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}
	return nil
}
