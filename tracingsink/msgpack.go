package tracingsink

import (
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jasongin/tracing"
)

// MsgpackSink streams events as consecutive msgpack maps, one per event.
// Consumers decode with a msgpack.Decoder loop until EOF.
type MsgpackSink struct {
	mtx sync.Mutex
	enc *msgpack.Encoder
}

// NewMsgpackSink returns a sink encoding events to w.
func NewMsgpackSink(w io.Writer) *MsgpackSink {
	return &MsgpackSink{enc: msgpack.NewEncoder(w)}
}

// WriteChunk implements tracing.Sink.
func (s *MsgpackSink) WriteChunk(events []tracing.Event) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for i := range events {
		if err := s.enc.Encode(wireEventFrom(&events[i])); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}
	return nil
}
