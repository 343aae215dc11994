package tracing

import (
	"log/slog"

	"github.com/jasongin/tracing/internal/tracingdebug"
)

// Writer consumes sealed chunks and flushes them to the sink. One writer
// goroutine runs for each span of the agent's running lifetime, and it is
// the only goroutine that touches the sink in that span. Chunks are
// consumed in seal order.
type Writer struct {
	sink   Sink
	broker *Broker
	logger *slog.Logger
	debug  *tracingdebug.PipelineCounters

	in   <-chan *Chunk
	done chan struct{}
}

func newWriter(sink Sink, broker *Broker, logger *slog.Logger, debug *tracingdebug.PipelineCounters, in <-chan *Chunk) *Writer {
	return &Writer{
		sink:   sink,
		broker: broker,
		logger: logger,
		debug:  debug,
		in:     in,
		done:   make(chan struct{}),
	}
}

// run consumes chunks until the buffer closes the queue. Sink failures are
// logged and counted, and the next chunk is attempted normally: a failing
// or stalled sink degrades to dropped events via buffer backpressure, not
// to producer-visible errors.
func (w *Writer) run() {
	defer close(w.done)
	for chunk := range w.in {
		w.consume(chunk)
	}
}

func (w *Writer) consume(chunk *Chunk) {
	if err := w.sink.WriteChunk(chunk.Events); err != nil {
		w.debug.SinkErrors.Add(1)
		w.logger.Error("trace sink write failed",
			"chunk", chunk.ID,
			"events", len(chunk.Events),
			"err", err)
	} else {
		w.debug.Written.Add(1)
	}

	// Live subscribers see events after the sink, flush order preserved.
	w.broker.publish(chunk.Events)
}

// drain blocks until every chunk enqueued before the queue was closed has
// been consumed, then returns. It is the join half of Agent.Stop.
func (w *Writer) drain() {
	<-w.done
}
