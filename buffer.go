package tracing

import (
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/jasongin/tracing/internal/tracingdebug"
)

// AppendResult reports the outcome of a buffer append.
type AppendResult int

const (
	// Accepted means the event landed in the open chunk.
	Accepted AppendResult = iota

	// DroppedBufferFull means the open chunk was full and the writer queue
	// had no room for it, so the event was discarded. Tracing is lossy
	// under overload: drops are counted and logged, never errors.
	DroppedBufferFull
)

func (r AppendResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case DroppedBufferFull:
		return "dropped buffer full"
	default:
		return "unknown"
	}
}

// Chunk is a bounded batch of events, moved as a unit from the buffer to
// the writer. A chunk has exactly one owner at a time: the buffer while it
// is open, the writer once it is sealed. The ID is a ULID, used to
// correlate log lines about the chunk's lifecycle.
type Chunk struct {
	ID     string
	Events []Event
}

func newChunk(capacity int) *Chunk {
	return &Chunk{
		ID:     ulid.Make().String(),
		Events: make([]Event, 0, capacity),
	}
}

// Buffer accumulates accepted events into fixed-capacity chunks and hands
// sealed chunks to the writer over a bounded FIFO queue. Append is safe for
// any number of concurrent producers; the append-and-rotate step is one
// critical section, so exactly one producer seals any given chunk.
type Buffer struct {
	chunkSize int
	debug     *tracingdebug.PipelineCounters

	mtx    sync.Mutex
	open   *Chunk
	closed bool

	out chan *Chunk
}

func newBuffer(chunkSize, maxChunks int, debug *tracingdebug.PipelineCounters) *Buffer {
	return &Buffer{
		chunkSize: chunkSize,
		debug:     debug,
		open:      newChunk(chunkSize),
		out:       make(chan *Chunk, maxChunks),
	}
}

// Append adds the event to the open chunk. A full open chunk is first
// sealed and enqueued for the writer; if the writer queue is also full, the
// incoming event is dropped.
func (b *Buffer) Append(ev Event) AppendResult {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.closed {
		b.debug.Dropped.Add(1)
		return DroppedBufferFull
	}

	if len(b.open.Events) >= b.chunkSize {
		select {
		case b.out <- b.open:
			b.debug.Sealed.Add(1)
			b.open = newChunk(b.chunkSize)
		default:
			b.debug.Dropped.Add(1)
			return DroppedBufferFull
		}
	}

	b.open.Events = append(b.open.Events, ev)
	b.debug.Accepted.Add(1)
	return Accepted
}

// FlushNow seals the open chunk, if it holds any events, and enqueues it
// regardless of how full it is. The enqueue blocks when the queue is full:
// FlushNow runs on the control plane while the writer keeps draining, so
// the queue always makes room.
func (b *Buffer) FlushNow() {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	b.flushLocked()
}

func (b *Buffer) flushLocked() {
	if b.closed || len(b.open.Events) == 0 {
		return
	}
	sealed := b.open
	b.open = newChunk(b.chunkSize)
	b.out <- sealed
	b.debug.Sealed.Add(1)
}

// Close flushes any buffered events and closes the chunk queue, which is
// the writer's signal to drain and exit. Appends after Close report
// DroppedBufferFull.
func (b *Buffer) Close() {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if b.closed {
		return
	}
	b.flushLocked()
	b.closed = true
	close(b.out)
}
