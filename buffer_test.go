package tracing

import (
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/jasongin/tracing/internal/tracingdebug"
)

func TestBufferRotation(t *testing.T) {
	t.Parallel()

	var debug tracingdebug.PipelineCounters
	b := newBuffer(2, 8, &debug)

	for i := 0; i < 5; i++ {
		AssertEqual(t, Accepted, b.Append(Event{Name: "e"}))
	}

	// 5 events at chunk size 2: two chunks sealed, one open with one event.
	AssertEqual(t, uint64(2), debug.Sealed.Load())
	AssertEqual(t, 2, len(b.out))

	b.Close()

	var total int
	for chunk := range b.out {
		total += len(chunk.Events)
		if len(chunk.Events) > 2 {
			t.Errorf("chunk %s: %d events exceeds capacity", chunk.ID, len(chunk.Events))
		}
	}
	AssertEqual(t, 5, total)
}

func TestBufferBackpressure(t *testing.T) {
	t.Parallel()

	var debug tracingdebug.PipelineCounters
	b := newBuffer(1, 2, &debug) // no consumer: the queue fills at 2 chunks

	AssertEqual(t, Accepted, b.Append(Event{Name: "e1"})) // open chunk
	AssertEqual(t, Accepted, b.Append(Event{Name: "e2"})) // seals e1
	AssertEqual(t, Accepted, b.Append(Event{Name: "e3"})) // seals e2

	// The queue now holds two sealed chunks and the open chunk is full:
	// further appends must drop, and earlier events are unaffected.
	AssertEqual(t, DroppedBufferFull, b.Append(Event{Name: "e4"}))
	AssertEqual(t, DroppedBufferFull, b.Append(Event{Name: "e5"}))

	AssertEqual(t, uint64(3), debug.Accepted.Load())
	AssertEqual(t, uint64(2), debug.Dropped.Load())
}

func TestBufferFlushNow(t *testing.T) {
	t.Parallel()

	var debug tracingdebug.PipelineCounters
	b := newBuffer(100, 8, &debug)

	b.FlushNow() // empty open chunk: nothing to seal
	AssertEqual(t, 0, len(b.out))

	b.Append(Event{Name: "e1"})
	b.Append(Event{Name: "e2"})
	b.FlushNow()

	AssertEqual(t, 1, len(b.out))
	chunk := <-b.out
	AssertEqual(t, 2, len(chunk.Events))
}

func TestBufferCloseFlushesAndRejects(t *testing.T) {
	t.Parallel()

	var debug tracingdebug.PipelineCounters
	b := newBuffer(100, 8, &debug)

	b.Append(Event{Name: "e1"})
	b.Close()
	b.Close() // idempotent

	AssertEqual(t, DroppedBufferFull, b.Append(Event{Name: "late"}))

	chunk, ok := <-b.out
	AssertEqual(t, true, ok)
	AssertEqual(t, 1, len(chunk.Events))

	_, ok = <-b.out
	AssertEqual(t, false, ok) // closed
}

func TestBufferConcurrentAppend(t *testing.T) {
	t.Parallel()

	const (
		producers = 8
		perWorker = 1000
	)

	var debug tracingdebug.PipelineCounters
	b := newBuffer(16, producers*perWorker, &debug) // queue big enough: no drops

	// Drain concurrently so sealed chunks don't pile up.
	var (
		collected  = map[string]int{}
		collectMtx sync.Mutex
		drained    = make(chan struct{})
	)
	go func() {
		defer close(drained)
		for chunk := range b.out {
			collectMtx.Lock()
			for _, ev := range chunk.Events {
				collected[ev.Name]++
			}
			collectMtx.Unlock()
		}
	}()

	var g errgroup.Group
	for w := 0; w < producers; w++ {
		name := string(rune('a' + w))
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				b.Append(Event{Name: name})
			}
			return nil
		})
	}
	AssertNoError(t, g.Wait())

	b.Close()
	<-drained

	AssertEqual(t, uint64(producers*perWorker), debug.Accepted.Load())
	AssertEqual(t, uint64(0), debug.Dropped.Load())

	var total int
	for _, n := range collected {
		AssertEqual(t, perWorker, n)
		total += n
	}
	AssertEqual(t, producers*perWorker, total)
}
