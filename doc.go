// Package tracing provides a categorized event-tracing pipeline, meant to be
// embedded in a larger runtime or service. Producers emit structured trace
// events (instant markers, begin/end spans, counters) tagged with one or
// more categories. Events whose categories are enabled are accumulated into
// bounded in-memory chunks and flushed to a [Sink] on a dedicated writer
// goroutine; everything else is filtered out up front, before any event is
// constructed.
//
// The central performance property is that disabled tracing costs almost
// nothing. Emission entry points resolve the call site's categories to an
// interned [CategoryGroup] and check it against the enabled set before any
// argument is marshalled or any allocation is made. Call sites on hot paths
// can intern their group once, via [Agent.Group], and pay a single atomic
// load per emission while their categories are disabled.
//
// The pipeline is deliberately lossy under overload. Chunks move from the
// buffer to the writer over a bounded queue; when the queue is full, newly
// emitted events are dropped and counted rather than blocking the producer.
// Sink failures are logged on the writer and never surface to producers.
// Applications that need to observe flushed events in-process can subscribe
// to the live stream via [Agent.Subscribe].
//
// Lifecycle is owned by the [Agent]: Start and Stop are idempotent, Stop
// drains every accepted event before returning, and setting a non-empty
// category set on a stopped agent starts it implicitly, mirroring the
// convention that turning a category on means tracing should be running.
package tracing
