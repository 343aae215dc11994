// Package tracingsink provides ready-made [tracing.Sink] implementations:
// a Trace Event Format JSON encoder suitable for chrome://tracing and
// compatible viewers, msgpack and CBOR encoders for embedders that
// post-process traces, and a file sink that composes any of them with
// optional gzip compression.
//
// Sinks in this package are safe for use from the agent's writer goroutine
// plus a control-plane Close after Stop. They do not retry: a write error
// returns to the writer, which logs it and moves on to the next chunk.
package tracingsink
