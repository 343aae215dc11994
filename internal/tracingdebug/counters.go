// Package tracingdebug provides cheap atomic counters for introspecting the
// tracing pipeline.
package tracingdebug

import "sync/atomic"

// PipelineCounters track event and chunk flow through one agent.
type PipelineCounters struct {
	Accepted   atomic.Uint64 // events appended to a chunk
	Dropped    atomic.Uint64 // events discarded under backpressure
	Sealed     atomic.Uint64 // chunks handed to the writer queue
	Written    atomic.Uint64 // chunks flushed to the sink
	SinkErrors atomic.Uint64 // failed sink writes
}

// Values returns the current values of the counters.
func (pc *PipelineCounters) Values() (accepted, dropped, sealed, written, sinkErrors uint64) {
	return pc.Accepted.Load(), pc.Dropped.Load(), pc.Sealed.Load(), pc.Written.Load(), pc.SinkErrors.Load()
}

// DropRatePercent returns the percent (0..100) of emitted events that were
// dropped under backpressure.
func (pc *PipelineCounters) DropRatePercent() float64 {
	var (
		accepted = pc.Accepted.Load()
		dropped  = pc.Dropped.Load()
		emitted  = accepted + dropped
	)
	if emitted <= 0 {
		return 0.0
	}
	return 100 * float64(dropped) / float64(emitted)
}
