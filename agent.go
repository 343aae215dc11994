package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jasongin/tracing/internal/tracingdebug"
)

// State is the agent lifecycle state. The buffer, the writer goroutine, and
// the published category set are valid only in Running.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

const (
	// DefaultChunkSize is the event capacity of one chunk, matching the
	// chunk size of the trace buffer in the original runtime.
	DefaultChunkSize = 64

	// DefaultMaxChunks bounds the number of sealed chunks waiting for the
	// writer, matching the original trace buffer's chunk count.
	DefaultMaxChunks = 1024
)

// Options configure an Agent. The zero value is usable; NewAgent applies
// defaults for anything unset.
type Options struct {
	// ChunkSize is the event capacity of one chunk.
	ChunkSize int

	// MaxChunks bounds the writer queue. Events emitted while the queue
	// holds MaxChunks sealed chunks are dropped.
	MaxChunks int

	// Logger receives writer-side diagnostics: sink failures and drop
	// reports. Defaults to slog.Default.
	Logger *slog.Logger

	// Observer, if set, is invoked with a fresh category snapshot whenever
	// a category mutation changes the set while the agent is running. It
	// runs outside the agent's internal locks and may call agent methods.
	Observer func(EnabledSet)
}

// Agent wires the category registry, buffer, writer, and broker together
// and owns their lifecycle. All methods are safe for concurrent use: the
// emission entry points are designed to be called from any number of
// producer goroutines, and the control surface from any goroutine.
type Agent struct {
	registry *Registry
	broker   *Broker
	sink     Sink
	logger   *slog.Logger
	debug    tracingdebug.PipelineCounters

	chunkSize int
	maxChunks int

	mtx      sync.Mutex // serializes lifecycle transitions and category mutation
	state    atomic.Int32
	observer func(EnabledSet)

	pipeline atomic.Pointer[pipeline]
}

// pipeline is the per-run buffer and writer pair, rebuilt on every Start so
// a restarted agent never appends to a drained buffer.
type pipeline struct {
	buf    *Buffer
	writer *Writer
}

// NewAgent returns a stopped agent flushing to the given sink. A nil sink
// discards every chunk, which is occasionally useful with Subscribe as the
// only consumer.
func NewAgent(sink Sink, opts Options) *Agent {
	if sink == nil {
		sink = SinkFunc(func([]Event) error { return nil })
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = DefaultMaxChunks
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Agent{
		registry:  NewRegistry(),
		broker:    NewBroker(),
		sink:      sink,
		logger:    opts.Logger,
		chunkSize: opts.ChunkSize,
		maxChunks: opts.MaxChunks,
		observer:  opts.Observer,
	}
}

//
//
//

// Start transitions the agent to Running: it builds a fresh buffer, starts
// the writer goroutine, and only then publishes the configured categories,
// so no producer can have an event accepted before the pipeline can carry
// it. Start while already Running is a no-op.
func (a *Agent) Start() {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.startLocked()
}

func (a *Agent) startLocked() {
	if State(a.state.Load()) == Running {
		return
	}
	a.state.Store(int32(Starting))

	buf := newBuffer(a.chunkSize, a.maxChunks, &a.debug)
	w := newWriter(a.sink, a.broker, a.logger, &a.debug, buf.out)
	go w.run()
	a.pipeline.Store(&pipeline{buf: buf, writer: w})

	a.state.Store(int32(Running))
	a.registry.publish(true)
}

// Stop drains and tears down the pipeline. The enabled set is cleared
// first, so producers stop accepting; the buffer then flushes its partial
// chunk and closes the queue; and the call returns only after the writer
// has consumed every chunk enqueued before the close. No emission work
// executes after Stop returns. Stop while already Stopped is a no-op.
//
// There is no timeout: a stuck sink stalls Stop. Callers that need a bound
// should impose one externally.
func (a *Agent) Stop() {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.stopLocked()
}

func (a *Agent) stopLocked() {
	if State(a.state.Load()) == Stopped {
		return
	}
	a.state.Store(int32(Stopping))

	a.registry.publish(false)

	if p := a.pipeline.Swap(nil); p != nil {
		p.buf.Close()
		p.writer.drain()
	}

	a.state.Store(int32(Stopped))
}

// IsStarted reports whether the agent is Running.
func (a *Agent) IsStarted() bool {
	return State(a.state.Load()) == Running
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

// Flush seals and enqueues the partially filled open chunk, if any. Useful
// for embedders that want bounded flush latency without stopping.
func (a *Agent) Flush() {
	if p := a.pipeline.Load(); p != nil {
		p.buf.FlushNow()
	}
}

//
//
//

// SetCategories replaces the enabled category set wholesale and reports
// whether it changed. Setting a non-empty set on a stopped agent starts it;
// setting an empty set on a running agent stops it via the normal Stop
// path. Legal in any state.
func (a *Agent) SetCategories(names ...string) bool {
	a.mtx.Lock()
	changed := a.registry.SetCategories(names)
	notify := a.applyLocked(changed)
	a.mtx.Unlock()

	if notify != nil {
		notify()
	}
	return changed
}

// EnableCategory adds one category to the enabled set, reporting whether
// the set changed. Like SetCategories, enabling the first category of a
// stopped agent starts it.
func (a *Agent) EnableCategory(name string) bool {
	return a.toggleCategory(name, true)
}

// DisableCategory removes one category from the enabled set, reporting
// whether the set changed. Disabling the last category stops the agent.
func (a *Agent) DisableCategory(name string) bool {
	return a.toggleCategory(name, false)
}

func (a *Agent) toggleCategory(name string, enable bool) bool {
	a.mtx.Lock()
	changed := a.registry.ToggleCategory(name, enable)
	notify := a.applyLocked(changed)
	a.mtx.Unlock()

	if notify != nil {
		notify()
	}
	return changed
}

// applyLocked reconciles lifecycle state with the configured categories
// after a mutation. The returned func, if non-nil, carries the observer
// notification; callers invoke it after releasing the mutex, so observers
// may call back into the agent.
func (a *Agent) applyLocked(changed bool) func() {
	var (
		state = State(a.state.Load())
		n     = len(a.registry.Configured())
	)

	switch {
	case n == 0 && state == Running:
		a.stopLocked()
	case n > 0 && state == Stopped:
		a.startLocked()
	case changed && state == Running:
		a.registry.publish(true)
	}

	if changed && State(a.state.Load()) == Running && a.observer != nil {
		observer, snapshot := a.observer, a.registry.Snapshot()
		return func() { observer(snapshot) }
	}
	return nil
}

// GetEnabledCategories returns a snapshot of the category configuration:
// each configured name, mapped to whether it is currently enabled. The
// snapshot is a copy; mutating it has no effect on the agent.
func (a *Agent) GetEnabledCategories() EnabledSet {
	return a.registry.Snapshot()
}

// Observe registers fn to be invoked with a fresh category snapshot
// whenever a category mutation changes the set while the agent is running.
// It replaces any observer registered before, including via Options.
func (a *Agent) Observe(fn func(EnabledSet)) {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	a.observer = fn
}

//
//
//

// Group interns a category group for reuse. Hot call sites intern once and
// pass the returned group to the emission entry points, skipping the join
// and pool lookup on every call.
func (a *Agent) Group(in GroupInput) (*CategoryGroup, error) {
	return a.registry.InternGroup(in)
}

// MustGroup is Group, panicking on invalid input. Intended for
// package-scope group variables.
func (a *Agent) MustGroup(in GroupInput) *CategoryGroup {
	g, err := a.registry.InternGroup(in)
	if err != nil {
		panic(err)
	}
	return g
}

// EmitInstant records an instant event. The enabled-category check runs
// before any argument handling or allocation: while the categories are
// disabled, the call costs the group resolution and one atomic load.
func (a *Agent) EmitInstant(name string, cats GroupInput, args ...Arg) error {
	return a.emit(PhaseInstant, name, "", cats, args)
}

// EmitSpanBegin records the opening edge of a span. An empty id defaults to
// the event name, pairing begin and end by name when the call site supplies
// no explicit correlation id.
func (a *Agent) EmitSpanBegin(name, id string, cats GroupInput, args ...Arg) error {
	return a.emit(PhaseBegin, name, id, cats, args)
}

// EmitSpanEnd records the closing edge of a span, pairing with the
// EmitSpanBegin that used the same id, or the same name when neither call
// supplied an id.
func (a *Agent) EmitSpanEnd(name, id string, cats GroupInput, args ...Arg) error {
	return a.emit(PhaseEnd, name, id, cats, args)
}

// EmitCounter records a counter sample. The value must be a numeric scalar,
// recorded as the "value" argument, or a flat map of numeric scalars,
// recorded as one argument per key in sorted key order. Only the first
// MaxEventArgs entries are retained.
func (a *Agent) EmitCounter(name string, cats GroupInput, value any) error {
	if name == "" {
		return fmt.Errorf("emit counter: %w: empty name", ErrInvalidArgument)
	}

	g, err := a.registry.InternGroup(cats)
	if err != nil {
		return err
	}
	if !a.registry.GroupEnabled(g) {
		return nil
	}

	args, err := counterArgs(value)
	if err != nil {
		return err
	}

	a.append(newEvent(PhaseCounter, name, "", g, args))
	return nil
}

func (a *Agent) emit(phase Phase, name, id string, cats GroupInput, args []Arg) error {
	if name == "" {
		return fmt.Errorf("emit: %w: empty name", ErrInvalidArgument)
	}

	g, err := a.registry.InternGroup(cats)
	if err != nil {
		return err
	}
	if !a.registry.GroupEnabled(g) {
		return nil
	}
	if len(args) > MaxEventArgs {
		args = args[:MaxEventArgs]
	}

	a.append(newEvent(phase, name, id, g, args))
	return nil
}

func (a *Agent) append(ev Event) {
	p := a.pipeline.Load()
	if p == nil {
		// The enabled set and the pipeline are published together, so
		// landing here means a Stop raced this emission. Drop.
		a.debug.Dropped.Add(1)
		return
	}
	if p.buf.Append(ev) == DroppedBufferFull {
		a.logger.Debug("trace event dropped, buffer full",
			"name", ev.Name,
			"cat", ev.Group.Key())
	}
}

//
//
//

// Subscribe streams flushed events to ch until ctx is done, then returns
// the subscriber's stats. Events reach subscribers after their chunk passes
// through the writer, in flush order. The allow predicate (nil allows all)
// filters per event.
func (a *Agent) Subscribe(ctx context.Context, allow func(Event) bool, ch chan<- Event) (SubscriberStats, error) {
	return a.broker.Subscribe(ctx, allow, ch)
}

// Stats is a point-in-time snapshot of the pipeline counters.
type Stats struct {
	Accepted   uint64 `json:"accepted"`
	Dropped    uint64 `json:"dropped"`
	Sealed     uint64 `json:"sealed"`
	Written    uint64 `json:"written"`
	SinkErrors uint64 `json:"sink_errors"`
}

// Stats returns the current pipeline counters.
func (a *Agent) Stats() Stats {
	accepted, dropped, sealed, written, sinkErrors := a.debug.Values()
	return Stats{
		Accepted:   accepted,
		Dropped:    dropped,
		Sealed:     sealed,
		Written:    written,
		SinkErrors: sinkErrors,
	}
}
