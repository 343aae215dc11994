package tracing

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidArgument is returned by emission entry points for malformed
// call-site input: an empty event name, an empty category group, or a
// counter value that is neither a numeric scalar nor a flat map of numeric
// scalars. Validation errors surface synchronously at the call site; they
// are never buffered.
var ErrInvalidArgument = errors.New("invalid argument")

// Phase identifies the kind of a trace event. String values follow the
// phase letters of the Trace Event Format.
type Phase uint8

const (
	PhaseInstant Phase = iota
	PhaseBegin
	PhaseEnd
	PhaseCounter
)

func (p Phase) String() string {
	switch p {
	case PhaseInstant:
		return "I"
	case PhaseBegin:
		return "B"
	case PhaseEnd:
		return "E"
	case PhaseCounter:
		return "C"
	default:
		return "?"
	}
}

// MaxEventArgs caps the number of arguments retained per event. The cap of
// two is inherited from the original trace macros; arguments beyond it are
// silently truncated, not rejected. TODO: lift the cap once sinks agree on
// a representation for arbitrary argument lists.
const MaxEventArgs = 2

// Arg is one named event argument. Values should be plain scalars, strings,
// or small maps: they are retained until the owning chunk is flushed and
// must not be mutated after emission.
type Arg struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Event is one trace record. Events are immutable once constructed: the
// emission entry points create them, the chunk that accepts them owns them,
// and they are discarded after the chunk is flushed.
type Event struct {
	Phase     Phase
	Name      string
	Group     *CategoryGroup
	ID        string // correlation id; defaults to Name for span events
	Timestamp int64  // nanoseconds, captured at construction
	Args      []Arg  // at most MaxEventArgs entries, input order
}

// newEvent stamps the event with the current time. The upstream source
// accepted a caller-supplied timestamp but never threaded it through; here
// the timestamp is always captured at construction, from the monotonic
// clock backing time.Now.
func newEvent(phase Phase, name, id string, group *CategoryGroup, args []Arg) Event {
	if id == "" {
		id = name
	}
	if len(args) > MaxEventArgs {
		args = args[:MaxEventArgs]
	}
	return Event{
		Phase:     phase,
		Name:      name,
		Group:     group,
		ID:        id,
		Timestamp: time.Now().UnixNano(),
		Args:      args,
	}
}

// counterArgs converts an EmitCounter value into event args. Numeric
// scalars become a single "value" argument. A flat map of numeric scalars
// becomes one argument per key, in sorted key order, so that truncation to
// MaxEventArgs is deterministic.
func counterArgs(value any) ([]Arg, error) {
	if isNumeric(value) {
		return []Arg{{Name: "value", Value: value}}, nil
	}

	m, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("counter value: %w: %T is neither numeric nor a map", ErrInvalidArgument, value)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("counter value: %w: empty map", ErrInvalidArgument)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]Arg, 0, len(keys))
	for _, k := range keys {
		if !isNumeric(m[k]) {
			return nil, fmt.Errorf("counter value %q: %w: %T is not numeric", k, ErrInvalidArgument, m[k])
		}
		args = append(args, Arg{Name: k, Value: m[k]})
	}
	return args, nil
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

//
//
//

// jsonEvent is the Trace Event Format representation of an event, shared by
// every JSON-producing sink. Timestamps are microseconds per the format.
type jsonEvent struct {
	Name string         `json:"name"`
	Cat  string         `json:"cat"`
	Ph   string         `json:"ph"`
	ID   string         `json:"id,omitempty"`
	Ts   int64          `json:"ts"`
	Args map[string]any `json:"args,omitempty"`
}

// MarshalJSON implements json.Marshaler, rendering the event as a Trace
// Event Format object.
func (ev Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonEventFrom(&ev))
}

func jsonEventFrom(ev *Event) jsonEvent {
	var cat string
	if ev.Group != nil {
		cat = ev.Group.Key()
	}

	var args map[string]any
	if len(ev.Args) > 0 {
		args = make(map[string]any, len(ev.Args))
		for _, a := range ev.Args {
			args[a.Name] = a.Value
		}
	}

	return jsonEvent{
		Name: ev.Name,
		Cat:  cat,
		Ph:   ev.Phase.String(),
		ID:   ev.ID,
		Ts:   ev.Timestamp / int64(time.Microsecond),
		Args: args,
	}
}
