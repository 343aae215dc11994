package tracingsink

import "github.com/jasongin/tracing"

// wireEvent is the record schema shared by the binary encodings. Field
// names mirror the Trace Event Format JSON keys, timestamps stay in
// nanoseconds: binary consumers get the full resolution.
type wireEvent struct {
	Phase string         `msgpack:"ph" cbor:"ph"`
	Name  string         `msgpack:"name" cbor:"name"`
	Cat   string         `msgpack:"cat" cbor:"cat"`
	ID    string         `msgpack:"id,omitempty" cbor:"id,omitempty"`
	Ts    int64          `msgpack:"ts" cbor:"ts"`
	Args  map[string]any `msgpack:"args,omitempty" cbor:"args,omitempty"`
}

func wireEventFrom(ev *tracing.Event) wireEvent {
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

	return wireEvent{
		Phase: ev.Phase.String(),
		Name:  ev.Name,
		Cat:   cat,
		ID:    ev.ID,
		Ts:    ev.Timestamp,
		Args:  args,
	}
}
