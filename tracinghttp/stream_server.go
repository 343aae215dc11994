package tracinghttp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bernerdschaefer/eventsource"

	"github.com/jasongin/tracing"
)

// StreamServer streams flushed events as server-sent events of type
// "event", with a monotonic per-connection sequence number as the SSE id.
// A ?buf=N parameter sizes the subscriber channel; events that arrive
// faster than the client drains are dropped, per the broker's non-blocking
// publish.
type StreamServer struct {
	agent *tracing.Agent
}

// NewStreamServer returns an SSE handler over the agent's event stream.
func NewStreamServer(agent *tracing.Agent) *StreamServer {
	return &StreamServer{agent: agent}
}

// ServeHTTP implements http.Handler.
func (s *StreamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "only GET is supported", http.StatusMethodNotAllowed)
		return
	}

	var (
		ctx   = r.Context()
		buf   = parseDefault(r.URL.Query().Get("buf"), parseBufSize, 100)
		ch    = make(chan tracing.Event, buf)
		allow = allowCategories(r.URL.Query().Get("categories"))
	)

	// Subscribe blocks until the request context is done; it unsubscribes
	// on its own once the handler returns and the context is canceled.
	go s.agent.Subscribe(ctx, allow, ch)

	eventsource.Handler(func(lastID string, encoder *eventsource.Encoder, stop <-chan bool) {
		var seq uint64
		for {
			select {
			case ev := <-ch:
				seq++
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if err := encoder.Encode(eventsource.Event{
					Type: "event",
					ID:   strconv.FormatUint(seq, 10),
					Data: data,
				}); err != nil {
					return
				}

			case <-ctx.Done():
				return

			case <-stop:
				return
			}
		}
	}).ServeHTTP(w, r)
}

func parseDefault[T any](s string, parse func(string) (T, error), def T) T {
	if v, err := parse(s); err == nil {
		return v
	}
	return def
}

// parseBufSize parses a subscriber channel size. Negative values are
// rejected, falling back to the caller's default: the size reaches
// make(chan) and comes from untrusted query input.
func parseBufSize(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative buffer size %d", n)
	}
	return n, nil
}
