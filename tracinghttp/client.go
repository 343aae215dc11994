package tracinghttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bernerdschaefer/eventsource"
	"github.com/peterbourgon/unixtransport"

	"github.com/jasongin/tracing"
)

// HTTPClient models a concrete http.Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Client drives a [Server] instance. The default transport understands
// http+unix:// URLs in addition to http and https, so agents listening on
// Unix sockets work without extra configuration.
type Client struct {
	client  HTTPClient
	baseurl string

	// RetryInterval is the SSE reconnect interval used by Stream. Zero
	// means one second.
	RetryInterval time.Duration
}

// NewClient returns a client for the server at baseurl.
func NewClient(baseurl string) *Client {
	var transport http.Transport
	unixtransport.Register(&transport)

	if !strings.HasPrefix(baseurl, "http") {
		baseurl = "http://" + baseurl
	}

	return &Client{
		client:  &http.Client{Transport: &transport},
		baseurl: strings.TrimRight(baseurl, "/"),
	}
}

// Categories fetches the current category snapshot.
func (c *Client) Categories(ctx context.Context) (tracing.EnabledSet, error) {
	var out tracing.EnabledSet
	if err := c.do(ctx, http.MethodGet, "/categories", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetCategories replaces the server's enabled category set.
func (c *Client) SetCategories(ctx context.Context, names []string) (CategoriesResponse, error) {
	body, err := json.Marshal(names)
	if err != nil {
		return CategoriesResponse{}, fmt.Errorf("encode category list: %w", err)
	}

	var out CategoriesResponse
	if err := c.do(ctx, http.MethodPut, "/categories", body, &out); err != nil {
		return CategoriesResponse{}, err
	}
	return out, nil
}

// State fetches the server's lifecycle state and pipeline counters.
func (c *Client) State(ctx context.Context) (StateResponse, error) {
	var out StateResponse
	if err := c.do(ctx, http.MethodGet, "/state", nil, &out); err != nil {
		return StateResponse{}, err
	}
	return out, nil
}

// Stream consumes the server's SSE event stream, invoking fn for every
// received event, until ctx is done or fn returns an error.
func (c *Client) Stream(ctx context.Context, categories []string, fn func(tracing.Event) error) error {
	// The request deliberately has no context: EventSource treats context
	// cancelation as a recoverable error and can block a full retry
	// interval before returning. Close on ctx.Done instead.
	uri, err := url.Parse(c.baseurl + "/stream")
	if err != nil {
		return err
	}
	if len(categories) > 0 {
		query := uri.Query()
		query.Set("categories", strings.Join(categories, ","))
		uri.RawQuery = query.Encode()
	}

	req, err := http.NewRequest(http.MethodGet, uri.String(), nil)
	if err != nil {
		return err
	}

	retry := c.RetryInterval
	if retry <= 0 {
		retry = time.Second
	}

	es := eventsource.New(req, retry)
	go func() {
		<-ctx.Done()
		es.Close()
	}()

	for {
		sse, err := es.Read()
		if errors.Is(err, eventsource.ErrClosed) {
			return ctx.Err()
		}
		if err != nil {
			return fmt.Errorf("read server-sent event: %w", err)
		}

		if sse.Type != "event" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal(sse.Data, &ev); err != nil {
			return fmt.Errorf("decode stream event: %w", err)
		}
		if err := fn(ev.toEvent()); err != nil {
			return err
		}
	}
}

// streamEvent is the client-side decoding of the wire form of an event.
// The interned category group does not survive the wire; the decoded
// event's group is re-interned into a client-local registry.
type streamEvent struct {
	Name string         `json:"name"`
	Cat  string         `json:"cat"`
	Ph   string         `json:"ph"`
	ID   string         `json:"id"`
	Ts   int64          `json:"ts"`
	Args map[string]any `json:"args"`
}

var clientRegistry = tracing.NewRegistry()

func (se streamEvent) toEvent() tracing.Event {
	var phase tracing.Phase
	switch se.Ph {
	case "I":
		phase = tracing.PhaseInstant
	case "B":
		phase = tracing.PhaseBegin
	case "E":
		phase = tracing.PhaseEnd
	case "C":
		phase = tracing.PhaseCounter
	}

	var group *tracing.CategoryGroup
	if se.Cat != "" {
		if names := strings.Split(se.Cat, ","); len(names) > 0 {
			group, _ = clientRegistry.InternGroup(tracing.Categories(names))
		}
	}

	var args []tracing.Arg
	if len(se.Args) > 0 {
		names := make([]string, 0, len(se.Args))
		for name := range se.Args {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			args = append(args, tracing.Arg{Name: name, Value: se.Args[name]})
		}
	}

	return tracing.Event{
		Phase:     phase,
		Name:      se.Name,
		Group:     group,
		ID:        se.ID,
		Timestamp: se.Ts * int64(time.Microsecond),
		Args:      args,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, into any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseurl+path, rd)
	if err != nil {
		return fmt.Errorf("make HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute HTTP request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote status code %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
