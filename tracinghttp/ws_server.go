package tracinghttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jasongin/tracing"
)

// WSServer streams flushed events over a WebSocket, one JSON text message
// per event, for clients that cannot consume server-sent events. Query
// parameters match the SSE endpoint.
type WSServer struct {
	agent    *tracing.Agent
	upgrader websocket.Upgrader
}

// NewWSServer returns a WebSocket handler over the agent's event stream.
func NewWSServer(agent *tracing.Agent) *WSServer {
	return &WSServer{
		agent: agent,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP implements http.Handler.
func (s *WSServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		buf   = parseDefault(r.URL.Query().Get("buf"), parseBufSize, 100)
		ch    = make(chan tracing.Event, buf)
		allow = allowCategories(r.URL.Query().Get("categories"))
	)

	go s.agent.Subscribe(ctx, allow, ch)

	// The read pump only notices the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ctx.Done():
			deadline := time.Now().Add(time.Second)
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}
