// Package tracinghttp exposes an agent's control surface over HTTP:
// category inspection and mutation, lifecycle state, and live event streams
// over server-sent events or WebSocket.
package tracinghttp

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jasongin/tracing"
)

// Server implements a JSON API over a [tracing.Agent].
//
//	GET  /categories   -> tracing.EnabledSet
//	PUT  /categories   <- ["cat", ...] -> CategoriesResponse
//	GET  /state        -> StateResponse
//	GET  /stream       -> text/event-stream of flushed events
//	GET  /stream/ws    -> WebSocket stream of flushed events
//
// The stream endpoints accept a ?categories=a,b parameter filtering events
// to those whose group contains at least one of the given names, the same
// OR semantics the emission path uses.
type Server struct {
	agent *tracing.Agent
	mux   *http.ServeMux
}

// NewServer returns a server wrapping the given agent.
func NewServer(agent *tracing.Agent) *Server {
	s := &Server{
		agent: agent,
		mux:   http.NewServeMux(),
	}
	s.mux.HandleFunc("/categories", s.handleCategories)
	s.mux.HandleFunc("/state", s.handleState)
	s.mux.Handle("/stream", NewStreamServer(agent))
	s.mux.Handle("/stream/ws", NewWSServer(agent))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// CategoriesResponse is returned by category mutations.
type CategoriesResponse struct {
	Changed    bool               `json:"changed"`
	Categories tracing.EnabledSet `json:"categories"`
}

// StateResponse describes the agent's lifecycle state and counters.
type StateResponse struct {
	Started bool          `json:"started"`
	State   string        `json:"state"`
	Stats   tracing.Stats `json:"stats"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respondJSON(w, s.agent.GetEnabledCategories())

	case http.MethodPut, http.MethodPost:
		var names []string
		if err := json.NewDecoder(r.Body).Decode(&names); err != nil {
			http.Error(w, "decode category list: "+err.Error(), http.StatusBadRequest)
			return
		}
		changed := s.agent.SetCategories(names...)
		respondJSON(w, CategoriesResponse{
			Changed:    changed,
			Categories: s.agent.GetEnabledCategories(),
		})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, StateResponse{
		Started: s.agent.IsStarted(),
		State:   s.agent.State().String(),
		Stats:   s.agent.Stats(),
	})
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(v)
}

// allowCategories builds the stream filter predicate for a comma-joined
// category list; empty input means no filter.
func allowCategories(list string) func(tracing.Event) bool {
	if list == "" {
		return nil
	}

	want := map[string]struct{}{}
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			want[name] = struct{}{}
		}
	}
	if len(want) == 0 {
		return nil
	}

	return func(ev tracing.Event) bool {
		if ev.Group == nil {
			return false
		}
		for _, name := range ev.Group.Names() {
			if _, ok := want[name]; ok {
				return true
			}
		}
		return false
	}
}
