// Package inspect serves a read-only view of a running dataverse graph.
//
// Sources registered with Watch are tapped on the frame loop; their latest
// values are served as JSON and every delivered change is pushed to
// WebSocket clients. The server never mutates the graph.
//
// Routes:
//
//	GET /healthz      liveness
//	GET /api/values   latest value of every watched source
//	GET /api/stats    frame loop counters
//	GET /ws           live feed of changes
//	GET /metrics      Prometheus metrics
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vango-dev/dataverse/pkg/dataverse"
	"github.com/vango-dev/dataverse/pkg/frame"
)

// ErrDuplicateWatch is returned when a name is watched twice.
var ErrDuplicateWatch = errors.New("inspect: name already watched")

// Option configures a Server.
type Option func(*Server)

// WithGatherer sets the registry served on /metrics.
// Default: prometheus.DefaultGatherer
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Value is the latest state of a watched source.
type Value struct {
	Name    string    `json:"name"`
	Seq     uint64    `json:"seq"`
	Value   any       `json:"value,omitempty"`
	Error   string    `json:"error,omitempty"`
	Updated time.Time `json:"updated"`
}

type watch struct {
	Value
	untap dataverse.Untap
}

// Server is the inspector HTTP server.
type Server struct {
	loop     *frame.Loop
	hub      *Hub
	router   chi.Router
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	mu      sync.RWMutex
	watched map[string]*watch
}

// New creates an inspector for the graph driven by loop.
func New(loop *frame.Loop, opts ...Option) *Server {
	s := &Server{
		loop:     loop,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
		watched:  make(map[string]*watch),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.logger)
	s.hub.onConnect = s.snapshotMessages
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/values", s.handleValues)
		r.Get("/values/{name}", s.handleValue)
		r.Get("/stats", s.handleStats)
	})
	r.Get("/ws", s.hub.HandleWebSocket)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the live feed hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close disconnects every feed client.
func (s *Server) Close() {
	s.hub.Close()
}

// Watch taps src on the loop's context under name. The current value is
// recorded immediately; every change delivered by a tick updates it and is
// broadcast to feed clients.
//
// Watch blocks until the loop has run the registration, so it must not be
// called from the loop goroutine.
func Watch[T any](s *Server, name string, src dataverse.Source[T]) error {
	s.mu.Lock()
	if _, ok := s.watched[name]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateWatch, name)
	}
	w := &watch{Value: Value{Name: name}}
	s.watched[name] = w
	s.mu.Unlock()

	err := s.loop.Do(context.Background(), func(c *dataverse.Context) {
		v, err := src.Value()
		s.update(w, c.Seq(), v, err)
		untap := src.Changes(c).Tap(func(v T) {
			s.update(w, c.Seq(), v, nil)
			s.hub.Broadcast(Message{Type: MessageChange, Name: name, Seq: c.Seq(), Value: v})
		})
		s.mu.Lock()
		w.untap = untap
		s.mu.Unlock()
	})
	if err != nil {
		s.mu.Lock()
		delete(s.watched, name)
		s.mu.Unlock()
		return err
	}
	return nil
}

// Unwatch removes a watched source, untapping it on the loop.
func (s *Server) Unwatch(name string) error {
	s.mu.Lock()
	w, ok := s.watched[name]
	delete(s.watched, name)
	s.mu.Unlock()
	if !ok || w.untap == nil {
		return nil
	}
	return s.loop.Do(context.Background(), func(*dataverse.Context) {
		w.untap()
	})
}

// Values returns the latest values sorted by name.
func (s *Server) Values() []Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Value, 0, len(s.watched))
	for _, w := range s.watched {
		out = append(out, w.Value)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Server) update(w *watch, seq uint64, v any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Seq = seq
	w.Updated = time.Now()
	if err != nil {
		w.Value.Value = nil
		w.Error = err.Error()
		return
	}
	w.Value.Value = v
	w.Error = ""
}

func (s *Server) snapshotMessages() []Message {
	values := s.Values()
	msgs := make([]Message, 0, len(values))
	for _, v := range values {
		if v.Error != "" {
			msgs = append(msgs, Message{Type: MessageError, Name: v.Name, Seq: v.Seq, Error: v.Error})
			continue
		}
		msgs = append(msgs, Message{Type: MessageSnapshot, Name: v.Name, Seq: v.Seq, Value: v.Value})
	}
	return msgs
}

func (s *Server) handleValues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Values())
}

func (s *Server) handleValue(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	s.mu.RLock()
	watched, ok := s.watched[name]
	var v Value
	if ok {
		v = watched.Value
	}
	s.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not watched: " + name})
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// StatsResponse is the body of /api/stats.
type StatsResponse struct {
	frame.Stats
	Watched     int `json:"watched"`
	FeedClients int `json:"feedClients"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	watched := len(s.watched)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, StatsResponse{
		Stats:       s.loop.Stats(),
		Watched:     watched,
		FeedClients: s.hub.ClientCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
