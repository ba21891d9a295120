// Package http exposes an Agent over HTTP: synchronous and streamed analysis,
// thread administration, and per-thread event subscriptions (SSE).
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/arbiter"
	"github.com/aretw0/arbiter/internal/logging"
	"github.com/aretw0/arbiter/internal/sanitize"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Agent is the subset of arbiter.Agent served over HTTP.
type Agent interface {
	Run(ctx context.Context, req arbiter.Request, sinks ...ports.EventSink) (*arbiter.Response, error)
	Threads(ctx context.Context) ([]string, error)
	History(ctx context.Context, threadID string) (*domain.State, error)
	Reset(ctx context.Context, threadID string) error
}

var _ Agent = (*arbiter.Agent)(nil)

// Server holds the HTTP handlers.
type Server struct {
	Agent   Agent
	Streams *StreamManager
	metrics http.Handler
	logger  *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithMetrics mounts a metrics handler at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewHandler creates the HTTP handler for an agent.
func NewHandler(agent Agent, opts ...Option) http.Handler {
	s := &Server{
		Agent:   agent,
		Streams: NewStreamManager(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/analyze", s.Analyze)
		r.Post("/analyze/stream", s.AnalyzeStream)
		r.Post("/followup", s.FollowUp)
		r.Get("/threads", s.ListThreads)
		r.Get("/threads/{threadID}", s.GetThread)
		r.Delete("/threads/{threadID}", s.DeleteThread)
		r.Get("/threads/{threadID}/events", s.SubscribeEvents)
	})
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// decodeRequest reads and sanitizes an analysis request.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (arbiter.Request, bool) {
	var req arbiter.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		return req, false
	}

	query, err := sanitize.Input(req.Query)
	if err == nil {
		req.Selections, err = sanitize.All(req.Selections)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid input: %v", err))
		s.logger.Warn("input rejected", "err", err, "size", len(req.Query))
		return req, false
	}
	req.Query = query
	return req, true
}

// broadcast relays the events of a turn to thread subscribers.
func (s *Server) broadcast() ports.EventSink {
	return ports.EventSinkFunc(func(ctx context.Context, ev domain.StageEvent) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		s.Streams.Broadcast(ev.ThreadID, string(data))
		return nil
	})
}

// Analyze handles POST /v1/analyze.
func (s *Server) Analyze(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	s.run(w, r, req)
}

// FollowUp handles POST /v1/followup: selections answering a clarification
// on an existing thread.
func (s *Server) FollowUp(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	if req.ThreadID == "" || len(req.Selections) == 0 {
		writeError(w, http.StatusBadRequest, "thread_id and user_selections are required")
		return
	}
	s.run(w, r, req)
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, req arbiter.Request) {
	resp, err := s.Agent.Run(r.Context(), req, s.broadcast())
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("analysis failed", "thread_id", req.ThreadID, "err", err)
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// AnalyzeStream handles POST /v1/analyze/stream (SSE). Each stage event is a
// data frame; the stream ends with "data: [DONE]".
func (s *Server) AnalyzeStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var mu sync.Mutex
	sink := ports.EventSinkFunc(func(ctx context.Context, ev domain.StageEvent) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})

	// Failures are reported in-band as the terminal error event.
	_, _ = s.Agent.Run(r.Context(), req, sink, s.broadcast())

	mu.Lock()
	defer mu.Unlock()
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// ListThreads handles GET /v1/threads.
func (s *Server) ListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.Agent.Threads(r.Context())
	if err != nil {
		s.logger.Error("list threads failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if threads == nil {
		threads = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": threads})
}

// GetThread handles GET /v1/threads/{threadID}.
func (s *Server) GetThread(w http.ResponseWriter, r *http.Request) {
	state, err := s.Agent.History(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// DeleteThread handles DELETE /v1/threads/{threadID}.
func (s *Server) DeleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.Agent.Reset(r.Context(), chi.URLParam(r, "threadID")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "arbiter-http",
		"version": strings.TrimSpace(arbiter.Version),
	})
}

// StreamManager handles active SSE subscriptions per thread.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // ThreadID -> Set of Channels
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logging.NewNop(),
	}
}

func (sm *StreamManager) Subscribe(threadID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 32)
	if _, ok := sm.subscribers[threadID]; !ok {
		sm.subscribers[threadID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[threadID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[threadID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, threadID)
			}
		}
	}
}

// Subscribers counts the live subscriptions of a thread.
func (sm *StreamManager) Subscribers(threadID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[threadID])
}

func (sm *StreamManager) Broadcast(threadID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[threadID] {
		select {
		case ch <- msg:
		default:
			// Slow client.
			sm.logger.Warn("SSE: Client buffer full, dropping message", "thread_id", threadID)
		}
	}
}

// SubscribeEvents handles GET /v1/threads/{threadID}/events (SSE): it relays
// the events of every turn run on the thread while the client is connected.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}
	threadID := chi.URLParam(r, "threadID")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(threadID)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// -- Helpers --

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmptyQuery), errors.Is(err, domain.ErrUnknownRegime):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrThreadNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
