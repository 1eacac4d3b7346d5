// Package api hosts the native module behind a local HTTP API so a bridge
// in another process can drive it. Events are streamed as Server-Sent
// Events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/benaskins/voiceauth/internal/authconfig"
	"github.com/benaskins/voiceauth/internal/events"
	"github.com/benaskins/voiceauth/internal/journal"
	"github.com/benaskins/voiceauth/internal/native"
)

const maxConfigBody = 1 << 20

var eventNames = []string{events.AuthSuccess, events.AuthError, events.AuthProgress}

// Server serves the voiceauth API over a Unix socket and optionally TCP.
type Server struct {
	module  native.Exported
	journal *journal.Ring
	metrics *metrics
	server  *http.Server
	logger  *slog.Logger
	ctx     context.Context

	mu       sync.Mutex
	subs     []*events.Subscription
	defaults authconfig.Partial
}

// NewServer creates an API server for module. recent may be nil.
func NewServer(module native.Exported, recent *journal.Ring, ctx context.Context) *Server {
	s := &Server{
		module:  module,
		journal: recent,
		metrics: newMetrics(),
		logger:  slog.With("component", "api"),
		ctx:     ctx,
	}

	for _, name := range eventNames {
		name := name
		s.subs = append(s.subs, module.AddListener(name, func(string) {
			s.metrics.events.WithLabelValues(name).Inc()
		}))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/launch", s.launch)
	mux.HandleFunc("GET /v1/events", s.stream)
	mux.HandleFunc("GET /v1/events/recent", s.recent)
	mux.HandleFunc("DELETE /v1/credentials/{id}", s.clearCredentials)
	mux.HandleFunc("GET /v1/constants", s.constants)
	mux.HandleFunc("GET /v1/health", s.health)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	s.server = &http.Server{Handler: mux}
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenUnix starts the server on a Unix socket.
func (s *Server) ListenUnix(path string) error {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.logger.Info("API listening", "socket", path)
	return s.server.Serve(ln)
}

// ListenTCP starts the server on a TCP address.
func (s *Server) ListenTCP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.logger.Info("API listening", "addr", addr)
	return s.server.Serve(ln)
}

// SetDefaults sets the site defaults layered under every launch request's
// config.
func (s *Server) SetDefaults(p authconfig.Partial) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = p
}

// Shutdown gracefully shuts down the API server and releases its module
// subscriptions. Open event streams end when the server context is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Remove()
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) launch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxConfigBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	var p authconfig.Partial
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &p); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid config: %v", err)})
			return
		}
	}

	s.mu.Lock()
	cfg := authconfig.Normalize(s.defaults.Merge(p))
	s.mu.Unlock()

	if err := s.module.LaunchAuth(cfg); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, native.ErrAuthInProgress) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	s.metrics.launches.Inc()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "launched"})
}

// stream writes module events as Server-Sent Events until the client
// disconnects. The leading comment tells the client its subscription is in
// place.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	ch := make(chan events.Event, 64)
	var subs []*events.Subscription
	for _, name := range eventNames {
		name := name
		subs = append(subs, s.module.AddListener(name, func(payload string) {
			select {
			case ch <- events.Event{Name: name, Payload: payload}:
			default:
				s.logger.Warn("dropping event for slow stream", "event", name)
			}
		}))
	}
	defer func() {
		for _, sub := range subs {
			sub.Remove()
		}
	}()

	s.metrics.streams.Inc()
	defer s.metrics.streams.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.ctx.Done():
			return
		case ev := <-ch:
			writeEvent(w, ev)
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, ev events.Event) {
	fmt.Fprintf(w, "event: %s\n", ev.Name)
	for _, line := range strings.Split(ev.Payload, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	io.WriteString(w, "\n")
}

func (s *Server) recent(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusOK, []journal.Entry{})
		return
	}
	n := 0
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "n must be a non-negative integer"})
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, s.journal.Last(n))
}

func (s *Server) clearCredentials(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cleared, err := s.module.ClearCredentials(r.Context(), id)
	if err != nil {
		s.metrics.clears.WithLabelValues("error").Inc()
		status := http.StatusInternalServerError
		if errors.Is(err, native.ErrStorageUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	outcome := "absent"
	if cleared {
		outcome = "cleared"
	}
	s.metrics.clears.WithLabelValues(outcome).Inc()
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": cleared})
}

func (s *Server) constants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.module.Constants())
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	version, _ := s.module.Constants()["VERSION"].(string)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"module":  native.ModuleName,
		"version": version,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
