// Package web provides an HTTP status server for the presence-meter daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sweeney/presence-meter/internal/status"
)

// Controls queues operator actions for the processing loop.
// *pipeline.Queue satisfies it.
type Controls interface {
	PushPulse(now time.Time, origin string)
	PushSetLevel(now time.Time, indicator string, index int, origin string)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	controls   Controls
	now        func() time.Time
}

// New creates a Server that reads state from the given tracker.
// controls may be nil, which disables the POST endpoints.
func New(addr string, tracker *status.Tracker, controls Controls) *Server {
	s := &Server{tracker: tracker, controls: controls, now: time.Now}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("POST /pulse", s.handlePulse)
	mux.HandleFunc("POST /level", s.handleLevel)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, s.controls != nil)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handlePulse queues a manual presence pulse.
func (s *Server) handlePulse(w http.ResponseWriter, r *http.Request) {
	if s.controls == nil {
		http.Error(w, "controls disabled", http.StatusNotImplemented)
		return
	}
	s.controls.PushPulse(s.now(), "http")
	s.accepted(w, r)
}

// handleLevel queues an instant level jump: index is required, indicator
// is optional (all indicators when empty).
func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request) {
	if s.controls == nil {
		http.Error(w, "controls disabled", http.StatusNotImplemented)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	index, err := strconv.Atoi(r.Form.Get("index"))
	if err != nil {
		http.Error(w, "index must be an integer", http.StatusBadRequest)
		return
	}
	s.controls.PushSetLevel(s.now(), r.Form.Get("indicator"), index, "http")
	s.accepted(w, r)
}

// accepted redirects browser form posts back to the page.
func (s *Server) accepted(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") == "application/x-www-form-urlencoded" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
