// Package gateway is the HTTP transport: a small JSON API over the
// conversation pipeline and the store.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/seelenmaschine/seele/internal/clock"
	"github.com/seelenmaschine/seele/internal/store"
)

// Driver is the slice of the conversation pipeline the gateway exposes.
type Driver interface {
	ProcessMessage(ctx context.Context, text string) (string, error)
	SessionID() int64
}

// Server is the gateway HTTP server.
type Server struct {
	httpServer *http.Server
	drv        Driver
	store      *store.Store
	clk        *clock.Clock
}

// NewServer wires the routes. Start makes it listen.
func NewServer(drv Driver, st *store.Store, clk *clock.Clock, host string, port int) *Server {
	s := &Server{drv: drv, store: st, clk: clk}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Post("/api/chat", s.handleChat)
	r.Get("/api/sessions", s.handleSessions)
	r.Get("/api/tasks", s.handleTasks)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}
	return s
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	slog.Info("gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	reply, err := s.drv.ProcessMessage(r.Context(), req.Message)
	if err != nil {
		slog.Error("gateway: process message", "error", err)
		http.Error(w, "failed to process message", http.StatusInternalServerError)
		return
	}

	writeJSON(w, struct {
		Reply     string `json:"reply"`
		SessionID int64  `json:"session_id"`
	}{Reply: reply, SessionID: s.drv.SessionID()})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListSessions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type sessionJSON struct {
		ID        int64  `json:"session_id"`
		Status    string `json:"status"`
		StartedAt string `json:"started_at"`
		EndedAt   string `json:"ended_at,omitempty"`
	}
	result := make([]sessionJSON, len(list))
	for i, sess := range list {
		result[i] = sessionJSON{
			ID:        sess.ID,
			Status:    sess.Status,
			StartedAt: s.clk.FormatStamp(sess.StartTimestamp),
		}
		if sess.EndTimestamp > 0 {
			result[i].EndedAt = s.clk.FormatStamp(sess.EndTimestamp)
		}
	}
	writeJSON(w, result)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListTasks(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type taskJSON struct {
		ID          string `json:"task_id"`
		Name        string `json:"name"`
		TriggerType string `json:"trigger_type"`
		Status      string `json:"status"`
		NextRunAt   string `json:"next_run_at,omitempty"`
		LastRunAt   string `json:"last_run_at,omitempty"`
		Message     string `json:"message"`
	}
	result := make([]taskJSON, len(list))
	for i, t := range list {
		result[i] = taskJSON{
			ID:          t.ID,
			Name:        t.Name,
			TriggerType: t.TriggerType,
			Status:      t.Status,
			Message:     t.Message,
		}
		if t.NextRunAt > 0 {
			result[i].NextRunAt = s.clk.FormatStamp(t.NextRunAt)
		}
		if t.LastRunAt > 0 {
			result[i].LastRunAt = s.clk.FormatStamp(t.LastRunAt)
		}
	}
	writeJSON(w, result)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("gateway: encode response", "error", err)
	}
}
