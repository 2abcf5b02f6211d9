// Package api serves the operational HTTP surface: health, status, record
// lookups, live session inspection, flow validation, and metrics. Nothing
// caller-facing lives here; callers only ever hear the NATS reply subject.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opuscare/sahayak/internal/flow"
	"github.com/opuscare/sahayak/internal/session"
	"github.com/opuscare/sahayak/internal/store"
	"github.com/opuscare/sahayak/internal/tools"
)

type Server struct {
	router    *chi.Mux
	port      int
	records   *store.Store
	sessions  *session.Repo
	flows     *flow.Store
	tools     *tools.Registry
	startedAt time.Time
}

func NewServer(port int, records *store.Store, sessions *session.Repo, flows *flow.Store, registry *tools.Registry) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		port:      port,
		records:   records,
		sessions:  sessions,
		flows:     flows,
		tools:     registry,
		startedAt: time.Now().UTC(),
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/sahayak/status", s.status)
	router.Get("/api/v1/records", s.recordBySession)
	router.Get("/api/v1/sessions/{id}", s.sessionByID)
	router.Get("/api/v1/flows/validate", s.validateFlows)
	router.Handle("/metrics", promhttp.Handler())

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"agent":  "sahayak",
		"status": "serving",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	}
	if s.sessions != nil {
		body["live_sessions"] = s.sessions.Len()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) recordBySession(w http.ResponseWriter, r *http.Request) {
	sessionRef := r.URL.Query().Get("session_ref")
	if sessionRef == "" {
		writeError(w, http.StatusBadRequest, "session_ref query parameter required")
		return
	}
	if s.records == nil {
		writeError(w, http.StatusServiceUnavailable, "record store not configured")
		return
	}

	rec, err := s.records.FindBySessionRef(r.Context(), sessionRef)
	if errors.Is(err, store.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "no record for session "+sessionRef)
		return
	}
	if err != nil {
		slog.Error("record lookup failed", "session_ref", sessionRef, "error", err)
		writeError(w, http.StatusInternalServerError, "record lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// sessionView is the inspection shape for a live session. The session's
// internals stay behind its lock.
type sessionView struct {
	ID            string            `json:"id"`
	State         string            `json:"state"`
	Intent        string            `json:"intent"`
	TurnIndex     int               `json:"turn_index"`
	FailureStreak int               `json:"failure_streak"`
	Clarified     bool              `json:"clarified"`
	RecordEnsured bool              `json:"record_ensured"`
	RecordNumber  string            `json:"record_number,omitempty"`
	CustomerRef   string            `json:"customer_ref,omitempty"`
	CustomerName  string            `json:"customer_name,omitempty"`
	Facts         map[string]string `json:"facts,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	LastActivity  time.Time         `json:"last_activity"`
}

func (s *Server) sessionByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no live session "+id)
		return
	}

	sess.Lock()
	view := sessionView{
		ID:            sess.ID,
		State:         string(sess.State),
		Intent:        string(sess.Intent),
		TurnIndex:     sess.TurnIndex,
		FailureStreak: sess.FailureStreak,
		Clarified:     sess.Clarified,
		RecordEnsured: sess.RecordEnsured,
		RecordNumber:  sess.RecordNumber,
		CustomerRef:   sess.CustomerRef,
		CustomerName:  sess.CustomerName,
		Facts:         make(map[string]string, len(sess.Facts)),
		StartedAt:     sess.StartedAt,
		LastActivity:  sess.LastActivity,
	}
	for k, v := range sess.Facts {
		view.Facts[k] = v
	}
	sess.Unlock()

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) validateFlows(w http.ResponseWriter, r *http.Request) {
	issues := s.flows.Validate(s.tools)
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  len(issues) == 0,
		"issues": issues,
		"count":  len(issues),
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message, "code": strconv.Itoa(code)})
}
