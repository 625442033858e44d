// Package server exposes the tutoring operations over HTTP and a websocket
// stream for pipeline progress.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mriia-ai/tutor/internal/tutor"
)

// ReadyCheck probes one dependency for the readiness endpoint.
type ReadyCheck func(ctx context.Context) error

// Server routes HTTP requests to the tutoring service.
type Server struct {
	svc    *tutor.Service
	checks map[string]ReadyCheck
}

// New creates a server over the tutoring service. checks maps dependency
// names to readiness probes; nil disables dependency checking.
func New(svc *tutor.Service, checks map[string]ReadyCheck) *Server {
	return &Server{svc: svc, checks: checks}
}

// Mux builds the HTTP router.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tutor/query", s.handleQuery)
	mux.HandleFunc("POST /tutor/check-answers", s.handleCheckAnswers)
	mux.HandleFunc("GET /tutor/stream", s.handleStream)
	mux.HandleFunc("POST /benchmark/solve", s.handleBenchmark)
	mux.HandleFunc("GET /students", s.handleListStudents)
	mux.HandleFunc("GET /students/{id}", s.handleStudentInfo)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	return mux
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req tutor.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := s.svc.SubmitQuery(r.Context(), req, nil)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheckAnswers(w http.ResponseWriter, r *http.Request) {
	var req tutor.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := s.svc.CheckAnswers(r.Context(), req, nil)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type benchmarkRequest struct {
	Subject   string                `json:"subject"`
	Questions []tutor.BenchmarkItem `json:"questions"`
}

func (s *Server) handleBenchmark(w http.ResponseWriter, r *http.Request) {
	var req benchmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	results, err := s.svc.SolveBenchmark(r.Context(), req.Subject, req.Questions)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.svc.ListStudents(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": students})
}

func (s *Server) handleStudentInfo(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "student id must be numeric")
		return
	}

	p, err := s.svc.GetStudentInfo(r.Context(), id, r.URL.Query().Get("subject"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			slog.Warn("readiness check failed", "dependency", name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":     "not ready",
				"dependency": name,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeServiceError maps service errors to status codes: bad input is the
// client's fault, everything else is ours.
func writeServiceError(w http.ResponseWriter, err error) {
	var shapeErr *tutor.InputShapeError
	if errors.As(err, &shapeErr) {
		writeError(w, http.StatusBadRequest, shapeErr.Msg)
		return
	}
	slog.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encoding failed", "error", err)
	}
}
