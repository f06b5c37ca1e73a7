package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	bmerrors "git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/session"
)

// HTTPServer exposes the session manager over a small JSON API.
type HTTPServer struct {
	server *http.Server
	daemon *Daemon
}

// NewHTTPServer creates the daemon HTTP server.
func NewHTTPServer(listen string, d *Daemon) *HTTPServer {
	s := &HTTPServer{daemon: d}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleStartSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionStatus)
	mux.HandleFunc("GET /api/sessions/{id}/output", s.handleSessionOutput)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleTerminateSession)
	if d.deps.MetricsHandler != nil {
		mux.Handle("GET /metrics", d.deps.MetricsHandler)
	}

	s.server = &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Serve blocks until the server stops. Shutdown is reported as nil.
func (s *HTTPServer) Serve() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := s.daemon.PerformHealthChecks()
	code := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *HTTPServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.deps.Manager.List())
}

func (s *HTTPServer) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req session.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	report, err := s.daemon.deps.Manager.Start(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if report.Status == session.StatusConflict {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
}

func (s *HTTPServer) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.daemon.deps.Manager.Status(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *HTTPServer) handleSessionOutput(w http.ResponseWriter, r *http.Request) {
	lines := 0
	if v := r.URL.Query().Get("lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid lines parameter")
			return
		}
		lines = n
	}

	output, total, err := s.daemon.deps.Manager.Output(r.PathValue("id"), lines)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lines":       output,
		"total_lines": total,
	})
}

func (s *HTTPServer) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.deps.Manager.Terminate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": string(status)})
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case bmerrors.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case bmerrors.IsCategory(err, bmerrors.CategoryValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
