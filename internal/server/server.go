// Package server exposes the run manager over HTTP: create run, snapshot,
// events, and the approve endpoint that resolves a suspended worker's
// pending approval.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sghr/warden/internal/auth"
	"github.com/sghr/warden/internal/manager"
	"github.com/sghr/warden/internal/model"
	"github.com/sghr/warden/templates"
)

const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type approveRequest struct {
	RequestID string `json:"request_id"`
	Decision  string `json:"decision"`
}

// Server is the HTTP transport over a Manager. Authentication is delegated
// to the token store handed in by cmd.
type Server struct {
	manager *manager.Manager
	tokens  *auth.TokenStore
	logger  *log.Logger
}

// New creates a server for the given manager and token store.
func New(mgr *manager.Manager, tokens *auth.TokenStore, logger *log.Logger) *Server {
	return &Server{manager: mgr, tokens: tokens, logger: logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /runs", s.requireToken(s.handleCreateRun))
	mux.HandleFunc("GET /runs", s.requireToken(s.handleListRuns))
	mux.HandleFunc("GET /runs/{id}", s.requireToken(s.handleGetRun))
	mux.HandleFunc("GET /runs/{id}/events", s.requireToken(s.handleEvents))
	mux.HandleFunc("POST /runs/{id}/approve", s.requireToken(s.handleApprove))
	return mux
}

// Serve runs an HTTP server on addr until ctx is cancelled, then shuts it
// down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// requireToken enforces bearer auth. An unconfigured store is a server
// error, not a client one.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.tokens.Len() == 0 {
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "Server token is not configured.")
			return
		}
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Missing bearer token.")
			return
		}
		token := strings.TrimSpace(header[len("bearer "):])
		if !s.tokens.Valid(token) {
			writeError(w, http.StatusForbidden, ErrCodeForbidden, "Invalid token.")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := templates.FS.ReadFile("web/index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "UI page unavailable.")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(page)
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req manager.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "Malformed request body.")
		return
	}

	snap, err := s.manager.CreateRun(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if s.logger != nil {
		s.logger.Printf("run %s created goal=%q", snap.RunID, req.Goal)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": snap.RunID,
		"status": snap.Status,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.manager.ListRuns()})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	snap := s.manager.Snapshot(r.PathValue("id"))
	if snap == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Run not found.")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	items := s.manager.Events(r.PathValue("id"))
	if items == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Run not found.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "Malformed request body.")
		return
	}
	if req.RequestID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "request_id must be non-empty.")
		return
	}
	if !model.ValidApprovalAnswer(req.Decision) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "decision must be one of y/n/ad/yes/no.")
		return
	}

	if !s.manager.Approve(r.PathValue("id"), req.RequestID, req.Decision) {
		writeError(w, http.StatusConflict, ErrCodeConflict, "No matching pending approval.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: message}})
}
