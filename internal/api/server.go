// Package api implements the HTTP API: projects, chats, the agent
// message endpoint, direct file operations, and voice passthrough.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nugget/scribe-ai-agent/internal/agent"
	"github.com/nugget/scribe-ai-agent/internal/buildinfo"
	"github.com/nugget/scribe-ai-agent/internal/project"
	"github.com/nugget/scribe-ai-agent/internal/transcript"
	"github.com/nugget/scribe-ai-agent/internal/workspace"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// writeError sends a {"detail": ...} error body with the given status.
func writeError(w http.ResponseWriter, status int, detail string, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"detail": detail}); err != nil {
		logger.Debug("failed to write error response", "error", err)
	}
}

// writeStoreError maps store and workspace sentinels onto HTTP status
// codes.
func writeStoreError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, project.ErrNotFound):
		writeError(w, http.StatusNotFound, "Project not found", logger)
	case errors.Is(err, transcript.ErrNotFound):
		writeError(w, http.StatusNotFound, "Chat not found", logger)
	case errors.Is(err, workspace.ErrPathEscape):
		writeError(w, http.StatusBadRequest, "Invalid path.", logger)
	case errors.Is(err, workspace.ErrNotFound):
		writeError(w, http.StatusNotFound, "File not found", logger)
	case errors.Is(err, workspace.ErrConflict):
		writeError(w, http.StatusConflict, err.Error(), logger)
	case errors.Is(err, workspace.ErrNotUTF8):
		writeError(w, http.StatusBadRequest, "File is not valid UTF-8", logger)
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), logger)
	}
}

// Server is the HTTP API server.
type Server struct {
	address     string
	port        int
	projects    *project.Store
	transcripts *transcript.Store
	agent       *agent.Agent
	apiKey      string
	demoMode    bool
	logger      *slog.Logger
	server      *http.Server
}

// NewServer creates the API server over the stores and agent.
func NewServer(address string, port int, projects *project.Store, transcripts *transcript.Store, ag *agent.Agent, logger *slog.Logger) *Server {
	return &Server{
		address:     address,
		port:        port,
		projects:    projects,
		transcripts: transcripts,
		agent:       ag,
		logger:      logger,
	}
}

// SetVoiceCredentials configures the OpenAI key used by the voice
// passthrough endpoints and whether demo mode blocks them.
func (s *Server) SetVoiceCredentials(apiKey string, demoMode bool) {
	s.apiKey = apiKey
	s.demoMode = demoMode
}

// Handler builds the route table. Split from Start so tests can drive
// the mux through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)

	// Projects
	mux.HandleFunc("GET /projects", s.handleListProjects)
	mux.HandleFunc("POST /projects", s.handleCreateProject)
	mux.HandleFunc("PUT /projects/{pid}", s.handleUpdateProject)
	mux.HandleFunc("DELETE /projects/{pid}", s.handleDeleteProject)

	// Chats
	mux.HandleFunc("GET /projects/{pid}/chats", s.handleListChats)
	mux.HandleFunc("POST /projects/{pid}/chats", s.handleCreateChat)
	mux.HandleFunc("DELETE /projects/{pid}/chats/{cid}", s.handleDeleteChat)
	mux.HandleFunc("POST /projects/{pid}/chats/{cid}/message", s.handleSendMessage)
	mux.HandleFunc("GET /projects/{pid}/chats/{cid}/export", s.handleExportChat)

	// Direct file operations
	mux.HandleFunc("GET /projects/{pid}/files/list", s.handleFilesList)
	mux.HandleFunc("POST /projects/{pid}/files/read", s.handleFilesRead)
	mux.HandleFunc("POST /projects/{pid}/files/write", s.handleFilesWrite)
	mux.HandleFunc("POST /projects/{pid}/files/mkdir", s.handleFilesMkdir)
	mux.HandleFunc("POST /projects/{pid}/files/create", s.handleFilesCreate)
	mux.HandleFunc("POST /projects/{pid}/files/delete", s.handleFilesDelete)
	mux.HandleFunc("POST /projects/{pid}/files/rename", s.handleFilesRename)
	mux.HandleFunc("POST /projects/{pid}/files/move", s.handleFilesRename)
	mux.HandleFunc("POST /projects/{pid}/files/upload", s.handleFilesUpload)
	mux.HandleFunc("GET /projects/{pid}/files/download", s.handleFilesDownload)

	// Legacy single-shot chat
	mux.HandleFunc("POST /chat", s.handleLegacyChat)

	// Voice passthrough
	mux.HandleFunc("POST /voice/stt", s.handleVoiceSTT)
	mux.HandleFunc("POST /voice/tts", s.handleVoiceTTS)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: agent turns with large models take minutes.
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]bool{"ok": true}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, buildinfo.Info(), s.logger)
}
