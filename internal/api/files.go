package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/nugget/scribe-ai-agent/internal/project"
	"github.com/nugget/scribe-ai-agent/internal/workspace"
)

// maxUploadBytes bounds multipart uploads on the direct files API.
const maxUploadBytes = 50 << 20

// openWorkspace resolves the project from the request path and opens
// its workspace. The direct files API is confinement-checked but not
// denylist-filtered; it is the human's interface, not the model's.
func (s *Server) openWorkspace(w http.ResponseWriter, r *http.Request) (*workspace.Workspace, project.Project, bool) {
	p, err := s.projects.Get(r.PathValue("pid"))
	if err != nil {
		writeStoreError(w, err, s.logger)
		return nil, project.Project{}, false
	}
	ws, err := workspace.New(s.projects.WorkspaceRoot(p))
	if err != nil {
		writeStoreError(w, err, s.logger)
		return nil, project.Project{}, false
	}
	return ws, p, true
}

type pathBody struct {
	Path string `json:"path"`
}

type fileWriteBody struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type renameMoveBody struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "invalid JSON body"})
		return false
	}
	return true
}

func (s *Server) handleFilesList(w http.ResponseWriter, r *http.Request) {
	ws, _, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}

	entries, err := ws.List(r.URL.Query().Get("path"))
	if err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	writeJSON(w, map[string]any{"entries": entries}, s.logger)
}

func (s *Server) handleFilesRead(w http.ResponseWriter, r *http.Request) {
	ws, _, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var body pathBody
	if !decodeBody(w, r, &body) {
		return
	}

	content, err := ws.ReadStrict(body.Path)
	if err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	writeJSON(w, map[string]string{"content": content}, s.logger)
}

func (s *Server) handleFilesWrite(w http.ResponseWriter, r *http.Request) {
	ws, _, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var body fileWriteBody
	if !decodeBody(w, r, &body) {
		return
	}

	if err := ws.Write(body.Path, body.Content); err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) handleFilesMkdir(w http.ResponseWriter, r *http.Request) {
	ws, _, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var body pathBody
	if !decodeBody(w, r, &body) {
		return
	}

	if err := ws.Mkdir(body.Path); err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) handleFilesCreate(w http.ResponseWriter, r *http.Request) {
	ws, _, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var body pathBody
	if !decodeBody(w, r, &body) {
		return
	}

	if err := ws.Touch(body.Path); err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) handleFilesDelete(w http.ResponseWriter, r *http.Request) {
	ws, _, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var body pathBody
	if !decodeBody(w, r, &body) {
		return
	}

	if err := ws.Delete(body.Path); err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) handleFilesRename(w http.ResponseWriter, r *http.Request) {
	ws, _, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}
	var body renameMoveBody
	if !decodeBody(w, r, &body) {
		return
	}

	if err := ws.Move(body.Src, body.Dst); err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) handleFilesUpload(w http.ResponseWriter, r *http.Request) {
	ws, _, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form", s.logger)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file", s.logger)
		return
	}
	defer file.Close()

	dir := r.FormValue("path")
	if err := ws.Mkdir(dir); err != nil {
		writeStoreError(w, err, s.logger)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), s.logger)
		return
	}

	dest := filepath.ToSlash(filepath.Join(dir, filepath.Base(header.Filename)))
	if err := ws.Write(dest, string(data)); err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	writeJSON(w, map[string]string{"status": "ok", "name": header.Filename}, s.logger)
}

func (s *Server) handleFilesDownload(w http.ResponseWriter, r *http.Request) {
	ws, _, ok := s.openWorkspace(w, r)
	if !ok {
		return
	}

	rel := r.URL.Query().Get("path")
	target, err := ws.Resolve(rel)
	if err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, http.StatusNotFound, "File not found", s.logger)
		return
	}

	name := filepath.Base(target)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, target)
}
