package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/nugget/scribe-ai-agent/internal/llm"
	"github.com/nugget/scribe-ai-agent/internal/policy"
	"github.com/nugget/scribe-ai-agent/internal/project"
	"github.com/nugget/scribe-ai-agent/internal/transcript"
)

// filesContextPerFile caps how much of each workspace file is inlined
// into the system prompt as context for the message endpoint.
const (
	filesContextPerFile  = 10000
	filesContextMaxFiles = 50
)

type projectCreateBody struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	Model        string `json:"model"`
	Root         string `json:"root"`
}

type projectUpdateBody struct {
	Name         *string `json:"name"`
	SystemPrompt *string `json:"system_prompt"`
	Model        *string `json:"model"`
	Root         *string `json:"root"`
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.List()
	if err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	writeJSON(w, map[string]any{"projects": projects}, s.logger)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body projectCreateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required", s.logger)
		return
	}

	p, err := s.projects.Create(body.Name, body.Model, body.SystemPrompt, body.Root)
	if err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	writeJSON(w, map[string]any{"project": p}, s.logger)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var body projectUpdateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}

	p, err := s.projects.Apply(r.PathValue("pid"), project.Update{
		Name:         body.Name,
		Model:        body.Model,
		SystemPrompt: body.SystemPrompt,
		Root:         body.Root,
	})
	if err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	writeJSON(w, map[string]any{"project": p}, s.logger)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	pid := r.PathValue("pid")
	if err := s.projects.Delete(pid); err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	if err := s.transcripts.DeleteByProject(pid); err != nil {
		s.logger.Warn("failed to delete project chats", "project", pid, "error", err)
	}
	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}

type chatCreateBody struct {
	Title string `json:"title"`
}

type messageBody struct {
	Content string `json:"content"`
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.transcripts.ListChats(r.PathValue("pid"))
	if err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	writeJSON(w, map[string]any{"chats": chats}, s.logger)
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var body chatCreateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}

	chat, err := s.transcripts.CreateChat(r.PathValue("pid"), body.Title)
	if err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	writeJSON(w, map[string]any{"chat": chat}, s.logger)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := s.transcripts.DeleteChat(r.PathValue("cid")); err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	pid := r.PathValue("pid")
	cid := r.PathValue("cid")

	var body messageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}

	p, err := s.projects.Get(pid)
	if err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	if _, err := s.transcripts.Append(cid, "user", body.Content); err != nil {
		writeStoreError(w, err, s.logger)
		return
	}

	history, err := s.transcripts.Messages(cid)
	if err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	messages := make([]llm.Message, 0, len(history))
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	// Inline a snapshot of the workspace into the system prompt so the
	// model sees current file content without burning tool steps.
	if ctx := s.gatherFilesContext(p); ctx != "" {
		p.SystemPrompt = strings.TrimSpace(p.SystemPrompt + "\n\n### Project Files Context\n" + ctx)
	}

	reply, err := s.agent.Run(r.Context(), p, messages)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error(), s.logger)
		return
	}

	if _, err := s.transcripts.Append(cid, "assistant", reply); err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	if err := s.projects.Touch(pid); err != nil {
		s.logger.Warn("failed to touch project", "project", pid, "error", err)
	}

	writeJSON(w, map[string]string{"reply": reply}, s.logger)
}

// gatherFilesContext collects short snippets of the project's text
// files. Denied paths stay out of the prompt; unreadable files are
// skipped silently.
func (s *Server) gatherFilesContext(p project.Project) string {
	root := s.projects.WorkspaceRoot(p)

	var snippets []string
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if len(snippets) >= filesContextMaxFiles {
			return filepath.SkipAll
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if policy.IsDenied(rel) {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()
		text, err := io.ReadAll(io.LimitReader(f, filesContextPerFile))
		if err != nil {
			return nil
		}
		snippets = append(snippets, "### "+rel+"\n"+string(text)+"\n")
		return nil
	})

	return strings.Join(snippets, "\n")
}

func (s *Server) handleExportChat(w http.ResponseWriter, r *http.Request) {
	cid := r.PathValue("cid")

	chat, err := s.transcripts.GetChat(cid)
	if err != nil {
		writeStoreError(w, err, s.logger)
		return
	}
	messages, err := s.transcripts.Messages(cid)
	if err != nil {
		writeStoreError(w, err, s.logger)
		return
	}

	html, err := transcript.ExportHTML(chat, messages)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), s.logger)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, html)
}

type legacyChatBody struct {
	Messages []llm.Message `json:"messages"`
	Message  string        `json:"message"`
	Model    string        `json:"model"`
}

// handleLegacyChat is the original single-shot endpoint: no project,
// no tools, one completion.
func (s *Server) handleLegacyChat(w http.ResponseWriter, r *http.Request) {
	var body legacyChatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", s.logger)
		return
	}

	var messages []llm.Message
	switch {
	case len(body.Messages) > 0:
		messages = body.Messages
	case body.Message != "":
		messages = []llm.Message{{Role: "user", Content: body.Message}}
	default:
		writeError(w, http.StatusBadRequest, "Missing 'messages' or 'message'.", s.logger)
		return
	}

	model := body.Model
	if model == "" {
		model = "gpt-5"
	}

	reply, err := s.agent.Chat(r.Context(), project.Project{Model: model}, messages)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error(), s.logger)
		return
	}
	writeJSON(w, map[string]string{"response": reply}, s.logger)
}
