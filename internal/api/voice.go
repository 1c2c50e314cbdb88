package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/nugget/scribe-ai-agent/internal/httpkit"
)

// OpenAI audio endpoints for the voice passthrough.
const (
	sttURL = "https://api.openai.com/v1/audio/transcriptions"
	ttsURL = "https://api.openai.com/v1/audio/speech"
)

// voiceClient covers audio uploads and synthesis round trips.
var voiceClient = httpkit.NewClient(httpkit.WithTimeout(2 * time.Minute))

func (s *Server) voiceAllowed(w http.ResponseWriter) bool {
	if s.demoMode {
		writeError(w, http.StatusForbidden, "Demo build: voice disabled.", s.logger)
		return false
	}
	if s.apiKey == "" {
		writeError(w, http.StatusInternalServerError, "No API key for voice", s.logger)
		return false
	}
	return true
}

// handleVoiceSTT forwards an uploaded audio file to the transcription
// API and returns the recognized text.
func (s *Server) handleVoiceSTT(w http.ResponseWriter, r *http.Request) {
	if !s.voiceAllowed(w) {
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

	model := r.FormValue("model")
	if model == "" {
		model = "whisper-1"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", header.Filename)
	if err == nil {
		_, err = io.Copy(part, file)
	}
	if err == nil {
		err = mw.WriteField("model", model)
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), s.logger)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, sttURL, &buf)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), s.logger)
		return
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := voiceClient.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error(), s.logger)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		writeError(w, http.StatusBadGateway, httpkit.ReadErrorBody(resp.Body, 800), s.logger)
		return
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		writeError(w, http.StatusBadGateway, "invalid transcription response", s.logger)
		return
	}
	writeJSON(w, map[string]string{"text": out.Text}, s.logger)
}

type ttsBody struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Model  string `json:"model"`
	Format string `json:"format"`
}

// handleVoiceTTS synthesizes speech and streams the audio straight
// back to the caller.
func (s *Server) handleVoiceTTS(w http.ResponseWriter, r *http.Request) {
	if !s.voiceAllowed(w) {
		return
	}

	var body ttsBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Voice == "" {
		body.Voice = "alloy"
	}
	if body.Model == "" {
		body.Model = "tts-1"
	}
	if body.Format == "" {
		body.Format = "mp3"
	}

	payload, err := json.Marshal(map[string]string{
		"model":  body.Model,
		"voice":  body.Voice,
		"input":  body.Text,
		"format": body.Format,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), s.logger)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, ttsURL, bytes.NewReader(payload))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), s.logger)
		return
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := voiceClient.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error(), s.logger)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		writeError(w, http.StatusBadGateway, httpkit.ReadErrorBody(resp.Body, 800), s.logger)
		return
	}

	w.Header().Set("Content-Type", "audio/"+body.Format)
	w.Header().Set("Content-Disposition", `attachment; filename="speech.`+body.Format+`"`)
	io.Copy(w, resp.Body)
}
