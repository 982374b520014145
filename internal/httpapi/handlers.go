package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/logger"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/service"
)

// SubmitResponse acknowledges an accepted task.
type SubmitResponse struct {
	TaskID string           `json:"task_id"`
	Status domain.TaskState `json:"status"`
	Chars  int              `json:"chars,omitempty"`
}

// ExtractResponse carries text read from an upload or URL.
type ExtractResponse struct {
	Text  string `json:"text"`
	Chars int    `json:"chars"`
}

// URLRequest asks for the text of a web page.
type URLRequest struct {
	URL     string `json:"url"`
	Convert bool   `json:"convert,omitempty"`
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return domain.InvalidParameter("invalid request body: %v", err)
	}
	return nil
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req service.SpeakRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	id, err := s.svc.Speak(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	logger.InfoCF("httpapi", "Task submitted", map[string]any{
		"task_id": id,
		"chars":   len([]rune(req.Text)),
	})
	writeJSON(w, http.StatusAccepted, SubmitResponse{TaskID: id, Status: domain.TaskStatePending})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	reader, err := s.svc.OpenArtifact(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer reader.Close()

	info, err := reader.Stat()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	name := reader.Handle.FileName()
	w.Header().Set("Content-Type", reader.Handle.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), reader)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.Cancel(id); err != nil {
		writeDomainError(w, err)
		return
	}
	st, err := s.svc.Status(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	list := s.svc.List()
	out := make([]domain.TaskStatus, 0, len(list))
	for _, task := range list {
		out = append(out, task.Status())
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": out})
}

// handleUpload extracts text from a multipart "file" field. With convert=1
// the text is submitted for synthesis right away.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.svc.Config().MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(limit + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the upload limit")
			return
		}
		writeDomainError(w, domain.InvalidParameter("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeDomainError(w, domain.InvalidParameter("file field is required"))
		return
	}
	defer file.Close()

	text, err := s.svc.ExtractUpload(r.Context(), header.Filename, file)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.respondExtracted(w, r, text, truthy(r.FormValue("convert")))
}

func (s *Server) handleURL(w http.ResponseWriter, r *http.Request) {
	var req URLRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	text, err := s.svc.ExtractURL(r.Context(), req.URL)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	s.respondExtracted(w, r, text, req.Convert)
}

func (s *Server) respondExtracted(w http.ResponseWriter, r *http.Request, text string, convert bool) {
	chars := len([]rune(text))
	if !convert {
		writeJSON(w, http.StatusOK, ExtractResponse{Text: text, Chars: chars})
		return
	}

	id, err := s.svc.Speak(r.Context(), service.SpeakRequest{Text: text})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{TaskID: id, Status: domain.TaskStatePending, Chars: chars})
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.svc.Voices(r.Context())
	if err != nil {
		logger.WarnCF("httpapi", "Voice listing failed", map[string]any{"error": err.Error()})
		writeError(w, http.StatusBadGateway, "speech engine did not list voices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": voices})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Settings())
}

// handleSaveSettings merges the posted fields into the saved settings.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	settings := s.svc.Settings()
	if err := decodeJSON(r, &settings); err != nil {
		writeDomainError(w, err)
		return
	}

	saved, err := s.svc.SaveSettings(settings)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeDomainError(w, domain.InvalidParameter("limit must be a positive integer"))
			return
		}
		limit = n
	}

	outcomes, err := s.svc.History(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Diagnostics(r.Context()))
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
