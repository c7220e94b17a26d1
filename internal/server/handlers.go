package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/palabra/internal/audio"
	"github.com/maauso/palabra/internal/practice"
	"github.com/maauso/palabra/internal/practice/id"
	"github.com/maauso/palabra/internal/segment"
	"github.com/maauso/palabra/internal/storage"
	"github.com/maauso/palabra/internal/words"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   *practice.Service
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *practice.Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Words handles GET /words requests.
func (h *Handlers) Words(w http.ResponseWriter, r *http.Request) {
	list := h.service.Words()
	writeJSON(w, http.StatusOK, WordsResponse{Language: list.Language, Words: list.Words})
}

// CreateSession handles POST /sessions requests. An empty body starts a
// session over the default list.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("failed to decode request body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if !h.validate(w, req) {
		return
	}

	session, err := h.service.Create(r.Context(), req.Words)
	if err != nil {
		h.writeServiceError(w, err, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

// ListSessions handles GET /sessions requests.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.service.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "failed to list sessions")
		return
	}

	resp := ListSessionsResponse{Sessions: make([]practice.Summary, len(sessions))}
	for i, s := range sessions {
		resp.Sessions[i] = *practice.NewSummary(s)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSession handles GET /sessions/{id} requests.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFrom(w, r)
	if !ok {
		return
	}

	session, err := h.service.Get(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, err, "failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

// DeleteSession handles DELETE /sessions/{id} requests.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFrom(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), sessionID); err != nil {
		h.writeServiceError(w, err, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AbandonSession handles POST /sessions/{id}/abandon requests.
func (h *Handlers) AbandonSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFrom(w, r)
	if !ok {
		return
	}

	session, err := h.service.Abandon(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, err, "failed to abandon session")
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

// Summary handles GET /sessions/{id}/summary requests.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFrom(w, r)
	if !ok {
		return
	}

	summary, err := h.service.Summarize(r.Context(), sessionID)
	if err != nil {
		h.writeServiceError(w, err, "failed to summarize session")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// SubmitAttempt handles POST /sessions/{id}/attempts requests.
func (h *Handlers) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFrom(w, r)
	if !ok {
		return
	}

	var req SubmitAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if !h.validate(w, req) {
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio_base64 is not valid base64", "VALIDATION_ERROR")
		return
	}
	format, err := audio.ParseFormat(req.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	attempt, err := h.service.SubmitUpload(r.Context(), sessionID, "upload"+format.Ext(), bytes.NewReader(data))
	if err != nil {
		h.writeServiceError(w, err, "failed to process attempt")
		return
	}

	h.logger.Info("attempt recorded",
		slog.String("session_id", sessionID),
		slog.String("word", attempt.Word),
		slog.Int("number", attempt.Number),
		slog.Int("letters", len(attempt.Letters)),
	)
	writeJSON(w, http.StatusCreated, newAttemptResponse(*attempt))
}

// Confirm handles POST /sessions/{id}/confirm requests.
func (h *Handlers) Confirm(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := sessionIDFrom(w, r)
	if !ok {
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if !h.validate(w, req) {
		return
	}

	conf, err := h.service.Confirm(r.Context(), sessionID, req.Text)
	if err != nil {
		h.writeServiceError(w, err, "failed to confirm word")
		return
	}

	resp := ConfirmResponse{
		Expected:    conf.Match.Expected,
		Got:         conf.Match.Got,
		Source:      conf.Source,
		Matched:     conf.Match.Exact,
		Near:        conf.Match.Near(),
		Similarity:  conf.Match.Similarity,
		SoundsAlike: conf.Match.SoundsAlike,
		NextWord:    conf.NextWord,
		Finished:    conf.Finished,
	}
	if conf.Result != nil {
		resp.Attempts = conf.Result.Attempts
	}
	writeJSON(w, http.StatusOK, resp)
}

// Clip handles GET /clips/{key...} requests.
func (h *Handlers) Clip(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	rc, err := h.service.OpenClip(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrInvalidKey):
			writeError(w, http.StatusNotFound, "clip not found", "CLIP_NOT_FOUND")
		default:
			h.logger.Error("failed to open clip", slog.String("key", key), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to open clip", "INTERNAL_ERROR")
		}
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", clipContentType(key))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream clip", slog.String("key", key), slog.String("error", err.Error()))
	}
}

var clipContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
}

func clipContentType(key string) string {
	if ct, ok := clipContentTypes[path.Ext(key)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// validate runs struct validation and writes a 400 on failure.
func (h *Handlers) validate(w http.ResponseWriter, req any) bool {
	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeServiceError maps domain errors to HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, practice.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
	case errors.Is(err, practice.ErrSessionFinished):
		writeError(w, http.StatusConflict, "session is finished", "SESSION_FINISHED")
	case errors.Is(err, practice.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error(), "INVALID_TRANSITION")
	case errors.Is(err, practice.ErrNoAttempt):
		writeError(w, http.StatusConflict, "record an attempt before confirming", "NO_ATTEMPT")
	case errors.Is(err, practice.ErrNothingToConfirm):
		writeError(w, http.StatusBadRequest, "text is required when no transcript is available", "NOTHING_TO_CONFIRM")
	case errors.Is(err, words.ErrInvalidList):
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
	case errors.Is(err, practice.ErrInvalidAudio),
		errors.Is(err, audio.ErrUnsupportedFormat),
		errors.Is(err, segment.ErrInvalidInput):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), "INVALID_AUDIO")
	default:
		h.logger.Error(msg, slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, msg, "INTERNAL_ERROR")
	}
}

// sessionIDFrom extracts the session ID path value. Malformed IDs are
// reported as not found.
func sessionIDFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := r.PathValue("id")
	if !id.Valid(sessionID) {
		writeError(w, http.StatusNotFound, "session not found", "SESSION_NOT_FOUND")
		return "", false
	}
	return sessionID, true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
