// Package server provides the HTTP API for pronunciation practice.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/palabra/internal/practice"
)

// CreateSessionRequest is the HTTP request body for starting a session.
type CreateSessionRequest struct {
	// Words overrides the default word list when not empty.
	Words []string `json:"words" validate:"omitempty,max=100,dive,required,max=64"`
}

// SubmitAttemptRequest is the HTTP request body for one recording.
type SubmitAttemptRequest struct {
	// AudioBase64 is the base64-encoded recording.
	AudioBase64 string `json:"audio_base64" validate:"required,base64"`
	// Format is the container of the recording.
	Format string `json:"format" validate:"required,oneof=wav mp3 webm ogg"`
}

// ConfirmRequest is the HTTP request body for confirming the current word.
type ConfirmRequest struct {
	// Text is what the user typed. Empty falls back to the transcript of
	// the latest attempt.
	Text string `json:"text" validate:"max=128"`
}

// WordsResponse is the HTTP response for the default word list.
type WordsResponse struct {
	Language string   `json:"language"`
	Words    []string `json:"words"`
}

// ClipResponse describes one archived clip.
type ClipResponse struct {
	Index    int    `json:"index"`
	StartMs  int64  `json:"start_ms"`
	EndMs    int64  `json:"end_ms"`
	URL      string `json:"url,omitempty"`
	Location string `json:"location,omitempty"`
}

// AttemptResponse is the HTTP response for one recording.
type AttemptResponse struct {
	ID          string         `json:"id"`
	Number      int            `json:"number"`
	Word        string         `json:"word"`
	Whole       ClipResponse   `json:"whole"`
	Letters     []ClipResponse `json:"letters"`
	Discarded   int            `json:"discarded"`
	ThresholdDB float64        `json:"threshold_db"`
	Heard       string         `json:"heard,omitempty"`
	Confirmed   bool           `json:"confirmed"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SessionResponse is the HTTP response for getting session details.
type SessionResponse struct {
	ID          string                `json:"id"`
	Status      string                `json:"status"`
	Language    string                `json:"language"`
	Words       []string              `json:"words"`
	CurrentWord string                `json:"current_word,omitempty"`
	Attempts    []AttemptResponse     `json:"attempts"`
	Results     []practice.WordResult `json:"results"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// ListSessionsResponse is the HTTP response for listing sessions.
type ListSessionsResponse struct {
	Sessions []practice.Summary `json:"sessions"`
}

// ConfirmResponse is the HTTP response for a confirmation.
type ConfirmResponse struct {
	Expected    string  `json:"expected"`
	Got         string  `json:"got"`
	Source      string  `json:"source"`
	Matched     bool    `json:"matched"`
	Near        bool    `json:"near"`
	Similarity  float64 `json:"similarity"`
	SoundsAlike bool    `json:"sounds_alike"`
	// Attempts is how many attempts the word needed, set when matched.
	Attempts int    `json:"attempts,omitempty"`
	NextWord string `json:"next_word,omitempty"`
	Finished bool   `json:"finished"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

func newClipResponse(c practice.ClipRef) ClipResponse {
	resp := ClipResponse{
		Index:    c.Index,
		StartMs:  c.StartMs,
		EndMs:    c.EndMs,
		Location: c.Location,
	}
	if c.Key != "" {
		resp.URL = "/clips/" + c.Key
	}
	return resp
}

func newAttemptResponse(a practice.Attempt) AttemptResponse {
	letters := make([]ClipResponse, len(a.Letters))
	for i, l := range a.Letters {
		letters[i] = newClipResponse(l)
	}
	return AttemptResponse{
		ID:          a.ID,
		Number:      a.Number,
		Word:        a.Word,
		Whole:       newClipResponse(a.Whole),
		Letters:     letters,
		Discarded:   a.Discarded,
		ThresholdDB: a.ThresholdDB,
		Heard:       a.Heard,
		Confirmed:   a.Confirmed,
		CreatedAt:   a.CreatedAt,
	}
}

func newSessionResponse(s *practice.Session) SessionResponse {
	snap := s.Clone()
	attempts := make([]AttemptResponse, len(snap.Attempts))
	for i, a := range snap.Attempts {
		attempts[i] = newAttemptResponse(a)
	}
	current, _ := snap.CurrentWord()
	return SessionResponse{
		ID:          snap.ID,
		Status:      string(snap.Status),
		Language:    snap.Language,
		Words:       snap.Words,
		CurrentWord: current,
		Attempts:    attempts,
		Results:     snap.Results,
		CreatedAt:   snap.CreatedAt,
		UpdatedAt:   snap.UpdatedAt,
	}
}
