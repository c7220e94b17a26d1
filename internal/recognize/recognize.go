// Package recognize provides the optional speech-to-text step used to
// confirm which word was spoken. Both adapters implement Recognizer.
package recognize

import (
	"context"
	"errors"
	"strings"
)

// Static errors shared by the adapters.
var (
	// ErrEmptyClip is returned when there is no audio to transcribe.
	ErrEmptyClip = errors.New("recognize: clip is empty")
	// ErrAPIKeyRequired is returned when a hosted recognizer has no key.
	ErrAPIKeyRequired = errors.New("recognize: API key is required")
	// ErrURLRequired is returned when a self-hosted recognizer has no URL.
	ErrURLRequired = errors.New("recognize: server URL is required")
)

// Clip is an encoded recording handed to a recognizer.
type Clip struct {
	// Name is a file name whose extension tells the server the container.
	Name string
	// Data is the encoded audio.
	Data []byte
	// Language is an ISO-639-1 hint, empty for auto-detection.
	Language string
}

// Recognizer defines the interface for speech-to-text providers.
type Recognizer interface {
	// Transcribe returns the text heard in clip, trimmed of surrounding
	// whitespace and punctuation.
	Transcribe(ctx context.Context, clip Clip) (string, error)
}

// cleanTranscript strips what recognizers commonly wrap single words in.
func cleanTranscript(s string) string {
	return strings.Trim(strings.TrimSpace(s), " .,!?¡¿\"'")
}
