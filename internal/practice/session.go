// Package practice provides the Session aggregate for pronunciation practice.
// A session walks an ordered word list; each word collects recorded attempts
// until one is confirmed, then the session moves on to the next word.
package practice

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/palabra/internal/practice/id"
)

// Status represents the current state of a Session.
type Status string

const (
	// StatusInProgress indicates the session is accepting attempts.
	StatusInProgress Status = "IN_PROGRESS"
	// StatusCompleted indicates every word was confirmed.
	StatusCompleted Status = "COMPLETED"
	// StatusAbandoned indicates the session was stopped before the last word.
	StatusAbandoned Status = "ABANDONED"
)

// Static errors for session state.
var (
	// ErrInvalidTransition is returned when an invalid state transition is attempted.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrSessionFinished is returned when a completed or abandoned session
	// receives an attempt or a confirmation.
	ErrSessionFinished = errors.New("session is finished")
	// ErrNoWords is returned when a session would start with an empty list.
	ErrNoWords = errors.New("session needs at least one word")
	// ErrNoAttempt is returned when the current word is confirmed before
	// anything was recorded for it.
	ErrNoAttempt = errors.New("no attempt recorded for the current word")
)

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInProgress: {StatusCompleted, StatusAbandoned},
	StatusCompleted:  {},
	StatusAbandoned:  {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ClipRef points at one exported clip. Index 0 is the whole utterance,
// letters are numbered from 1.
type ClipRef struct {
	Index    int    `json:"index"`
	StartMs  int64  `json:"start_ms"`
	EndMs    int64  `json:"end_ms"`
	Key      string `json:"key"`
	Location string `json:"location"`
}

// Attempt is one recording of the current word.
type Attempt struct {
	// ID is the unique identifier for this attempt.
	ID string `json:"id"`
	// Number counts attempts for the same word, starting at 1.
	Number int `json:"number"`
	// Word is the word that was being practised.
	Word string `json:"word"`
	// Whole is the trimmed whole-utterance clip.
	Whole ClipRef `json:"whole"`
	// Letters are the accepted letter clips in order.
	Letters []ClipRef `json:"letters"`
	// Discarded counts candidate clips dropped as too short.
	Discarded int `json:"discarded"`
	// ThresholdDB is the silence cutoff used for this recording.
	ThresholdDB float64 `json:"threshold_db"`
	// Heard is the recognizer transcript, empty when recognition is off.
	Heard string `json:"heard,omitempty"`
	// Confirmed is set on the attempt that completed its word.
	Confirmed bool `json:"confirmed"`
	// CreatedAt is when the attempt was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// WordResult records how many attempts a word needed.
type WordResult struct {
	Word        string    `json:"word"`
	Attempts    int       `json:"attempts"`
	CompletedAt time.Time `json:"completed_at"`
}

// Session represents a practice session aggregate.
type Session struct {
	mu sync.RWMutex

	// ID is the unique identifier for this session.
	ID string `json:"id"`
	// Language is the language of the word list.
	Language string `json:"language"`
	// Words is the ordered list to practise.
	Words []string `json:"words"`
	// Current is the index of the word being practised.
	Current int `json:"current"`
	// Status is the current session state.
	Status Status `json:"status"`
	// Attempts holds every recording in order.
	Attempts []Attempt `json:"attempts"`
	// WordStart is the index in Attempts of the first attempt at the
	// current word.
	WordStart int `json:"word_start"`
	// Results holds one entry per confirmed word, in list order.
	Results []WordResult `json:"results"`
	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the session was last updated.
	UpdatedAt time.Time `json:"updated_at"`
	// CompletedAt is when the session reached a terminal state.
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

// NewSession creates an IN_PROGRESS session with a generated ID.
func NewSession(language string, words []string) (*Session, error) {
	return NewSessionWithID(id.Generate(), language, words)
}

// NewSessionWithID creates an IN_PROGRESS session with the specified ID.
// Useful for testing or when ID needs to be externally generated.
func NewSessionWithID(sessionID, language string, words []string) (*Session, error) {
	if len(words) == 0 {
		return nil, ErrNoWords
	}
	now := time.Now()
	return &Session{
		ID:        sessionID,
		Language:  language,
		Words:     append([]string(nil), words...),
		Status:    StatusInProgress,
		Attempts:  make([]Attempt, 0),
		Results:   make([]WordResult, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// TransitionTo attempts to change the session status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (s *Session) TransitionTo(status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(status)
}

func (s *Session) transitionLocked(status Status) error {
	if !canTransition(s.Status, status) {
		return ErrInvalidTransition
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	s.CompletedAt = s.UpdatedAt
	return nil
}

// Abandon transitions the session to ABANDONED.
func (s *Session) Abandon() error {
	return s.TransitionTo(StatusAbandoned)
}

// GetStatus returns the current session status (thread-safe).
func (s *Session) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// IsTerminal returns true if the session is in a terminal state.
func (s *Session) IsTerminal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status != StatusInProgress
}

// CurrentWord returns the word being practised. ok is false once the
// session is finished.
func (s *Session) CurrentWord() (word string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Status != StatusInProgress || s.Current >= len(s.Words) {
		return "", false
	}
	return s.Words[s.Current], true
}

// Position returns the index of the word being practised.
func (s *Session) Position() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Current
}

// NextAttemptNumber returns the number the next attempt at the current word
// will carry.
func (s *Session) NextAttemptNumber() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentAttemptsLocked() + 1
}

func (s *Session) currentAttemptsLocked() int {
	return len(s.Attempts) - s.WordStart
}

// AddAttempt appends a recording of the current word.
func (s *Session) AddAttempt(a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != StatusInProgress {
		return ErrSessionFinished
	}
	s.Attempts = append(s.Attempts, a)
	s.UpdatedAt = time.Now()
	return nil
}

// LastAttempt returns the most recent attempt at the current word.
func (s *Session) LastAttempt() (Attempt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Status != StatusInProgress || s.currentAttemptsLocked() == 0 {
		return Attempt{}, false
	}
	return s.Attempts[len(s.Attempts)-1], true
}

// ConfirmCurrent marks the latest attempt as confirmed, records the word's
// result and advances. The session completes after the last word.
func (s *Session) ConfirmCurrent() (WordResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusInProgress {
		return WordResult{}, ErrSessionFinished
	}
	n := s.currentAttemptsLocked()
	if n == 0 {
		return WordResult{}, ErrNoAttempt
	}

	now := time.Now()
	s.Attempts[len(s.Attempts)-1].Confirmed = true
	result := WordResult{Word: s.Words[s.Current], Attempts: n, CompletedAt: now}
	s.Results = append(s.Results, result)
	s.Current++
	s.WordStart = len(s.Attempts)
	s.UpdatedAt = now

	if s.Current == len(s.Words) {
		if err := s.transitionLocked(StatusCompleted); err != nil {
			return WordResult{}, err
		}
	}
	return result, nil
}

// Clone creates a deep copy of the session for safe reads.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attempts := make([]Attempt, len(s.Attempts))
	for i, a := range s.Attempts {
		a.Letters = append([]ClipRef(nil), a.Letters...)
		attempts[i] = a
	}

	results := make([]WordResult, len(s.Results))
	copy(results, s.Results)

	return &Session{
		ID:          s.ID,
		Language:    s.Language,
		Words:       append([]string(nil), s.Words...),
		Current:     s.Current,
		WordStart:   s.WordStart,
		Status:      s.Status,
		Attempts:    attempts,
		Results:     results,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		CompletedAt: s.CompletedAt,
	}
}
