package practice

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned when a session cannot be found by ID.
var ErrSessionNotFound = errors.New("session not found")

// Repository defines the interface for session persistence.
// It acts as a port in the hexagonal architecture pattern.
type Repository interface {
	// Save persists a session to the storage.
	// If the session already exists, it should be updated.
	Save(ctx context.Context, session *Session) error

	// FindByID retrieves a session by its unique identifier.
	// Returns ErrSessionNotFound if the session does not exist.
	FindByID(ctx context.Context, id string) (*Session, error)

	// List returns all sessions, oldest first.
	List(ctx context.Context) ([]*Session, error)

	// Delete removes a session from storage.
	// Returns ErrSessionNotFound if the session does not exist.
	Delete(ctx context.Context, id string) error
}
