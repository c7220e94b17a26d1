// Package storage provides temporary and persistent file storage capabilities.
// It defines the Storage interface (port) for hexagonal architecture and
// implementations for local disk and S3 storage.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// Static errors for archive access.
var (
	// ErrNotFound is returned when an archived key does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidKey is returned for keys that are empty, absolute or escape
	// the archive root.
	ErrInvalidKey = errors.New("storage: invalid key")
)

// Storage defines the interface for temporary and persistent file storage.
// Temporary files hold uploads while they are decoded; the archive keeps
// exported clips under slash-separated keys.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename; its
	// extension is preserved.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// PurgeTemp removes every file left in the temporary directory and
	// returns how many were removed.
	PurgeTemp(ctx context.Context) (int, error)

	// Archive stores data under key and returns where it can be found
	// (a file path or a URL).
	Archive(ctx context.Context, key string, data io.Reader) (location string, err error)

	// Open reads an archived key. Returns ErrNotFound for unknown keys.
	// The caller is responsible for closing the returned ReadCloser.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// CleanKey validates an archive key and returns it in canonical form.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
