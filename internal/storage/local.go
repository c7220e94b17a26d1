package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage implements the Storage interface using local disk.
// Temporary files and the archive live in separate directories.
type LocalStorage struct {
	tempDir    string
	archiveDir string
}

// NewLocalStorage creates a new LocalStorage instance.
// If tempDir is empty, a "palabra" directory under os.TempDir() is used.
// If archiveDir is empty, "recordings" in the working directory is used.
// Both directories are created if they don't exist.
func NewLocalStorage(tempDir, archiveDir string) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "palabra")
	}
	if archiveDir == "" {
		archiveDir = "recordings"
	}

	if err := os.MkdirAll(tempDir, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}
	if err := os.MkdirAll(archiveDir, 0750); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}

	return &LocalStorage{tempDir: tempDir, archiveDir: archiveDir}, nil
}

// TempDir returns the temporary directory path.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// ArchiveDir returns the archive directory path.
func (s *LocalStorage) ArchiveDir() string {
	return s.archiveDir
}

// SaveTemp saves data to a temporary file and returns the file path.
// The name is used as a base for the filename with a unique suffix placed
// before the extension.
func (s *LocalStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(filepath.Base(name), ext)

	f, err := os.CreateTemp(s.tempDir, base+"_*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	fileName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return fileName, nil
}

// CleanupTemp removes the specified temporary files.
// It continues cleanup even if some files fail to delete,
// returning the first error encountered.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove temp file %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// PurgeTemp removes every regular file in the temporary directory.
func (s *LocalStorage) PurgeTemp(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.tempDir)
	if err != nil {
		return 0, fmt.Errorf("read temp directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			paths = append(paths, filepath.Join(s.tempDir, e.Name()))
		}
	}
	if err := s.CleanupTemp(ctx, paths); err != nil {
		return 0, err
	}
	return len(paths), nil
}

// Archive writes data to key below the archive directory and returns the
// file path. Intermediate directories are created.
func (s *LocalStorage) Archive(ctx context.Context, key string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	p, err := s.archivePath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	f, err := os.Create(p) // #nosec G304 - key is validated by CleanKey
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return "", fmt.Errorf("write archive file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close archive file: %w", err)
	}
	return p, nil
}

// Open reads an archived key.
func (s *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	p, err := s.archivePath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p) // #nosec G304 - key is validated by CleanKey
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("open archive file: %w", err)
	}
	return f, nil
}

func (s *LocalStorage) archivePath(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, key)
	}
	return filepath.Join(s.archiveDir, filepath.FromSlash(cleaned)), nil
}

var _ Storage = (*LocalStorage)(nil)
