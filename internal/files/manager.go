package files

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "scadalab/internal/errors"
)

// Manager confines file access to a base directory
type Manager struct {
	base   string
	logger *slog.Logger
}

// NewManager creates a new file manager instance
func NewManager(base string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		base:   base,
		logger: logger.With(slog.String("component", "file_manager")),
	}
}

// Base returns the managed directory
func (m *Manager) Base() string {
	return m.base
}

// Resolve joins name onto the base directory. Empty names, absolute paths
// and paths that climb out of the base are rejected with a validation error.
func (m *Manager) Resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", apperrors.ErrValidation("path", "path is required")
	}
	if filepath.IsAbs(name) {
		return "", apperrors.ErrValidation("path", "path must be relative to the data directory")
	}
	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", apperrors.ErrValidation("path", "path escapes the data directory")
	}
	return filepath.Join(m.base, clean), nil
}

// FileExists checks if a resolved name exists
func (m *Manager) FileExists(name string) bool {
	path, err := m.Resolve(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Store copies src into the base directory under name and returns the full
// path. Parent directories are created as needed. A failed copy leaves
// nothing behind.
func (m *Manager) Store(name string, src io.Reader) (string, error) {
	path, err := m.Resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", apperrors.NewDataLoadError("cannot create directory", err).WithContext("file", name)
	}
	if m.FileExists(name) {
		m.logger.Info("replacing existing file", slog.String("file", name))
	}

	dst, err := os.Create(path)
	if err != nil {
		return "", apperrors.NewDataLoadError("cannot store file", err).WithContext("file", name)
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			m.logger.Warn("cannot remove partial file",
				slog.String("file", name),
				slog.String("error", rerr.Error()))
		}
		return "", apperrors.NewDataLoadError("cannot store file", err).WithContext("file", name)
	}

	m.logger.Debug("file stored",
		slog.String("file", name),
		slog.Int64("bytes", n))
	return path, nil
}

// DeleteFile removes a resolved name
func (m *Manager) DeleteFile(name string) error {
	path, err := m.Resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return apperrors.NewNotFoundError("file", name)
		}
		return apperrors.NewDataLoadError("cannot delete file", err).WithContext("file", name)
	}
	return nil
}
