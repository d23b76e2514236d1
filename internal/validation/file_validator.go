package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"scadalab/internal/config"
	apperrors "scadalab/internal/errors"
)

// FileValidator checks loader inputs and export destinations before any
// parsing happens
type FileValidator struct {
	logger  *slog.Logger
	maxSize int64
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger:  logger,
		maxSize: config.MaxInputFileSize,
	}
}

// WithMaxSize overrides the maximum accepted input size in bytes
func (v *FileValidator) WithMaxSize(n int64) *FileValidator {
	v.maxSize = n
	return v
}

// ValidateInputFile checks that path is a readable, non-temporary file of a
// supported format within the size limit
func (v *FileValidator) ValidateInputFile(path string) error {
	if err := v.ValidateFile(path); err != nil {
		return apperrors.NewDataLoadError("input file is not usable", err).WithContext("path", path)
	}

	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".~lock.") {
		v.logger.Warn("Skipping temporary office file", slog.String("file", path))
		return apperrors.NewDataLoadError("input file is a temporary lock file", nil).
			WithCode("temporary_file").
			WithContext("path", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(config.SupportedExtensions, ext) {
		v.logger.Error("Unsupported input format",
			slog.String("file", path),
			slog.String("extension", ext))
		return apperrors.NewDataLoadError("unsupported file format", nil).
			WithCode("unsupported_format").
			WithContext("path", path).
			WithContext("extension", ext).
			WithContext("supported", config.SupportedExtensions)
	}

	info, err := os.Stat(path)
	if err == nil && v.maxSize > 0 && info.Size() > v.maxSize {
		return apperrors.NewDataLoadError("input file too large", nil).
			WithCode("file_too_large").
			WithContext("path", path).
			WithContext("size", info.Size()).
			WithContext("max_size", v.maxSize)
	}

	return nil
}

// ValidateInputDirectory validates that input directory exists and returns
// the supported files it holds, sorted by name
func (v *FileValidator) ValidateInputDirectory(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		v.logger.Error("Input directory does not exist",
			slog.String("directory", dir))
		return nil, fmt.Errorf("input directory %s does not exist", dir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if v.ValidateInputFile(path) == nil {
			files = append(files, path)
		}
	}

	v.logger.Info("Input directory validated",
		slog.String("directory", dir),
		slog.Int("files_found", len(files)))
	return files, nil
}

// ValidateOutputDirectory ensures output directory exists or can be created
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	file.Close()
	os.Remove(testFile)

	v.logger.Debug("Output directory validated", slog.String("directory", dir))
	return nil
}

// ValidateFile checks if a specific file exists and is readable
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("File does not exist",
			slog.String("file", path))
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		v.logger.Error("Path is a directory, not a file",
			slog.String("path", path))
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()

	v.logger.Debug("File validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}
