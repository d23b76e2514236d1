package loader

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"scadalab/internal/config"
	apperrors "scadalab/internal/errors"
	"scadalab/pkg/contracts/domain"
)

// Loader reads one file into a frame
type Loader interface {
	Load(ctx context.Context, path string) (*domain.Frame, error)
	Format() string
}

// Options tunes how cells are typed
type Options struct {
	// ParseDates turns text columns whose every cell is a timestamp into
	// datetime columns
	ParseDates bool
	// Sheet selects an Excel sheet by name
	Sheet string
	// Logger receives Debug records; nil uses slog.Default
	Logger *slog.Logger
}

// DefaultOptions parses dates and picks the first non-empty sheet
func DefaultOptions() Options {
	return Options{ParseDates: true}
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// ForPath picks a loader by file extension
func ForPath(path string, opts Options) (Loader, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case config.ExtCSV:
		return NewCSVLoader(',', opts), nil
	case config.ExtTSV:
		return NewCSVLoader('\t', opts), nil
	case config.ExtXLSX:
		return NewExcelLoader(opts), nil
	case config.ExtXLS:
		return nil, apperrors.NewDataLoadError("legacy .xls workbooks are not supported", nil).
			WithCode("unsupported_format").
			WithContext("path", path).
			WithContext("extension", ext).
			WithContext("hint", "save the workbook as .xlsx").
			WithContext("supported", config.SupportedExtensions)
	case config.ExtArrow, config.ExtIPC, config.ExtFeather:
		return NewArrowLoader(opts), nil
	default:
		return nil, apperrors.NewDataLoadError("unsupported file format", nil).
			WithCode("unsupported_format").
			WithContext("path", path).
			WithContext("extension", ext).
			WithContext("supported", config.SupportedExtensions)
	}
}

// Load is ForPath followed by Load
func Load(ctx context.Context, path string, opts Options) (*domain.Frame, error) {
	l, err := ForPath(path, opts)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, path)
}

// ColumnInfo is the per-column view returned by Describe
type ColumnInfo struct {
	Name    string       `json:"name"`
	DType   domain.DType `json:"dtype"`
	Rows    int          `json:"rows"`
	Missing int          `json:"missing"`
}

// Describe summarizes the columns of a loaded frame
func Describe(frame *domain.Frame) []ColumnInfo {
	out := make([]ColumnInfo, 0, len(frame.Columns))
	for _, c := range frame.Columns {
		missing := 0
		for _, s := range c.Strings() {
			if strings.TrimSpace(s) == "" {
				missing++
			}
		}
		out = append(out, ColumnInfo{Name: c.Name, DType: c.DType, Rows: c.Len(), Missing: missing})
	}
	return out
}

func loadError(path, message string, cause error) *apperrors.AppError {
	return apperrors.NewDataLoadError(message, cause).WithContext("path", path)
}
