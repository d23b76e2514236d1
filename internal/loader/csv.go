package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"scadalab/pkg/contracts/domain"
)

// CSVLoader reads delimited text. A UTF-8 BOM is dropped and UTF-16 input
// with a BOM is decoded to UTF-8 first.
type CSVLoader struct {
	comma rune
	opts  Options
}

// NewCSVLoader creates a loader for the given field delimiter
func NewCSVLoader(comma rune, opts Options) *CSVLoader {
	return &CSVLoader{comma: comma, opts: opts}
}

// Format names the loader
func (l *CSVLoader) Format() string {
	if l.comma == '\t' {
		return "tsv"
	}
	return "csv"
}

// Load reads path. The first record is the header.
func (l *CSVLoader) Load(ctx context.Context, path string) (*domain.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, loadError(path, "cannot open file", err)
	}
	defer f.Close()

	frame, err := l.Read(ctx, f)
	if err != nil {
		return nil, loadError(path, "cannot read delimited file", err).WithContext("format", l.Format())
	}
	l.opts.logger().Debug("delimited file loaded",
		slog.String("path", path),
		slog.Int("rows", frame.Len()),
		slog.Int("columns", len(frame.Columns)))
	return frame, nil
}

// Read parses delimited text from r
func (l *CSVLoader) Read(ctx context.Context, r io.Reader) (*domain.Frame, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	cr.Comma = l.comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("file is empty")
	}
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rows)%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if blank(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	return frameFromRecords(header, rows, l.opts)
}

func blank(rec []string) bool {
	for _, c := range rec {
		if c != "" {
			return false
		}
	}
	return true
}
