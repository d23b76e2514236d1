package exporter

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"scadalab/internal/dataset"
	apperrors "scadalab/internal/errors"
	"scadalab/internal/timebase"
)

// Column names of the fixed leading columns
const (
	ColumnTimestamp = "timestamp"
	ColumnSeconds   = "t_seconds"
	maskSuffix      = "__interpolated"
)

// DatasetOptions shapes a dataset export
type DatasetOptions struct {
	// IncludeMask adds a <series>__interpolated column after each series
	IncludeMask bool
	// BOMPrefix adds a UTF-8 BOM for Excel
	BOMPrefix bool
	// Series restricts the export to these ids or names, in this order
	Series []string
}

// DefaultDatasetOptions exports every series with its mask
func DefaultDatasetOptions() DatasetOptions {
	return DatasetOptions{IncludeMask: true}
}

// WriteDataset streams d to a CSV file and returns the resolved path
func (w *CSVWriter) WriteDataset(d *dataset.Dataset, filePath string, opts DatasetOptions) (string, error) {
	header, rows, err := datasetTable(d, opts)
	if err != nil {
		return "", err
	}

	sw, err := w.CreateStreamWriter(filePath, header, opts.BOMPrefix)
	if err != nil {
		return "", apperrors.NewDataLoadError("cannot create export file", err).
			WithCode("export_failed").
			WithContext("path", filePath)
	}
	for i := 0; i < d.Len(); i++ {
		if err := sw.WriteRecord(rows(i)); err != nil {
			sw.Close()
			return "", apperrors.NewDataLoadError("cannot write export row", err).
				WithCode("export_failed").
				WithContext("row", i)
		}
	}
	if err := sw.Close(); err != nil {
		return "", apperrors.NewDataLoadError("cannot finish export file", err).WithCode("export_failed")
	}

	w.logger.Info("Dataset exported",
		slog.String("dataset_id", d.ID),
		slog.String("path", sw.Path()),
		slog.Int("rows", d.Len()),
		slog.Int("columns", len(header)))
	return sw.Path(), nil
}

// WriteWorkbook writes d to the first sheet of a new .xlsx file
func (w *CSVWriter) WriteWorkbook(d *dataset.Dataset, filePath string, opts DatasetOptions) (string, error) {
	header, rows, err := datasetTable(d, opts)
	if err != nil {
		return "", err
	}
	fullPath := w.resolvePath(filePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", apperrors.NewDataLoadError("cannot create export directory", err).WithCode("export_failed")
	}

	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Sheet1"

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return "", apperrors.NewDataLoadError("cannot start workbook", err).WithCode("export_failed")
	}
	cells := make([]interface{}, len(header))
	for j, h := range header {
		cells[j] = h
	}
	if err := sw.SetRow("A1", cells); err != nil {
		return "", apperrors.NewDataLoadError("cannot write workbook header", err).WithCode("export_failed")
	}
	for i := 0; i < d.Len(); i++ {
		rec := rows(i)
		cells := make([]interface{}, len(rec))
		for j, v := range rec {
			cells[j] = v
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := sw.SetRow(cell, cells); err != nil {
			return "", apperrors.NewDataLoadError("cannot write workbook row", err).
				WithCode("export_failed").
				WithContext("row", i)
		}
	}
	if err := sw.Flush(); err != nil {
		return "", apperrors.NewDataLoadError("cannot flush workbook", err).WithCode("export_failed")
	}
	if err := f.SaveAs(fullPath); err != nil {
		return "", apperrors.NewDataLoadError("cannot save workbook", err).
			WithCode("export_failed").
			WithContext("path", fullPath)
	}

	w.logger.Info("Dataset exported",
		slog.String("dataset_id", d.ID),
		slog.String("path", fullPath),
		slog.Int("rows", d.Len()))
	return fullPath, nil
}

// datasetTable returns the header and a row renderer for d
func datasetTable(d *dataset.Dataset, opts DatasetOptions) ([]string, func(int) []string, error) {
	series := d.Ordered()
	if len(opts.Series) > 0 {
		series = series[:0:0]
		for _, ref := range opts.Series {
			s, ok := d.Lookup(ref)
			if !ok {
				return nil, nil, apperrors.NewNotFoundError("series", ref)
			}
			series = append(series, s)
		}
	}

	header := []string{ColumnTimestamp, ColumnSeconds}
	for _, s := range series {
		header = append(header, s.Name)
		if opts.IncludeMask {
			header = append(header, s.Name+maskSuffix)
		}
	}

	datetimes := d.Datetimes
	if len(datetimes) != d.Len() {
		datetimes = timebase.ToDatetimePrecise(d.Time, d.Origin)
	}

	rows := func(i int) []string {
		rec := make([]string, 0, len(header))
		rec = append(rec, formatTime(datetimes[i]), formatFloat(d.Time[i]))
		for _, s := range series {
			rec = append(rec, formatFloat(s.Values[i]))
			if opts.IncludeMask {
				rec = append(rec, formatBool(s.Info.Mask[i]))
			}
		}
		return rec
	}
	return header, rows, nil
}
