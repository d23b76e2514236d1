// Package exporter writes datasets back to disk.
//
// CSVWriter is the core writer with headers, streaming and an optional UTF-8
// BOM for Excel. WriteDataset lays a dataset out as one timestamp column,
// one seconds column and one column per series, optionally followed by the
// interpolation mask of each series. WriteWorkbook writes the same layout
// to an .xlsx sheet.
//
// Example usage:
//
//	w := exporter.NewCSVWriter(cfg.Paths.OutputDir, logger)
//	path, err := w.WriteDataset(ds, "line1_resampled.csv", exporter.DefaultDatasetOptions())
package exporter
