// Package loader reads tabular files into the domain.Frame contract consumed
// by schema detection and time validation.
//
// # Formats
//
//   - CSV and TSV, UTF-8 with or without BOM, or UTF-16 with a BOM
//   - Excel workbooks (.xlsx), first sheet with data unless one is named
//   - Arrow IPC files and streams (.arrow, .ipc, .feather v2)
//
// # Usage
//
//	l, err := loader.ForPath("line1.csv", loader.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	frame, err := l.Load(ctx, "line1.csv")
//
// Every loader returns a DATA_LOAD AppError on failure. Loaders never
// interpret timestamps beyond column typing; the schema detector and the
// validator own that.
package loader
