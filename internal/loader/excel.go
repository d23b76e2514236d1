package loader

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"scadalab/pkg/contracts/domain"
)

// ExcelLoader reads one worksheet of an .xlsx workbook. Cells come back as
// their formatted text and are typed like CSV cells.
type ExcelLoader struct {
	opts Options
}

// NewExcelLoader creates an Excel loader
func NewExcelLoader(opts Options) *ExcelLoader {
	return &ExcelLoader{opts: opts}
}

// Format names the loader
func (l *ExcelLoader) Format() string { return "excel" }

// Load reads the configured sheet, or the first sheet holding a header and
// at least one data row
func (l *ExcelLoader) Load(ctx context.Context, path string) (*domain.Frame, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, loadError(path, "cannot open workbook", err)
	}
	defer f.Close()

	if err := ctx.Err(); err != nil {
		return nil, loadError(path, "load cancelled", err)
	}

	var rows [][]string
	sheet := l.opts.Sheet
	if sheet != "" {
		rows, err = f.GetRows(sheet)
		if err != nil {
			return nil, loadError(path, "cannot read sheet", err).WithContext("sheet", sheet)
		}
	} else {
		for _, name := range f.GetSheetList() {
			if r, rerr := f.GetRows(name); rerr == nil && len(r) > 1 {
				rows, sheet = r, name
				break
			}
		}
	}
	if len(rows) == 0 {
		return nil, loadError(path, "workbook has no data", errors.New("no sheet with rows")).
			WithContext("sheets", f.GetSheetList())
	}

	frame, err := frameFromRecords(rows[0], dropBlank(rows[1:]), l.opts)
	if err != nil {
		return nil, loadError(path, "cannot build frame", err).WithContext("sheet", sheet)
	}
	l.opts.logger().Debug("workbook loaded",
		slog.String("path", path),
		slog.String("sheet", sheet),
		slog.Int("rows", frame.Len()))
	return frame, nil
}

func dropBlank(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, r := range rows {
		if !blank(r) {
			out = append(out, r)
		}
	}
	return out
}
