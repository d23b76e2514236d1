package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"scadalab/pkg/contracts/domain"
)

var arrowFileMagic = []byte("ARROW1")

// ArrowLoader reads Arrow IPC files and streams. Numeric fields become
// float columns, timestamp and date fields datetime columns, and every
// other field a text column. Batches are concatenated in order.
type ArrowLoader struct {
	opts Options
	mem  memory.Allocator
}

// NewArrowLoader creates an Arrow loader backed by the Go allocator
func NewArrowLoader(opts Options) *ArrowLoader {
	return &ArrowLoader{opts: opts, mem: memory.NewGoAllocator()}
}

// Format names the loader
func (l *ArrowLoader) Format() string { return "arrow" }

// Load reads path in file format when it carries the file magic and in
// stream format otherwise
func (l *ArrowLoader) Load(ctx context.Context, path string) (*domain.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, loadError(path, "cannot open file", err)
	}
	defer f.Close()

	magic := make([]byte, len(arrowFileMagic))
	n, _ := io.ReadFull(f, magic)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, loadError(path, "cannot rewind file", err)
	}

	var frame *domain.Frame
	if n == len(magic) && bytes.Equal(magic, arrowFileMagic) {
		frame, err = l.readFile(ctx, f)
	} else {
		frame, err = l.readStream(ctx, f)
	}
	if err != nil {
		return nil, loadError(path, "cannot read arrow data", err)
	}
	l.opts.logger().Debug("arrow file loaded",
		slog.String("path", path),
		slog.Int("rows", frame.Len()),
		slog.Int("columns", len(frame.Columns)))
	return frame, nil
}

func (l *ArrowLoader) readFile(ctx context.Context, f *os.File) (*domain.Frame, error) {
	r, err := ipc.NewFileReader(f, ipc.WithAllocator(l.mem))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	cols := newColumnBuilders(r.Schema())
	for i := 0; i < r.NumRecords(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Record(i)
		if err != nil {
			return nil, fmt.Errorf("record batch %d: %w", i, err)
		}
		cols.append(rec)
	}
	return cols.frame()
}

// ReadStream parses the Arrow IPC stream format from r
func (l *ArrowLoader) ReadStream(ctx context.Context, r io.Reader) (*domain.Frame, error) {
	return l.readStream(ctx, r)
}

func (l *ArrowLoader) readStream(ctx context.Context, in io.Reader) (*domain.Frame, error) {
	r, err := ipc.NewReader(in, ipc.WithAllocator(l.mem))
	if err != nil {
		return nil, err
	}
	defer r.Release()

	cols := newColumnBuilders(r.Schema())
	for r.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cols.append(r.Record())
	}
	if err := r.Err(); err != nil && err != io.EOF {
		return nil, err
	}
	return cols.frame()
}

type columnBuilders struct {
	schema *arrow.Schema
	cols   []domain.Column
}

func newColumnBuilders(schema *arrow.Schema) *columnBuilders {
	cols := make([]domain.Column, len(schema.Fields()))
	for i, field := range schema.Fields() {
		cols[i] = domain.Column{Name: field.Name, DType: arrowDType(field.Type)}
	}
	return &columnBuilders{schema: schema, cols: cols}
}

func arrowDType(t arrow.DataType) domain.DType {
	switch t.ID() {
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
		return domain.DTypeFloat
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64, arrow.BOOL:
		return domain.DTypeInt
	case arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64:
		return domain.DTypeDatetime
	default:
		return domain.DTypeString
	}
}

func (b *columnBuilders) append(rec arrow.Record) {
	for i := range b.cols {
		col := &b.cols[i]
		arr := rec.Column(i)
		for row := 0; row < arr.Len(); row++ {
			switch col.DType {
			case domain.DTypeFloat, domain.DTypeInt:
				col.Floats = append(col.Floats, numericValue(arr, row))
			case domain.DTypeDatetime:
				col.Times = append(col.Times, timeValue(arr, row))
			default:
				s := ""
				if arr.IsValid(row) {
					s = arr.ValueStr(row)
				}
				col.Texts = append(col.Texts, s)
			}
		}
	}
}

func (b *columnBuilders) frame() (*domain.Frame, error) {
	return domain.NewFrame(b.cols...)
}

func numericValue(arr arrow.Array, i int) float64 {
	if arr.IsNull(i) {
		return math.NaN()
	}
	switch a := arr.(type) {
	case *array.Float64:
		return a.Value(i)
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float16:
		return float64(a.Value(i).Float32())
	case *array.Int64:
		return float64(a.Value(i))
	case *array.Int32:
		return float64(a.Value(i))
	case *array.Int16:
		return float64(a.Value(i))
	case *array.Int8:
		return float64(a.Value(i))
	case *array.Uint64:
		return float64(a.Value(i))
	case *array.Uint32:
		return float64(a.Value(i))
	case *array.Uint16:
		return float64(a.Value(i))
	case *array.Uint8:
		return float64(a.Value(i))
	case *array.Boolean:
		if a.Value(i) {
			return 1
		}
		return 0
	default:
		return math.NaN()
	}
}

func timeValue(arr arrow.Array, i int) time.Time {
	if arr.IsNull(i) {
		return time.Time{}
	}
	switch a := arr.(type) {
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC()
	case *array.Date32:
		return a.Value(i).ToTime().UTC()
	case *array.Date64:
		return a.Value(i).ToTime().UTC()
	default:
		return time.Time{}
	}
}
