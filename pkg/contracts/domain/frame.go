package domain

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// DType tags the element type of a Column
type DType string

const (
	DTypeFloat    DType = "float64"
	DTypeInt      DType = "int64"
	DTypeDatetime DType = "datetime"
	DTypeString   DType = "string"
)

// IsNumeric reports whether values of this dtype live in Column.Floats
func (d DType) IsNumeric() bool {
	return d == DTypeFloat || d == DTypeInt
}

// Column is one named column of a Frame. Exactly one of the value slices is
// populated, selected by DType. Missing numbers are NaN, missing times are the
// zero time.Time (NaT).
type Column struct {
	Name   string      `json:"name"`
	DType  DType       `json:"dtype"`
	Floats []float64   `json:"floats,omitempty"`
	Times  []time.Time `json:"times,omitempty"`
	Texts  []string    `json:"texts,omitempty"`
}

// NewFloatColumn creates a float64 column
func NewFloatColumn(name string, values []float64) Column {
	return Column{Name: name, DType: DTypeFloat, Floats: values}
}

// NewIntColumn creates an integer column stored as float64
func NewIntColumn(name string, values []int64) Column {
	floats := make([]float64, len(values))
	for i, v := range values {
		floats[i] = float64(v)
	}
	return Column{Name: name, DType: DTypeInt, Floats: floats}
}

// NewTimeColumn creates a datetime column
func NewTimeColumn(name string, values []time.Time) Column {
	return Column{Name: name, DType: DTypeDatetime, Times: values}
}

// NewStringColumn creates a text column
func NewStringColumn(name string, values []string) Column {
	return Column{Name: name, DType: DTypeString, Texts: values}
}

// Len returns the number of rows held by the column
func (c Column) Len() int {
	switch c.DType {
	case DTypeFloat, DTypeInt:
		return len(c.Floats)
	case DTypeDatetime:
		return len(c.Times)
	default:
		return len(c.Texts)
	}
}

// Strings renders every cell as text. Missing cells render as "".
func (c Column) Strings() []string {
	out := make([]string, c.Len())
	switch c.DType {
	case DTypeFloat, DTypeInt:
		for i, v := range c.Floats {
			if math.IsNaN(v) {
				continue
			}
			out[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	case DTypeDatetime:
		for i, v := range c.Times {
			if v.IsZero() {
				continue
			}
			out[i] = v.Format(time.RFC3339Nano)
		}
	default:
		copy(out, c.Texts)
	}
	return out
}

// Index is the row index of a Frame. A nil Times slice means a positional index.
type Index struct {
	Name  string      `json:"name,omitempty"`
	Times []time.Time `json:"times,omitempty"`
}

// IsDatetime reports whether the index carries timestamps
func (i Index) IsDatetime() bool {
	return i.Times != nil
}

// Frame is the tabular output contract of every loader
type Frame struct {
	Columns []Column `json:"columns"`
	Index   Index    `json:"index"`
}

// NewFrame builds a frame and checks that all columns share one length and
// have distinct names.
func NewFrame(columns ...Column) (*Frame, error) {
	f := &Frame{Columns: columns}
	if err := f.Check(); err != nil {
		return nil, err
	}
	return f, nil
}

// Check verifies the structural invariants of the frame
func (f *Frame) Check() error {
	seen := make(map[string]struct{}, len(f.Columns))
	rows := -1
	for _, c := range f.Columns {
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		if rows < 0 {
			rows = c.Len()
		} else if c.Len() != rows {
			return fmt.Errorf("column %q has %d rows, expected %d", c.Name, c.Len(), rows)
		}
	}
	if f.Index.IsDatetime() && rows >= 0 && len(f.Index.Times) != rows {
		return fmt.Errorf("index has %d rows, expected %d", len(f.Index.Times), rows)
	}
	return nil
}

// Len returns the number of rows
func (f *Frame) Len() int {
	if len(f.Columns) > 0 {
		return f.Columns[0].Len()
	}
	return len(f.Index.Times)
}

// Names returns the column names in order
func (f *Frame) Names() []string {
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks a column up by exact name
func (f *Frame) Column(name string) (*Column, bool) {
	for i := range f.Columns {
		if f.Columns[i].Name == name {
			return &f.Columns[i], true
		}
	}
	return nil, false
}
