package dataset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "scadalab/internal/errors"
	"scadalab/pkg/contracts/domain"
)

var t0 = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

func newDataset(t *testing.T, n int) *Dataset {
	t.Helper()
	axis := make([]float64, n)
	dts := make([]time.Time, n)
	for i := range axis {
		axis[i] = float64(i)
		dts[i] = t0.Add(time.Duration(i) * time.Second)
	}
	d, err := New(SourceDescriptor{Path: "plant.csv", Format: "csv"}, t0, axis, dts)
	require.NoError(t, err)
	return d
}

func addSeries(t *testing.T, d *Dataset, name string, values []float64) *Series {
	t.Helper()
	s, err := NewSeries(name, "degC", values, nil, NewLineage("load", nil), d.Len())
	require.NoError(t, err)
	require.NoError(t, d.AddSeries(s))
	return s
}

func TestNewSeries(t *testing.T) {
	values := []float64{1, 2, 3}
	s, err := NewSeries("TT-101", "degC", values, nil, NewLineage("load", domain.Params{"column": "TT-101"}), 3)
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 0, s.Info.Count())
	assert.Len(t, s.Info.Mask, 3)

	values[0] = 99
	assert.Equal(t, 1.0, s.Values[0], "values are copied")
	assert.Equal(t, "TT-101", s.Lineage.Parameters["column"])
	assert.NotEmpty(t, s.Lineage.PlatformVersion)
}

func TestNewSeriesWithInfo(t *testing.T) {
	info := domain.NewInterpolationInfo(3)
	info.Mark(1, "linear")

	s, err := NewSeries("FT-200", "", []float64{1, 2, 3}, &info, NewLineage("interpolate", nil, "orig"), 3)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Info.Count())

	info.Mark(2, "linear")
	assert.Equal(t, 1, s.Info.Count(), "info is cloned")
	assert.Equal(t, []string{"orig"}, s.Lineage.Origins)
}

func TestNewSeriesLengthMismatch(t *testing.T) {
	_, err := NewSeries("x", "", []float64{1, 2}, nil, NewLineage("load", nil), 3)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
	assert.ErrorIs(t, err, apperrors.ErrLengthMismatch)

	bad := domain.NewInterpolationInfo(2)
	_, err = NewSeries("x", "", []float64{1, 2, 3}, &bad, NewLineage("load", nil), 3)
	assert.ErrorIs(t, err, apperrors.ErrLengthMismatch)
}

func TestDatasetAddAndLookup(t *testing.T) {
	d := newDataset(t, 4)
	a := addSeries(t, d, "TT-101", []float64{1, 2, 3, 4})
	addSeries(t, d, "PT-300", []float64{5, 6, 7, 8})

	got, ok := d.Lookup(a.ID)
	require.True(t, ok)
	assert.Equal(t, "TT-101", got.Name)

	got, ok = d.Lookup("PT-300")
	require.True(t, ok)
	assert.Equal(t, 5.0, got.Values[0])

	_, ok = d.Lookup("missing")
	assert.False(t, ok)

	names := []string{}
	for _, s := range d.Ordered() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"TT-101", "PT-300"}, names)
}

func TestDatasetAddSeriesErrors(t *testing.T) {
	d := newDataset(t, 3)
	addSeries(t, d, "TT-101", []float64{1, 2, 3})

	dup, err := NewSeries("TT-101", "", []float64{4, 5, 6}, nil, NewLineage("load", nil), 3)
	require.NoError(t, err)
	err = d.AddSeries(dup)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "duplicate_series", appErr.Code)

	short := &Series{ID: "s", Name: "short", Values: []float64{1}, Info: domain.NewInterpolationInfo(1)}
	assert.ErrorIs(t, d.AddSeries(short), apperrors.ErrLengthMismatch)
}

func TestNewDatasetAxisMismatch(t *testing.T) {
	_, err := New(SourceDescriptor{}, t0, []float64{0, 1}, []time.Time{t0})
	assert.ErrorIs(t, err, apperrors.ErrLengthMismatch)
}

func TestDerive(t *testing.T) {
	parent := newDataset(t, 3)
	addSeries(t, parent, "TT-101", []float64{1, 2, 3})

	child, err := parent.Derive("resample", domain.Params{"dt": 0.5}, []float64{0, 0.5, 1, 1.5, 2}, nil)
	require.NoError(t, err)

	assert.NotEqual(t, parent.ID, child.ID)
	assert.Equal(t, 2, child.Version)
	assert.Equal(t, parent.ID, child.ParentID)
	assert.Equal(t, parent.Source, child.Source)
	assert.Equal(t, "resample", child.Metadata["operation"])
	assert.Equal(t, 5, child.Len())
	assert.Empty(t, child.Series)
	assert.Len(t, parent.Series, 1, "parent is untouched")

	same, err := child.DeriveSameAxis("smooth", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, same.Version)
	assert.Equal(t, child.Time, same.Time)

	same.Time[0] = 42
	assert.Equal(t, 0.0, child.Time[0], "axis is copied")
}

func TestSummarize(t *testing.T) {
	d := newDataset(t, 2)
	addSeries(t, d, "a", []float64{1, 2})
	addSeries(t, d, "b", []float64{3, 4})

	s := d.Summarize()
	assert.Equal(t, d.ID, s.ID)
	assert.Equal(t, 2, s.Samples)
	assert.Equal(t, []string{"a", "b"}, s.Series)
	assert.Equal(t, "plant.csv", s.Source)
}

func TestDescribeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Line1.CSV")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	desc, err := DescribeFile(path)
	require.NoError(t, err)
	assert.Equal(t, "csv", desc.Format)
	assert.Equal(t, int64(3), desc.Size)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", desc.Checksum)

	_, err = DescribeFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeDataLoad))
}
