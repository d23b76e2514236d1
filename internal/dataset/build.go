package dataset

import (
	"sort"
	"time"

	apperrors "scadalab/internal/errors"
	"scadalab/internal/timebase"
	"scadalab/internal/validation"
	"scadalab/pkg/contracts/domain"
)

// BuildOptions controls how frame rows become the dataset axis
type BuildOptions struct {
	// DropNaT removes rows whose timestamp could not be parsed
	DropNaT bool
	// SortByTime orders rows by timestamp, keeping input order for ties
	SortByTime bool
}

// DefaultBuildOptions drops NaT rows and sorts by time
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{DropNaT: true, SortByTime: true}
}

// Build converts a frame and its detected schema into a version 1 dataset.
// Every candidate column becomes a measured series with its unit hint.
func Build(frame *domain.Frame, schema domain.SchemaMap, source SourceDescriptor, opts BuildOptions) (*Dataset, error) {
	ts, ok := validation.Timestamps(frame, schema.TimestampColumn)
	if !ok {
		return nil, apperrors.NewAppValidationError(validation.ErrTimestampColumnMissing, "timestamp column not found").
			WithContext("column", schema.TimestampColumn)
	}

	rows := make([]int, 0, len(ts))
	for i, t := range ts {
		if opts.DropNaT && t.IsZero() {
			continue
		}
		rows = append(rows, i)
	}
	if len(rows) == 0 || validation.CountNaT(ts) == len(ts) {
		return nil, apperrors.NewAppValidationError(validation.ErrNoValidTimestamps, "no parseable timestamps").
			WithContext("rows", len(ts))
	}
	if opts.SortByTime {
		sort.SliceStable(rows, func(a, b int) bool {
			ta, tb := ts[rows[a]], ts[rows[b]]
			// NaT sorts last
			if ta.IsZero() != tb.IsZero() {
				return tb.IsZero()
			}
			return ta.Before(tb)
		})
	}

	axis := make([]time.Time, len(rows))
	for i, r := range rows {
		axis[i] = ts[r]
	}
	origin, _ := timebase.Origin(axis)
	d, err := New(source, origin, timebase.ToSeconds(axis), axis)
	if err != nil {
		return nil, err
	}

	for _, cand := range schema.Series {
		col, ok := frame.Column(cand.Name)
		if !ok {
			return nil, apperrors.NewAppValidationError(validation.ErrColumnMissing, "series column not found").
				WithContext("column", cand.Name)
		}
		raw := validation.CoerceNumeric(*col)
		values := make([]float64, len(rows))
		for i, r := range rows {
			values[i] = raw[r]
		}

		lineage := NewLineage("load", domain.Params{"column": cand.Name, "source": source.Path})
		s, err := NewSeries(cand.Name, cand.UnitHint, values, nil, lineage, d.Len())
		if err != nil {
			return nil, err
		}
		s.Metadata["original_column"] = cand.Name
		s.Metadata["original_unit"] = cand.UnitHint
		s.Metadata["dtype"] = string(cand.DType)
		if err := d.AddSeries(s); err != nil {
			return nil, err
		}
	}

	d.Metadata["timestamp_column"] = schema.TimestampColumn
	d.Metadata["schema_confidence"] = schema.Confidence
	d.Metadata["rows_dropped"] = len(ts) - len(rows)
	return d, nil
}
