// Package schema proposes which column of a loaded frame holds timestamps
// and which columns are value series.
package schema

import (
	"regexp"
	"strings"

	apperrors "scadalab/internal/errors"
	"scadalab/pkg/contracts/domain"
)

// Confidence scores assigned by each detection rule
const (
	ConfidenceDatetimeColumn = 0.95
	ConfidenceNameMatch      = 0.9
	ConfidenceDatetimeIndex  = 0.9
	ConfidenceFallback       = 0.5
)

// Rules configures schema detection
type Rules struct {
	// TimestampCandidates are matched case-insensitively and exactly against
	// column names; the first column matching any candidate wins.
	TimestampCandidates []string
	// MinSeriesColumns is informational only.
	MinSeriesColumns int
}

// DefaultRules returns the stock candidate list
func DefaultRules() Rules {
	return Rules{
		TimestampCandidates: []string{"timestamp", "time", "datetime", "date", "ts"},
		MinSeriesColumns:    1,
	}
}

// DetectSchema inspects a frame and returns the proposed schema. It does not
// mutate the frame.
func DetectSchema(frame *domain.Frame, rules Rules) (domain.SchemaMap, error) {
	if frame == nil || (len(frame.Columns) == 0 && !frame.Index.IsDatetime()) {
		return domain.SchemaMap{}, apperrors.NewSchemaDetectionError("empty_frame", "frame has no columns")
	}

	tsColumn, confidence := pickTimestamp(frame, rules)

	series := make([]domain.SeriesCandidate, 0, len(frame.Columns))
	for _, col := range frame.Columns {
		if col.Name == tsColumn || !col.DType.IsNumeric() {
			continue
		}
		series = append(series, domain.SeriesCandidate{
			Name:     col.Name,
			DType:    col.DType,
			UnitHint: UnitHint(col.Name),
		})
	}

	return domain.SchemaMap{
		TimestampColumn: tsColumn,
		Series:          series,
		Confidence:      confidence,
		BelowMinSeries:  len(series) < rules.MinSeriesColumns,
	}, nil
}

func pickTimestamp(frame *domain.Frame, rules Rules) (string, float64) {
	for _, col := range frame.Columns {
		if col.DType == domain.DTypeDatetime {
			return col.Name, ConfidenceDatetimeColumn
		}
	}

	for _, candidate := range rules.TimestampCandidates {
		for _, col := range frame.Columns {
			if strings.EqualFold(strings.TrimSpace(col.Name), candidate) {
				return col.Name, ConfidenceNameMatch
			}
		}
	}

	if frame.Index.IsDatetime() {
		return domain.IndexAsTimestamp, ConfidenceDatetimeIndex
	}

	return frame.Columns[0].Name, ConfidenceFallback
}

var unitPattern = regexp.MustCompile(`[\[(]\s*([^\[\]()]+?)\s*[\])]\s*$`)

// UnitHint extracts a trailing "[unit]" or "(unit)" from a column name
func UnitHint(name string) string {
	m := unitPattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}

// BaseName strips a trailing unit annotation from a column name
func BaseName(name string) string {
	loc := unitPattern.FindStringIndex(name)
	if loc == nil {
		return strings.TrimSpace(name)
	}
	return strings.TrimSpace(name[:loc[0]])
}
