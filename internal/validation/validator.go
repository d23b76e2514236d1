package validation

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"scadalab/pkg/contracts/domain"
)

// Warning and error codes carried by a ValidationReport
const (
	WarnNaTTimestamps       = "nat_timestamps"
	WarnNonMonotonic        = "non_monotonic"
	WarnDuplicateTimestamps = "duplicate_timestamps"
	WarnSamplingGaps        = "sampling_gaps"
	WarnHighMissingRatio    = "high_missing_ratio"

	ErrTimestampColumnMissing = "timestamp_column_missing"
	ErrNoValidTimestamps      = "no_valid_timestamps"
	ErrColumnMissing          = "column_missing"
)

// DefaultMaxMissingRatio tolerates sparse sensor columns
const DefaultMaxMissingRatio = 0.95

// Options tunes the validator
type Options struct {
	GapMultiplier   float64
	MaxMissingRatio float64
}

// DefaultOptions returns the stock thresholds
func DefaultOptions() Options {
	return Options{
		GapMultiplier:   DefaultGapMultiplier,
		MaxMissingRatio: DefaultMaxMissingRatio,
	}
}

// Validator checks a loaded frame against a detected schema. It reports
// findings; it never rejects data that can still be processed.
type Validator struct {
	opts   Options
	logger *slog.Logger
}

// NewValidator creates a validator
func NewValidator(opts Options, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.GapMultiplier <= 0 {
		opts.GapMultiplier = DefaultGapMultiplier
	}
	if opts.MaxMissingRatio <= 0 {
		opts.MaxMissingRatio = DefaultMaxMissingRatio
	}
	return &Validator{opts: opts, logger: logger.With(slog.String("component", "validator"))}
}

// Options returns the effective thresholds
func (v *Validator) Options() Options {
	return v.opts
}

// Timestamps resolves the timestamp source named by the schema
func Timestamps(frame *domain.Frame, timestampColumn string) ([]time.Time, bool) {
	if timestampColumn == domain.IndexAsTimestamp {
		if !frame.Index.IsDatetime() {
			return nil, false
		}
		out := make([]time.Time, len(frame.Index.Times))
		copy(out, frame.Index.Times)
		return out, true
	}
	col, ok := frame.Column(timestampColumn)
	if !ok {
		return nil, false
	}
	return ParseTimestamps(*col), true
}

// ValidateTime parses the timestamp column and runs every time check. All
// checks run even when an earlier one finds a problem.
func (v *Validator) ValidateTime(frame *domain.Frame, timestampColumn string) *domain.ValidationReport {
	report := domain.NewValidationReport()

	ts, ok := Timestamps(frame, timestampColumn)
	if !ok {
		report.Fail(ErrTimestampColumnMissing,
			fmt.Sprintf("timestamp column %q not found", timestampColumn),
			map[string]any{"column": timestampColumn})
		return report
	}

	nat := CountNaT(ts)
	if nat > 0 {
		report.Warn(WarnNaTTimestamps,
			fmt.Sprintf("%d timestamps could not be parsed", nat),
			map[string]any{"count": nat})
	}
	if len(ts) > 0 && nat == len(ts) {
		report.Fail(ErrNoValidTimestamps, "no timestamp could be parsed",
			map[string]any{"rows": len(ts)})
	}

	if idx := firstDecrease(ts); idx >= 0 {
		report.Warn(WarnNonMonotonic, "timestamps are not monotonically increasing",
			map[string]any{"first_index": idx})
	}

	if dups := countDuplicates(ts); dups > 0 {
		report.Warn(WarnDuplicateTimestamps,
			fmt.Sprintf("%d duplicate timestamps", dups),
			map[string]any{"count": dups})
	}

	report.Gaps = DetectGaps(ts, v.opts.GapMultiplier)
	if report.Gaps.Count > 0 {
		report.Warn(WarnSamplingGaps,
			fmt.Sprintf("%d sampling gaps longer than %.3gs", report.Gaps.Count, report.Gaps.Threshold),
			map[string]any{
				"count":           report.Gaps.Count,
				"median_interval": report.Gaps.MedianInterval,
				"multiplier":      v.opts.GapMultiplier,
			})
	}

	v.logger.Debug("time validation complete",
		slog.String("column", timestampColumn),
		slog.Int("rows", len(ts)),
		slog.Int("nat", nat),
		slog.Int("gaps", report.Gaps.Count),
		slog.Int("warnings", len(report.Warnings)))

	return report
}

// ValidateValues coerces each candidate column to numbers and warns when
// the missing ratio exceeds the configured threshold.
func (v *Validator) ValidateValues(frame *domain.Frame, columns []string) *domain.ValidationReport {
	report := domain.NewValidationReport()

	for _, name := range columns {
		col, ok := frame.Column(name)
		if !ok {
			report.Fail(ErrColumnMissing, fmt.Sprintf("column %q not found", name),
				map[string]any{"column": name})
			continue
		}

		values := CoerceNumeric(*col)
		if len(values) == 0 {
			continue
		}
		missing := 0
		for _, x := range values {
			if math.IsNaN(x) {
				missing++
			}
		}
		ratio := float64(missing) / float64(len(values))
		if ratio > v.opts.MaxMissingRatio {
			report.Warn(WarnHighMissingRatio,
				fmt.Sprintf("column %q is %.1f%% missing", name, ratio*100),
				map[string]any{
					"column":        name,
					"missing_ratio": ratio,
					"threshold":     v.opts.MaxMissingRatio,
				})
		}
	}

	return report
}

// Validate runs ValidateTime and ValidateValues for a detected schema
func (v *Validator) Validate(frame *domain.Frame, schema domain.SchemaMap) *domain.ValidationReport {
	report := v.ValidateTime(frame, schema.TimestampColumn)
	report.Merge(v.ValidateValues(frame, schema.SeriesNames()))
	return report
}

// CoerceNumeric returns the column as float64 with unconvertible cells as NaN
func CoerceNumeric(col domain.Column) []float64 {
	switch col.DType {
	case domain.DTypeFloat, domain.DTypeInt:
		out := make([]float64, len(col.Floats))
		copy(out, col.Floats)
		return out
	case domain.DTypeDatetime:
		out := make([]float64, len(col.Times))
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	default:
		out := make([]float64, len(col.Texts))
		for i, s := range col.Texts {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				f = math.NaN()
			}
			out[i] = f
		}
		return out
	}
}

// firstDecrease returns the index of the first valid timestamp earlier than
// its valid predecessor, or -1
func firstDecrease(ts []time.Time) int {
	var prev time.Time
	for i, t := range ts {
		if t.IsZero() {
			continue
		}
		if !prev.IsZero() && t.Before(prev) {
			return i
		}
		prev = t
	}
	return -1
}

func countDuplicates(ts []time.Time) int {
	seen := make(map[int64]struct{}, len(ts))
	dups := 0
	for _, t := range ts {
		if t.IsZero() {
			continue
		}
		key := t.UnixNano()
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}
