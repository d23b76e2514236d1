package validation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scadalab/internal/shared/testutil"
	"scadalab/pkg/contracts/domain"
)

var base = time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)

func minutes(offsets ...int) []time.Time {
	out := make([]time.Time, len(offsets))
	for i, m := range offsets {
		if m < 0 {
			continue
		}
		out[i] = base.Add(time.Duration(m) * time.Minute)
	}
	return out
}

func newValidator(t *testing.T) *Validator {
	logger, _ := testutil.NewTestLogger(t)
	return NewValidator(DefaultOptions(), logger)
}

func frameWith(t *testing.T, cols ...domain.Column) *domain.Frame {
	t.Helper()
	f, err := domain.NewFrame(cols...)
	require.NoError(t, err)
	return f
}

func TestValidateTime(t *testing.T) {
	tests := []struct {
		name         string
		times        []time.Time
		wantValid    bool
		wantWarnings []string
		wantGaps     int
	}{
		{
			name:         "clean uniform series",
			times:        minutes(0, 1, 2, 3, 4),
			wantValid:    true,
			wantWarnings: []string{},
		},
		{
			name:         "NaT entries",
			times:        minutes(0, -1, 2, 3),
			wantValid:    true,
			wantWarnings: []string{WarnNaTTimestamps},
		},
		{
			name:         "non monotonic and duplicate",
			times:        minutes(0, 2, 1, 2, 3),
			wantValid:    true,
			wantWarnings: []string{WarnNonMonotonic, WarnDuplicateTimestamps},
		},
		{
			name:         "sampling gap",
			times:        minutes(0, 1, 2, 3, 30, 31),
			wantValid:    true,
			wantWarnings: []string{WarnSamplingGaps},
			wantGaps:     1,
		},
		{
			name:         "all NaT",
			times:        minutes(-1, -1),
			wantValid:    false,
			wantWarnings: []string{WarnNaTTimestamps},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := frameWith(t,
				domain.NewTimeColumn("ts", tt.times),
				domain.NewFloatColumn("v", make([]float64, len(tt.times))),
			)

			report := newValidator(t).ValidateTime(f, "ts")

			assert.Equal(t, tt.wantValid, report.IsValid)
			codes := make([]string, 0, len(report.Warnings))
			for _, w := range report.Warnings {
				codes = append(codes, w.Code)
			}
			assert.Equal(t, tt.wantWarnings, codes)
			assert.Equal(t, tt.wantGaps, report.Gaps.Count)
		})
	}
}

func TestValidateTime_ContextValues(t *testing.T) {
	f := frameWith(t, domain.NewTimeColumn("ts", minutes(0, -1, -1, 3, 3)))

	report := newValidator(t).ValidateTime(f, "ts")

	require.True(t, report.HasWarning(WarnNaTTimestamps))
	assert.Equal(t, 2, report.Warnings[0].Context["count"])
	require.True(t, report.HasWarning(WarnDuplicateTimestamps))
}

func TestValidateTime_GapIndex(t *testing.T) {
	f := frameWith(t, domain.NewTimeColumn("ts", minutes(0, 1, 2, 3, 4, 60)))

	report := newValidator(t).ValidateTime(f, "ts")

	require.Equal(t, 1, report.Gaps.Count)
	assert.Equal(t, 5, report.Gaps.Gaps[0].Index)
	assert.Equal(t, 56*60.0, report.Gaps.Gaps[0].DeltaSeconds)
	assert.Equal(t, 60.0, report.Gaps.MedianInterval)
}

func TestValidateTime_MissingColumn(t *testing.T) {
	f := frameWith(t, domain.NewFloatColumn("v", []float64{1}))

	report := newValidator(t).ValidateTime(f, "ts")

	assert.False(t, report.IsValid)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, ErrTimestampColumnMissing, report.Errors[0].Code)
}

func TestValidateTime_StringColumnAndIndex(t *testing.T) {
	f := frameWith(t, domain.NewStringColumn("time", []string{"15/01/2024 08:00:00", "15/01/2024 08:01:00", "bogus"}))
	report := newValidator(t).ValidateTime(f, "time")
	assert.True(t, report.IsValid)
	assert.True(t, report.HasWarning(WarnNaTTimestamps))

	indexed := frameWith(t, domain.NewFloatColumn("v", []float64{1, 2}))
	indexed.Index = domain.Index{Times: minutes(0, 1)}
	report = newValidator(t).ValidateTime(indexed, domain.IndexAsTimestamp)
	assert.True(t, report.IsValid)
	assert.Empty(t, report.Warnings)
}

func TestValidateValues(t *testing.T) {
	nan := math.NaN()
	f := frameWith(t,
		domain.NewFloatColumn("sparse", []float64{nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, nan, 1}),
		domain.NewFloatColumn("ok", make([]float64, 40)),
		domain.NewStringColumn("text", append([]string{"1.5", "x"}, make([]string, 38)...)),
	)

	report := newValidator(t).ValidateValues(f, []string{"sparse", "ok", "text", "absent"})

	assert.False(t, report.IsValid)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, ErrColumnMissing, report.Errors[0].Code)

	require.Len(t, report.Warnings, 2)
	assert.Equal(t, "sparse", report.Warnings[0].Context["column"])
	assert.InDelta(t, 0.975, report.Warnings[0].Context["missing_ratio"].(float64), 1e-12)
	assert.Equal(t, "text", report.Warnings[1].Context["column"])
}

func TestValidate_MergesBoth(t *testing.T) {
	f := frameWith(t,
		domain.NewTimeColumn("ts", minutes(0, 1, 1)),
		domain.NewFloatColumn("v", []float64{math.NaN(), math.NaN(), math.NaN()}),
	)
	schema := domain.SchemaMap{
		TimestampColumn: "ts",
		Series:          []domain.SeriesCandidate{{Name: "v", DType: domain.DTypeFloat}},
	}

	report := newValidator(t).Validate(f, schema)

	assert.True(t, report.IsValid)
	assert.True(t, report.HasWarning(WarnDuplicateTimestamps))
	assert.True(t, report.HasWarning(WarnHighMissingRatio))
}
