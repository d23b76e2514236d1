package schema

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "scadalab/internal/errors"
	"scadalab/pkg/contracts/domain"
)

func times(n int) []time.Time {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = base.Add(time.Duration(i) * time.Minute)
	}
	return out
}

func mustFrame(t *testing.T, cols ...domain.Column) *domain.Frame {
	t.Helper()
	f, err := domain.NewFrame(cols...)
	require.NoError(t, err)
	return f
}

func TestDetectSchema(t *testing.T) {
	nums := []float64{1, 2, math.NaN()}

	tests := []struct {
		name           string
		frame          *domain.Frame
		wantTimestamp  string
		wantConfidence float64
		wantSeries     []string
	}{
		{
			name: "datetime column wins over name match",
			frame: mustFrame(t,
				domain.NewStringColumn("time", []string{"a", "b", "c"}),
				domain.NewTimeColumn("recorded", times(3)),
				domain.NewFloatColumn("flow", nums),
			),
			wantTimestamp:  "recorded",
			wantConfidence: 0.95,
			wantSeries:     []string{"flow"},
		},
		{
			name: "case-insensitive name match",
			frame: mustFrame(t,
				domain.NewFloatColumn("Pressure [bar]", nums),
				domain.NewStringColumn("TimeStamp", []string{"x", "y", "z"}),
				domain.NewIntColumn("count", []int64{1, 2, 3}),
			),
			wantTimestamp:  "TimeStamp",
			wantConfidence: 0.9,
			wantSeries:     []string{"Pressure [bar]", "count"},
		},
		{
			name: "candidate order decides between matches",
			frame: mustFrame(t,
				domain.NewStringColumn("date", []string{"1", "2", "3"}),
				domain.NewStringColumn("timestamp", []string{"1", "2", "3"}),
			),
			wantTimestamp:  "timestamp",
			wantConfidence: 0.9,
			wantSeries:     []string{},
		},
		{
			name: "datetime index",
			frame: func() *domain.Frame {
				f := mustFrame(t, domain.NewFloatColumn("a", nums), domain.NewFloatColumn("b", nums))
				f.Index = domain.Index{Name: "when", Times: times(3)}
				return f
			}(),
			wantTimestamp:  domain.IndexAsTimestamp,
			wantConfidence: 0.9,
			wantSeries:     []string{"a", "b"},
		},
		{
			name: "fallback to first column",
			frame: mustFrame(t,
				domain.NewFloatColumn("seconds", []float64{0, 1, 2}),
				domain.NewFloatColumn("level", nums),
				domain.NewStringColumn("note", []string{"", "", ""}),
			),
			wantTimestamp:  "seconds",
			wantConfidence: 0.5,
			wantSeries:     []string{"level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectSchema(tt.frame, DefaultRules())
			require.NoError(t, err)

			assert.Equal(t, tt.wantTimestamp, got.TimestampColumn)
			assert.Equal(t, tt.wantConfidence, got.Confidence)
			assert.Equal(t, tt.wantSeries, got.SeriesNames())
		})
	}
}

func TestDetectSchema_UnitHints(t *testing.T) {
	f := mustFrame(t,
		domain.NewTimeColumn("ts", times(2)),
		domain.NewFloatColumn("Pressure [bar]", []float64{1, 2}),
		domain.NewFloatColumn("Flow (m3/h)", []float64{1, 2}),
		domain.NewFloatColumn("Level", []float64{1, 2}),
	)

	got, err := DetectSchema(f, DefaultRules())
	require.NoError(t, err)
	require.Len(t, got.Series, 3)

	assert.Equal(t, "bar", got.Series[0].UnitHint)
	assert.Equal(t, "m3/h", got.Series[1].UnitHint)
	assert.Empty(t, got.Series[2].UnitHint)
}

func TestDetectSchema_MinSeriesIsInformational(t *testing.T) {
	f := mustFrame(t, domain.NewTimeColumn("ts", times(2)), domain.NewFloatColumn("x", []float64{1, 2}))

	got, err := DetectSchema(f, Rules{MinSeriesColumns: 3})
	require.NoError(t, err)
	assert.True(t, got.BelowMinSeries)
	assert.Len(t, got.Series, 1)
}

func TestDetectSchema_EmptyFrame(t *testing.T) {
	_, err := DetectSchema(&domain.Frame{}, DefaultRules())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeSchemaDetection))

	_, err = DetectSchema(nil, DefaultRules())
	require.Error(t, err)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "Pressure", BaseName("Pressure [bar]"))
	assert.Equal(t, "Flow", BaseName("Flow (m3/h) "))
	assert.Equal(t, "Level", BaseName("Level"))
}
