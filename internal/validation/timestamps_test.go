package validation

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"scadalab/pkg/contracts/domain"
)

func TestParseTimestampStrings(t *testing.T) {
	tests := []struct {
		name  string
		cells []string
		want  []time.Time
	}{
		{
			name:  "iso with fraction",
			cells: []string{"2024-01-15T08:00:00.250", "2024-01-15T08:00:01"},
			want: []time.Time{
				base.Add(250 * time.Millisecond),
				base.Add(time.Second),
			},
		},
		{
			name:  "date only",
			cells: []string{"2024-01-15", ""},
			want:  []time.Time{time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), {}},
		},
		{
			name:  "day first wins when every cell fits",
			cells: []string{"02/01/2024", "03/01/2024"},
			want: []time.Time{
				time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
				time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			name:  "month first when day first cannot fit",
			cells: []string{"01/02/2024 10:00:00", "01/13/2024 10:00:00"},
			want: []time.Time{
				time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
				time.Date(2024, 1, 13, 10, 0, 0, 0, time.UTC),
			},
		},
		{
			name:  "per cell fallback coerces failures to NaT",
			cells: []string{"2024-01-15T08:00:00Z", "not a time", "1705305600"},
			want: []time.Time{
				base,
				{},
				base,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTimestampStrings(tt.cells)
			assert.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.True(t, tt.want[i].Equal(got[i]), "cell %d: want %v got %v", i, tt.want[i], got[i])
			}
		})
	}
}

func TestParseTimestamps_Numeric(t *testing.T) {
	col := domain.NewFloatColumn("epoch", []float64{1705305600, 1705305600.5, math.NaN()})

	got := ParseTimestamps(col)

	assert.True(t, base.Equal(got[0]))
	assert.True(t, base.Add(500*time.Millisecond).Equal(got[1]))
	assert.True(t, got[2].IsZero())
}

func TestParseTimestamps_CopiesDatetime(t *testing.T) {
	src := minutes(0, 1)
	got := ParseTimestamps(domain.NewTimeColumn("ts", src))
	got[0] = time.Time{}
	assert.False(t, src[0].IsZero())
}
