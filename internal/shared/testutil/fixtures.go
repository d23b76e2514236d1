package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Series names used by the fixtures
const (
	SeriesTemp = "TT101 [degC]"
	SeriesFlow = "FT200"
)

// LineOneCSV is a one-second historian export with a gap in each series
const LineOneCSV = `timestamp,TT101 [degC],FT200
2024-03-01T06:00:00Z,20,1
2024-03-01T06:00:01Z,,2
2024-03-01T06:00:02Z,22,3
2024-03-01T06:00:03Z,23,
2024-03-01T06:00:04Z,24,5
`

// LineTwoCSV overlaps LineOneCSV from 06:00:02 to 06:00:04
const LineTwoCSV = `timestamp,TT101 [degC]
2024-03-01T06:00:02Z,30
2024-03-01T06:00:03Z,31
2024-03-01T06:00:04Z,32
2024-03-01T06:00:05Z,33
2024-03-01T06:00:06Z,34
`

// NoTimeCSV has numeric columns only
const NoTimeCSV = `a,b
1,2
3,4
`

// WriteFixture writes content to dir/name and returns the path
func WriteFixture(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("create fixture dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
	return path
}
