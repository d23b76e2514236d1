package loader

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"scadalab/internal/validation"
	"scadalab/pkg/contracts/domain"
)

// frameFromRecords types each column of a header plus string rows. A
// column is numeric when every non-empty cell parses as a float, datetime
// when ParseDates is on and every non-empty cell parses as a timestamp, and
// text otherwise.
func frameFromRecords(header []string, rows [][]string, opts Options) (*domain.Frame, error) {
	names := uniqueNames(header)
	columns := make([]domain.Column, len(names))
	for j, name := range names {
		cells := make([]string, len(rows))
		for i, row := range rows {
			if j < len(row) {
				cells[i] = strings.TrimSpace(row[j])
			}
		}
		columns[j] = typeColumn(name, cells, opts.ParseDates)
	}
	return domain.NewFrame(columns...)
}

func typeColumn(name string, cells []string, parseDates bool) domain.Column {
	if floats, ok := parseFloats(cells); ok {
		return domain.NewFloatColumn(name, floats)
	}
	if parseDates {
		times := validation.ParseTimestampStrings(cells)
		ok := true
		for i, c := range cells {
			if c != "" && times[i].IsZero() {
				ok = false
				break
			}
		}
		if ok {
			return domain.NewTimeColumn(name, times)
		}
	}
	return domain.NewStringColumn(name, cells)
}

// parseFloats treats an all-empty column as numeric NaN
func parseFloats(cells []string) ([]float64, bool) {
	out := make([]float64, len(cells))
	for i, c := range cells {
		if c == "" || strings.EqualFold(c, "nan") || strings.EqualFold(c, "null") {
			out[i] = math.NaN()
			continue
		}
		f, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

// uniqueNames fills blank headers and suffixes repeats: a, a.1, a.2
func uniqueNames(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("column_%d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}
