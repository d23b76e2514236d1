package validation

import (
	"math"
	"strconv"
	"strings"
	"time"

	"scadalab/pkg/contracts/domain"
)

// TimestampFormats are tried in order against a whole column. A layout is
// accepted only if every non-empty cell parses with it, so a column never
// mixes day-first and month-first readings.
var TimestampFormats = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
	"01/02/2006 15:04:05",
	"01/02/2006",
}

// fallbackFormats are tried per cell after the column-wide pass fails
var fallbackFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"02.01.2006 15:04:05",
	"02.01.2006",
	"02-Jan-2006 15:04:05",
	time.RFC1123,
}

// ParseTimestamps converts a column to absolute times. Datetime columns are
// copied, numeric columns are read as Unix epoch seconds, and text columns go
// through TimestampFormats then the per-cell fallback. Unparseable cells
// become the zero time (NaT); this never fails.
func ParseTimestamps(col domain.Column) []time.Time {
	switch col.DType {
	case domain.DTypeDatetime:
		out := make([]time.Time, len(col.Times))
		copy(out, col.Times)
		return out
	case domain.DTypeFloat, domain.DTypeInt:
		out := make([]time.Time, len(col.Floats))
		for i, v := range col.Floats {
			out[i] = epochSeconds(v)
		}
		return out
	default:
		return ParseTimestampStrings(col.Texts)
	}
}

// ParseTimestampStrings is ParseTimestamps for raw text cells
func ParseTimestampStrings(cells []string) []time.Time {
	out := make([]time.Time, len(cells))

	if layout, ok := columnLayout(cells); ok {
		for i, c := range cells {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			out[i], _ = time.ParseInLocation(layout, c, time.UTC)
		}
		return out
	}

	for i, c := range cells {
		out[i] = parseLoose(strings.TrimSpace(c))
	}
	return out
}

func columnLayout(cells []string) (string, bool) {
	nonEmpty := 0
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		return "", false
	}

	for _, layout := range TimestampFormats {
		ok := true
		for _, c := range cells {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			if _, err := time.ParseInLocation(layout, c, time.UTC); err != nil {
				ok = false
				break
			}
		}
		if ok {
			return layout, true
		}
	}
	return "", false
}

func parseLoose(c string) time.Time {
	if c == "" {
		return time.Time{}
	}
	for _, layout := range fallbackFormats {
		if t, err := time.Parse(layout, c); err == nil {
			return t.UTC()
		}
	}
	for _, layout := range TimestampFormats {
		if t, err := time.ParseInLocation(layout, c, time.UTC); err == nil {
			return t
		}
	}
	if v, err := strconv.ParseFloat(c, 64); err == nil {
		return epochSeconds(v)
	}
	return time.Time{}
}

func epochSeconds(v float64) time.Time {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

// CountNaT returns the number of zero (not-a-time) entries
func CountNaT(ts []time.Time) int {
	n := 0
	for _, t := range ts {
		if t.IsZero() {
			n++
		}
	}
	return n
}
