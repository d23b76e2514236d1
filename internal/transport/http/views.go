package http

import (
	"math"
	"strconv"
	"time"

	"scadalab/internal/dataset"
)

// floats encodes NaN and infinities as null
type floats []float64

func (f floats) MarshalJSON() ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	buf := make([]byte, 0, 2+len(f)*8)
	buf = append(buf, '[')
	for i, v := range f {
		if i > 0 {
			buf = append(buf, ',')
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			buf = append(buf, "null"...)
			continue
		}
		buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
	}
	return append(buf, ']'), nil
}

// SeriesView is the JSON shape of one series
type SeriesView struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit,omitempty"`
	Interpolated int             `json:"interpolated_points"`
	Lineage      dataset.Lineage `json:"lineage"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	Values       floats          `json:"values,omitempty"`
	Mask         []bool          `json:"interpolated,omitempty"`
	Methods      []string        `json:"methods,omitempty"`
}

// DatasetView is the JSON shape of a dataset. Arrays are only filled when
// the caller asks for values.
type DatasetView struct {
	dataset.Summary
	Origin    time.Time      `json:"origin"`
	Format    string         `json:"format"`
	Checksum  string         `json:"checksum"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Series    []SeriesView   `json:"series_detail"`
	Time      floats         `json:"time,omitempty"`
	Datetimes []time.Time    `json:"datetimes,omitempty"`
}

func newDatasetView(d *dataset.Dataset, withValues bool) DatasetView {
	v := DatasetView{
		Summary:  d.Summarize(),
		Origin:   d.Origin,
		Format:   d.Source.Format,
		Checksum: d.Source.Checksum,
		Metadata: sanitizeMap(d.Metadata),
		Series:   make([]SeriesView, 0, len(d.SeriesOrder)),
	}
	for _, s := range d.Ordered() {
		sv := SeriesView{
			ID:           s.ID,
			Name:         s.Name,
			Unit:         s.Unit,
			Interpolated: s.Info.Count(),
			Lineage:      s.Lineage,
			Metadata:     sanitizeMap(s.Metadata),
		}
		if withValues {
			sv.Values = floats(s.Values)
			sv.Mask = s.Info.Mask
			sv.Methods = s.Info.Method
		}
		v.Series = append(v.Series, sv)
	}
	if withValues {
		v.Time = floats(d.Time)
		v.Datetimes = d.Datetimes
	}
	return v
}

// sanitizeMap makes metadata JSON-safe: non-finite floats become null and
// float slices are encoded through floats
func sanitizeMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = sanitize(v)
	}
	return out
}

func sanitize(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case []float64:
		return floats(x)
	case map[string]float64:
		out := make(map[string]any, len(x))
		for k, f := range x {
			out[k] = sanitize(f)
		}
		return out
	case map[string]any:
		return sanitizeMap(x)
	}
	return v
}
